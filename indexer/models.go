package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MintRow is the durable copy of a committed mint.
type MintRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TokenID     uint64    `gorm:"uniqueIndex"`
	Minter      string    `gorm:"index"`
	Paid        string    `gorm:"not null"`
	Fee         string    `gorm:"not null"`
	Team        string    `gorm:"not null"`
	Donation    string    `gorm:"not null"`
	Royalty     string    `gorm:"not null"`
	WhitelistID *uint64   `gorm:"index"`
	Length      string
	URI         string
	CreatedAt   time.Time `gorm:"index"`
}

// EventRow stores every typed event with its attributes encoded as JSON.
type EventRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&MintRow{},
		&EventRow{},
	)
}
