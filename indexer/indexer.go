package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"communitymint/core/events"
)

// ErrNotFound is returned when no row matches a lookup.
var ErrNotFound = errors.New("indexer: not found")

// Open connects to the configured database. DSNs starting with postgres:// or
// postgresql:// use the Postgres driver; anything else is a SQLite path or URI.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// FailureObserver counts events that could not be persisted.
type FailureObserver interface {
	ObserveIndexerFailure(eventType string)
}

// Indexer persists emitted events. It implements events.Emitter so it can be
// attached directly to the engine.
type Indexer struct {
	db       *gorm.DB
	logger   *slog.Logger
	nowFn    func() time.Time
	failures FailureObserver
}

// New wraps an open database.
func New(db *gorm.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger, nowFn: time.Now}
}

// SetNowFunc overrides the time source used for deterministic testing.
func (ix *Indexer) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	ix.nowFn = now
}

// SetFailureObserver attaches the counter incremented when Emit cannot
// persist an event.
func (ix *Indexer) SetFailureObserver(observer FailureObserver) {
	ix.failures = observer
}

// Emit implements events.Emitter. Failures are logged and counted; emission
// never blocks the engine on storage errors.
func (ix *Indexer) Emit(evt events.Event) {
	if err := ix.Record(context.Background(), evt); err != nil {
		ix.logger.Error("indexer: record event", "type", evt.EventType(), "error", err)
		if ix.failures != nil {
			ix.failures.ObserveIndexerFailure(evt.EventType())
		}
	}
}

// Record stores evt. Events without an attribute rendering are skipped.
func (ix *Indexer) Record(ctx context.Context, evt events.Event) error {
	typed, ok := evt.(events.Typed)
	if !ok {
		return nil
	}
	rendered := typed.Event()
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	now := ix.nowFn().UTC()
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &EventRow{ID: uuid.New(), Type: rendered.Type, Attributes: string(attrs), CreatedAt: now}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		completed, ok := evt.(events.MintCompleted)
		if !ok {
			return nil
		}
		return tx.Create(mintRow(completed, rendered.Attributes, now)).Error
	})
}

func mintRow(evt events.MintCompleted, attrs map[string]string, now time.Time) *MintRow {
	row := &MintRow{
		ID:        uuid.New(),
		TokenID:   evt.TokenID,
		Minter:    attrs["minter"],
		Paid:      attrs["paid"],
		Fee:       attrs["fee"],
		Team:      attrs["team"],
		Donation:  attrs["donation"],
		Royalty:   attrs["royalty"],
		Length:    evt.Length,
		URI:       evt.URI,
		CreatedAt: now,
	}
	if evt.WhitelistID != nil {
		id := *evt.WhitelistID
		row.WhitelistID = &id
	}
	return row
}

// MintFilter narrows a mint listing.
type MintFilter struct {
	Minter      string
	WhitelistID *uint64
	Limit       int
	Offset      int
}

// Mints lists indexed mints ordered by token id.
func (ix *Indexer) Mints(ctx context.Context, filter MintFilter) ([]MintRow, error) {
	query := ix.db.WithContext(ctx).Model(&MintRow{}).Order("token_id ASC")
	if minter := strings.TrimSpace(filter.Minter); minter != "" {
		query = query.Where("LOWER(minter) = ?", strings.ToLower(minter))
	}
	if filter.WhitelistID != nil {
		query = query.Where("whitelist_id = ?", *filter.WhitelistID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []MintRow
	if err := query.Limit(limit).Offset(filter.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MintByToken returns the indexed mint of tokenID.
func (ix *Indexer) MintByToken(ctx context.Context, tokenID uint64) (*MintRow, error) {
	var row MintRow
	err := ix.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: token %s", ErrNotFound, strconv.FormatUint(tokenID, 10))
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Events lists stored events of eventType, newest first. An empty type lists
// every event.
func (ix *Indexer) Events(ctx context.Context, eventType string, limit int) ([]EventRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := ix.db.WithContext(ctx).Model(&EventRow{}).Order("created_at DESC")
	if eventType = strings.TrimSpace(eventType); eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	var rows []EventRow
	if err := query.Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
