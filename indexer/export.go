package indexer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	TokenID     int64  `parquet:"name=token_id, type=INT64"`
	Minter      string `parquet:"name=minter, type=BYTE_ARRAY, convertedtype=UTF8"`
	PaidWei     string `parquet:"name=paid_wei, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeeWei      string `parquet:"name=fee_wei, type=BYTE_ARRAY, convertedtype=UTF8"`
	TeamWei     string `parquet:"name=team_wei, type=BYTE_ARRAY, convertedtype=UTF8"`
	DonationWei string `parquet:"name=donation_wei, type=BYTE_ARRAY, convertedtype=UTF8"`
	RoyaltyWei  string `parquet:"name=royalty_wei, type=BYTE_ARRAY, convertedtype=UTF8"`
	WhitelistID int64  `parquet:"name=whitelist_id, type=INT64"`
	Discounted  bool   `parquet:"name=discounted, type=BOOLEAN"`
	Length      string `parquet:"name=length, type=BYTE_ARRAY, convertedtype=UTF8"`
	URI         string `parquet:"name=uri, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt   string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every indexed mint to a parquet file at path and
// returns the number of rows written.
func (ix *Indexer) ExportParquet(ctx context.Context, path string) (int, error) {
	var rows []MintRow
	if err := ix.db.WithContext(ctx).Order("token_id ASC").Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("indexer: load mints: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			TokenID:     int64(row.TokenID),
			Minter:      row.Minter,
			PaidWei:     row.Paid,
			FeeWei:      row.Fee,
			TeamWei:     row.Team,
			DonationWei: row.Donation,
			RoyaltyWei:  row.Royalty,
			WhitelistID: -1,
			Length:      row.Length,
			URI:         row.URI,
			CreatedAt:   row.CreatedAt.UTC().Format(time.RFC3339),
		}
		if row.WhitelistID != nil {
			pr.WhitelistID = int64(*row.WhitelistID)
			pr.Discounted = true
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return len(rows), nil
}
