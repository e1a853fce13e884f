package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"transitsync/internal/transit"
)

// Variants returns the cached variants for a stop, or nil when absent.
func (db *DB) Variants(ctx context.Context, stopNumber int) ([]transit.Variant, error) {
	var raw string
	err := db.QueryRowContext(ctx,
		`SELECT variants FROM variant_cache WHERE stop_number = ?`, stopNumber).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var variants []transit.Variant
	if err := json.Unmarshal([]byte(raw), &variants); err != nil {
		return nil, fmt.Errorf("decode cached variants for stop %d: %w", stopNumber, err)
	}
	return variants, nil
}

// PutVariants stores the variants for a stop, replacing any previous entry.
func (db *DB) PutVariants(ctx context.Context, stopNumber int, variants []transit.Variant) error {
	raw, err := json.Marshal(variants)
	if err != nil {
		return fmt.Errorf("encode variants for stop %d: %w", stopNumber, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO variant_cache (stop_number, variants, updated_at) VALUES (?, ?, ?)`,
		stopNumber, string(raw), time.Now().UTC().Format(time.RFC3339))
	return err
}

// ClearAll removes every cached variant entry.
func (db *DB) ClearAll(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `DELETE FROM variant_cache`)
	return err
}
