package storage

import "fmt"

// migrate creates the cache schema if it doesn't exist.
func (db *DB) migrate() error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	db.logger.Info("database migrations applied")
	return nil
}

var migrations = []string{
	// Variants known to serve each stop, JSON-encoded. Entries live until the
	// cache is explicitly cleared; there is no TTL.
	`CREATE TABLE IF NOT EXISTS variant_cache (
		stop_number INTEGER PRIMARY KEY,
		variants    TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
}
