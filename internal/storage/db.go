package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// OpenDB opens the postgres pool and, when migrationsDir is
// non-empty, applies pending goose migrations before returning.
func OpenDB(dsn, migrationsDir string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if migrationsDir != "" {
		if err := goose.Up(db, migrationsDir); err != nil {
			return nil, fmt.Errorf("goose up: %w", err)
		}
	}
	return db, nil
}
