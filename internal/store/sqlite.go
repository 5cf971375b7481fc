package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createPlugLoad = `CREATE TABLE IF NOT EXISTS plug_load (
	timestamp TIMESTAMP PRIMARY KEY,
	power REAL,
	is_valid BOOLEAN
)`

// SQLite persists samples in a single-table SQLite database. The
// plug_load schema matches what earlier capture databases contain, so
// those files remain readable.
type SQLite struct {
	path string
	db   *sql.DB
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrUnavailable, path, err)
	}
	return &SQLite{path: path, db: db}, nil
}

// Init verifies the connection and creates the plug_load table.
func (s *SQLite) Init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := s.db.ExecContext(ctx, createPlugLoad); err != nil {
		return fmt.Errorf("%w: creating plug_load: %v", ErrUnavailable, err)
	}
	return nil
}

// Reset deletes every stored sample.
func (s *SQLite) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plug_load`); err != nil {
		return fmt.Errorf("%w: clearing plug_load: %v", ErrUnavailable, err)
	}
	return nil
}

// Append inserts one sample row. Timestamps are stored in UTC.
func (s *SQLite) Append(ctx context.Context, t time.Time, watts float64, valid bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plug_load (timestamp, power, is_valid) VALUES (?, ?, ?)`,
		t.UTC(), watts, valid)
	if err != nil {
		return fmt.Errorf("%w: inserting sample: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
