// Package store persists power samples durably. Two backends are
// provided, a SQLite database and an append-only CSV file, selected
// from the target path's extension.
package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnavailable reports a transient storage failure. The sampling
// loop reports it and keeps going without persistence for that tick.
var ErrUnavailable = errors.New("store unavailable")

// Store is an append-only sink for power samples.
type Store interface {
	// Init prepares the backing schema, creating it if needed.
	Init(ctx context.Context) error

	// Reset deletes all previously stored samples.
	Reset(ctx context.Context) error

	// Append records one sample. Calls arrive in capture order.
	Append(ctx context.Context, t time.Time, watts float64, valid bool) error

	// Close releases the underlying handle.
	Close() error
}

// Open selects a backend from the path extension: .csv opens a CSV
// store, anything else (.db, .sqlite, .sqlite3) a SQLite database.
func Open(path string) (Store, error) {
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return NewCSV(path), nil
	}
	return NewSQLite(path)
}
