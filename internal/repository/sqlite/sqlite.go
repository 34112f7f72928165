// Package sqlite opens the SQLite-backed store used for single-node
// deployments, the CLI and integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/ignite/lead-disposition/internal/repository/sqlite/migrations"
	"github.com/ignite/lead-disposition/internal/repository/sqlstore"
	"github.com/ignite/lead-disposition/internal/store"
)

// Dialect is the SQLite flavour of the shared SQL store. SQLite has no row
// locks; transactions start with BEGIN IMMEDIATE instead, which takes the
// database write lock up front.
var Dialect = sqlstore.Dialect{
	Name:     "sqlite",
	Time:     sqlstore.MillisTime,
	Classify: classify,
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlstore.Migrate(ctx, db, Dialect, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlstore.New(db, Dialect), nil
}

func classify(err error) error {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	code := sqliteErr.Code()
	switch code {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
	}
	switch code & 0xff {
	case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", store.ErrStaleWrite, err)
	}
	return err
}
