// Package postgres opens the PostgreSQL-backed store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/lead-disposition/internal/pkg/logger"
	"github.com/ignite/lead-disposition/internal/repository/postgres/migrations"
	"github.com/ignite/lead-disposition/internal/repository/sqlstore"
	"github.com/ignite/lead-disposition/internal/store"
)

var log = logger.With("postgres")

// Dialect is the PostgreSQL flavour of the shared SQL store.
var Dialect = sqlstore.Dialect{
	Name:      "postgres",
	Numbered:  true,
	ForUpdate: " FOR UPDATE",
	Time:      sqlstore.NativeTime,
	Classify:  classify,
}

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// SkipMigrations leaves the schema alone; cmd/migrate owns it.
	SkipMigrations bool
}

// Open connects to dsn, applies pending migrations and returns the store.
func Open(ctx context.Context, dsn string, opts Options) (*sqlstore.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if !opts.SkipMigrations {
		if _, err := Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return sqlstore.New(db, Dialect), nil
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	applied, err := sqlstore.Migrate(ctx, db, Dialect, migrations.FS)
	if err != nil {
		return applied, fmt.Errorf("migrate postgres: %w", err)
	}
	for _, name := range applied {
		log.Info("applied migration", "name", name)
	}
	return applied, nil
}

// Error codes the store cares about.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", store.ErrDuplicateKey, pqErr.Constraint)
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %s", store.ErrStaleWrite, pqErr.Message)
	}
	return err
}
