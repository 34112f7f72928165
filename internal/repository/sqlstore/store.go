// Package sqlstore implements store.Store over database/sql. The postgres
// and sqlite packages open the database, apply their migrations and supply
// a Dialect; the queries themselves are shared.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/lead-disposition/internal/store"
)

// Store is a store.Store backed by a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	txOpts  *sql.TxOptions
}

var _ store.Store = (*Store)(nil)

// New wraps db. The schema must already be migrated.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// InTx runs fn in one database transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.txOpts)
	if err != nil {
		return fmt.Errorf("begin: %w", s.dialect.classify(err))
	}
	if err := fn(ctx, &tx{tx: sqlTx, d: s.dialect}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", s.dialect.classify(err))
	}
	return nil
}

func (s *Store) q(query string) string { return s.dialect.Rebind(query) }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
