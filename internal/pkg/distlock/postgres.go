package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// PGAdvisoryLock uses pg_try_advisory_lock. Advisory locks are
// session-scoped, so the lock pins one pooled connection from Acquire until
// Release. The lock also drops if that connection dies.
type PGAdvisoryLock struct {
	db     *sql.DB
	key    string
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable 64-bit lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(KeyPrefix + key))
	return &PGAdvisoryLock{db: db, key: key, lockID: int64(h.Sum64())}
}

// LockID returns the advisory lock id.
func (l *PGAdvisoryLock) LockID() int64 { return l.lockID }

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire advisory lock %s: %w", l.key, err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&ok); err != nil {
		conn.Close()
		return false, fmt.Errorf("acquire advisory lock %s: %w", l.key, err)
	}
	if !ok {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()

	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&ok); err != nil {
		return fmt.Errorf("release advisory lock %s: %w", l.key, err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
