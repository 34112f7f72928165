// Package distlock keeps maintenance jobs singleton across replicas.
//
// Locks are advisory and only guard batch jobs. Per-row correctness never
// depends on them: ownership claims and disposition writes are conditional
// updates inside store transactions.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/lead-disposition/internal/pkg/logger"
)

// ErrNotHeld is returned when extending or releasing a lock this holder no
// longer owns.
var ErrNotHeld = errors.New("lock not held")

var log = logger.With("distlock")

// Locker is a named, non-blocking lock. A Locker is used by one goroutine;
// concurrent holders need their own instances.
type Locker interface {
	// Acquire tries once and reports whether the lock is now held.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this holder still owns it.
	Release(ctx context.Context) error
}

// New picks a backend: Redis when rdb is set, a Postgres advisory lock when
// db is set, otherwise an in-process lock for single-node deployments.
func New(rdb *redis.Client, db *sql.DB, key string, ttl time.Duration) Locker {
	switch {
	case rdb != nil:
		return NewRedisLock(rdb, key, ttl)
	case db != nil:
		return NewPGAdvisoryLock(db, key)
	default:
		return NewLocalLock(key)
	}
}

// Run calls fn while holding l. It reports false without calling fn when
// another holder has the lock.
func Run(ctx context.Context, l Locker, fn func(ctx context.Context) error) (bool, error) {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		// Release even when ctx is already cancelled.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.Release(rctx); err != nil && !errors.Is(err, ErrNotHeld) {
			log.Warn("release lock failed", "error", err)
		}
	}()
	return true, fn(ctx)
}
