package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLock_SingleHolder(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "sweep", time.Minute)
	b := NewRedisLock(client, "sweep", time.Minute)

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("a.Acquire() = %v, %v", ok, err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("b acquired a held lock")
	}
	if err := b.Release(ctx); !errors.Is(err, ErrNotHeld) {
		t.Errorf("b.Release() = %v, want ErrNotHeld", err)
	}
	if !mr.Exists(KeyPrefix + "sweep") {
		t.Fatal("non-holder release deleted the key")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("a.Release() error: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Error("b could not acquire after release")
	}
}

func TestRedisLock_ExpiresAndExtend(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "snapshots", 10*time.Second)
	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	if err := a.Extend(ctx, time.Minute); err != nil {
		t.Fatalf("Extend() error: %v", err)
	}
	mr.FastForward(30 * time.Second)
	if !mr.Exists(a.Key()) {
		t.Fatal("extended lock expired early")
	}
	mr.FastForward(time.Minute)

	b := NewRedisLock(client, "snapshots", time.Minute)
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lock did not expire")
	}
	if err := a.Extend(ctx, time.Minute); !errors.Is(err, ErrNotHeld) {
		t.Errorf("stale Extend() = %v, want ErrNotHeld", err)
	}
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	l := NewPGAdvisoryLock(db, "sweep")
	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(l.LockID()).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(l.LockID()).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	ctx := context.Background()
	if ok, err := l.Acquire(ctx); err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v", ok, err)
	}
	if err := l.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if err := l.Release(ctx); !errors.Is(err, ErrNotHeld) {
		t.Errorf("second Release() = %v, want ErrNotHeld", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPGAdvisoryLock_Busy(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	l := NewPGAdvisoryLock(db, "sweep")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	if ok, err := l.Acquire(context.Background()); err != nil || ok {
		t.Fatalf("Acquire() = %v, %v; want false", ok, err)
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	holder := NewLocalLock("run-test")
	if ok, _ := holder.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	called := false
	ran, err := Run(ctx, NewLocalLock("run-test"), func(context.Context) error {
		called = true
		return nil
	})
	if ran || called || err != nil {
		t.Fatalf("Run on held lock: ran=%v called=%v err=%v", ran, called, err)
	}

	_ = holder.Release(ctx)
	boom := errors.New("boom")
	ran, err = Run(ctx, NewLocalLock("run-test"), func(context.Context) error { return boom })
	if !ran || !errors.Is(err, boom) {
		t.Fatalf("Run = %v, %v", ran, err)
	}
	if ok, _ := holder.Acquire(ctx); !ok {
		t.Error("Run did not release the lock")
	}
}

func TestNew_PicksBackend(t *testing.T) {
	_, client := setupRedis(t)
	if _, ok := New(client, nil, "k", time.Second).(*RedisLock); !ok {
		t.Error("want RedisLock when redis is configured")
	}
	if _, ok := New(nil, nil, "k", time.Second).(*LocalLock); !ok {
		t.Error("want LocalLock without backends")
	}
}
