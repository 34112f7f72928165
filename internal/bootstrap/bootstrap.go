// Package bootstrap builds the engine and its collaborators from config.
// The server, worker and leadctl binaries share it.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/lead-disposition/internal/config"
	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/engine"
	"github.com/ignite/lead-disposition/internal/metrics"
	"github.com/ignite/lead-disposition/internal/pkg/distlock"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
	"github.com/ignite/lead-disposition/internal/repository/memstore"
	"github.com/ignite/lead-disposition/internal/repository/postgres"
	"github.com/ignite/lead-disposition/internal/repository/sqlite"
	"github.com/ignite/lead-disposition/internal/service/tam"
	"github.com/ignite/lead-disposition/internal/storage"
	"github.com/ignite/lead-disposition/internal/store"
	"github.com/ignite/lead-disposition/internal/worker"
)

var log = logger.With("bootstrap")

// SetupLogging applies the log section to the process logger.
func SetupLogging(cfg config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}

// OpenStore opens the configured store. The returned *sql.DB is non-nil
// only for Postgres, where it also backs advisory locks.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, *sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg.URL, postgres.Options{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime(),
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("store opened", "driver", cfg.Driver)
		return st, st.DB(), nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("store opened", "driver", cfg.Driver, "path", cfg.SQLitePath)
		return st, nil, nil
	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on exit")
		return memstore.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// NewMetrics returns a recorder, or nil when metrics are disabled.
func NewMetrics(cfg config.MetricsConfig) *metrics.Recorder {
	if !cfg.Enabled {
		return nil
	}
	return metrics.New(cfg.Namespace)
}

// NewEngine opens the store and archive and builds the engine.
func NewEngine(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) (*engine.Engine, *sql.DB, error) {
	st, db, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	archive, err := storage.New(ctx, cfg.Archive)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("snapshot archive: %w", err)
	}
	opts := engine.Options{
		Metrics: rec,
		TAM: tam.Options{
			Channel:     domain.Channel(cfg.TAM.Channel),
			BurnWindow:  cfg.TAM.BurnWindow,
			WarnWeeks:   cfg.TAM.WarningWeeks,
			CritWeeks:   cfg.TAM.CriticalWeeks,
			Concurrency: cfg.TAM.Concurrency,
		},
	}
	if archive != nil {
		opts.Archiver = archive
		log.Info("snapshot archive enabled", "type", cfg.Archive.Type)
	}
	return engine.New(st, cfg.Policy(), opts), db, nil
}

// NewRedis connects to Redis, or returns nil when no address is set.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Info("redis connected", "addr", cfg.Addr)
	return rdb, nil
}

// LockFactory picks the maintenance lock backend: Redis, then Postgres
// advisory locks, then in-process locks.
func LockFactory(rdb *redis.Client, db *sql.DB, ttl time.Duration) worker.LockFactory {
	return func(step string) distlock.Locker {
		return distlock.New(rdb, db, "maintenance:"+step, ttl)
	}
}

// NewMaintenanceWorker builds the worker from the maintenance section.
func NewMaintenanceWorker(eng *engine.Engine, locks worker.LockFactory, cfg config.MaintenanceConfig, runOnStart bool) *worker.MaintenanceWorker {
	return worker.NewMaintenanceWorker(eng, locks, worker.MaintenanceConfig{
		Interval:   cfg.Interval(),
		BatchSize:  cfg.BatchSize,
		RunOnStart: runOnStart,
	})
}
