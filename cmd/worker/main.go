package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/lead-disposition/internal/bootstrap"
	"github.com/ignite/lead-disposition/internal/config"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
)

var log = logger.With("worker")

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to YAML config")
	once := flag.Bool("once", false, "run one maintenance cycle and exit")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		log.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	bootstrap.SetupLogging(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, db, err := bootstrap.NewEngine(ctx, cfg, bootstrap.NewMetrics(cfg.Metrics))
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Close()

	rdb, err := bootstrap.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}
	if rdb == nil && db == nil {
		log.Warn("no redis or postgres configured; maintenance locks are process-local")
	}

	w := bootstrap.NewMaintenanceWorker(eng, bootstrap.LockFactory(rdb, db, cfg.Maintenance.LockTTL()), cfg.Maintenance, true)

	if once {
		rep := w.RunOnce(ctx)
		log.Info("cycle finished", "ran", rep.Ran, "skipped", rep.Skipped, "errors", len(rep.Errors), "duration", rep.Duration.String())
		if len(rep.Errors) > 0 {
			return fmt.Errorf("maintenance cycle had %d failed steps", len(rep.Errors))
		}
		return nil
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down worker")
		cancel()
	}()

	if err := w.Start(ctx); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}
