package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/lead-disposition/internal/api"
	"github.com/ignite/lead-disposition/internal/bootstrap"
	"github.com/ignite/lead-disposition/internal/config"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
)

var log = logger.With("server")

// checkPortAvailable fails fast when something already listens on addr.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	return ln.Close()
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to YAML config")
	withWorker := flag.Bool("with-worker", false, "run the maintenance worker in-process")
	flag.Parse()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	if err := run(*configPath, *withWorker, done); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// run serves until done fires or the listener fails. Everything it opens is
// closed before it returns.
func run(configPath string, withWorker bool, done <-chan os.Signal) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	bootstrap.SetupLogging(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := bootstrap.NewMetrics(cfg.Metrics)
	eng, db, err := bootstrap.NewEngine(ctx, cfg, rec)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Close()

	opts := api.Options{
		Metrics:           rec,
		CORSOrigins:       cfg.Server.CORSOrigins,
		FillFreshRatio:    cfg.Fill.FreshRatio,
		FillMaxPerCompany: cfg.Fill.MaxPerCompany,
	}

	if withWorker {
		rdb, err := bootstrap.NewRedis(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, maintenance locks fall back", "error", err)
		}
		if rdb != nil {
			defer rdb.Close()
		}
		w := bootstrap.NewMaintenanceWorker(eng, bootstrap.LockFactory(rdb, db, cfg.Maintenance.LockTTL()), cfg.Maintenance, false)
		opts.Maintenance = func(ctx context.Context) (any, error) { return w.RunOnce(ctx), nil }
		go func() {
			if err := w.Start(ctx); err != nil {
				log.Error("maintenance worker stopped", "error", err)
			}
		}()
		log.Info("maintenance worker started", "interval", cfg.Maintenance.Interval().String())
	}

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		return fmt.Errorf("cannot bind: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.SetupRoutes(api.NewHandlers(eng, opts), opts),
		ReadTimeout:       cfg.Server.ReadTimeout(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-done:
	case err := <-serveErr:
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
	return nil
}
