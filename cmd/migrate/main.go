package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/lead-disposition/internal/config"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
	"github.com/ignite/lead-disposition/internal/repository/postgres"
	"github.com/ignite/lead-disposition/internal/repository/sqlite"
)

var log = logger.With("migrate")

func main() {
	configPath := flag.String("config", "", "optional YAML config; DATABASE_URL or SQLITE_PATH override it")
	listOnly := flag.Bool("list", false, "list applied migrations and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if cfg.Database.URL == "" {
			log.Error("DATABASE_URL is required")
			os.Exit(1)
		}
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Error("connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping failed", "error", err)
			os.Exit(1)
		}
		if *listOnly {
			if err := listApplied(ctx, db); err != nil {
				log.Error("list failed", "error", err)
				os.Exit(1)
			}
			return
		}
		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations complete", "applied", len(applied))

	case config.DriverSQLite:
		// Open migrates on every start.
		st, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		defer st.Close()
		if *listOnly {
			if err := listApplied(ctx, st.DB()); err != nil {
				log.Error("list failed", "error", err)
				os.Exit(1)
			}
			return
		}
		log.Info("migrations complete", "path", cfg.Database.SQLitePath)

	default:
		log.Error("nothing to migrate", "driver", cfg.Database.Driver)
		os.Exit(1)
	}
}

func listApplied(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "SELECT name FROM schema_migrations ORDER BY name")
	if err != nil {
		return err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return err
		}
		fmt.Println(" ", v)
		n++
	}
	fmt.Printf("Total: %d migrations\n", n)
	return rows.Err()
}
