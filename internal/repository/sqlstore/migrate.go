package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const migrationTable = "schema_migrations"

// Migrate applies every *.sql file in migrations, in name order, at most
// once. Files may carry "-- +migrate Up" and "-- +migrate Down" markers;
// only the Up section runs. It returns the names applied by this call.
func Migrate(ctx context.Context, db *sql.DB, d Dialect, migrations fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		name TEXT PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	record := d.Rebind(`INSERT INTO ` + migrationTable + ` (name, applied_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`)
	var applied []string
	for _, name := range files {
		done, err := isApplied(ctx, db, d, name)
		if err != nil {
			return applied, fmt.Errorf("check migration %s: %w", name, err)
		}
		if done {
			continue
		}
		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}
		up := ExtractUp(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, up); err != nil {
			_ = tx.Rollback()
			if !IsAlreadyExists(err) {
				return applied, fmt.Errorf("exec migration %s: %w", name, err)
			}
			if _, err := db.ExecContext(ctx, record, name, time.Now().UTC().UnixMilli()); err != nil {
				return applied, fmt.Errorf("record migration %s: %w", name, err)
			}
			applied = append(applied, name)
			continue
		}
		if _, err := tx.ExecContext(ctx, record, name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit migration %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// ExtractUp returns the SQL in the "-- +migrate Up" section, or all of
// content when there are no markers.
func ExtractUp(content string) string {
	const upMarker, downMarker = "-- +migrate Up", "-- +migrate Down"
	up := strings.Index(content, upMarker)
	if up == -1 {
		return content
	}
	down := strings.Index(content, downMarker)
	if down == -1 || down < up {
		return content[up+len(upMarker):]
	}
	return content[up+len(upMarker) : down]
}

// IsAlreadyExists reports whether err is idempotent DDL hitting an object
// that is already there.
func IsAlreadyExists(err error) bool {
	v := strings.ToLower(err.Error())
	return strings.Contains(v, "already exists") || strings.Contains(v, "duplicate column")
}

func isApplied(ctx context.Context, db *sql.DB, d Dialect, name string) (bool, error) {
	var found int
	err := db.QueryRowContext(ctx, d.Rebind(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`), name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
