// Package storage archives TAM snapshots outside the primary database:
// to local JSON files, or to S3 (full documents) and DynamoDB (a queryable
// index with a TTL).
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ignite/lead-disposition/internal/config"
	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
)

var log = logger.With("storage")

const dateLayout = "2006-01-02"

// Archive stores and lists archived snapshots. It satisfies tam.Archiver.
type Archive interface {
	ArchiveSnapshot(ctx context.Context, snap domain.TamSnapshot) error
	ListSnapshots(ctx context.Context, clientID string, from, to time.Time) ([]domain.TamSnapshot, error)
}

// New builds the archive selected by cfg.Type. It returns nil for an empty
// type, meaning archiving is off.
func New(ctx context.Context, cfg config.ArchiveConfig) (Archive, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "local":
		return NewLocalArchive(cfg.LocalPath)
	case "aws":
		return NewAWSArchive(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}

// LocalArchive writes one JSON file per client and day.
type LocalArchive struct {
	root string
}

// NewLocalArchive creates root if needed.
func NewLocalArchive(root string) (*LocalArchive, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &LocalArchive{root: root}, nil
}

func (a *LocalArchive) dir(clientID string) string {
	return filepath.Join(a.root, filepath.Base(clientID))
}

func (a *LocalArchive) ArchiveSnapshot(_ context.Context, snap domain.TamSnapshot) error {
	dir := a.dir(snap.ClientID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(dir, domain.SnapshotDay(snap.SnapshotDate).Format(dateLayout)+".json")
	tmp := path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (a *LocalArchive) ListSnapshots(_ context.Context, clientID string, from, to time.Time) ([]domain.TamSnapshot, error) {
	entries, err := os.ReadDir(a.dir(clientID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}
	lo, hi := domain.SnapshotDay(from), domain.SnapshotDay(to)

	var out []domain.TamSnapshot
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		day, err := time.Parse(dateLayout, strings.TrimSuffix(name, ".json"))
		if err != nil || day.Before(lo) || day.After(hi) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.dir(clientID), name))
		if err != nil {
			return nil, err
		}
		var snap domain.TamSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Warn("skipping unreadable archive file", "file", name, "error", err)
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate.Before(out[j].SnapshotDate) })
	return out, nil
}
