package tam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/metrics"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/store"
)

// Defaults for Options.
const (
	DefaultBurnWindow   = 4
	DefaultWarnWeeks    = 8
	DefaultCritWeeks    = 4
	DefaultConcurrency  = 4
	DefaultTrendDays    = 90
	maxTrendDays        = 730
	opComputeSnapshot   = "tam_compute_snapshot"
	opCaptureAllClients = "tam_capture_all"
)

// Archiver mirrors written snapshots to long-term storage.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, snap domain.TamSnapshot) error
}

// Options tunes the aggregator. Zero values take the defaults.
type Options struct {
	// Channel decides availability for the available_now pool.
	Channel domain.Channel
	// BurnWindow is how many prior snapshots feed the burn-rate fit.
	BurnWindow  int
	WarnWeeks   float64
	CritWeeks   float64
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.Channel == "" {
		o.Channel = domain.ChannelEmail
	}
	if o.BurnWindow <= 0 {
		o.BurnWindow = DefaultBurnWindow
	}
	if o.WarnWeeks <= 0 {
		o.WarnWeeks = DefaultWarnWeeks
	}
	if o.CritWeeks <= 0 {
		o.CritWeeks = DefaultCritWeeks
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

var log = logger.With("tam")

// Service computes and stores TAM snapshots.
type Service struct {
	st       store.Store
	pol      policy.Policy
	opts     Options
	archiver Archiver
	metrics  *metrics.Recorder
}

// NewService creates a TAM aggregator.
func NewService(st store.Store, pol policy.Policy, opts Options) *Service {
	return &Service{st: st, pol: pol, opts: opts.withDefaults()}
}

// SetArchiver mirrors every stored snapshot through a.
func (s *Service) SetArchiver(a Archiver) { s.archiver = a }

// SetMetrics attaches a metrics recorder.
func (s *Service) SetMetrics(m *metrics.Recorder) { s.metrics = m }

// Compute classifies every contact of clientID as of now and fills in burn
// rate against stored snapshots dated before day. It writes nothing.
func (s *Service) Compute(ctx context.Context, clientID string, day, now time.Time) (*domain.TamSnapshot, error) {
	if clientID == "" {
		return nil, ErrNoClient
	}
	tally := newTally()
	err := s.st.ScanClient(ctx, clientID, func(c domain.Contact, co domain.Company) error {
		tally.add(Classify(c, co, s.opts.Channel, now))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan client %s: %w", clientID, err)
	}

	snap := &domain.TamSnapshot{SnapshotDate: domain.SnapshotDay(day), ClientID: clientID}
	if err := tally.fill(snap); err != nil {
		return nil, fmt.Errorf("client %s: %w", clientID, err)
	}

	prior, err := s.st.PriorSnapshots(ctx, clientID, snap.SnapshotDate, s.opts.BurnWindow)
	if err != nil {
		return nil, fmt.Errorf("load prior snapshots %s: %w", clientID, err)
	}
	snap.BurnRateWeekly = BurnRate(append(prior, *snap))
	snap.ExhaustionEtaWeeks = ExhaustionETA(snap.AvailableNow, snap.BurnRateWeekly)
	return snap, nil
}

// ComputeSnapshot computes clientID's snapshot for date and upserts it.
// A zero date means today.
func (s *Service) ComputeSnapshot(ctx context.Context, clientID string, date time.Time) (*domain.TamSnapshot, error) {
	start := time.Now()
	defer s.metrics.Since(opComputeSnapshot, start)

	now := s.pol.Now()
	if date.IsZero() {
		date = now
	}
	snap, err := s.Compute(ctx, clientID, date, now)
	if err != nil {
		return nil, err
	}
	snap.CreatedAt = now
	err = s.st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpsertSnapshot(ctx, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("store snapshot %s: %w", clientID, err)
	}

	s.metrics.Pools(clientID, poolMap(snap), snap.BurnRateWeekly)
	if s.archiver != nil {
		if err := s.archiver.ArchiveSnapshot(ctx, *snap); err != nil {
			log.Warn("snapshot archive failed", "client_id", clientID, "error", err.Error())
		}
	}
	return snap, nil
}

// Health computes a live snapshot for clientID and grades it. Nothing is
// stored.
func (s *Service) Health(ctx context.Context, clientID string) (*domain.TamHealth, error) {
	now := s.pol.Now()
	snap, err := s.Compute(ctx, clientID, now, now)
	if err != nil {
		return nil, err
	}
	return &domain.TamHealth{
		TamSnapshot:  *snap,
		HealthStatus: Grade(snap.ExhaustionEtaWeeks, s.opts.WarnWeeks, s.opts.CritWeeks),
	}, nil
}

// Trends returns clientID's stored snapshots from the last days days,
// oldest first.
func (s *Service) Trends(ctx context.Context, clientID string, days int) ([]domain.TamSnapshot, error) {
	if clientID == "" {
		return nil, ErrNoClient
	}
	if days <= 0 {
		days = DefaultTrendDays
	}
	if days > maxTrendDays {
		days = maxTrendDays
	}
	since := domain.SnapshotDay(s.pol.Now()).AddDate(0, 0, -days)
	rows, err := s.st.Snapshots(ctx, clientID, since)
	if err != nil {
		return nil, fmt.Errorf("load trends %s: %w", clientID, err)
	}
	return rows, nil
}

// CaptureResult summarises a CaptureAll pass.
type CaptureResult struct {
	Clients  int      `json:"clients"`
	Captured int      `json:"captured"`
	Failed   []string `json:"failed,omitempty"`
}

// CaptureAll snapshots every client that has contacts. A failing client is
// logged and skipped; the pass only errors when the client list cannot be
// read or ctx ends.
func (s *Service) CaptureAll(ctx context.Context, date time.Time) (CaptureResult, error) {
	start := time.Now()
	defer s.metrics.Since(opCaptureAllClients, start)

	clients, err := s.st.DistinctClients(ctx)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("list clients: %w", err)
	}

	res := CaptureResult{Clients: len(clients)}
	failed := make([]bool, len(clients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, clientID := range clients {
		g.Go(func() error {
			if _, err := s.ComputeSnapshot(gctx, clientID, date); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				failed[i] = true
				log.Error("snapshot failed", "client_id", clientID, "error", err.Error())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("capture snapshots: %w", err)
	}

	for i, f := range failed {
		if f {
			res.Failed = append(res.Failed, clients[i])
		} else {
			res.Captured++
		}
	}
	log.Info("snapshots captured", "clients", res.Clients, "captured", res.Captured, "failed", len(res.Failed))
	return res, nil
}

func poolMap(s *domain.TamSnapshot) map[string]int {
	return map[string]int{
		PoolWon:                   s.Won,
		PoolInSequence:            s.InSequence,
		PoolPermanentlySuppressed: s.PermanentlySuppressed,
		PoolAvailableNow:          s.AvailableNow,
		PoolInCooldown:            s.InCooldown,
		PoolNeverTouched:          s.NeverTouched,
	}
}
