package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/lead-disposition/internal/engine"
	"github.com/ignite/lead-disposition/internal/pkg/distlock"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
	"github.com/ignite/lead-disposition/internal/service/disposition"
)

// =============================================================================
// MAINTENANCE WORKER: cooldown expiry, stale data, lease sweep, TAM snapshots
// =============================================================================
// Steps run in order. Each step holds its own distributed lock, so with
// several replicas every step runs on exactly one of them per cycle, and a
// replica that loses a lock simply moves on to the next step. Every step
// is safe to re-run: rows are selected by "due as of now" and each row is
// changed in its own transaction.

const (
	// DefaultMaintenanceInterval is how often the cycle runs.
	DefaultMaintenanceInterval = 24 * time.Hour

	// DefaultLockTTL bounds how long a crashed replica can block a step.
	DefaultLockTTL = 30 * time.Minute

	// maxBatchesPerStep stops a step that keeps finding work, e.g. rows that
	// fail on every pass.
	maxBatchesPerStep = 100
)

// Maintenance step names, also used as lock keys.
const (
	StepCooldowns = "cooldowns"
	StepStaleData = "stale_data"
	StepSweep     = "ownership_sweep"
	StepSnapshots = "tam_snapshots"
)

var log = logger.With("maintenance")

// LockFactory returns a fresh lock for a step.
type LockFactory func(step string) distlock.Locker

// MaintenanceConfig tunes the worker.
type MaintenanceConfig struct {
	Interval  time.Duration
	BatchSize int
	// RunOnStart runs a cycle immediately instead of waiting one interval.
	RunOnStart bool
}

// CycleReport is the outcome of one cycle.
type CycleReport struct {
	engine.MaintenanceReport
	Ran      []string      `json:"ran"`
	Skipped  []string      `json:"skipped,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// MaintenanceWorker runs the daily maintenance cycle.
type MaintenanceWorker struct {
	eng       *engine.Engine
	locks     LockFactory
	interval  time.Duration
	batchSize int
	onStart   bool

	mu      sync.RWMutex
	running bool
	last    *CycleReport
}

// NewMaintenanceWorker creates a worker. A nil locks uses in-process locks.
func NewMaintenanceWorker(eng *engine.Engine, locks LockFactory, cfg MaintenanceConfig) *MaintenanceWorker {
	if locks == nil {
		locks = func(step string) distlock.Locker { return distlock.NewLocalLock("maintenance:" + step) }
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMaintenanceInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = disposition.DefaultBatchSize
	}
	return &MaintenanceWorker{
		eng:       eng,
		locks:     locks,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		onStart:   cfg.RunOnStart,
	}
}

// Start runs cycles until ctx is cancelled.
func (w *MaintenanceWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("maintenance worker already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	log.Info("starting", "interval", w.interval.String(), "batch_size", w.batchSize)
	if w.onStart {
		w.RunOnce(ctx)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Running reports whether Start is active.
func (w *MaintenanceWorker) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// LastReport returns the most recent cycle, or nil before the first one.
func (w *MaintenanceWorker) LastReport() *CycleReport {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

// RunOnce runs every step once. Step failures are recorded in the report
// and do not stop later steps.
func (w *MaintenanceWorker) RunOnce(ctx context.Context) CycleReport {
	rep := CycleReport{Started: time.Now().UTC()}
	now := w.eng.Policy().Now()

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{StepCooldowns, func(ctx context.Context) error {
			var err error
			rep.Cooldowns, err = w.drain(ctx, func(ctx context.Context) (disposition.BatchResult, error) {
				return w.eng.Disposition.ProcessExpiredCooldowns(ctx, now, w.batchSize)
			})
			return err
		}},
		{StepStaleData, func(ctx context.Context) error {
			var err error
			rep.Stale, err = w.drain(ctx, func(ctx context.Context) (disposition.BatchResult, error) {
				return w.eng.Disposition.ProcessStaleData(ctx, now, w.batchSize)
			})
			return err
		}},
		{StepSweep, func(ctx context.Context) error {
			var err error
			rep.Sweep, err = w.eng.Ownership.SweepExpired(ctx, now)
			return err
		}},
		{StepSnapshots, func(ctx context.Context) error {
			var err error
			rep.Snapshots, err = w.eng.TAM.CaptureAll(ctx, now)
			return err
		}},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			rep.Errors = append(rep.Errors, step.name+": "+ctx.Err().Error())
			break
		}
		ran, err := distlock.Run(ctx, w.locks(step.name), step.fn)
		switch {
		case err != nil:
			log.Error("step failed", "step", step.name, "error", err)
			rep.Errors = append(rep.Errors, step.name+": "+err.Error())
		case !ran:
			log.Info("step held by another replica", "step", step.name)
			rep.Skipped = append(rep.Skipped, step.name)
		default:
			rep.Ran = append(rep.Ran, step.name)
		}
	}
	rep.Duration = time.Since(rep.Started)

	log.Info("cycle complete",
		"ran", len(rep.Ran), "skipped", len(rep.Skipped), "errors", len(rep.Errors),
		"retouched", rep.Cooldowns.Transitioned, "stale", rep.Stale.Transitioned,
		"released", rep.Sweep.Released, "snapshots", rep.Snapshots.Captured,
		"duration", rep.Duration.Round(time.Millisecond).String())

	w.mu.Lock()
	w.last = &rep
	w.mu.Unlock()
	return rep
}

// drain repeats a batch until it comes back short or stops making
// progress.
func (w *MaintenanceWorker) drain(ctx context.Context, batch func(ctx context.Context) (disposition.BatchResult, error)) (disposition.BatchResult, error) {
	var total disposition.BatchResult
	for i := 0; i < maxBatchesPerStep; i++ {
		res, err := batch(ctx)
		total.Scanned += res.Scanned
		total.Transitioned += res.Transitioned
		total.Skipped += res.Skipped
		total.Failed += res.Failed
		if err != nil {
			return total, err
		}
		if res.Scanned < w.batchSize || res.Transitioned == 0 {
			break
		}
	}
	return total, nil
}
