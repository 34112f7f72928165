// Package engine wires the disposition services over one store and exposes
// them as a single API surface for the HTTP layer, the CLI and the worker.
package engine

import (
	"context"
	"io"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/metrics"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/service/assignment"
	"github.com/ignite/lead-disposition/internal/service/audit"
	"github.com/ignite/lead-disposition/internal/service/disposition"
	"github.com/ignite/lead-disposition/internal/service/eligibility"
	"github.com/ignite/lead-disposition/internal/service/fill"
	"github.com/ignite/lead-disposition/internal/service/ingest"
	"github.com/ignite/lead-disposition/internal/service/ownership"
	"github.com/ignite/lead-disposition/internal/service/tam"
	"github.com/ignite/lead-disposition/internal/store"
)

// Options configures optional collaborators.
type Options struct {
	Metrics  *metrics.Recorder
	Archiver tam.Archiver
	TAM      tam.Options
}

// Engine is the lead disposition and ownership engine.
type Engine struct {
	st  store.Store
	pol policy.Policy

	Disposition *disposition.Service
	Eligibility *eligibility.Service
	Ownership   *ownership.Service
	TAM         *tam.Service
	Ingest      *ingest.Service
	Assignments *assignment.Service
	Fill        *fill.Service
	Audit       *audit.Service
}

// New builds an engine over st.
func New(st store.Store, pol policy.Policy, opts Options) *Engine {
	e := &Engine{
		st:          st,
		pol:         pol,
		Disposition: disposition.NewService(st, pol),
		Eligibility: eligibility.NewService(st, pol),
		Ownership:   ownership.NewService(st, pol),
		TAM:         tam.NewService(st, pol, opts.TAM),
		Ingest:      ingest.NewService(st, pol),
		Assignments: assignment.NewService(st, pol),
		Audit:       audit.NewService(st),
	}
	e.Fill = fill.NewService(pol, e.Eligibility, e.Ownership, e.Disposition, e.Assignments)

	if opts.Metrics != nil {
		e.Disposition.SetMetrics(opts.Metrics)
		e.Ownership.SetMetrics(opts.Metrics)
		e.TAM.SetMetrics(opts.Metrics)
	}
	if opts.Archiver != nil {
		e.TAM.SetArchiver(opts.Archiver)
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.st }

// Policy returns the clock and TTL policy.
func (e *Engine) Policy() policy.Policy { return e.pol }

// Close closes the store.
func (e *Engine) Close() error { return e.st.Close() }

// ApplyTransition moves a contact along the disposition graph.
func (e *Engine) ApplyTransition(ctx context.Context, req disposition.TransitionRequest) (*domain.Contact, error) {
	return e.Disposition.ApplyTransition(ctx, req)
}

// RecordTouch records an outreach touch without a status change.
func (e *Engine) RecordTouch(ctx context.Context, key domain.ContactKey, ch domain.Channel, at time.Time) (*domain.Contact, error) {
	return e.Disposition.RecordTouch(ctx, key, ch, at)
}

// Claim takes or refreshes the lease on a company for a client.
func (e *Engine) Claim(ctx context.Context, req ownership.ClaimRequest) (*ownership.Lease, error) {
	return e.Ownership.Claim(ctx, req)
}

// Release clears a lease. A manual release must come from the holder.
func (e *Engine) Release(ctx context.Context, dom, clientID string, reason domain.OwnershipChangeReason) error {
	return e.Ownership.Release(ctx, dom, clientID, reason)
}

// Transfer moves a company lease to newClientID regardless of the holder.
func (e *Engine) Transfer(ctx context.Context, dom, newClientID string, ttl time.Duration) (*ownership.Lease, error) {
	return e.Ownership.Transfer(ctx, dom, newClientID, time.Time{}, ttl)
}

// SweepExpired releases lapsed leases as of the policy clock.
func (e *Engine) SweepExpired(ctx context.Context) (ownership.SweepResult, error) {
	return e.Ownership.SweepExpired(ctx, e.pol.Now())
}

// FindAvailable returns contacts the client may work now.
func (e *Engine) FindAvailable(ctx context.Context, q eligibility.Query) ([]store.Candidate, error) {
	return e.Eligibility.FindAvailable(ctx, q)
}

// ComputeSnapshot computes and stores the TAM snapshot of a client for date.
func (e *Engine) ComputeSnapshot(ctx context.Context, clientID string, date time.Time) (*domain.TamSnapshot, error) {
	return e.TAM.ComputeSnapshot(ctx, clientID, date)
}

// CreateContact ingests one contact, creating its company on first sight.
func (e *Engine) CreateContact(ctx context.Context, nc ingest.NewContact) (*domain.Contact, error) {
	return e.Ingest.CreateContact(ctx, nc)
}

// ImportCSV ingests contacts from a CSV with a header row.
func (e *Engine) ImportCSV(ctx context.Context, r io.Reader, clientID string, cols ingest.ColumnMap, source string) (ingest.ImportResult, error) {
	return e.Ingest.ImportCSV(ctx, r, clientID, cols, source)
}

// AssignToCampaign records a campaign assignment for a contact.
func (e *Engine) AssignToCampaign(ctx context.Context, req assignment.AssignRequest) (*domain.CampaignAssignment, error) {
	return e.Assignments.Assign(ctx, req)
}

// CompleteAssignment closes an assignment with outcome.
func (e *Engine) CompleteAssignment(ctx context.Context, id, outcome string) (*domain.CampaignAssignment, error) {
	return e.Assignments.Complete(ctx, id, outcome, time.Time{})
}

// FillCampaign selects contacts for a campaign and enrolls them.
func (e *Engine) FillCampaign(ctx context.Context, req fill.Request) (*fill.Result, error) {
	return e.Fill.Fill(ctx, req)
}

// MaintenanceReport is the outcome of one RunMaintenance pass.
type MaintenanceReport struct {
	Cooldowns disposition.BatchResult `json:"cooldowns"`
	Stale     disposition.BatchResult `json:"stale"`
	Sweep     ownership.SweepResult   `json:"sweep"`
	Snapshots tam.CaptureResult       `json:"snapshots"`
}

// RunMaintenance runs the daily cycle once in-process, in order: expired
// cooldowns, stale data, ownership sweep, snapshots. It stops at the first
// step that fails outright.
func (e *Engine) RunMaintenance(ctx context.Context) (MaintenanceReport, error) {
	var (
		rep MaintenanceReport
		err error
	)
	now := e.pol.Now()
	if rep.Cooldowns, err = e.Disposition.ProcessExpiredCooldowns(ctx, now, 0); err != nil {
		return rep, err
	}
	if rep.Stale, err = e.Disposition.ProcessStaleData(ctx, now, 0); err != nil {
		return rep, err
	}
	if rep.Sweep, err = e.Ownership.SweepExpired(ctx, now); err != nil {
		return rep, err
	}
	if rep.Snapshots, err = e.TAM.CaptureAll(ctx, now); err != nil {
		return rep, err
	}
	return rep, nil
}
