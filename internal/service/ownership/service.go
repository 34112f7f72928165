package ownership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/metrics"
	"github.com/ignite/lead-disposition/internal/pkg/hostname"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/store"
)

// DefaultMaxAttempts bounds compare-and-swap retries.
const DefaultMaxAttempts = 5

// DefaultSweepBatch caps one sweep pass.
const DefaultSweepBatch = 500

var errLostRace = errors.New("ownership epoch moved")

var log = logger.With("ownership")

// Service manages company leases. It is safe for concurrent use.
type Service struct {
	st          store.Store
	pol         policy.Policy
	metrics     *metrics.Recorder
	maxAttempts int
}

// NewService creates an ownership service backed by st.
func NewService(st store.Store, pol policy.Policy) *Service {
	return &Service{st: st, pol: pol, maxAttempts: DefaultMaxAttempts}
}

// SetMetrics attaches a metrics recorder.
func (s *Service) SetMetrics(m *metrics.Recorder) { s.metrics = m }

// ClaimRequest asks for a lease on Domain for ClientID.
type ClaimRequest struct {
	Domain   string
	ClientID string
	// At defaults to the policy clock.
	At time.Time
	// TTL defaults to the policy lease TTL.
	TTL time.Duration
}

// Lease is the outcome of a successful claim or transfer.
type Lease struct {
	Domain    string    `json:"domain"`
	OwnerID   string    `json:"client_owner_id"`
	OwnedAt   time.Time `json:"client_owned_at"`
	ExpiresAt time.Time `json:"ownership_expires_at"`
	// Refreshed is true when the holder extended its own unexpired lease.
	Refreshed bool `json:"refreshed"`
}

// Claim grants or refreshes a lease. A different client's unexpired lease
// fails with *ConflictError.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (*Lease, error) {
	defer s.metrics.Since("claim", time.Now())

	dom, err := hostname.Normalize(req.Domain)
	if err != nil {
		return nil, fmt.Errorf("claim %q: %w", req.Domain, err)
	}
	if req.ClientID == "" {
		return nil, fmt.Errorf("claim %s: client id is required", dom)
	}
	at := req.At
	if at.IsZero() {
		at = s.pol.Now()
	}
	expires := s.pol.LeaseExpiry(at, req.TTL)

	var lease *Lease
	err = s.cas(ctx, func(ctx context.Context, tx store.Tx) error {
		co, err := tx.EnsureCompany(ctx, dom, "", at)
		if err != nil {
			return err
		}
		cur := co.Ownership
		if cur.ActiveAt(at) && cur.OwnerID != req.ClientID {
			return &ConflictError{Domain: dom, Owner: cur.OwnerID, ExpiresAt: *cur.ExpiresAt}
		}

		refresh := cur.ActiveAt(at)
		ownedAt := at
		if refresh && cur.OwnedAt != nil {
			ownedAt = *cur.OwnedAt
		}
		next := domain.Ownership{OwnerID: req.ClientID, OwnedAt: &ownedAt, ExpiresAt: &expires}
		ok, err := tx.CompareAndSwapOwnership(ctx, dom, co.OwnershipEpoch, next, at)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}

		if !refresh {
			reason := domain.ReasonFirstClaim
			if cur.Held() {
				reason = domain.ReasonExpired
			}
			if err := tx.AppendOwnershipChange(ctx, &domain.OwnershipChange{
				CompanyDomain: dom,
				PreviousOwner: cur.OwnerID,
				NewOwner:      req.ClientID,
				Reason:        reason,
				CreatedAt:     at,
			}); err != nil {
				return err
			}
		}
		lease = &Lease{Domain: dom, OwnerID: req.ClientID, OwnedAt: ownedAt, ExpiresAt: expires, Refreshed: refresh}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOwnershipConflict) {
			s.metrics.Claim("conflict")
			return nil, err
		}
		return nil, fmt.Errorf("claim %s: %w", dom, err)
	}
	if lease.Refreshed {
		s.metrics.Claim("refreshed")
	} else {
		s.metrics.Claim("granted")
	}
	return lease, nil
}

// Release clears a lease. A manual release must come from the holder; an
// admin_transfer release clears any lease and is a no-op when unowned.
func (s *Service) Release(ctx context.Context, dom, clientID string, reason domain.OwnershipChangeReason) error {
	if reason != domain.ReasonManualRelease && reason != domain.ReasonAdminTransfer {
		return fmt.Errorf("release %s: %w: %q", dom, ErrInvalidReason, reason)
	}
	dom, err := hostname.Normalize(dom)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	at := s.pol.Now()

	err = s.cas(ctx, func(ctx context.Context, tx store.Tx) error {
		co, err := tx.GetCompanyForUpdate(ctx, dom)
		if err != nil {
			return err
		}
		cur := co.Ownership
		if reason == domain.ReasonManualRelease && cur.OwnerID != clientID {
			return ErrNotOwner
		}
		if !cur.Held() {
			return nil
		}
		ok, err := tx.CompareAndSwapOwnership(ctx, dom, co.OwnershipEpoch, domain.Ownership{}, at)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		return tx.AppendOwnershipChange(ctx, &domain.OwnershipChange{
			CompanyDomain: dom,
			PreviousOwner: cur.OwnerID,
			Reason:        reason,
			CreatedAt:     at,
		})
	})
	if err != nil {
		return fmt.Errorf("release %s: %w", dom, err)
	}
	s.metrics.Released(string(reason))
	return nil
}

// Transfer hands a company to newClientID regardless of the current
// holder, recording a single admin_transfer row.
func (s *Service) Transfer(ctx context.Context, dom, newClientID string, at time.Time, ttl time.Duration) (*Lease, error) {
	dom, err := hostname.Normalize(dom)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	if newClientID == "" {
		return nil, fmt.Errorf("transfer %s: client id is required", dom)
	}
	if at.IsZero() {
		at = s.pol.Now()
	}
	expires := s.pol.LeaseExpiry(at, ttl)

	var lease *Lease
	err = s.cas(ctx, func(ctx context.Context, tx store.Tx) error {
		co, err := tx.EnsureCompany(ctx, dom, "", at)
		if err != nil {
			return err
		}
		prev := co.Ownership.OwnerID
		next := domain.Ownership{OwnerID: newClientID, OwnedAt: &at, ExpiresAt: &expires}
		ok, err := tx.CompareAndSwapOwnership(ctx, dom, co.OwnershipEpoch, next, at)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		if err := tx.AppendOwnershipChange(ctx, &domain.OwnershipChange{
			CompanyDomain: dom,
			PreviousOwner: prev,
			NewOwner:      newClientID,
			Reason:        domain.ReasonAdminTransfer,
			CreatedAt:     at,
		}); err != nil {
			return err
		}
		lease = &Lease{Domain: dom, OwnerID: newClientID, OwnedAt: at, ExpiresAt: expires}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transfer %s: %w", dom, err)
	}
	log.Info("ownership transferred", "domain", dom, "client_id", newClientID)
	return lease, nil
}

// SweepResult summarises one sweep pass.
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// SweepExpired clears every lease that expired at or before now, each in
// its own transaction with an "expired" ledger row. Leases are scanned in
// batches of DefaultSweepBatch until a batch comes back short or releases
// nothing. A lease refreshed or cleared since the scan is skipped, so
// repeated sweeps are harmless.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	if now.IsZero() {
		now = s.pol.Now()
	}
	var res SweepResult
	for ctx.Err() == nil {
		rows, err := s.st.ExpiredLeases(ctx, now, DefaultSweepBatch)
		if err != nil {
			return res, fmt.Errorf("scan expired leases: %w", err)
		}
		res.Scanned += len(rows)
		released := 0
		for _, row := range rows {
			if ctx.Err() != nil {
				break
			}
			ok, err := s.sweepOne(ctx, row.Domain, now)
			switch {
			case err != nil:
				res.Failed++
				s.metrics.SweepFailed()
				log.Warn("sweep lease failed", "domain", row.Domain, "error", err)
			case ok:
				released++
				s.metrics.Released(string(domain.ReasonExpired))
			default:
				res.Skipped++
			}
		}
		res.Released += released
		// Failed rows stay expired and come back in the next scan.
		if len(rows) < DefaultSweepBatch || released == 0 {
			break
		}
	}
	log.Info("ownership sweep done", "scanned", res.Scanned, "released", res.Released, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (s *Service) sweepOne(ctx context.Context, dom string, now time.Time) (bool, error) {
	released := false
	err := s.cas(ctx, func(ctx context.Context, tx store.Tx) error {
		released = false
		co, err := tx.GetCompanyForUpdate(ctx, dom)
		if err != nil {
			return err
		}
		cur := co.Ownership
		if !cur.Held() || cur.ActiveAt(now) {
			return nil
		}
		ok, err := tx.CompareAndSwapOwnership(ctx, dom, co.OwnershipEpoch, domain.Ownership{}, now)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		released = true
		return tx.AppendOwnershipChange(ctx, &domain.OwnershipChange{
			CompanyDomain: dom,
			PreviousOwner: cur.OwnerID,
			Reason:        domain.ReasonExpired,
			CreatedAt:     now,
		})
	})
	return released, err
}

// CanTarget reports whether clientID may work dom at now. Unknown
// companies are targetable. The current lease is returned when one is held.
func (s *Service) CanTarget(ctx context.Context, dom, clientID string, now time.Time) (bool, *domain.Ownership, error) {
	dom, err := hostname.Normalize(dom)
	if err != nil {
		return false, nil, err
	}
	if now.IsZero() {
		now = s.pol.Now()
	}
	co, err := s.st.GetCompany(ctx, dom)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("can target %s: %w", dom, err)
	}
	own := co.Ownership
	if !own.ActiveAt(now) {
		return true, nil, nil
	}
	return own.OwnerID == clientID, &own, nil
}

// ListOwned returns the companies clientID currently holds.
func (s *Service) ListOwned(ctx context.Context, clientID string) ([]domain.Company, error) {
	return s.st.ListOwned(ctx, clientID, s.pol.Now())
}

// History returns the ledger of dom, newest first.
func (s *Service) History(ctx context.Context, dom string, limit int) ([]domain.OwnershipChange, error) {
	dom, err := hostname.Normalize(dom)
	if err != nil {
		return nil, err
	}
	return s.st.OwnershipHistory(ctx, dom, limit)
}

// cas runs fn in a transaction, retrying when the epoch moved or the store
// reported a lost race.
func (s *Service) cas(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err = s.st.InTx(ctx, fn)
		if !errors.Is(err, errLostRace) && !errors.Is(err, store.ErrStaleWrite) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrContention, err)
}
