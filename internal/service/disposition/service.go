package disposition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/metrics"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/rollup"
	"github.com/ignite/lead-disposition/internal/store"
)

// DefaultMaxAttempts bounds retries after a stale write.
const DefaultMaxAttempts = 3

// Service applies disposition transitions. It is safe for concurrent use.
type Service struct {
	st          store.Store
	pol         policy.Policy
	metrics     *metrics.Recorder
	maxAttempts int
}

// NewService creates a disposition service backed by st.
func NewService(st store.Store, pol policy.Policy) *Service {
	return &Service{st: st, pol: pol, maxAttempts: DefaultMaxAttempts}
}

// SetMetrics attaches a metrics recorder.
func (s *Service) SetMetrics(m *metrics.Recorder) { s.metrics = m }

// TransitionRequest asks for one status change.
type TransitionRequest struct {
	Key         domain.ContactKey
	NewStatus   domain.DispositionStatus
	Reason      string
	TriggeredBy string
	CampaignID  string
	// Channel is the channel the change concerns. Empty means email.
	Channel  domain.Channel
	Metadata map[string]any
	// At defaults to the policy clock.
	At time.Time
	// Within, when set, runs in the same transaction after the change is
	// written. An error from it rolls the whole change back.
	Within func(ctx context.Context, tx store.Tx, next *domain.Contact) error
}

// ApplyTransition moves a contact to req.NewStatus and returns the new
// contact. It fails with store.ErrNotFound for an unknown contact and with
// a *TransitionError for an edge outside the graph, leaving state unchanged.
func (s *Service) ApplyTransition(ctx context.Context, req TransitionRequest) (*domain.Contact, error) {
	defer s.metrics.Since("apply_transition", time.Now())

	if req.Channel == "" {
		req.Channel = domain.ChannelEmail
	}
	if !req.Channel.Valid() {
		return nil, fmt.Errorf("apply transition: unknown channel %q", req.Channel)
	}
	if req.At.IsZero() {
		req.At = s.pol.Now()
	}

	var (
		out  *domain.Contact
		from domain.DispositionStatus
	)
	err := s.retry(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.GetContactForUpdate(ctx, req.Key)
		if err != nil {
			return err
		}
		from = cur.DispositionStatus
		if !req.NewStatus.Valid() || !CanTransition(cur.DispositionStatus, req.NewStatus) {
			s.metrics.Rejected(string(cur.DispositionStatus), string(req.NewStatus))
			return &TransitionError{From: cur.DispositionStatus, To: req.NewStatus}
		}

		next := Next(*cur, req.NewStatus, req.Channel, s.pol, req.At)
		if err := tx.UpdateContact(ctx, &next, cur.Version); err != nil {
			return err
		}
		if err := s.applyRollup(ctx, tx, *cur, next, req.At, false); err != nil {
			return err
		}
		if err := tx.AppendDispositionChange(ctx, &domain.DispositionChange{
			Email:          next.Email,
			ClientID:       next.ClientID,
			PreviousStatus: cur.DispositionStatus,
			NewStatus:      next.DispositionStatus,
			Reason:         req.Reason,
			TriggeredBy:    req.TriggeredBy,
			CampaignID:     req.CampaignID,
			Metadata:       req.Metadata,
			CreatedAt:      req.At,
		}); err != nil {
			return err
		}
		if req.Within != nil {
			if err := req.Within(ctx, tx, &next); err != nil {
				return err
			}
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply transition %s: %w", req.Key, err)
	}
	s.metrics.Transition(string(from), string(req.NewStatus))
	return out, nil
}

// RecordTouch records an outreach touch on ch without changing status:
// last_contacted and the channel cooldown are refreshed, the company's
// last_contact_date moves to at, and a first-ever touch is counted on the
// company.
func (s *Service) RecordTouch(ctx context.Context, key domain.ContactKey, ch domain.Channel, at time.Time) (*domain.Contact, error) {
	if ch == "" {
		ch = domain.ChannelEmail
	}
	if !ch.Valid() {
		return nil, fmt.Errorf("record touch: unknown channel %q", ch)
	}
	if at.IsZero() {
		at = s.pol.Now()
	}

	var out *domain.Contact
	err := s.retry(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.GetContactForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if cur.Channel(ch).Suppressed {
			return ErrChannelSuppressed
		}
		next := *cur
		touch(&next, ch, s.pol, at)
		next.UpdatedAt = at
		if err := tx.UpdateContact(ctx, &next, cur.Version); err != nil {
			return err
		}
		if err := s.applyRollup(ctx, tx, *cur, next, at, true); err != nil {
			return err
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record touch %s: %w", key, err)
	}
	return out, nil
}

// applyRollup writes the company side of a contact change. touched marks a
// bare outreach touch, which always moves the company's last contact date.
func (s *Service) applyRollup(ctx context.Context, tx store.Tx, prev, next domain.Contact, at time.Time, touched bool) error {
	d := rollup.ForChange(prev, next)
	if d.IsZero() && prev.DispositionStatus == next.DispositionStatus && !touched {
		return nil
	}
	co, err := tx.GetCompanyForUpdate(ctx, next.CompanyDomain)
	if err != nil {
		return fmt.Errorf("load company %s: %w", next.CompanyDomain, err)
	}
	rollup.Apply(co, d)
	if touched {
		rollup.Touched(co, at)
	}
	rollup.CompanyEffects(co, prev, next, s.pol, at)
	co.UpdatedAt = at
	return tx.SaveCompanyRollup(ctx, co)
}

// retry runs fn in a transaction and re-runs it from scratch when the
// store reports a lost race.
func (s *Service) retry(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err = s.st.InTx(ctx, fn)
		if !errors.Is(err, store.ErrStaleWrite) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrContention, err)
}

// Next returns cur after moving to status on channel ch at at. It does not
// validate the edge.
func Next(cur domain.Contact, status domain.DispositionStatus, ch domain.Channel, pol policy.Policy, at time.Time) domain.Contact {
	next := cur
	next.DispositionStatus = status
	next.DispositionUpdatedAt = at
	next.UpdatedAt = at

	switch status {
	case domain.StatusInSequence:
		touch(&next, ch, pol, at)
		next.SequenceCount++
	case domain.StatusBounced, domain.StatusUnsubscribed:
		st := next.EmailState
		st.Suppressed = true
		next.EmailState = st
	case domain.StatusRepliedHardNo:
		for _, c := range domain.Channels {
			st := next.Channel(c)
			st.Suppressed = true
			next.SetChannel(c, st)
		}
	}

	if until, ok := pol.OutcomeCooldownUntil(status, at); ok {
		st := next.Channel(ch)
		if st.CooldownUntil == nil || until.After(*st.CooldownUntil) {
			st.CooldownUntil = &until
		}
		next.SetChannel(ch, st)
	}
	return next
}

func touch(c *domain.Contact, ch domain.Channel, pol policy.Policy, at time.Time) {
	st := c.Channel(ch)
	st.LastContacted = &at
	until := pol.TouchCooldownUntil(ch, at)
	st.CooldownUntil = &until
	c.SetChannel(ch, st)
}
