// Package eligibility decides whether a contact may be sequenced on a
// channel right now.
//
// IsAvailable is the single predicate. FindAvailable is its batch form; it
// pushes the predicate into the store query and re-checks every row.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/store"
)

// IsAvailable reports whether c may be contacted on ch at now.
func IsAvailable(c domain.Contact, co domain.Company, ch domain.Channel, now time.Time) bool {
	if c.DispositionStatus != domain.StatusFresh && c.DispositionStatus != domain.StatusRetouchEligible {
		return false
	}
	st := c.Channel(ch)
	if st.Suppressed || st.CoolingAt(now) {
		return false
	}
	if co.Suppressed || co.CoolingAt(now) {
		return false
	}
	return true
}

// Targetable reports whether clientID may work co at now: the company is
// unowned, owned by clientID, or its lease has lapsed.
func Targetable(co domain.Company, clientID string, now time.Time) bool {
	return !co.Ownership.ActiveAt(now) || co.Ownership.OwnerID == clientID
}

// Matches applies the full batch filter to one row.
func Matches(q store.AvailabilityQuery, c domain.Contact, co domain.Company) bool {
	if c.ClientID != q.ClientID {
		return false
	}
	if !IsAvailable(c, co, q.Channel, q.At) {
		return false
	}
	ok := false
	for _, s := range q.EligibleStatuses() {
		if s == c.DispositionStatus {
			ok = true
		}
	}
	if !ok {
		return false
	}
	if !q.IncludeCustomers && co.IsCustomer {
		return false
	}
	return Targetable(co, q.ClientID, q.At) && q.MatchesTitle(c.Title)
}

// Query is the caller-facing batch request.
type Query struct {
	ClientID         string
	Channel          domain.Channel
	Limit            int
	Statuses         []domain.DispositionStatus
	TitleKeywords    []string
	IncludeCustomers bool
	// At defaults to the policy clock.
	At time.Time
}

// DefaultLimit caps FindAvailable when the caller passes no limit.
const DefaultLimit = 100

// Service runs batch availability queries.
type Service struct {
	st  store.Reader
	pol policy.Policy
}

// NewService creates an eligibility service.
func NewService(st store.Reader, pol policy.Policy) *Service {
	return &Service{st: st, pol: pol}
}

// FindAvailable returns up to q.Limit available contacts for q.ClientID.
func (s *Service) FindAvailable(ctx context.Context, q Query) ([]store.Candidate, error) {
	if q.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if q.Channel == "" {
		q.Channel = domain.ChannelEmail
	}
	if !q.Channel.Valid() {
		return nil, fmt.Errorf("unknown channel %q", q.Channel)
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.At.IsZero() {
		q.At = s.pol.Now()
	}

	sq := store.AvailabilityQuery{
		ClientID:         q.ClientID,
		Channel:          q.Channel,
		Statuses:         q.Statuses,
		TitleKeywords:    q.TitleKeywords,
		IncludeCustomers: q.IncludeCustomers,
		At:               q.At,
		Limit:            q.Limit,
	}
	if len(sq.EligibleStatuses()) == 0 {
		return nil, nil
	}

	rows, err := s.st.FindAvailable(ctx, sq)
	if err != nil {
		return nil, fmt.Errorf("find available: %w", err)
	}
	out := rows[:0]
	for _, r := range rows {
		if Matches(sq, r.Contact, r.Company) {
			out = append(out, r)
		}
	}
	return out, nil
}
