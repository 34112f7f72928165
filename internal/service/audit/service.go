// Package audit reads the two append-only ledgers: contact disposition
// history and company ownership changes. Rows are written by the
// disposition and ownership services in the same transaction as the change
// they record; nothing in this package writes.
package audit

import (
	"context"
	"fmt"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/store"
)

// DefaultLimit caps a timeline when the caller passes no limit.
const DefaultLimit = 200

// Service serves ledger timelines.
type Service struct {
	st store.Reader
}

// NewService creates an audit reader.
func NewService(st store.Reader) *Service {
	return &Service{st: st}
}

// ContactTimeline returns the newest disposition changes of a contact first.
func (s *Service) ContactTimeline(ctx context.Context, key domain.ContactKey, limit int) ([]domain.DispositionChange, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if _, err := s.st.GetContact(ctx, key); err != nil {
		return nil, fmt.Errorf("contact timeline %s: %w", key, err)
	}
	rows, err := s.st.ContactHistory(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("contact timeline %s: %w", key, err)
	}
	return rows, nil
}

// CompanyTimeline returns the newest ownership changes of a company first.
func (s *Service) CompanyTimeline(ctx context.Context, dom string, limit int) ([]domain.OwnershipChange, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.st.OwnershipHistory(ctx, dom, limit)
	if err != nil {
		return nil, fmt.Errorf("company timeline %s: %w", dom, err)
	}
	return rows, nil
}

// Verification compares a contact's stored status with the status its
// ledger implies.
type Verification struct {
	Contact    domain.ContactKey        `json:"contact"`
	Status     domain.DispositionStatus `json:"status"`
	Replayed   domain.DispositionStatus `json:"replayed"`
	Rows       int                      `json:"rows"`
	Consistent bool                     `json:"consistent"`
}

// VerifyContact replays the full disposition history of a contact from
// fresh and checks it lands on the stored status without gaps.
func (s *Service) VerifyContact(ctx context.Context, key domain.ContactKey) (*Verification, error) {
	c, err := s.st.GetContact(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", key, err)
	}
	rows, err := s.st.ContactHistory(ctx, key, 0)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", key, err)
	}
	got, ok := replay(rows, domain.StatusFresh)
	return &Verification{
		Contact:    key,
		Status:     c.DispositionStatus,
		Replayed:   got,
		Rows:       len(rows),
		Consistent: ok && got == c.DispositionStatus,
	}, nil
}

// replay folds history rows given newest first, as the store returns them,
// and returns the status they imply. It reports false on a gap: a row whose
// previous status differs from the status the row before it produced.
func replay(rows []domain.DispositionChange, initial domain.DispositionStatus) (domain.DispositionStatus, bool) {
	cur := initial
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].PreviousStatus != cur {
			return cur, false
		}
		cur = rows[i].NewStatus
	}
	return cur, true
}
