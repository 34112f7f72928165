// Package assignment keeps the campaign assignment ledger: which contact
// went into which campaign on which channel, and how it ended.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/store"
)

// ErrAlreadyCompleted is returned when completing a closed assignment.
var ErrAlreadyCompleted = errors.New("assignment already completed")

// Service records assignments. It is safe for concurrent use.
type Service struct {
	st  store.Store
	pol policy.Policy
}

// NewService creates an assignment service backed by st.
func NewService(st store.Store, pol policy.Policy) *Service {
	return &Service{st: st, pol: pol}
}

// AssignRequest puts a contact into a campaign.
type AssignRequest struct {
	Key        domain.ContactKey
	CampaignID string
	Channel    domain.Channel
	At         time.Time
}

// Assign records a new assignment. The contact must exist.
func (s *Service) Assign(ctx context.Context, req AssignRequest) (*domain.CampaignAssignment, error) {
	var a *domain.CampaignAssignment
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetContactForUpdate(ctx, req.Key); err != nil {
			return err
		}
		var err error
		a, err = s.Record(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("assign %s to %s: %w", req.Key, req.CampaignID, err)
	}
	return a, nil
}

// Record inserts an assignment inside a caller's transaction. The caller
// is responsible for the contact existing.
func (s *Service) Record(ctx context.Context, tx store.Tx, req AssignRequest) (*domain.CampaignAssignment, error) {
	if req.CampaignID == "" {
		return nil, fmt.Errorf("assign %s: campaign id is required", req.Key)
	}
	if req.Channel == "" {
		req.Channel = domain.ChannelEmail
	}
	if !req.Channel.Valid() {
		return nil, fmt.Errorf("assign %s: unknown channel %q", req.Key, req.Channel)
	}
	if req.At.IsZero() {
		req.At = s.pol.Now()
	}
	a := &domain.CampaignAssignment{
		ID:         uuid.New().String(),
		Email:      req.Key.Email,
		ClientID:   req.Key.ClientID,
		CampaignID: req.CampaignID,
		Channel:    req.Channel,
		AssignedAt: req.At,
	}
	if err := tx.InsertAssignment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Complete closes an assignment with outcome. It succeeds once.
func (s *Service) Complete(ctx context.Context, id, outcome string, at time.Time) (*domain.CampaignAssignment, error) {
	if at.IsZero() {
		at = s.pol.Now()
	}
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.CompleteAssignment(ctx, id, outcome, at)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyCompleted
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete assignment %s: %w", id, err)
	}
	return s.st.GetAssignment(ctx, id)
}

// ListForContact returns a contact's assignments, oldest first.
func (s *Service) ListForContact(ctx context.Context, key domain.ContactKey) ([]domain.CampaignAssignment, error) {
	return s.st.ListAssignments(ctx, key)
}
