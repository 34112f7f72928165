// Package store defines the storage contract the engine depends on.
//
// Implementations live under internal/repository: postgres for production,
// sqlite for single-node deployments and memstore for tests and local runs.
// Every state-changing engine operation runs inside Store.InTx, and the Tx
// methods are the only way to write.
package store

import (
	"context"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
)

// Store is a transactional contact/company store.
type Store interface {
	Reader
	// InTx runs fn in a single transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. Implementations must not call fn
	// concurrently for the same rows; a lost race surfaces as ErrStaleWrite.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Reader is the read side. Reads outside InTx see committed data only.
type Reader interface {
	GetContact(ctx context.Context, key domain.ContactKey) (*domain.Contact, error)
	ListContacts(ctx context.Context, f ContactFilter) ([]domain.Contact, error)
	GetCompany(ctx context.Context, dom string) (*domain.Company, error)

	// FindAvailable returns contacts that pass the availability predicate
	// for q.Channel at q.At, ordered fresh first, then most recently
	// enriched, then fewest sequences.
	FindAvailable(ctx context.Context, q AvailabilityQuery) ([]Candidate, error)

	ContactHistory(ctx context.Context, key domain.ContactKey, limit int) ([]domain.DispositionChange, error)
	OwnershipHistory(ctx context.Context, dom string, limit int) ([]domain.OwnershipChange, error)

	// ListOwned returns companies whose lease is held by clientID and
	// unexpired at now.
	ListOwned(ctx context.Context, clientID string, now time.Time) ([]domain.Company, error)
	// ExpiredLeases returns owned companies whose lease expired at or before now.
	ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]domain.Company, error)

	// ExpiredCooldowns returns contacts in one of statuses with no channel
	// cooldown running at now.
	ExpiredCooldowns(ctx context.Context, statuses []domain.DispositionStatus, now time.Time, limit int) ([]domain.ContactKey, error)
	// StaleContacts returns contacts in one of statuses enriched before cutoff.
	StaleContacts(ctx context.Context, statuses []domain.DispositionStatus, cutoff time.Time, limit int) ([]domain.ContactKey, error)

	// ScanClient calls fn once for every contact of clientID with its company.
	ScanClient(ctx context.Context, clientID string, fn func(c domain.Contact, co domain.Company) error) error
	// PriorSnapshots returns at most n snapshots of clientID dated strictly
	// before date, oldest first.
	PriorSnapshots(ctx context.Context, clientID string, before time.Time, n int) ([]domain.TamSnapshot, error)
	// Snapshots returns the snapshots of clientID dated on or after since, oldest first.
	Snapshots(ctx context.Context, clientID string, since time.Time) ([]domain.TamSnapshot, error)
	DistinctClients(ctx context.Context) ([]string, error)

	GetAssignment(ctx context.Context, id string) (*domain.CampaignAssignment, error)
	ListAssignments(ctx context.Context, key domain.ContactKey) ([]domain.CampaignAssignment, error)
}

// Tx is the write side, valid only inside the InTx callback.
type Tx interface {
	// GetContactForUpdate reads a contact and locks it until the
	// transaction ends where the backend supports row locks.
	GetContactForUpdate(ctx context.Context, key domain.ContactKey) (*domain.Contact, error)
	// InsertContact stores a new contact at version 1. ErrDuplicateKey when
	// (email, client_id) exists.
	InsertContact(ctx context.Context, c *domain.Contact) error
	// UpdateContact writes c only if the stored version equals
	// expectedVersion, then sets c.Version to expectedVersion+1.
	// ErrStaleWrite otherwise.
	UpdateContact(ctx context.Context, c *domain.Contact, expectedVersion int64) error

	// EnsureCompany creates the company if missing and returns it locked.
	EnsureCompany(ctx context.Context, dom, name string, now time.Time) (*domain.Company, error)
	GetCompanyForUpdate(ctx context.Context, dom string) (*domain.Company, error)
	// SaveCompanyRollup writes status, suppression, counters, cooldown and
	// customer fields. Ownership columns are left untouched.
	SaveCompanyRollup(ctx context.Context, co *domain.Company) error
	// CompareAndSwapOwnership replaces the lease only if the stored epoch
	// equals expectedEpoch, bumping the epoch. It reports whether the swap
	// happened.
	CompareAndSwapOwnership(ctx context.Context, dom string, expectedEpoch int64, next domain.Ownership, now time.Time) (bool, error)

	AppendDispositionChange(ctx context.Context, h *domain.DispositionChange) error
	AppendOwnershipChange(ctx context.Context, h *domain.OwnershipChange) error

	InsertAssignment(ctx context.Context, a *domain.CampaignAssignment) error
	// CompleteAssignment closes an open assignment. It reports false when
	// the assignment was already completed and ErrNotFound when missing.
	CompleteAssignment(ctx context.Context, id, outcome string, at time.Time) (bool, error)

	// UpsertSnapshot writes s keyed by (snapshot_date, client_id).
	UpsertSnapshot(ctx context.Context, s *domain.TamSnapshot) error
}

// ContactFilter narrows ListContacts.
type ContactFilter struct {
	ClientID      string
	CompanyDomain string
	Status        domain.DispositionStatus
	Limit         int
	Offset        int
}

// AvailabilityQuery is the batch form of the availability predicate.
type AvailabilityQuery struct {
	ClientID string
	Channel  domain.Channel
	// Statuses restricts the eligible statuses further. Empty means
	// fresh and retouch_eligible.
	Statuses         []domain.DispositionStatus
	TitleKeywords    []string
	IncludeCustomers bool
	At               time.Time
	Limit            int
}

// Candidate is an available contact with its company.
type Candidate struct {
	Contact domain.Contact `json:"contact"`
	Company domain.Company `json:"company"`
}
