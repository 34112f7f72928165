package domain

import (
	"errors"
	"time"
)

// CompanyStatus is the account-level outreach state of a company.
type CompanyStatus string

const (
	CompanyFresh      CompanyStatus = "fresh"
	CompanyActive     CompanyStatus = "active"
	CompanyCooling    CompanyStatus = "cooling"
	CompanySuppressed CompanyStatus = "suppressed"
	CompanyCustomer   CompanyStatus = "customer"
)

// SuppressedHardNo is the company suppression reason recorded when any
// contact replies with a hard no.
const SuppressedHardNo = "hard_no_received"

// ErrInvalidOwnership is returned by Ownership.Validate.
var ErrInvalidOwnership = errors.New("ownership owner and expiry must be set together")

// Ownership is a client's exclusive, time-bounded lease on a company.
// The zero value means unowned.
type Ownership struct {
	OwnerID   string     `json:"client_owner_id,omitempty"`
	OwnedAt   *time.Time `json:"client_owned_at,omitempty"`
	ExpiresAt *time.Time `json:"ownership_expires_at,omitempty"`
}

// Held reports whether an owner is recorded, expired or not.
func (o Ownership) Held() bool { return o.OwnerID != "" }

// ActiveAt reports whether the lease is held and unexpired at now.
// A lease whose expiry equals now has lapsed.
func (o Ownership) ActiveAt(now time.Time) bool {
	return o.Held() && o.ExpiresAt != nil && o.ExpiresAt.After(now)
}

// Validate checks that owner and expiry are set together.
func (o Ownership) Validate() error {
	if o.Held() != (o.ExpiresAt != nil) {
		return ErrInvalidOwnership
	}
	return nil
}

// Company is an account identified by its normalized domain.
type Company struct {
	Domain string        `json:"domain"`
	Name   string        `json:"name,omitempty"`
	Status CompanyStatus `json:"company_status"`

	Suppressed       bool       `json:"company_suppressed"`
	SuppressedReason string     `json:"suppressed_reason,omitempty"`
	SuppressedAt     *time.Time `json:"suppressed_at,omitempty"`

	ContactsTotal      int `json:"contacts_total"`
	ContactsInSequence int `json:"contacts_in_sequence"`
	ContactsTouched    int `json:"contacts_touched"`

	LastContactDate *time.Time `json:"last_contact_date,omitempty"`
	CooldownUntil   *time.Time `json:"company_cooldown_until,omitempty"`

	IsCustomer    bool       `json:"is_customer"`
	CustomerSince *time.Time `json:"customer_since,omitempty"`

	Ownership Ownership `json:"ownership"`
	// OwnershipEpoch increases on every ownership write and is the
	// compare-and-swap token for lease changes.
	OwnershipEpoch int64 `json:"ownership_epoch"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CoolingAt reports whether the company-level cooldown is running at now.
func (c *Company) CoolingAt(now time.Time) bool {
	return c.CooldownUntil != nil && c.CooldownUntil.After(now)
}
