// Package rollup derives company counters and company status from contact
// changes. Everything here is pure; callers persist the result in the same
// transaction as the contact write.
package rollup

import (
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/policy"
)

// Delta is a change to the three company counters.
type Delta struct {
	Total      int
	InSequence int
	Touched    int
}

// IsZero reports whether d changes nothing.
func (d Delta) IsZero() bool { return d == Delta{} }

// ForCreate is the delta of inserting c.
func ForCreate(c domain.Contact) Delta {
	d := Delta{Total: 1}
	if c.DispositionStatus == domain.StatusInSequence {
		d.InSequence = 1
	}
	if c.EverTouched() {
		d.Touched = 1
	}
	return d
}

// ForChange is the delta of replacing prev with next.
func ForChange(prev, next domain.Contact) Delta {
	var d Delta
	wasIn := prev.DispositionStatus == domain.StatusInSequence
	isIn := next.DispositionStatus == domain.StatusInSequence
	switch {
	case !wasIn && isIn:
		d.InSequence = 1
	case wasIn && !isIn:
		d.InSequence = -1
	}
	if !prev.EverTouched() && next.EverTouched() {
		d.Touched = 1
	}
	return d
}

// Apply adds d to co's counters, clamping at zero.
func Apply(co *domain.Company, d Delta) {
	co.ContactsTotal = clamp(co.ContactsTotal + d.Total)
	co.ContactsInSequence = clamp(co.ContactsInSequence + d.InSequence)
	co.ContactsTouched = clamp(co.ContactsTouched + d.Touched)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Touched moves the company's last contact date forward to at.
func Touched(co *domain.Company, at time.Time) {
	if co.LastContactDate == nil || at.After(*co.LastContactDate) {
		co.LastContactDate = &at
	}
}

// CompanyEffects updates company status fields after prev became next.
// Counters must already include the change.
func CompanyEffects(co *domain.Company, prev, next domain.Contact, pol policy.Policy, at time.Time) {
	from, to := prev.DispositionStatus, next.DispositionStatus
	if from == to {
		return
	}

	switch to {
	case domain.StatusInSequence:
		Touched(co, at)
		if co.Status == domain.CompanyFresh || co.Status == domain.CompanyCooling || co.Status == "" {
			co.Status = domain.CompanyActive
		}
	case domain.StatusWonCustomer:
		co.IsCustomer = true
		if co.CustomerSince == nil {
			co.CustomerSince = &at
		}
		co.Status = domain.CompanyCustomer
	case domain.StatusRepliedHardNo:
		if !co.Suppressed {
			co.Suppressed = true
			co.SuppressedReason = domain.SuppressedHardNo
			co.SuppressedAt = &at
		}
		co.Status = domain.CompanySuppressed
	}

	if from == domain.StatusInSequence && co.ContactsInSequence == 0 && co.Status == domain.CompanyActive {
		co.Status = domain.CompanyCooling
		if until, ok := pol.CompanyCooldownUntil(at); ok {
			co.CooldownUntil = &until
		}
	}
}
