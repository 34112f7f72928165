// Package policy holds the clock and every duration the engine applies:
// per-channel touch cooldowns, per-outcome cooldowns, the company cooldown,
// the ownership lease TTL and the stale-data window.
//
// Durations are applied when a touch or transition happens and are never
// recomputed afterwards, so changing a value only affects future writes.
package policy

import (
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
)

const day = 24 * time.Hour

// Default durations.
const (
	DefaultEmailCooldown    = 14 * day
	DefaultLinkedInCooldown = 30 * day
	DefaultPhoneCooldown    = 7 * day

	DefaultNoResponseCooldown = 90 * day
	DefaultNeutralCooldown    = 45 * day
	DefaultNegativeCooldown   = 180 * day
	DefaultLostClosedCooldown = 90 * day

	// DefaultLeaseTTL is twelve 30-day months.
	DefaultLeaseTTL   = 12 * 30 * day
	DefaultStaleAfter = 180 * day
)

// Policy is the Clock/TTL policy. The zero value is usable and behaves like
// Default() with cooldowns disabled; prefer Default.
type Policy struct {
	ChannelCooldowns map[domain.Channel]time.Duration
	OutcomeCooldowns map[domain.DispositionStatus]time.Duration
	// CompanyCooldown is applied when a company's last in-sequence contact
	// leaves the sequence. Zero disables it.
	CompanyCooldown time.Duration
	LeaseTTL        time.Duration
	StaleAfter      time.Duration
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// Default returns the production defaults.
func Default() Policy {
	return Policy{
		ChannelCooldowns: map[domain.Channel]time.Duration{
			domain.ChannelEmail:    DefaultEmailCooldown,
			domain.ChannelLinkedIn: DefaultLinkedInCooldown,
			domain.ChannelPhone:    DefaultPhoneCooldown,
		},
		OutcomeCooldowns: map[domain.DispositionStatus]time.Duration{
			domain.StatusCompletedNoResponse: DefaultNoResponseCooldown,
			domain.StatusRepliedNeutral:      DefaultNeutralCooldown,
			domain.StatusRepliedNegative:     DefaultNegativeCooldown,
			domain.StatusLostClosed:          DefaultLostClosedCooldown,
		},
		LeaseTTL:   DefaultLeaseTTL,
		StaleAfter: DefaultStaleAfter,
	}
}

// Now returns the current time in UTC.
func (p Policy) Now() time.Time {
	if p.Clock != nil {
		return p.Clock().UTC()
	}
	return time.Now().UTC()
}

// WithClock returns a copy of p reading time from fn.
func (p Policy) WithClock(fn func() time.Time) Policy {
	p.Clock = fn
	return p
}

// TouchCooldownUntil is when channel ch becomes contactable again after a
// touch at at.
func (p Policy) TouchCooldownUntil(ch domain.Channel, at time.Time) time.Time {
	return at.Add(p.ChannelCooldowns[ch])
}

// OutcomeCooldownUntil is the cooldown an outcome status imposes. ok is
// false when the status carries no cooldown.
func (p Policy) OutcomeCooldownUntil(s domain.DispositionStatus, at time.Time) (time.Time, bool) {
	d, ok := p.OutcomeCooldowns[s]
	if !ok || d <= 0 {
		return time.Time{}, false
	}
	return at.Add(d), true
}

// CompanyCooldownUntil is when a company cools down after its last
// sequence ends. ok is false when company cooldowns are disabled.
func (p Policy) CompanyCooldownUntil(at time.Time) (time.Time, bool) {
	if p.CompanyCooldown <= 0 {
		return time.Time{}, false
	}
	return at.Add(p.CompanyCooldown), true
}

// LeaseExpiry is the expiry of a lease granted at at. A non-positive ttl
// uses the configured default.
func (p Policy) LeaseExpiry(at time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = p.LeaseTTL
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return at.Add(ttl)
}

// StaleCutoff is the enrichment time before which data is stale at now.
func (p Policy) StaleCutoff(now time.Time) time.Time {
	d := p.StaleAfter
	if d <= 0 {
		d = DefaultStaleAfter
	}
	return now.Add(-d)
}
