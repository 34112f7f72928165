package domain

import (
	"fmt"
	"time"
)

// DispositionStatus is the outreach lifecycle state of a contact.
type DispositionStatus string

const (
	StatusFresh               DispositionStatus = "fresh"
	StatusInSequence          DispositionStatus = "in_sequence"
	StatusCompletedNoResponse DispositionStatus = "completed_no_response"
	StatusRepliedPositive     DispositionStatus = "replied_positive"
	StatusRepliedNeutral      DispositionStatus = "replied_neutral"
	StatusRepliedNegative     DispositionStatus = "replied_negative"
	StatusRepliedHardNo       DispositionStatus = "replied_hard_no"
	StatusBounced             DispositionStatus = "bounced"
	StatusUnsubscribed        DispositionStatus = "unsubscribed"
	StatusRetouchEligible     DispositionStatus = "retouch_eligible"
	StatusStaleData           DispositionStatus = "stale_data"
	StatusJobChangeDetected   DispositionStatus = "job_change_detected"
	StatusWonCustomer         DispositionStatus = "won_customer"
	StatusLostClosed          DispositionStatus = "lost_closed"
)

var allStatuses = []DispositionStatus{
	StatusFresh,
	StatusInSequence,
	StatusCompletedNoResponse,
	StatusRepliedPositive,
	StatusRepliedNeutral,
	StatusRepliedNegative,
	StatusRepliedHardNo,
	StatusBounced,
	StatusUnsubscribed,
	StatusRetouchEligible,
	StatusStaleData,
	StatusJobChangeDetected,
	StatusWonCustomer,
	StatusLostClosed,
}

// AllStatuses returns every disposition status in declaration order.
func AllStatuses() []DispositionStatus {
	out := make([]DispositionStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports whether s is one of the known statuses.
func (s DispositionStatus) Valid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ParseStatus converts a string to a DispositionStatus.
func ParseStatus(v string) (DispositionStatus, error) {
	s := DispositionStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown disposition status %q", v)
	}
	return s, nil
}

// Channel is an outreach medium with its own contact history.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelLinkedIn Channel = "linkedin"
	ChannelPhone    Channel = "phone"
)

// Channels lists every outreach channel.
var Channels = []Channel{ChannelEmail, ChannelLinkedIn, ChannelPhone}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelLinkedIn || c == ChannelPhone
}

// ParseChannel converts a string to a Channel. An empty string means email.
func ParseChannel(v string) (Channel, error) {
	if v == "" {
		return ChannelEmail, nil
	}
	c := Channel(v)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", v)
	}
	return c, nil
}

// ChannelState is the per-channel contact history of a contact.
type ChannelState struct {
	LastContacted *time.Time `json:"last_contacted,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Suppressed    bool       `json:"suppressed"`
}

// CoolingAt reports whether the channel cooldown is still running at now.
func (s ChannelState) CoolingAt(now time.Time) bool {
	return s.CooldownUntil != nil && s.CooldownUntil.After(now)
}

// ContactKey identifies a contact. The same email may exist once per client.
type ContactKey struct {
	Email    string `json:"email"`
	ClientID string `json:"client_id"`
}

func (k ContactKey) String() string { return k.ClientID + "/" + k.Email }

// Contact is a person at a company, scoped to one client.
type Contact struct {
	Email         string `json:"email"`
	ClientID      string `json:"client_id"`
	CompanyDomain string `json:"company_domain"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Title         string `json:"title,omitempty"`
	LinkedInURL   string `json:"linkedin_url,omitempty"`
	Phone         string `json:"phone,omitempty"`

	DispositionStatus    DispositionStatus `json:"disposition_status"`
	DispositionUpdatedAt time.Time         `json:"disposition_updated_at"`

	EmailState    ChannelState `json:"email_channel"`
	LinkedInState ChannelState `json:"linkedin_channel"`
	PhoneState    ChannelState `json:"phone_channel"`

	DataEnrichedAt *time.Time `json:"data_enriched_at,omitempty"`
	SequenceCount  int        `json:"sequence_count"`
	SourceSystem   string     `json:"source_system,omitempty"`
	SourceID       string     `json:"source_id,omitempty"`

	// Version is bumped on every write and guards concurrent updates.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the contact's identity.
func (c *Contact) Key() ContactKey {
	return ContactKey{Email: c.Email, ClientID: c.ClientID}
}

// Channel returns the state block for ch.
func (c *Contact) Channel(ch Channel) ChannelState {
	switch ch {
	case ChannelLinkedIn:
		return c.LinkedInState
	case ChannelPhone:
		return c.PhoneState
	default:
		return c.EmailState
	}
}

// SetChannel replaces the state block for ch.
func (c *Contact) SetChannel(ch Channel, st ChannelState) {
	switch ch {
	case ChannelLinkedIn:
		c.LinkedInState = st
	case ChannelPhone:
		c.PhoneState = st
	default:
		c.EmailState = st
	}
}

// EverTouched reports whether the contact has been contacted on any channel.
func (c *Contact) EverTouched() bool {
	for _, ch := range Channels {
		if c.Channel(ch).LastContacted != nil {
			return true
		}
	}
	return false
}

// AnySuppressed reports whether at least one channel is suppressed.
func (c *Contact) AnySuppressed() bool {
	for _, ch := range Channels {
		if c.Channel(ch).Suppressed {
			return true
		}
	}
	return false
}

// AnyCooling reports whether at least one channel cooldown is running at now.
func (c *Contact) AnyCooling(now time.Time) bool {
	for _, ch := range Channels {
		if c.Channel(ch).CoolingAt(now) {
			return true
		}
	}
	return false
}
