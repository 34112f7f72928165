package domain

import "time"

// DispositionChange is one append-only row of a contact's status history.
type DispositionChange struct {
	ID             int64             `json:"id"`
	Email          string            `json:"email"`
	ClientID       string            `json:"client_id"`
	PreviousStatus DispositionStatus `json:"previous_status"`
	NewStatus      DispositionStatus `json:"new_status"`
	Reason         string            `json:"reason,omitempty"`
	TriggeredBy    string            `json:"triggered_by,omitempty"`
	CampaignID     string            `json:"campaign_id,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// OwnershipChangeReason enumerates why a lease changed hands.
type OwnershipChangeReason string

const (
	ReasonFirstClaim    OwnershipChangeReason = "first_claim"
	ReasonExpired       OwnershipChangeReason = "expired"
	ReasonManualRelease OwnershipChangeReason = "manual_release"
	ReasonAdminTransfer OwnershipChangeReason = "admin_transfer"
)

// OwnershipChange is one append-only row of a company's lease history.
// An empty NewOwner records a release.
type OwnershipChange struct {
	ID            int64                 `json:"id"`
	CompanyDomain string                `json:"company_domain"`
	PreviousOwner string                `json:"previous_owner,omitempty"`
	NewOwner      string                `json:"new_owner,omitempty"`
	Reason        OwnershipChangeReason `json:"change_reason"`
	CreatedAt     time.Time             `json:"created_at"`
}

// CampaignAssignment records that a contact was put into a campaign.
// Only CompletedAt and Outcome change after insert, and only once.
type CampaignAssignment struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	ClientID    string     `json:"client_id"`
	CampaignID  string     `json:"campaign_id"`
	Channel     Channel    `json:"channel"`
	AssignedAt  time.Time  `json:"assigned_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Outcome     string     `json:"outcome,omitempty"`
}

// Completed reports whether the assignment has been closed.
func (a *CampaignAssignment) Completed() bool { return a.CompletedAt != nil }
