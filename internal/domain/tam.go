package domain

import "time"

// TamSnapshot is the per-client, per-day partition of the contact universe.
type TamSnapshot struct {
	SnapshotDate          time.Time `json:"snapshot_date"`
	ClientID              string    `json:"client_id"`
	TotalUniverse         int       `json:"total_universe"`
	AvailableNow          int       `json:"available_now"`
	InCooldown            int       `json:"in_cooldown"`
	InSequence            int       `json:"in_sequence"`
	PermanentlySuppressed int       `json:"permanently_suppressed"`
	Won                   int       `json:"won"`
	NeverTouched          int       `json:"never_touched"`
	BurnRateWeekly        float64   `json:"burn_rate_weekly"`
	ExhaustionEtaWeeks    *float64  `json:"exhaustion_eta_weeks,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// PoolSum adds the six pools. It equals TotalUniverse on a consistent snapshot.
func (s TamSnapshot) PoolSum() int {
	return s.AvailableNow + s.InCooldown + s.InSequence + s.PermanentlySuppressed + s.Won + s.NeverTouched
}

// HealthStatus grades how soon a client will run out of available contacts.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// TamHealth is a live snapshot with its health grade.
type TamHealth struct {
	TamSnapshot
	HealthStatus HealthStatus `json:"health_status"`
}

// SnapshotDay truncates t to its UTC calendar day.
func SnapshotDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
