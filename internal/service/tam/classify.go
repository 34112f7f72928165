package tam

import (
	"fmt"
	"math"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/service/eligibility"
)

// Pool names, as published in metrics and the API.
const (
	PoolWon                   = "won"
	PoolInSequence            = "in_sequence"
	PoolPermanentlySuppressed = "permanently_suppressed"
	PoolAvailableNow          = "available_now"
	PoolInCooldown            = "in_cooldown"
	PoolNeverTouched          = "never_touched"
)

// Classify returns the single pool c falls into at now. The first match
// wins, in this order: won, in_sequence, permanently_suppressed,
// available_now, in_cooldown, never_touched, then in_cooldown for the
// remaining resting statuses.
//
// An untouched fresh contact is available_now, not never_touched, so the
// burn rate sees it. never_touched only counts contacts that have never
// been contacted and are held out of the available pool by their status,
// such as stale_data or job_change_detected rows that were never worked.
func Classify(c domain.Contact, co domain.Company, ch domain.Channel, now time.Time) string {
	switch c.DispositionStatus {
	case domain.StatusWonCustomer:
		return PoolWon
	case domain.StatusInSequence:
		return PoolInSequence
	case domain.StatusBounced, domain.StatusUnsubscribed, domain.StatusRepliedHardNo:
		return PoolPermanentlySuppressed
	}
	if c.AnySuppressed() || co.Suppressed {
		return PoolPermanentlySuppressed
	}
	if eligibility.IsAvailable(c, co, ch, now) {
		return PoolAvailableNow
	}
	if c.AnyCooling(now) || co.CoolingAt(now) {
		return PoolInCooldown
	}
	if !c.EverTouched() {
		return PoolNeverTouched
	}
	return PoolInCooldown
}

// Tally counts contacts per pool.
type Tally struct {
	Rows  int
	Pools map[string]int
}

func newTally() *Tally {
	return &Tally{Pools: map[string]int{
		PoolWon:                   0,
		PoolInSequence:            0,
		PoolPermanentlySuppressed: 0,
		PoolAvailableNow:          0,
		PoolInCooldown:            0,
		PoolNeverTouched:          0,
	}}
}

func (t *Tally) add(pool string) {
	t.Rows++
	t.Pools[pool]++
}

// fill copies the pool counts into s. The universe is the number of rows
// scanned; a row that landed outside the six pools breaks the partition.
func (t *Tally) fill(s *domain.TamSnapshot) error {
	s.Won = t.Pools[PoolWon]
	s.InSequence = t.Pools[PoolInSequence]
	s.PermanentlySuppressed = t.Pools[PoolPermanentlySuppressed]
	s.AvailableNow = t.Pools[PoolAvailableNow]
	s.InCooldown = t.Pools[PoolInCooldown]
	s.NeverTouched = t.Pools[PoolNeverTouched]
	s.TotalUniverse = t.Rows
	if sum := s.PoolSum(); sum != s.TotalUniverse {
		return fmt.Errorf("%d pooled, %d scanned: %w", sum, t.Rows, ErrInconsistent)
	}
	return nil
}

// BurnRate returns contacts leaving available_now per week, fitted by least
// squares over the snapshots given, oldest first. A flat or growing pool
// burns at 0. Fewer than two distinct dates burn at 0.
func BurnRate(series []domain.TamSnapshot) float64 {
	if len(series) < 2 {
		return 0
	}
	origin := series[0].SnapshotDate
	n := float64(len(series))
	var sx, sy, sxx, sxy float64
	for _, s := range series {
		x := s.SnapshotDate.Sub(origin).Hours() / (24 * 7)
		y := float64(s.AvailableNow)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	slope := (n*sxy - sx*sy) / den
	if slope >= 0 || math.IsNaN(slope) {
		return 0
	}
	return -slope
}

// ExhaustionETA returns weeks until available_now reaches zero, or nil when
// nothing is burning.
func ExhaustionETA(available int, burn float64) *float64 {
	if burn <= 0 {
		return nil
	}
	eta := float64(available) / burn
	return &eta
}

// Grade turns an ETA into a health status against the warning and critical
// thresholds, in weeks.
func Grade(eta *float64, warnWeeks, critWeeks float64) domain.HealthStatus {
	switch {
	case eta == nil:
		return domain.HealthHealthy
	case *eta < critWeeks:
		return domain.HealthCritical
	case *eta < warnWeeks:
		return domain.HealthWarning
	default:
		return domain.HealthHealthy
	}
}
