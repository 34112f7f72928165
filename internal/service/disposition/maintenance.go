package disposition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
)

// Reasons recorded by the maintenance batches.
const (
	ReasonCooldownExpired = "cooldown_expired"
	ReasonDataStale       = "data_older_than_stale_window"
	TriggeredBySystem     = "system"
)

// DefaultBatchSize caps how many rows one maintenance pass touches.
const DefaultBatchSize = 1000

// coolingStatuses wait out a cooldown before becoming retouch_eligible.
var coolingStatuses = []domain.DispositionStatus{
	domain.StatusCompletedNoResponse,
	domain.StatusRepliedNeutral,
	domain.StatusRepliedNegative,
}

// staleableStatuses are resting statuses with an edge to stale_data.
var staleableStatuses = []domain.DispositionStatus{
	domain.StatusFresh,
	domain.StatusCompletedNoResponse,
	domain.StatusRepliedNeutral,
	domain.StatusRepliedNegative,
	domain.StatusRetouchEligible,
}

// BatchResult summarises one maintenance pass.
type BatchResult struct {
	Scanned      int `json:"scanned"`
	Transitioned int `json:"transitioned"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

var log = logger.With("disposition")

// ProcessExpiredCooldowns moves resting contacts whose cooldowns have all
// elapsed to retouch_eligible. Rows that changed since the scan are skipped;
// other failures are logged and the pass continues.
func (s *Service) ProcessExpiredCooldowns(ctx context.Context, now time.Time, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	keys, err := s.st.ExpiredCooldowns(ctx, coolingStatuses, now, limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("scan expired cooldowns: %w", err)
	}
	res := s.batch(ctx, keys, domain.StatusRetouchEligible, ReasonCooldownExpired, now)
	s.metrics.Maintenance("cooldowns", "transitioned", res.Transitioned)
	s.metrics.Maintenance("cooldowns", "failed", res.Failed)
	log.Info("expired cooldowns processed", "scanned", res.Scanned, "transitioned", res.Transitioned, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// ProcessStaleData moves contacts enriched before the stale window to
// stale_data.
func (s *Service) ProcessStaleData(ctx context.Context, now time.Time, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	keys, err := s.st.StaleContacts(ctx, staleableStatuses, s.pol.StaleCutoff(now), limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("scan stale contacts: %w", err)
	}
	res := s.batch(ctx, keys, domain.StatusStaleData, ReasonDataStale, now)
	s.metrics.Maintenance("stale", "transitioned", res.Transitioned)
	s.metrics.Maintenance("stale", "failed", res.Failed)
	log.Info("stale data processed", "scanned", res.Scanned, "transitioned", res.Transitioned, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (s *Service) batch(ctx context.Context, keys []domain.ContactKey, to domain.DispositionStatus, reason string, now time.Time) BatchResult {
	res := BatchResult{Scanned: len(keys)}
	for _, key := range keys {
		if ctx.Err() != nil {
			res.Failed += res.Scanned - res.Transitioned - res.Skipped - res.Failed
			break
		}
		_, err := s.ApplyTransition(ctx, TransitionRequest{
			Key:         key,
			NewStatus:   to,
			Reason:      reason,
			TriggeredBy: TriggeredBySystem,
			At:          now,
		})
		switch {
		case err == nil:
			res.Transitioned++
		case errors.Is(err, ErrInvalidTransition):
			res.Skipped++
		default:
			res.Failed++
			log.Warn("maintenance transition failed", "contact", key.String(), "to", to, "error", err)
		}
	}
	return res
}
