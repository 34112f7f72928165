package store

import (
	"strings"

	"github.com/ignite/lead-disposition/internal/domain"
)

// DefaultEligibleStatuses are the statuses from which a contact may be
// sequenced.
var DefaultEligibleStatuses = []domain.DispositionStatus{
	domain.StatusFresh,
	domain.StatusRetouchEligible,
}

// EligibleStatuses returns q.Statuses intersected with the default eligible
// statuses, or the defaults when q.Statuses is empty. A result of length zero
// means nothing can match.
func (q AvailabilityQuery) EligibleStatuses() []domain.DispositionStatus {
	if len(q.Statuses) == 0 {
		return DefaultEligibleStatuses
	}
	var out []domain.DispositionStatus
	for _, s := range q.Statuses {
		for _, d := range DefaultEligibleStatuses {
			if s == d {
				out = append(out, s)
			}
		}
	}
	return out
}

// NormalizedKeywords returns the lower-cased, trimmed, non-empty keywords.
func (q AvailabilityQuery) NormalizedKeywords() []string {
	var out []string
	for _, k := range q.TitleKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// MatchesTitle reports whether title contains any keyword. No keywords
// matches everything.
func (q AvailabilityQuery) MatchesTitle(title string) bool {
	kws := q.NormalizedKeywords()
	if len(kws) == 0 {
		return true
	}
	t := strings.ToLower(title)
	for _, k := range kws {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}
