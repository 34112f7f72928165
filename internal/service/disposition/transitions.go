package disposition

import "github.com/ignite/lead-disposition/internal/domain"

// Transitions is the complete disposition graph. A status missing from the
// map, or mapped to nothing, is terminal. Self-loops are never allowed.
var Transitions = map[domain.DispositionStatus][]domain.DispositionStatus{
	domain.StatusFresh: {
		domain.StatusInSequence,
		domain.StatusStaleData,
		domain.StatusJobChangeDetected,
	},
	domain.StatusInSequence: {
		domain.StatusCompletedNoResponse,
		domain.StatusRepliedPositive,
		domain.StatusRepliedNeutral,
		domain.StatusRepliedNegative,
		domain.StatusRepliedHardNo,
		domain.StatusBounced,
		domain.StatusUnsubscribed,
	},
	domain.StatusCompletedNoResponse: {
		domain.StatusRetouchEligible,
		domain.StatusStaleData,
		domain.StatusJobChangeDetected,
	},
	domain.StatusRepliedPositive: {
		domain.StatusWonCustomer,
		domain.StatusLostClosed,
	},
	domain.StatusRepliedNeutral: {
		domain.StatusRetouchEligible,
		domain.StatusStaleData,
	},
	domain.StatusRepliedNegative: {
		domain.StatusRetouchEligible,
		domain.StatusStaleData,
	},
	domain.StatusRetouchEligible: {
		domain.StatusInSequence,
		domain.StatusStaleData,
		domain.StatusJobChangeDetected,
	},
	domain.StatusStaleData: {
		domain.StatusFresh,
		domain.StatusRetouchEligible,
	},
	domain.StatusJobChangeDetected: {
		domain.StatusFresh,
		domain.StatusRetouchEligible,
	},
	domain.StatusRepliedHardNo: nil,
	domain.StatusBounced:       nil,
	domain.StatusUnsubscribed:  nil,
	domain.StatusWonCustomer:   nil,
	domain.StatusLostClosed:    nil,
}

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to domain.DispositionStatus) bool {
	if from == to {
		return false
	}
	for _, s := range Transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s domain.DispositionStatus) bool {
	return len(Transitions[s]) == 0
}

// Allowed returns the statuses reachable from s in one step.
func Allowed(s domain.DispositionStatus) []domain.DispositionStatus {
	out := make([]domain.DispositionStatus, len(Transitions[s]))
	copy(out, Transitions[s])
	return out
}
