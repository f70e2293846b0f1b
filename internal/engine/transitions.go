package engine

import "snagline/internal/domain"

// transitions is the full lifecycle table. CLOSED and CANCELLED are terminal:
// no outbound moves, not even back to NEW.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusNew:        {domain.StatusInProgress, domain.StatusCancelled},
	domain.StatusInProgress: {domain.StatusInReview, domain.StatusCancelled},
	domain.StatusInReview:   {domain.StatusClosed, domain.StatusInProgress, domain.StatusCancelled},
	domain.StatusClosed:     {},
	domain.StatusCancelled:  {},
}

// AllowedTransitions returns the statuses reachable in one step from the
// given status. The result is a copy; callers may not mutate the table.
func AllowedTransitions(from domain.Status) []domain.Status {
	allowed := transitions[from]
	out := make([]domain.Status, len(allowed))
	copy(out, allowed)
	return out
}

// CanTransition reports whether the move is in the table.
func CanTransition(from, to domain.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ensureTransition(from, to domain.Status) error {
	if !CanTransition(from, to) {
		return TransitionError{From: from, To: to}
	}
	return nil
}
