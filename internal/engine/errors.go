package engine

import (
	"fmt"

	"snagline/internal/domain"
)

// ValidationError reports malformed or out-of-range input. The caller can
// surface Field directly to the user.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// StageMismatchError reports a stage that exists but belongs to a different
// project than the defect.
type StageMismatchError struct {
	StageID   string
	ProjectID string
}

func (e StageMismatchError) Error() string {
	return fmt.Sprintf("stage %s does not belong to project %s", e.StageID, e.ProjectID)
}

// TransitionError reports a status move not present in the lifecycle table.
// The move is rejected outright, never coerced to a nearby valid state.
type TransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// ConflictError reports a lost race: a concurrent transaction moved the
// defect between this operation's read and its write. The caller should
// retry the whole operation against the newer state.
type ConflictError struct {
	DefectID string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("defect %s changed concurrently; retry", e.DefectID)
}
