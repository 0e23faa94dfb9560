package models

import (
	"slices"

	dErrors "courier/pkg/domain-errors"
)

// transitions lists the statuses reachable from each non-terminal status.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusPending, StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CheckTransition returns an invariant violation when to is not reachable
// from from.
func CheckTransition(from, to Status) error {
	if slices.Contains(transitions[from], to) {
		return nil
	}
	return dErrors.Newf(dErrors.CodeInvariantViolation, "delivery cannot move from %s to %s", from, to)
}

// CheckTracking allows location updates only while a courier holds the delivery.
func CheckTracking(current Status) error {
	if current == StatusAssigned || current == StatusInProgress {
		return nil
	}
	return dErrors.Newf(dErrors.CodeInvariantViolation, "delivery in status %s cannot be tracked", current)
}
