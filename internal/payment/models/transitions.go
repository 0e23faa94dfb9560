package models

import (
	"slices"

	dErrors "courier/pkg/domain-errors"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusAuthorized, StatusFailed, StatusVoided},
	StatusAuthorized: {StatusCaptured, StatusFailed, StatusVoided},
	StatusCaptured:   {StatusRefunded, StatusVoided, StatusFailed},
}

// CheckTransition returns an invariant violation when to is not reachable
// from from. failed is reachable from every non-terminal status.
func CheckTransition(from, to Status) error {
	if slices.Contains(transitions[from], to) {
		return nil
	}
	return dErrors.Newf(dErrors.CodeInvariantViolation, "payment cannot move from %s to %s", from, to)
}
