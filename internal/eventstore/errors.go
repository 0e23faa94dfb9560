package eventstore

import (
	"errors"

	dErrors "courier/pkg/domain-errors"
	"courier/pkg/platform/sentinel"
)

// DomainError attaches the domain error code matching a store failure. Errors
// that already carry a code are returned unchanged; errors.Is on the store
// sentinels keeps working through the wrap.
func DomainError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, ErrConcurrencyConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, ErrCorruptEvent):
		return dErrors.Wrap(err, dErrors.CodeCorruptEvent, msg)
	case errors.Is(err, ErrStoreUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
