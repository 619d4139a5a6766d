package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping. Services wrap one of the
// sentinel kinds below with context; handlers unwrap with errors.Is.
type Kind struct{ name string }

func (k *Kind) Error() string { return k.name }

var (
	ErrValidation             = &Kind{"validation_error"}
	ErrInvalidStateTransition = &Kind{"invalid_state_transition"}
	ErrPreconditionFailed     = &Kind{"precondition_failed"}
	ErrForbidden              = &Kind{"forbidden"}
	ErrConflict               = &Kind{"conflict"}
	ErrNoOutstandingBalance   = &Kind{"no_outstanding_balance"}
	ErrInvalidAmount          = &Kind{"invalid_amount"}
	ErrNotFound               = &Kind{"not_found"}
)

// Wrap attaches a kind to a formatted message, e.g.
// apperr.Wrap(apperr.ErrForbidden, "only the borrower may cancel loan %d", id).
func Wrap(kind *Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// KindOf returns the sentinel kind wrapped in err, or nil.
func KindOf(err error) *Kind {
	for _, k := range []*Kind{
		ErrValidation, ErrInvalidStateTransition, ErrPreconditionFailed,
		ErrForbidden, ErrConflict, ErrNoOutstandingBalance, ErrInvalidAmount,
		ErrNotFound,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
