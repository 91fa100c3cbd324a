package consolidation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrConsolidationNotFound = errors.New("consolidation not found")

var (
	ErrValidation            = errors.New("validation failed")
	ErrIllegalTransition     = errors.New("illegal state transition")
	ErrConservationViolation = errors.New("conservation violation")
)

// ValidationError carries a human-readable reason. errors.Is(err, ErrValidation) holds.
type ValidationError struct {
	Reason string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IllegalTransitionError reports a status change outside the transition
// table, or a draft-only operation attempted in another status.
type IllegalTransitionError struct {
	Operation string
	Current   Status
	Attempted Status
}

func (e *IllegalTransitionError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("cannot %s consolidation in status %s", e.Operation, e.Current)
	}
	return fmt.Sprintf("cannot change consolidation status from %s to %s", e.Current, e.Attempted)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// ConservationError reports a pull that would take more hours from a time
// entry than it contributes.
type ConservationError struct {
	TimeEntryId     int
	Contributed     decimal.Decimal
	PulledElsewhere decimal.Decimal
	Requested       decimal.Decimal
}

func (e *ConservationError) Error() string {
	return fmt.Sprintf("time entry %d: pulling %s hours on top of %s already pulled exceeds %s contributed hours",
		e.TimeEntryId, e.Requested, e.PulledElsewhere, e.Contributed)
}

func (e *ConservationError) Unwrap() error {
	return ErrConservationViolation
}
