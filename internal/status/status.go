package status

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation: invalid request")
	ErrGatewayUnreachable  = errors.New("gateway: unreachable")
	ErrGatewayRejected     = errors.New("gateway: request rejected")
	ErrSignatureInvalid    = errors.New("webhook: signature invalid")
	ErrUnknownTransaction  = errors.New("payment: unknown transaction")
	ErrCorrelationMiss     = errors.New("correlation: entry not found")
	ErrPartialUpdate       = errors.New("payment: payer verified but registrations not updated")
	ErrUnsupportedProvider = errors.New("gateway: unsupported provider")
)

// ValidationError reports malformed input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PartialUpdateError is returned when the payer moved to verified but its
// registrations could not be updated. The payer must not be rolled back; an
// operator reconciles it with PaymentService.Reconcile.
type PartialUpdateError struct {
	PayerID   string
	Reference string
	Err       error
}

func (e *PartialUpdateError) Error() string {
	return fmt.Sprintf("payment: payer %s (ref %s) verified but registrations not updated: %v", e.PayerID, e.Reference, e.Err)
}

func (e *PartialUpdateError) Is(target error) bool {
	return target == ErrPartialUpdate
}

func (e *PartialUpdateError) Unwrap() error {
	return e.Err
}
