package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupportedMedia   = errors.New("unsupported media type")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// DuplicateError rejects an upload whose content matches a recent record
// that was not created under the same idempotency key.
type DuplicateError struct {
	ExistingInvoiceID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("content matches recent invoice %s", e.ExistingInvoiceID)
}

func (e *DuplicateError) Unwrap() error { return ErrConflict }

// TransitionError rejects an illegal workflow status change. Allowed lists
// the legal next states from the current one, for diagnostics.
type TransitionError struct {
	From    InvoiceStatus
	To      InvoiceStatus
	Allowed []InvoiceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("status transition %s -> %s is not allowed (allowed next: %v)", e.From, e.To, e.Allowed)
}

func (e *TransitionError) Unwrap() error { return ErrConflict }
