package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// Conflicts: well-formed requests that lose to a business invariant
	// at this instant. Retryable at the caller's discretion.
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrDuplicateBooking     = errors.New("user already booked this event")
	ErrInvalidTransition    = errors.New("illegal status transition")
	ErrPaymentRefMismatch   = errors.New("payment reference already attached")
	ErrEmptyCart            = errors.New("cart is empty")

	// Transient: lock-wait timeout or serialization failure. The enclosing
	// transaction rolled back fully, so a retry is always safe.
	ErrTransient = errors.New("transient datastore conflict")
)

// IsConflict reports whether err belongs to the conflict class of the
// error taxonomy, as opposed to validation, not-found or transient.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrDuplicateBooking) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrPaymentRefMismatch)
}

// LineItemError identifies which cart line made a checkout fail, so the
// client can drop that line and retry the remainder.
type LineItemError struct {
	ItemType ItemType
	ItemID   uuid.UUID
	Err      error
}

func (e *LineItemError) Error() string {
	return fmt.Sprintf("line item %s/%s: %v", e.ItemType, e.ItemID, e.Err)
}

func (e *LineItemError) Unwrap() error { return e.Err }
