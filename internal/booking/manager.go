package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/storefront-order-core/internal/adapters/postgres"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/robertarktes/storefront-order-core/internal/observability"
)

// Manager owns the booking lifecycle and is the only writer of the
// capacity ledger. Capacity arithmetic always happens under the event
// row lock; the partial unique index on (user_id, event_id) backstops
// duplicate submissions independently of the lock.
type Manager struct {
	repo   *postgres.Repository
	logger observability.Logger
}

func NewManager(repo *postgres.Repository, logger observability.Logger) *Manager {
	return &Manager{repo: repo, logger: logger}
}

type CreateParams struct {
	UserID        uuid.UUID
	EventID       uuid.UUID
	AttendeeCount int
	UnitPrice     float64
	OrderID       *uuid.UUID
	Confirmed     bool
}

// CreateBooking reserves capacity and inserts the booking in one
// transaction. Insufficient capacity is a conflict: the request was
// well-formed, the seats were gone.
func (m *Manager) CreateBooking(ctx context.Context, p CreateParams) (*domain.Booking, error) {
	var b *domain.Booking
	err := m.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		b, err = m.CreateBookingInTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.WithField("booking_id", b.ID.String()).
		WithField("event_id", b.EventID.String()).
		Info("booking created")
	observability.BookingsTotal.WithLabelValues(string(b.Status)).Inc()
	return b, nil
}

// CreateBookingInTx is the transactional body, shared with the order
// engine so an event line item's booking is born inside the checkout
// transaction.
func (m *Manager) CreateBookingInTx(ctx context.Context, tx pgx.Tx, p CreateParams) (*domain.Booking, error) {
	if p.AttendeeCount < 1 {
		return nil, fmt.Errorf("%w: attendee count must be >= 1, got %d", domain.ErrInvalidInput, p.AttendeeCount)
	}

	ev, err := m.repo.LockEvent(ctx, tx, p.EventID)
	if err != nil {
		return nil, err
	}
	if err := m.repo.ReserveSpots(ctx, tx, ev, p.AttendeeCount); err != nil {
		observability.CapacityConflictsTotal.Inc()
		return nil, err
	}

	status := domain.BookingPending
	if p.Confirmed {
		status = domain.BookingConfirmed
	}
	b := domain.Booking{
		ID:            uuid.New(),
		UserID:        p.UserID,
		EventID:       p.EventID,
		Status:        status,
		AttendeeCount: p.AttendeeCount,
		TotalPrice:    p.UnitPrice * float64(p.AttendeeCount),
		OrderID:       p.OrderID,
	}
	if err := m.repo.InsertBooking(ctx, tx, b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelBooking transitions the booking to cancelled and releases its
// seats, all under the event row lock. This is the only path besides
// refund that returns capacity to the ledger.
func (m *Manager) CancelBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	var b *domain.Booking
	err := m.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		b, err = m.CancelBookingInTx(ctx, tx, bookingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.WithField("booking_id", bookingID.String()).Info("booking cancelled")
	return b, nil
}

func (m *Manager) CancelBookingInTx(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*domain.Booking, error) {
	b, err := m.repo.GetBookingForUpdate(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingPending && b.Status != domain.BookingConfirmed {
		return nil, fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidTransition, b.ID, b.Status)
	}

	if _, err := m.repo.LockEvent(ctx, tx, b.EventID); err != nil {
		return nil, err
	}
	if err := m.repo.UpdateBookingStatus(ctx, tx, b.ID, domain.BookingCancelled); err != nil {
		return nil, err
	}
	if err := m.repo.ReleaseSpots(ctx, tx, b.EventID, b.AttendeeCount); err != nil {
		return nil, err
	}
	b.Status = domain.BookingCancelled
	return b, nil
}

// UpdateStatus performs a check-in style transition with no capacity
// side effect. Cancellation must go through CancelBooking so the ledger
// release stays tied to the one path that guards it.
func (m *Manager) UpdateStatus(ctx context.Context, bookingID uuid.UUID, status domain.BookingStatus) (*domain.Booking, error) {
	switch status {
	case domain.BookingConfirmed, domain.BookingAttended:
	default:
		return nil, fmt.Errorf("%w: status %q not settable directly", domain.ErrInvalidInput, status)
	}

	var b *domain.Booking
	err := m.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		b, err = m.repo.GetBookingForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if status == domain.BookingAttended && b.Status != domain.BookingConfirmed {
			return fmt.Errorf("%w: booking %s is %s, check-in requires confirmed", domain.ErrInvalidTransition, b.ID, b.Status)
		}
		if status == domain.BookingConfirmed && b.Status != domain.BookingPending {
			return fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidTransition, b.ID, b.Status)
		}
		if err := m.repo.UpdateBookingStatus(ctx, tx, b.ID, status); err != nil {
			return err
		}
		b.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (m *Manager) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	return m.repo.GetBooking(ctx, bookingID)
}

func (m *Manager) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error) {
	return m.repo.ListBookingsByUser(ctx, userID)
}
