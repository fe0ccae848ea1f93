package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/storefront-order-core/internal/domain"
)

// The capacity ledger. available_spots is only written by the two
// functions below, always under FOR UPDATE on the event row, so the
// read-check-write sequence can never interleave with another writer.

// LockEvent acquires an exclusive lock on the event row for the
// remainder of tx and returns its current state.
func (r *Repository) LockEvent(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (*domain.Event, error) {
	var ev domain.Event
	err := tx.QueryRow(ctx, `
		SELECT id, capacity, available_spots
		FROM events WHERE id = $1
		FOR UPDATE
	`, eventID).Scan(&ev.ID, &ev.Capacity, &ev.AvailableSpots)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ReserveSpots decrements available_spots by count. The caller must hold
// the row lock via LockEvent in the same transaction.
func (r *Repository) ReserveSpots(ctx context.Context, tx pgx.Tx, ev *domain.Event, count int) error {
	if count > ev.AvailableSpots {
		return fmt.Errorf("%w: event %s has %d of %d spots left, wanted %d",
			domain.ErrInsufficientCapacity, ev.ID, ev.AvailableSpots, ev.Capacity, count)
	}
	_, err := tx.Exec(ctx, `
		UPDATE events SET available_spots = available_spots - $2 WHERE id = $1
	`, ev.ID, count)
	if err != nil {
		return err
	}
	ev.AvailableSpots -= count
	return nil
}

// ReleaseSpots is the inverse of ReserveSpots. It is only safe when
// paired 1:1 with a prior successful reservation recorded on a booking;
// the check constraint rejects any release that would exceed capacity.
func (r *Repository) ReleaseSpots(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, count int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE events SET available_spots = available_spots + $2 WHERE id = $1
	`, eventID, count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
	}
	return nil
}

// GetEvent reads the event without locking; used for availability
// previews where staleness is acceptable.
func (r *Repository) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	var ev domain.Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, capacity, available_spots FROM events WHERE id = $1
	`, eventID).Scan(&ev.ID, &ev.Capacity, &ev.AvailableSpots)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// CreateEvent exists for catalog bootstrap and tests; the booking paths
// never insert events.
func (r *Repository) CreateEvent(ctx context.Context, ev domain.Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, capacity, available_spots) VALUES ($1, $2, $3)
	`, ev.ID, ev.Capacity, ev.AvailableSpots)
	return err
}
