package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/storefront-order-core/internal/domain"
)

const bookingColumns = `id, user_id, event_id, status, attendee_count, total_price, order_id, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.UserID, &b.EventID, &b.Status, &b.AttendeeCount,
		&b.TotalPrice, &b.OrderID, &b.CreatedAt, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// InsertBooking relies on the partial unique index over (user_id,
// event_id) for non-cancelled rows; a violation surfaces as
// ErrDuplicateBooking via the tx error mapping.
func (r *Repository) InsertBooking(ctx context.Context, tx pgx.Tx, b domain.Booking) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings (id, user_id, event_id, status, attendee_count, total_price, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.UserID, b.EventID, b.Status, b.AttendeeCount, b.TotalPrice, b.OrderID)
	return err
}

func (r *Repository) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID))
	if err == domain.ErrNotFound {
		return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, bookingID)
	}
	return b, err
}

// GetBookingForUpdate locks the booking row inside tx so a concurrent
// cancel and confirm cannot both read the same pre-state.
func (r *Repository) GetBookingForUpdate(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*domain.Booking, error) {
	b, err := scanBooking(tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID))
	if err == domain.ErrNotFound {
		return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, bookingID)
	}
	return b, err
}

func (r *Repository) GetBookingByOrderAndEvent(ctx context.Context, tx pgx.Tx, orderID, eventID uuid.UUID) (*domain.Booking, error) {
	b, err := scanBooking(tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE order_id = $1 AND event_id = $2 FOR UPDATE`,
		orderID, eventID))
	if err == domain.ErrNotFound {
		return nil, fmt.Errorf("%w: booking for order %s event %s", domain.ErrNotFound, orderID, eventID)
	}
	return b, err
}

func (r *Repository) UpdateBookingStatus(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID, status domain.BookingStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1
	`, bookingID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, bookingID)
	}
	return nil
}

func (r *Repository) ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}
