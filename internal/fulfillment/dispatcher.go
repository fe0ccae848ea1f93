package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/storefront-order-core/internal/adapters/postgres"
	"github.com/robertarktes/storefront-order-core/internal/booking"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/robertarktes/storefront-order-core/internal/observability"
)

// Dispatcher grants and revokes the entitlement behind each order item.
// Grant and revoke are driven by the same item-type switch so the two
// halves cannot drift apart. Every branch is idempotent, which makes a
// whole-order retry after a rollback safe.
type Dispatcher struct {
	repo     *postgres.Repository
	bookings *booking.Manager
	logger   observability.Logger
}

func NewDispatcher(repo *postgres.Repository, bookings *booking.Manager, logger observability.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, bookings: bookings, logger: logger}
}

// FulfillOrder moves a paid order through processing to completed,
// applying every item's entitlement in one transaction. A failure on any
// item rolls back all of them and leaves the order status untouched.
func (d *Dispatcher) FulfillOrder(ctx context.Context, orderID uuid.UUID) error {
	err := d.repo.WithTx(ctx, func(tx pgx.Tx) error {
		o, err := d.repo.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		status := o.Status
		if status == domain.OrderPaid {
			if err := domain.ValidateTransition(status, domain.OrderProcessing); err != nil {
				return err
			}
			status = domain.OrderProcessing
		}
		if status != domain.OrderProcessing {
			return fmt.Errorf("%w: order %s is %s, cannot fulfill", domain.ErrInvalidTransition, orderID, o.Status)
		}

		items, err := d.repo.GetOrderItemsForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := d.fulfillItem(ctx, tx, o, item); err != nil {
				return err
			}
		}

		if err := domain.ValidateTransition(status, domain.OrderCompleted); err != nil {
			return err
		}
		if err := d.repo.SetOrderStatus(ctx, tx, orderID, domain.OrderCompleted); err != nil {
			return err
		}
		return d.insertOutbox(ctx, tx, orderID, "order.completed", map[string]interface{}{
			"order_id": orderID,
			"user_id":  o.UserID,
			"items":    len(items),
		})
	})
	if err != nil {
		return err
	}
	d.logger.WithField("order_id", orderID.String()).Info("order fulfilled")
	observability.FulfillmentsTotal.Inc()
	return nil
}

func (d *Dispatcher) fulfillItem(ctx context.Context, tx pgx.Tx, o *domain.Order, item domain.OrderItem) error {
	switch item.ItemType {
	case domain.ItemCourse:
		_, err := d.repo.GrantEnrollment(ctx, tx, o.UserID, item.ItemID)
		return err
	case domain.ItemEvent:
		// Capacity was reserved when the order was created; confirming
		// the booking must not touch the ledger again.
		b, err := d.repo.GetBookingByOrderAndEvent(ctx, tx, o.ID, item.ItemID)
		if errors.Is(err, domain.ErrNotFound) {
			// No booking row for this line, so nothing reserved seats
			// yet. The order is paid at this point, so the booking
			// created here starts out confirmed.
			_, err = d.bookings.CreateBookingInTx(ctx, tx, booking.CreateParams{
				UserID:        o.UserID,
				EventID:       item.ItemID,
				AttendeeCount: item.Quantity,
				UnitPrice:     item.UnitPrice,
				OrderID:       &o.ID,
				Confirmed:     true,
			})
			return err
		}
		if err != nil {
			return err
		}
		switch b.Status {
		case domain.BookingPending:
			return d.repo.UpdateBookingStatus(ctx, tx, b.ID, domain.BookingConfirmed)
		case domain.BookingConfirmed:
			return nil
		default:
			return fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidTransition, b.ID, b.Status)
		}
	case domain.ItemDigitalProduct:
		_, err := d.repo.GrantDownload(ctx, tx, o.UserID, item.ItemID, o.ID)
		return err
	}
	return fmt.Errorf("%w: unknown item type %q", domain.ErrInvalidInput, item.ItemType)
}

// RefundOrder is the compensating transaction: it validates the move to
// refunded and reverses each item's entitlement in the same transaction.
func (d *Dispatcher) RefundOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	err := d.repo.WithTx(ctx, func(tx pgx.Tx) error {
		o, err := d.repo.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := domain.ValidateTransition(o.Status, domain.OrderRefunded); err != nil {
			return err
		}

		items, err := d.repo.GetOrderItemsForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := d.refundItem(ctx, tx, o, item); err != nil {
				return err
			}
		}

		if err := d.repo.SetOrderStatus(ctx, tx, orderID, domain.OrderRefunded); err != nil {
			return err
		}
		return d.insertOutbox(ctx, tx, orderID, "order.refunded", map[string]interface{}{
			"order_id": orderID,
			"user_id":  o.UserID,
			"reason":   reason,
		})
	})
	if err != nil {
		return err
	}
	d.logger.WithField("order_id", orderID.String()).
		WithField("reason", reason).
		Info("order refunded")
	observability.RefundsTotal.Inc()
	return nil
}

func (d *Dispatcher) refundItem(ctx context.Context, tx pgx.Tx, o *domain.Order, item domain.OrderItem) error {
	switch item.ItemType {
	case domain.ItemCourse:
		_, err := d.repo.RevokeEnrollment(ctx, tx, o.UserID, item.ItemID)
		return err
	case domain.ItemEvent:
		b, err := d.repo.GetBookingByOrderAndEvent(ctx, tx, o.ID, item.ItemID)
		if err != nil {
			return err
		}
		if b.Status == domain.BookingCancelled {
			return nil
		}
		// Cancellation releases the seats; this is the inverse of the
		// reservation made at order creation.
		_, err = d.bookings.CancelBookingInTx(ctx, tx, b.ID)
		return err
	case domain.ItemDigitalProduct:
		_, err := d.repo.RevokeDownload(ctx, tx, o.UserID, item.ItemID, o.ID)
		return err
	}
	return fmt.Errorf("%w: unknown item type %q", domain.ErrInvalidInput, item.ItemType)
}

func (d *Dispatcher) insertOutbox(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, eventType string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return d.repo.InsertOutbox(ctx, tx, postgres.NewOutboxRecord("order", orderID, eventType, payload))
}
