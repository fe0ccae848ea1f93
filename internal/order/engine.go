package order

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/storefront-order-core/internal/adapters/postgres"
	"github.com/robertarktes/storefront-order-core/internal/booking"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/robertarktes/storefront-order-core/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Engine converts an advisory cart snapshot into a durable order and
// drives the order state machine. Checkout is all-or-nothing: any line
// that fails validation or capacity reservation rolls the whole
// transaction back.
type Engine struct {
	repo     *postgres.Repository
	bookings *booking.Manager
	catalog  domain.Catalog
	logger   observability.Logger
}

func NewEngine(repo *postgres.Repository, bookings *booking.Manager, catalog domain.Catalog, logger observability.Logger) *Engine {
	return &Engine{repo: repo, bookings: bookings, catalog: catalog, logger: logger}
}

// CreateOrder re-validates every cart line against the live catalog,
// freezes current prices into order items, and for event lines reserves
// capacity through the booking manager inside the same transaction.
func (e *Engine) CreateOrder(ctx context.Context, userID uuid.UUID, snapshot *domain.Cart) (*domain.Order, error) {
	if snapshot == nil || snapshot.Empty() {
		return nil, domain.ErrEmptyCart
	}
	for _, line := range snapshot.Items {
		if !line.ItemType.Valid() {
			return nil, fmt.Errorf("%w: unknown item type %q", domain.ErrInvalidInput, line.ItemType)
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be >= 1 for %s", domain.ErrInvalidInput, line.ItemID)
		}
	}

	// Catalog reads are independent; fetch them in parallel before the
	// transaction opens so lock hold time stays short.
	current := make([]*domain.CatalogItem, len(snapshot.Items))
	g, gctx := errgroup.WithContext(ctx)
	for i, line := range snapshot.Items {
		g.Go(func() error {
			item, err := e.catalog.GetItem(gctx, line.ItemType, line.ItemID)
			if err != nil {
				return &domain.LineItemError{ItemType: line.ItemType, ItemID: line.ItemID, Err: err}
			}
			current[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o := domain.Order{
		ID:     uuid.New(),
		UserID: userID,
		Status: domain.OrderPending,
	}
	for i, line := range snapshot.Items {
		item := domain.OrderItem{
			OrderID:   o.ID,
			ItemType:  line.ItemType,
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: current[i].Price,
		}
		o.Items = append(o.Items, item)
		o.TotalAmount += item.UnitPrice * float64(item.Quantity)
	}

	err := e.repo.WithTx(ctx, func(tx pgx.Tx) error {
		if err := e.repo.InsertOrder(ctx, tx, o); err != nil {
			return err
		}
		for _, item := range o.Items {
			if item.ItemType != domain.ItemEvent {
				continue
			}
			_, err := e.bookings.CreateBookingInTx(ctx, tx, booking.CreateParams{
				UserID:        userID,
				EventID:       item.ItemID,
				AttendeeCount: item.Quantity,
				UnitPrice:     item.UnitPrice,
				OrderID:       &o.ID,
			})
			if err != nil {
				return &domain.LineItemError{ItemType: item.ItemType, ItemID: item.ItemID, Err: err}
			}
		}
		return e.insertOrderOutbox(ctx, tx, o.ID, "order.created", map[string]interface{}{
			"order_id": o.ID,
			"user_id":  userID,
			"total":    o.TotalAmount,
			"items":    len(o.Items),
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithField("order_id", o.ID.String()).
		WithField("user_id", userID.String()).
		Info("order created")
	observability.OrdersTotal.WithLabelValues(string(domain.OrderPending)).Inc()
	return &o, nil
}

// UpdateStatus applies the transition table under the order row lock.
// An illegal transition is a hard error reported with the current state.
func (e *Engine) UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", domain.ErrInvalidInput, status)
	}
	var o *domain.Order
	err := e.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		o, err = e.repo.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := domain.ValidateTransition(o.Status, status); err != nil {
			return err
		}
		if err := e.repo.SetOrderStatus(ctx, tx, orderID, status); err != nil {
			return err
		}
		o.Status = status
		return e.insertOrderOutbox(ctx, tx, orderID, "order."+string(status), map[string]interface{}{
			"order_id": orderID,
			"status":   status,
		})
	})
	if err != nil {
		return nil, err
	}
	observability.OrdersTotal.WithLabelValues(string(status)).Inc()
	return o, nil
}

// AttachPaymentReference stores the gateway reference. Calling it twice
// with the same reference is a no-op; a different reference conflicts.
func (e *Engine) AttachPaymentReference(ctx context.Context, orderID uuid.UUID, ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: payment reference is empty", domain.ErrInvalidInput)
	}
	return e.repo.WithTx(ctx, func(tx pgx.Tx) error {
		return e.repo.SetPaymentRef(ctx, tx, orderID, ref)
	})
}

// CancelOrder cancels an unpaid order, cancelling any linked bookings so
// their seats return to the ledger. Used by the expiry worker and the
// user-facing cancel path.
func (e *Engine) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	err := e.repo.WithTx(ctx, func(tx pgx.Tx) error {
		o, err := e.repo.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := domain.ValidateTransition(o.Status, domain.OrderCancelled); err != nil {
			return err
		}
		items, err := e.repo.GetOrderItemsForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.ItemType != domain.ItemEvent {
				continue
			}
			b, err := e.repo.GetBookingByOrderAndEvent(ctx, tx, orderID, item.ItemID)
			if err != nil {
				return err
			}
			if b.Status == domain.BookingCancelled {
				continue
			}
			if _, err := e.bookings.CancelBookingInTx(ctx, tx, b.ID); err != nil {
				return err
			}
		}
		if err := e.repo.SetOrderStatus(ctx, tx, orderID, domain.OrderCancelled); err != nil {
			return err
		}
		return e.insertOrderOutbox(ctx, tx, orderID, "order.cancelled", map[string]interface{}{
			"order_id": orderID,
			"reason":   reason,
		})
	})
	if err != nil {
		return err
	}
	e.logger.WithField("order_id", orderID.String()).
		WithField("reason", reason).
		Info("order cancelled")
	observability.OrdersTotal.WithLabelValues(string(domain.OrderCancelled)).Inc()
	return nil
}

func (e *Engine) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return e.repo.GetOrder(ctx, orderID)
}

func (e *Engine) insertOrderOutbox(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, eventType string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return e.repo.InsertOutbox(ctx, tx, postgres.NewOutboxRecord("order", orderID, eventType, payload))
}
