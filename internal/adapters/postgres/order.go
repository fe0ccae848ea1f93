package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/storefront-order-core/internal/domain"
)

func (r *Repository) InsertOrder(ctx context.Context, tx pgx.Tx, o domain.Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total_amount)
		VALUES ($1, $2, $3, $4)
	`, o.ID, o.UserID, o.Status, o.TotalAmount)
	if err != nil {
		return err
	}
	for _, item := range o.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, item_type, item_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, o.ID, item.ItemType, item.ItemID, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetOrderForUpdate locks the order row so the check-then-set against
// the transition table cannot race another status update.
func (r *Repository) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, status, total_amount, payment_ref, created_at, updated_at
		FROM orders WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.PaymentRef, &o.CreatedAt, &o.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) SetOrderStatus(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status domain.OrderStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
	`, orderID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return nil
}

func (r *Repository) SetPaymentRef(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, ref string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE orders SET payment_ref = $2, updated_at = now()
		WHERE id = $1 AND (payment_ref IS NULL OR payment_ref = $2)
	`, orderID, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Row missing, or a different reference already attached.
		var existing *string
		err := r.pool.QueryRow(ctx, `SELECT payment_ref FROM orders WHERE id = $1`, orderID).Scan(&existing)
		if err == pgx.ErrNoRows {
			return fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: order %s", domain.ErrPaymentRefMismatch, orderID)
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, status, total_amount, payment_ref, created_at, updated_at
		FROM orders WHERE id = $1
	`, orderID).Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.PaymentRef, &o.CreatedAt, &o.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}

	items, err := r.getOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

// GetOrderItemsForUpdate loads the immutable items inside tx for
// fulfillment and refund dispatch.
func (r *Repository) GetOrderItemsForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := tx.Query(ctx, `
		SELECT order_id, item_type, item_id, quantity, unit_price
		FROM order_items WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	return collectOrderItems(rows)
}

func (r *Repository) getOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, item_type, item_id, quantity, unit_price
		FROM order_items WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	return collectOrderItems(rows)
}

func collectOrderItems(rows pgx.Rows) ([]domain.OrderItem, error) {
	defer rows.Close()
	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ItemType, &it.ItemID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetStaleOrders returns orders that have sat unpaid past the cutoff;
// the expiry worker cancels them one transaction at a time.
func (r *Repository) GetStaleOrders(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE status IN ($1, $2) AND updated_at <= $3
		ORDER BY updated_at ASC LIMIT $4
	`, domain.OrderPending, domain.OrderPaymentPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
