package domain

import "fmt"

type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderPaymentPending OrderStatus = "payment_pending"
	OrderPaid           OrderStatus = "paid"
	OrderProcessing     OrderStatus = "processing"
	OrderCompleted      OrderStatus = "completed"
	OrderCancelled      OrderStatus = "cancelled"
	OrderRefunded       OrderStatus = "refunded"
)

// orderTransitions is the single source of truth for legal order status
// changes. cancelled and refunded are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderPaymentPending, OrderCancelled},
	OrderPaymentPending: {OrderPaid, OrderCancelled},
	OrderPaid:           {OrderProcessing, OrderRefunded},
	OrderProcessing:     {OrderCompleted, OrderRefunded},
	OrderCompleted:      {OrderRefunded},
	OrderCancelled:      {},
	OrderRefunded:       {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransitionTo reports whether s -> to is a legal move.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition carrying both states so
// the caller sees the current status, not just a refusal.
func ValidateTransition(from, to OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Terminal reports whether no further transitions exist from s.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}
