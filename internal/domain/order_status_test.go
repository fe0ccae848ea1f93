package domain_test

import (
	"errors"
	"testing"

	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	legal := []struct {
		from, to domain.OrderStatus
	}{
		{domain.OrderPending, domain.OrderPaymentPending},
		{domain.OrderPending, domain.OrderCancelled},
		{domain.OrderPaymentPending, domain.OrderPaid},
		{domain.OrderPaymentPending, domain.OrderCancelled},
		{domain.OrderPaid, domain.OrderProcessing},
		{domain.OrderPaid, domain.OrderRefunded},
		{domain.OrderProcessing, domain.OrderCompleted},
		{domain.OrderProcessing, domain.OrderRefunded},
		{domain.OrderCompleted, domain.OrderRefunded},
	}
	for _, tc := range legal {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			require.NoError(t, domain.ValidateTransition(tc.from, tc.to))
		})
	}

	all := []domain.OrderStatus{
		domain.OrderPending, domain.OrderPaymentPending, domain.OrderPaid,
		domain.OrderProcessing, domain.OrderCompleted, domain.OrderCancelled,
		domain.OrderRefunded,
	}
	isLegal := func(from, to domain.OrderStatus) bool {
		for _, tc := range legal {
			if tc.from == from && tc.to == to {
				return true
			}
		}
		return false
	}
	for _, from := range all {
		for _, to := range all {
			if isLegal(from, to) {
				continue
			}
			err := domain.ValidateTransition(from, to)
			require.Error(t, err, "%s -> %s must be rejected", from, to)
			require.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	require.True(t, domain.OrderCancelled.Terminal())
	require.True(t, domain.OrderRefunded.Terminal())
	require.False(t, domain.OrderCompleted.Terminal())
	require.False(t, domain.OrderPending.Terminal())
}

func TestOrderStatusValid(t *testing.T) {
	require.True(t, domain.OrderPaid.Valid())
	require.False(t, domain.OrderStatus("shipped").Valid())
}

func TestIsConflict(t *testing.T) {
	require.True(t, domain.IsConflict(domain.ErrInsufficientCapacity))
	require.True(t, domain.IsConflict(domain.ErrDuplicateBooking))
	require.True(t, domain.IsConflict(domain.ErrInvalidTransition))
	require.False(t, domain.IsConflict(domain.ErrNotFound))
	require.False(t, domain.IsConflict(errors.New("boom")))
}
