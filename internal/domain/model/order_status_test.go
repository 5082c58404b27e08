package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipping, false},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusPending, OrderStatusPending, false},
		{OrderStatusProcessing, OrderStatusShipping, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusShipping, OrderStatusCompleted, true},
		{OrderStatusShipping, OrderStatusCancelled, false},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatus("unknown"), OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range OrderStatuses {
		want := s == OrderStatusCompleted || s == OrderStatusCancelled
		assert.Equal(t, want, s.IsTerminal(), s)
	}
	assert.False(t, OrderStatus("lost").IsTerminal())
}

func TestNextStatuses_ReturnsCopy(t *testing.T) {
	next := NextStatuses(OrderStatusPending)
	assert.Equal(t, []OrderStatus{OrderStatusProcessing, OrderStatusCancelled}, next)

	next[0] = OrderStatusCompleted
	assert.Equal(t, OrderStatusProcessing, AllowedTransitions[OrderStatusPending][0])
}

func TestParseOrderStatus(t *testing.T) {
	s, ok := ParseOrderStatus(" Shipping ")
	assert.True(t, ok)
	assert.Equal(t, OrderStatusShipping, s)

	_, ok = ParseOrderStatus("paid")
	assert.False(t, ok)
}

func TestPaymentMethod_IsPayOnDelivery(t *testing.T) {
	assert.True(t, PaymentMethodCOD.IsPayOnDelivery())
	assert.False(t, PaymentMethodMock.IsPayOnDelivery())
}
