package workflow

import (
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/andesdata/commerce_backend/models"
)

func deltaOrder(total, deliveryCost, returnCost string) *models.Order {
	return &models.Order{
		OrderID:      "ORD00000001",
		Total:        decimal.RequireFromString(total),
		DeliveryCost: decimal.RequireFromString(deliveryCost),
		ReturnCost:   decimal.RequireFromString(returnCost),
	}
}

func TestComputePaymentDeltaIntoDelivered(t *testing.T) {
	order := deltaOrder("300", "15", "0")

	delta := computePaymentDelta(order, models.OrderStatusDispatched, models.OrderStatusDelivered, nil, nil)
	if delta.Deliveries != 1 || delta.Returns != 0 {
		t.Fatalf("unexpected counts: %+v", delta)
	}
	if !delta.DeliveriesAmount.Equal(decimal.NewFromInt(285)) {
		t.Fatalf("expected 285 contributed, got %s", delta.DeliveriesAmount)
	}
}

func TestComputePaymentDeltaIntoReturned(t *testing.T) {
	order := deltaOrder("300", "0", "10")

	delta := computePaymentDelta(order, models.OrderStatusDispatched, models.OrderStatusReturned, nil, nil)
	if delta.Returns != 1 || delta.Deliveries != 0 {
		t.Fatalf("unexpected counts: %+v", delta)
	}
	if !delta.ReturnsAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10 contributed, got %s", delta.ReturnsAmount)
	}
}

// A delivered order that flips to returned must reverse what was actually
// recorded at delivery time, not what the order's recomputed cost fields
// imply now.
func TestComputePaymentDeltaDeliveredToReturnedUsesRecordedLink(t *testing.T) {
	// Cost recomputation for the returned state has already set
	// delivery_cost to zero and return_cost to 10.
	order := deltaOrder("300", "0", "10")
	prevDelivery := &models.PaymentOrder{
		AmountContributed: decimal.NewFromInt(285),
	}

	delta := computePaymentDelta(order, models.OrderStatusDelivered, models.OrderStatusReturned, prevDelivery, nil)
	if delta.Deliveries != -1 || delta.Returns != 1 {
		t.Fatalf("unexpected counts: %+v", delta)
	}
	if !delta.DeliveriesAmount.Equal(decimal.NewFromInt(-285)) {
		t.Fatalf("expected -285 delivery reversal, got %s", delta.DeliveriesAmount)
	}
	if !delta.ReturnsAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10 return contribution, got %s", delta.ReturnsAmount)
	}
}

func TestComputePaymentDeltaLeavingDeliveredWithoutLinkReversesNothing(t *testing.T) {
	order := deltaOrder("300", "0", "0")

	delta := computePaymentDelta(order, models.OrderStatusDelivered, models.OrderStatusCancelled, nil, nil)
	if !delta.empty() {
		t.Fatalf("expected empty delta without a recorded link, got %+v", delta)
	}
}

func TestComputePaymentDeltaNeutralTransition(t *testing.T) {
	order := deltaOrder("300", "0", "0")

	delta := computePaymentDelta(order, models.OrderStatusNew, models.OrderStatusConfirmed, nil, nil)
	if !delta.empty() {
		t.Fatalf("expected empty delta, got %+v", delta)
	}
}
