package workflow

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

func orderItems(pairs ...[2]string) []models.OrderItemInput {
	items := make([]models.OrderItemInput, 0, len(pairs))
	for _, p := range pairs {
		qty := decimal.RequireFromString(p[0])
		items = append(items, models.OrderItemInput{
			Quantity:  int(qty.IntPart()),
			UnitPrice: decimal.RequireFromString(p[1]),
		})
	}
	return items
}

func TestValidateOrderTotalsAccepts(t *testing.T) {
	items := orderItems([2]string{"2", "150"}, [2]string{"1", "49.99"})

	if err := validateOrderTotals("ORD00000001", items, decimal.RequireFromString("349.99")); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}

func TestValidateOrderTotalsToleratesOneCent(t *testing.T) {
	items := orderItems([2]string{"3", "33.33"})

	if err := validateOrderTotals("ORD00000001", items, decimal.RequireFromString("100.00")); err != nil {
		t.Fatalf("expected 0.01 drift to pass, got %v", err)
	}
}

func TestValidateOrderTotalsRejectsBeyondTolerance(t *testing.T) {
	items := orderItems([2]string{"2", "150"})

	err := validateOrderTotals("ORD00000001", items, decimal.RequireFromString("300.02"))
	var mismatch *utils.TotalMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TotalMismatchError, got %v", err)
	}
	if !mismatch.ItemsTotal.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("items total wrong: %s", mismatch.ItemsTotal)
	}
	if !mismatch.Difference.Equal(decimal.RequireFromString("0.02")) {
		t.Fatalf("difference wrong: %s", mismatch.Difference)
	}
}
