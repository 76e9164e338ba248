package workflow

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

func testRate() *models.CarrierRate {
	return &models.CarrierRate{
		RateID:             "RATE00000001",
		CarrierID:          "CAR00000001",
		Location:           "LA PAZ",
		CommissionDelivery: decimal.NewFromInt(15),
		CommissionReturn:   decimal.NewFromInt(10),
		CommissionExpress:  decimal.NewFromInt(25),
	}
}

func TestSelectCommission(t *testing.T) {
	rate := testRate()

	cases := []struct {
		name       string
		isPriority bool
		status     models.OrderStatus
		want       decimal.Decimal
	}{
		{"delivered standard", false, models.OrderStatusDelivered, decimal.NewFromInt(15)},
		{"delivered priority uses express", true, models.OrderStatusDelivered, decimal.NewFromInt(25)},
		{"returned", false, models.OrderStatusReturned, decimal.NewFromInt(10)},
		{"returned ignores priority", true, models.OrderStatusReturned, decimal.NewFromInt(10)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := selectCommission(rate, tc.isPriority, tc.status)
			if err != nil {
				t.Fatalf("selectCommission: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSelectCommissionRejectsNonCostStatuses(t *testing.T) {
	rate := testRate()
	for _, status := range []models.OrderStatus{
		models.OrderStatusNew, models.OrderStatusConfirmed,
		models.OrderStatusDispatched, models.OrderStatusCancelled,
	} {
		_, err := selectCommission(rate, false, status)
		var validation *utils.ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("status %s: expected ValidationError, got %v", status, err)
		}
	}
}
