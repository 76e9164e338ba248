package workflow

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

// selectCommission picks the applicable commission from a rate row:
// express for priority deliveries, delivery otherwise, return for returns.
func selectCommission(rate *models.CarrierRate, isPriority bool, status models.OrderStatus) (decimal.Decimal, error) {
	switch status {
	case models.OrderStatusDelivered:
		if isPriority {
			return rate.CommissionExpress, nil
		}
		return rate.CommissionDelivery, nil
	case models.OrderStatusReturned:
		return rate.CommissionReturn, nil
	}
	return decimal.Zero, &utils.ValidationError{
		Field:   "status",
		Message: "no commission applies to status " + string(status),
	}
}

// CalculateDeliveryCost resolves the carrier's commission for a destination.
// A missing rate row is an error, never a silent zero: a zero cost would
// flow into the weekly payment aggregate and understate what the carrier
// keeps.
func CalculateDeliveryCost(tx *gorm.DB, carrierId string, location string,
	isPriority bool, status models.OrderStatus) (decimal.Decimal, error) {

	rate, err := models.FindRate(tx, carrierId, location)
	if err != nil {
		return decimal.Zero, err
	}
	if rate == nil {
		return decimal.Zero, &utils.NoRateConfiguredError{CarrierID: carrierId, Location: location}
	}
	return selectCommission(rate, isPriority, status)
}
