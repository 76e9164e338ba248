package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

// CarrierPayment aggregates one carrier's deliveries and returns for one
// week. WeekStartDate is always a Monday 00:00; there is at most one row per
// (carrier, week). FinalAmount = NetAmount + PreviousBalance, where
// PreviousBalance is the previous week's final amount when that was
// negative, captured once at row creation.
type CarrierPayment struct {
	PaymentID             string          `gorm:"primary_key;size:20" json:"payment_id"`
	CarrierID             string          `gorm:"size:20;not null;uniqueIndex:idx_carrier_week" json:"carrier_id"`
	WeekStartDate         time.Time       `gorm:"type:date;not null;uniqueIndex:idx_carrier_week" json:"week_start_date"`
	WeekEndDate           time.Time       `gorm:"type:date;not null" json:"week_end_date"`
	TotalDeliveries       int             `gorm:"not null;default:0" json:"total_deliveries"`
	TotalDeliveriesAmount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_deliveries_amount"`
	TotalReturns          int             `gorm:"not null;default:0" json:"total_returns"`
	TotalReturnsAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_returns_amount"`
	NetAmount             decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"net_amount"`
	PreviousBalance       decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"previous_balance"`
	FinalAmount           decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"final_amount"`
	PaymentStatus         PaymentStatus   `gorm:"type:enum('pending','paid');not null;default:pending;index" json:"payment_status"`
	ReceivedInWalletID    *string         `gorm:"size:20" json:"received_in_wallet_id"`
	PaidDate              *time.Time      `json:"paid_date"`
	Notes                 string          `gorm:"type:text" json:"notes"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Orders []PaymentOrder `gorm:"foreignKey:PaymentID" json:"orders,omitempty"`
}

// PaymentOrder records one order's contribution to a weekly payment:
// delivery contributions add total minus commission, return contributions
// subtract the return commission. One row per (payment, order, type).
type PaymentOrder struct {
	PaymentOrderID    string           `gorm:"primary_key;size:20" json:"payment_order_id"`
	PaymentID         string           `gorm:"size:20;not null;uniqueIndex:idx_payment_order_type;index" json:"payment_id"`
	OrderID           string           `gorm:"size:20;not null;uniqueIndex:idx_payment_order_type;index" json:"order_id"`
	ContributionType  ContributionType `gorm:"size:20;not null;uniqueIndex:idx_payment_order_type" json:"contribution_type"`
	AmountContributed decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"amount_contributed"`
	OrderTotal        decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"order_total"`
	CommissionApplied decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"commission_applied"`
	AddedAt           time.Time        `gorm:"autoCreateTime" json:"added_at"`
}

func GetPaymentById(tx *gorm.DB, paymentId string) (*CarrierPayment, error) {
	var payment CarrierPayment
	err := tx.Preload("Orders").Where("payment_id = ?", paymentId).First(&payment).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &utils.NotFoundError{Entity: "payment", ID: paymentId}
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentForUpdate locks the (carrier, week) row; nil, nil when the week
// has no payment yet.
func GetPaymentForUpdate(tx *gorm.DB, carrierId string, weekStart time.Time) (*CarrierPayment, error) {
	var payment CarrierPayment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("carrier_id = ? AND week_start_date = ?", carrierId, weekStart).
		First(&payment).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// PreviousNegativeBalance finds the most recent payment before weekStart and
// returns its final amount when negative, zero otherwise. Carry-forward only
// propagates debt, never credit.
func PreviousNegativeBalance(tx *gorm.DB, carrierId string, weekStart time.Time) (decimal.Decimal, error) {
	var previous CarrierPayment
	err := tx.Where("carrier_id = ? AND week_start_date < ?", carrierId, weekStart).
		Order("week_start_date DESC").
		First(&previous).Error
	if err == gorm.ErrRecordNotFound {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	if previous.FinalAmount.IsNegative() {
		return previous.FinalAmount, nil
	}
	return decimal.Zero, nil
}

// FindPaymentOrder returns the contribution link for (payment, order, type),
// nil when the order has not contributed under that type.
func FindPaymentOrder(tx *gorm.DB, paymentId string, orderId string, contributionType ContributionType) (*PaymentOrder, error) {
	var link PaymentOrder
	err := tx.Where("payment_id = ? AND order_id = ? AND contribution_type = ?",
		paymentId, orderId, contributionType).First(&link).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// FindContributionByOrder locates an order's recorded contribution of the
// given type across all payments. Reversal reads the amount from here, not
// from the order's current cost fields, which a later transition may already
// have overwritten.
func FindContributionByOrder(tx *gorm.DB, orderId string, contributionType ContributionType) (*PaymentOrder, error) {
	var link PaymentOrder
	err := tx.Where("order_id = ? AND contribution_type = ?", orderId, contributionType).
		First(&link).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

type PaymentFilter struct {
	CarrierID string
	Status    string
	Page      int
}

func ListPayments(ctx context.Context, filter PaymentFilter) ([]CarrierPayment, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Model(&CarrierPayment{})
	if filter.CarrierID != "" {
		query = query.Where("carrier_id = ?", filter.CarrierID)
	}
	if filter.Status != "" {
		query = query.Where("payment_status = ?", filter.Status)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	var payments []CarrierPayment
	err := query.Order("week_start_date DESC, carrier_id").
		Limit(config.SearchLimit).Offset((page - 1) * config.SearchLimit).
		Find(&payments).Error
	return payments, err
}

// ListNegativePayments reports carriers currently carrying debt, for the
// weekly alerting job.
func ListNegativePayments(ctx context.Context) ([]CarrierPayment, error) {
	db := config.GetDB()
	var payments []CarrierPayment
	err := db.WithContext(ctx).
		Where("payment_status = ? AND final_amount < 0", PaymentStatusPending).
		Order("final_amount ASC").
		Find(&payments).Error
	return payments, err
}
