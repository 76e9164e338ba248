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

type Order struct {
	OrderID         string          `gorm:"primary_key;size:20" json:"order_id"`
	CustomerID      string          `gorm:"size:20;index;not null" json:"customer_id"`
	CarrierID       *string         `gorm:"size:20;index" json:"carrier_id"`
	Total           decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total"`
	DeliveryCost    decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"delivery_cost"`
	ReturnCost      decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"return_cost"`
	ExternalOrderID *string         `gorm:"size:100;uniqueIndex" json:"external_order_id"`
	IsPriority      *bool           `gorm:"not null;default:false" json:"is_priority"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Customer *Customer      `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Items    []OrderItem    `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Tracking *OrderTracking `gorm:"foreignKey:OrderID" json:"tracking,omitempty"`
}

type OrderItem struct {
	OrderItemID      string          `gorm:"primary_key;size:20" json:"order_item_id"`
	OrderID          string          `gorm:"size:20;index;not null" json:"order_id"`
	ProductVariantID string          `gorm:"size:30;index;not null" json:"product_variant_id"`
	ProductName      string          `gorm:"size:200" json:"product_name"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// OrderTracking holds the current fulfillment status, one row per order.
// Status history is reconstructed from the inventory and payment ledgers;
// this row is the authoritative "where is the order now".
type OrderTracking struct {
	OrderID      string      `gorm:"primary_key;size:20" json:"order_id"`
	OrderStatus  OrderStatus `gorm:"type:enum('new','confirmed','dispatched','delivered','returned','cancelled');not null;default:new;index" json:"order_status"`
	TrackingCode *string     `gorm:"size:100" json:"tracking_code"`
	StatusNotes  string      `gorm:"type:text" json:"status_notes"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItemInput struct {
	VariantInput
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"required"`
	Subtotal  decimal.Decimal `json:"subtotal" binding:"required"`
}

type OrderInput struct {
	Customer        CustomerInput    `json:"customer" binding:"required"`
	Items           []OrderItemInput `json:"items" binding:"required,min=1,dive"`
	Total           decimal.Decimal  `json:"total" binding:"required"`
	ExternalOrderID *string          `json:"external_order_id"`
	CarrierID       *string          `json:"carrier_id"`
	IsPriority      bool             `json:"is_priority"`
	Notes           string           `json:"notes"`
}

func GetOrderById(tx *gorm.DB, orderId string) (*Order, error) {
	var order Order
	err := tx.Preload("Items").Preload("Tracking").Preload("Customer").
		Where("order_id = ?", orderId).First(&order).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &utils.NotFoundError{Entity: "order", ID: orderId}
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdate locks the order row for a status transition so two
// concurrent updateStatus calls on the same order serialize.
func GetOrderForUpdate(tx *gorm.DB, orderId string) (*Order, error) {
	var order Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderId).First(&order).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &utils.NotFoundError{Entity: "order", ID: orderId}
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Where("order_id = ?", orderId).Find(&order.Items).Error; err != nil {
		return nil, err
	}
	var tracking OrderTracking
	if err := tx.Where("order_id = ?", orderId).First(&tracking).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	} else {
		order.Tracking = &tracking
	}
	return &order, nil
}

// FindOrderByExternalId resolves the createFullOrder idempotency key.
// Returns nil, nil when no order carries the external id.
func FindOrderByExternalId(tx *gorm.DB, externalOrderId string) (*Order, error) {
	var order Order
	err := tx.Preload("Items").Preload("Tracking").
		Where("external_order_id = ?", externalOrderId).First(&order).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListRecentOrdersForCustomer returns the customer's orders created at or
// after the given instant, items preloaded. Used by the duplicate-order
// guard on ingestion.
func ListRecentOrdersForCustomer(tx *gorm.DB, customerId string, since time.Time) ([]Order, error) {
	var orders []Order
	err := tx.Preload("Items").
		Where("customer_id = ? AND created_at >= ?", customerId, since).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

type OrderFilter struct {
	Status     string
	CustomerID string
	CarrierID  string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
}

func ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Model(&Order{}).Preload("Items").Preload("Tracking")
	if filter.Status != "" {
		query = query.Joins("JOIN order_trackings ON order_trackings.order_id = orders.order_id").
			Where("order_trackings.order_status = ?", filter.Status)
	}
	if filter.CustomerID != "" {
		query = query.Where("orders.customer_id = ?", filter.CustomerID)
	}
	if filter.CarrierID != "" {
		query = query.Where("orders.carrier_id = ?", filter.CarrierID)
	}
	if filter.DateFrom != nil {
		query = query.Where("orders.created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("orders.created_at <= ?", *filter.DateTo)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	var orders []Order
	err := query.Order("orders.created_at DESC").
		Limit(config.SearchLimit).Offset((page - 1) * config.SearchLimit).
		Find(&orders).Error
	return orders, err
}
