package models

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

type Supplier struct {
	SupplierID      string       `gorm:"primary_key;size:20" json:"supplier_id"`
	SupplierName    string       `gorm:"size:200;not null;uniqueIndex" json:"supplier_name"`
	TaxID           *string      `gorm:"size:50" json:"tax_id"`
	Country         string       `gorm:"size:100" json:"country"`
	City            string       `gorm:"size:100" json:"city"`
	Address         string       `gorm:"type:text" json:"address"`
	DefaultCurrency CurrencyCode `gorm:"type:enum('BOB','USD','USDT','USDC','EUR','CNY','PEN');default:BOB" json:"default_currency"`
	IsActive        *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusReceived  PurchaseStatus = "received"
	PurchaseStatusCancelled PurchaseStatus = "cancelled"
)

type Purchase struct {
	PurchaseID       string          `gorm:"primary_key;size:20" json:"purchase_id"`
	SupplierID       string          `gorm:"size:20;not null;index" json:"supplier_id"`
	PurchaseDate     time.Time       `gorm:"not null;index" json:"purchase_date"`
	TotalCost        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total_cost"`
	TotalQuantity    int             `gorm:"not null;default:0" json:"total_quantity"`
	Currency         CurrencyCode    `gorm:"type:enum('BOB','USD','USDT','USDC','EUR','CNY','PEN');not null" json:"currency"`
	PaymentAccountID *string         `gorm:"size:20;index" json:"payment_account_id"`
	Status           PurchaseStatus  `gorm:"type:enum('pending','received','cancelled');not null;default:received" json:"status"`
	Notes            string          `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Supplier *Supplier      `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	Items    []PurchaseItem `gorm:"foreignKey:PurchaseID" json:"items,omitempty"`
}

// PurchaseItem is one received line: quantity of a variant landing at a
// location. Composite key, a purchase never repeats (variant, location).
type PurchaseItem struct {
	PurchaseID       string          `gorm:"primary_key;size:20" json:"purchase_id"`
	ProductVariantID string          `gorm:"primary_key;size:30" json:"product_variant_id"`
	Location         string          `gorm:"primary_key;size:30" json:"location"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_cost"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subtotal"`
}

type PurchaseItemInput struct {
	VariantInput
	Location string          `json:"location" binding:"required"`
	Quantity int             `json:"quantity" binding:"required,gt=0"`
	UnitCost decimal.Decimal `json:"unit_cost" binding:"required"`
}

type PurchaseInput struct {
	SupplierName     string              `json:"supplier_name" binding:"required"`
	Items            []PurchaseItemInput `json:"items" binding:"required,min=1,dive"`
	Currency         CurrencyCode        `json:"currency" binding:"required"`
	PaymentAccountID *string             `json:"payment_account_id"`
	PurchaseDate     *time.Time          `json:"purchase_date"`
	Notes            string              `json:"notes"`
}

// FindOrCreateSupplier resolves by exact name, creating an active supplier
// on a miss. The second return reports creation.
func FindOrCreateSupplier(tx *gorm.DB, supplierName string) (*Supplier, bool, error) {
	name := strings.TrimSpace(supplierName)
	if name == "" {
		return nil, false, &utils.ValidationError{Field: "supplier_name", Message: "supplier name is required"}
	}

	var supplier Supplier
	err := tx.Where("supplier_name = ?", name).First(&supplier).Error
	if err == nil {
		return &supplier, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	supplierId, err := NextSupplierId(tx)
	if err != nil {
		return nil, false, err
	}
	supplier = Supplier{
		SupplierID:      supplierId,
		SupplierName:    name,
		DefaultCurrency: BaseCurrency,
		IsActive:        utils.NewTrue(),
	}
	if err := tx.Create(&supplier).Error; err != nil {
		return nil, false, err
	}
	return &supplier, true, nil
}

func GetPurchaseById(tx *gorm.DB, purchaseId string) (*Purchase, error) {
	var purchase Purchase
	err := tx.Preload("Items").Preload("Supplier").
		Where("purchase_id = ?", purchaseId).First(&purchase).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &utils.NotFoundError{Entity: "purchase", ID: purchaseId}
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func ListPurchases(ctx context.Context, supplierId string, page int) ([]Purchase, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Model(&Purchase{}).Preload("Items")
	if supplierId != "" {
		query = query.Where("supplier_id = ?", supplierId)
	}
	if page < 1 {
		page = 1
	}
	var purchases []Purchase
	err := query.Order("purchase_date DESC, purchase_id DESC").
		Limit(config.SearchLimit).Offset((page - 1) * config.SearchLimit).
		Find(&purchases).Error
	return purchases, err
}
