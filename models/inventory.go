package models

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

type InventoryRecord struct {
	InventoryID      string    `gorm:"primary_key;size:20" json:"inventory_id"`
	ProductVariantID string    `gorm:"size:30;not null;uniqueIndex:idx_variant_location" json:"product_variant_id"`
	Location         string    `gorm:"size:30;not null;uniqueIndex:idx_variant_location;index" json:"location"`
	StockQuantity    int       `gorm:"not null;default:0" json:"stock_quantity"`
	MinStock         *int      `json:"min_stock"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// InventoryMovement is the append-only stock ledger. Quantity carries the
// sign: positive for purchase/return/transfer_in, negative for
// sale/transfer_out and negative adjustments. The cached
// InventoryRecord.StockQuantity is only ever updated together with a
// movement insert, under the record's row lock.
type InventoryMovement struct {
	MovementID       string       `gorm:"primary_key;size:20" json:"movement_id"`
	ProductVariantID string       `gorm:"size:30;not null;uniqueIndex:idx_movement_scope" json:"product_variant_id"`
	Location         string       `gorm:"size:30;not null;uniqueIndex:idx_movement_scope" json:"location"`
	MovementType     MovementType `gorm:"type:enum('purchase','sale','return','adjustment','transfer_in','transfer_out');not null" json:"movement_type"`
	Quantity         int          `gorm:"not null" json:"quantity"`
	ReferenceID      string       `gorm:"size:50;not null;uniqueIndex:idx_movement_scope" json:"reference_id"`
	Notes            string       `gorm:"size:255" json:"notes"`
	CreatedBy        string       `gorm:"size:100" json:"created_by"`
	CreatedAt        time.Time    `gorm:"autoCreateTime;index" json:"created_at"`
}

// EnsureInventoryRecords creates the zero-stock inventory row for every
// stocking location the variant does not have one for yet. Safe to call
// repeatedly.
func EnsureInventoryRecords(tx *gorm.DB, variantId string) error {
	var existing []InventoryRecord
	if err := tx.Where("product_variant_id = ?", variantId).Find(&existing).Error; err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, rec := range existing {
		known[rec.Location] = true
	}

	for _, location := range StockLocations {
		if known[location] {
			continue
		}
		inventoryId, err := NextInventoryId(tx)
		if err != nil {
			return err
		}
		record := InventoryRecord{
			InventoryID:      inventoryId,
			ProductVariantID: variantId,
			Location:         location,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetInventoryForUpdate takes an exclusive row lock on the (variant,
// location) record. Every stock mutation goes through this lock.
func GetInventoryForUpdate(tx *gorm.DB, variantId string, location string) (*InventoryRecord, error) {
	var record InventoryRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_variant_id = ? AND location = ?", variantId, location).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &utils.NotFoundError{Entity: "inventory record", ID: variantId + "/" + location}
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetStock is a non-locking read of the cached quantity.
func GetStock(tx *gorm.DB, variantId string, location string) (int, error) {
	var record InventoryRecord
	err := tx.Where("product_variant_id = ? AND location = ?", variantId, location).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return 0, &utils.NotFoundError{Entity: "inventory record", ID: variantId + "/" + location}
	}
	if err != nil {
		return 0, err
	}
	return record.StockQuantity, nil
}

// FindMovementByReference is the idempotency lookup for createMovement:
// the replay scope is (reference, variant, location), so a transfer's two
// legs or a multi-item order's per-item movements never shadow each other.
func FindMovementByReference(tx *gorm.DB, referenceId string, variantId string, location string) (*InventoryMovement, error) {
	var movement InventoryMovement
	err := tx.Where("reference_id = ? AND product_variant_id = ? AND location = ?",
		referenceId, variantId, location).First(&movement).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

func ListMovements(ctx context.Context, variantId string, location string, movementType string, page int) ([]InventoryMovement, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Model(&InventoryMovement{})
	if variantId != "" {
		query = query.Where("product_variant_id = ?", variantId)
	}
	if location != "" {
		query = query.Where("location = ?", location)
	}
	if movementType != "" {
		query = query.Where("movement_type = ?", movementType)
	}
	if page < 1 {
		page = 1
	}
	var movements []InventoryMovement
	err := query.Order("created_at DESC, movement_id DESC").
		Limit(config.SearchLimit).Offset((page - 1) * config.SearchLimit).
		Find(&movements).Error
	return movements, err
}

func ListInventory(ctx context.Context, variantId string, location string, page int) ([]InventoryRecord, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Model(&InventoryRecord{})
	if variantId != "" {
		query = query.Where("product_variant_id = ?", variantId)
	}
	if location != "" {
		query = query.Where("location = ?", location)
	}
	if page < 1 {
		page = 1
	}
	var records []InventoryRecord
	err := query.Order("product_variant_id, location").
		Limit(config.SearchLimit).Offset((page - 1) * config.SearchLimit).
		Find(&records).Error
	return records, err
}

// ListLowStock returns records at or below their min_stock threshold.
// Records with no threshold set are never reported.
func ListLowStock(ctx context.Context) ([]InventoryRecord, error) {
	db := config.GetDB()
	var records []InventoryRecord
	err := db.WithContext(ctx).
		Where("min_stock IS NOT NULL AND stock_quantity <= min_stock").
		Order("stock_quantity ASC").
		Find(&records).Error
	return records, err
}
