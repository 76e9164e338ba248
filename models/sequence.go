package models

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntitySequence backs the human-readable id scheme (ORD00000001, CUS00000001,
// ...). One row per entity type, incremented under a row lock so two workers
// never mint the same id.
type EntitySequence struct {
	Name  string `gorm:"primaryKey;size:40" json:"name"`
	Value int64  `gorm:"not null;default:0" json:"value"`
}

func (EntitySequence) TableName() string {
	return "entity_sequences"
}

// NextId increments the named sequence and formats it with the given prefix.
// Must run inside the caller's transaction; the lock is released on commit.
func NextId(tx *gorm.DB, prefix string, sequenceName string) (string, error) {
	var seq EntitySequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", sequenceName).
		First(&seq).Error
	if err == gorm.ErrRecordNotFound {
		seq = EntitySequence{Name: sequenceName, Value: 0}
		if err := tx.Create(&seq).Error; err != nil {
			// Lost the insert race; re-read under lock.
			if lockErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("name = ?", sequenceName).
				First(&seq).Error; lockErr != nil {
				return "", lockErr
			}
		}
	} else if err != nil {
		return "", err
	}

	seq.Value++
	if err := tx.Model(&EntitySequence{}).
		Where("name = ?", sequenceName).
		Update("value", seq.Value).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%08d", prefix, seq.Value), nil
}

func NextCustomerId(tx *gorm.DB) (string, error)    { return NextId(tx, "CUS", "customer_id") }
func NextOrderId(tx *gorm.DB) (string, error)       { return NextId(tx, "ORD", "order_id") }
func NextCarrierId(tx *gorm.DB) (string, error)     { return NextId(tx, "CAR", "carrier_id") }
func NextRateId(tx *gorm.DB) (string, error)        { return NextId(tx, "RATE", "rate_id") }
func NextPaymentId(tx *gorm.DB) (string, error)     { return NextId(tx, "PAY", "payment_id") }
func NextPaymentLinkId(tx *gorm.DB) (string, error) { return NextId(tx, "PORD", "payment_order_id") }
func NextProductId(tx *gorm.DB) (string, error)     { return NextId(tx, "PRD", "product_id") }
func NextInventoryId(tx *gorm.DB) (string, error)   { return NextId(tx, "INV", "inventory_id") }
func NextMovementId(tx *gorm.DB) (string, error)    { return NextId(tx, "MOV", "movement_id") }
func NextTransactionId(tx *gorm.DB) (string, error) { return NextId(tx, "TXN", "transaction_id") }
func NextLotId(tx *gorm.DB) (string, error)         { return NextId(tx, "LOT", "lot_id") }
func NextConsumptionId(tx *gorm.DB) (string, error) { return NextId(tx, "CON", "consumption_id") }
func NextSupplierId(tx *gorm.DB) (string, error)    { return NextId(tx, "SUP", "supplier_id") }
func NextPurchaseId(tx *gorm.DB) (string, error)    { return NextId(tx, "PURCH", "purchase_id") }
