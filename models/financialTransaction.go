package models

import (
	"context"
	"time"

	"bitbucket.org/andesdata/commerce_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FinancialTransaction is the immutable movement record. Amount is always
// positive; direction is carried by which account references are set
// (income: to only, expense: from only, transfer: both). One transaction
// per external reference: the unique (reference_type, reference_id) index
// is what makes settlement exactly-once even when two settlements race
// past the pre-insert lookup. Rows without a reference carry NULLs, which
// the index does not constrain.
type FinancialTransaction struct {
	TransactionID   string                    `gorm:"primaryKey;size:20" json:"transaction_id"`
	TransactionType TransactionType           `gorm:"type:enum('income','expense','transfer');not null;index" json:"transaction_type"`
	FromAccountID   *string                   `gorm:"size:20;index" json:"from_account_id"`
	ToAccountID     *string                   `gorm:"size:20;index" json:"to_account_id"`
	Amount          decimal.Decimal           `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency        CurrencyCode              `gorm:"size:8;not null" json:"currency"`
	ReferenceType   *TransactionReferenceType `gorm:"size:20;uniqueIndex:idx_txn_reference,priority:1" json:"reference_type"`
	ReferenceID     *string                   `gorm:"size:50;uniqueIndex:idx_txn_reference,priority:2" json:"reference_id"`
	Description     string                    `gorm:"type:text" json:"description"`
	TransactionDate time.Time                 `gorm:"not null;index" json:"transaction_date"`
	CreatedAt       time.Time                 `gorm:"autoCreateTime" json:"created_at"`
}

// FindTransactionByReference looks up the transaction minted for an external
// event, if any. This is the settlement idempotency check.
func FindTransactionByReference(tx *gorm.DB, refType TransactionReferenceType, refId string) (*FinancialTransaction, error) {
	var txn FinancialTransaction
	err := tx.Where("reference_type = ? AND reference_id = ?", refType, refId).
		First(&txn).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func GetTransactionHistory(ctx context.Context, accountId string, limit int) ([]*FinancialTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	db := config.GetDB()
	var txns []*FinancialTransaction
	err := db.WithContext(ctx).
		Where("from_account_id = ? OR to_account_id = ?", accountId, accountId).
		Order("transaction_date DESC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}
