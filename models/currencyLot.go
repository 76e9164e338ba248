package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CurrencyLot is an immutable receipt of funds into an account. Debits drain
// lots oldest-first; a lot is never deleted, only its remaining amount drops.
type CurrencyLot struct {
	LotID           string          `gorm:"primaryKey;size:20" json:"lot_id"`
	AccountID       string          `gorm:"size:20;not null;index:idx_lots_fifo,priority:1" json:"account_id"`
	Currency        CurrencyCode    `gorm:"size:8;not null" json:"currency"`
	OriginalAmount  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"original_amount"`
	RemainingAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"remaining_amount"`
	LotDate         time.Time       `gorm:"not null;index:idx_lots_fifo,priority:2" json:"lot_date"`
	TransactionID   string          `gorm:"size:20;not null;index" json:"transaction_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// LotConsumption records how much one transaction drained from one lot.
// The (transaction, lot) pair is unique; a replayed debit cannot consume the
// same lot twice.
type LotConsumption struct {
	ConsumptionID  string          `gorm:"primaryKey;size:20" json:"consumption_id"`
	TransactionID  string          `gorm:"size:20;not null;uniqueIndex:idx_consumption_txn_lot,priority:1" json:"transaction_id"`
	LotID          string          `gorm:"size:20;not null;uniqueIndex:idx_consumption_txn_lot,priority:2;index" json:"lot_id"`
	AmountConsumed decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount_consumed"`
	ConsumedAt     time.Time       `gorm:"autoCreateTime" json:"consumed_at"`
}

// OpenLotsForUpdate returns the account's open lots in FIFO order (receipt
// time ascending, lot id as tie-break) with their rows locked.
func OpenLotsForUpdate(tx *gorm.DB, accountId string) ([]*CurrencyLot, error) {
	var lots []*CurrencyLot
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND remaining_amount > 0", accountId).
		Order("lot_date ASC, lot_id ASC").
		Find(&lots).Error
	return lots, err
}

func GetLotsForAccount(tx *gorm.DB, accountId string, onlyOpen bool) ([]*CurrencyLot, error) {
	var lots []*CurrencyLot
	q := tx.Where("account_id = ?", accountId)
	if onlyOpen {
		q = q.Where("remaining_amount > 0")
	}
	err := q.Order("lot_date ASC, lot_id ASC").Find(&lots).Error
	return lots, err
}

// SumConsumedForLot totals every consumption recorded against one lot.
func SumConsumedForLot(tx *gorm.DB, lotId string) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := tx.Model(&LotConsumption{}).
		Select("COALESCE(SUM(amount_consumed), 0) AS total").
		Where("lot_id = ?", lotId).
		Scan(&row).Error
	return row.Total, err
}
