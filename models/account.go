package models

import (
	"context"
	"time"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Account is a single-currency money holder (bank account, exchange wallet,
// cash box). Currency is fixed at creation. CurrentBalance is denormalized
// from lot state and must always equal the sum of open-lot remaining amounts.
type Account struct {
	AccountID      string          `gorm:"primaryKey;size:20" json:"account_id"`
	AccountName    string          `gorm:"size:100;not null;uniqueIndex" json:"account_name"`
	AccountType    AccountType     `gorm:"type:enum('bank','crypto_exchange','cash','payment_gateway');not null" json:"account_type"`
	Currency       CurrencyCode    `gorm:"size:8;not null;index" json:"currency"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"current_balance"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetAccountById(tx *gorm.DB, accountId string) (*Account, error) {
	var account Account
	err := tx.Where("account_id = ?", accountId).First(&account).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &utils.NotFoundError{Entity: "account", ID: accountId}
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountForUpdate locks the account row for the rest of the transaction.
// Balance arithmetic and FIFO consumption serialize on this lock.
func GetAccountForUpdate(tx *gorm.DB, accountId string) (*Account, error) {
	var account Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountId).
		First(&account).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &utils.NotFoundError{Entity: "account", ID: accountId}
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func ListAccounts(ctx context.Context) ([]*Account, error) {
	db := config.GetDB()
	var accounts []*Account
	err := db.WithContext(ctx).Order("account_id").Find(&accounts).Error
	return accounts, err
}
