package workflow

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

type TransactionInput struct {
	TransactionType models.TransactionType           `json:"transaction_type" binding:"required"`
	Amount          decimal.Decimal                  `json:"amount" binding:"required"`
	Currency        models.CurrencyCode              `json:"currency" binding:"required"`
	FromAccountID   *string                          `json:"from_account_id"`
	ToAccountID     *string                          `json:"to_account_id"`
	ReferenceType   *models.TransactionReferenceType `json:"reference_type"`
	ReferenceID     *string                          `json:"reference_id"`
	Description     string                           `json:"description"`
	TransactionDate *time.Time                       `json:"transaction_date"`
}

type lotAllocation struct {
	LotID  string
	Amount decimal.Decimal
}

// planFifoConsumption allocates a debit across open lots oldest-first.
// Lots must already be in FIFO order. Returns the per-lot allocations and
// the unallocatable shortfall; the caller rejects the whole debit when the
// shortfall is positive, so a partial plan is never applied.
func planFifoConsumption(lots []*models.CurrencyLot, amount decimal.Decimal) ([]lotAllocation, decimal.Decimal) {
	var allocations []lotAllocation
	outstanding := amount
	for _, lot := range lots {
		if !outstanding.IsPositive() {
			break
		}
		take := lot.RemainingAmount
		if take.GreaterThan(outstanding) {
			take = outstanding
		}
		if !take.IsPositive() {
			continue
		}
		allocations = append(allocations, lotAllocation{LotID: lot.LotID, Amount: take})
		outstanding = outstanding.Sub(take)
	}
	return allocations, outstanding
}

// CreateTransaction validates and posts one financial movement atomically:
// the transaction row, the FIFO lot consumptions on the debit side, a fresh
// currency lot on the credit side, and both cached balances. All
// preconditions are checked before the first write, so a failed call leaves
// no partial state behind.
func CreateTransaction(tx *gorm.DB, logger *logrus.Logger, input TransactionInput) (*models.FinancialTransaction, error) {
	if !input.Amount.IsPositive() {
		return nil, &utils.ValidationError{Field: "amount", Message: "amount must be positive"}
	}

	switch input.TransactionType {
	case models.TransactionTypeIncome:
		if input.ToAccountID == nil {
			return nil, &utils.ValidationError{Field: "to_account_id", Message: "income requires a destination account"}
		}
		input.FromAccountID = nil
	case models.TransactionTypeExpense:
		if input.FromAccountID == nil {
			return nil, &utils.ValidationError{Field: "from_account_id", Message: "expense requires a source account"}
		}
		input.ToAccountID = nil
	case models.TransactionTypeTransfer:
		if input.FromAccountID == nil || input.ToAccountID == nil {
			return nil, &utils.ValidationError{Field: "transaction_type", Message: "transfer requires both accounts"}
		}
		if *input.FromAccountID == *input.ToAccountID {
			return nil, &utils.ValidationError{Field: "to_account_id", Message: "transfer source and destination must differ"}
		}
	default:
		return nil, &utils.ValidationError{Field: "transaction_type", Message: "unknown transaction type: " + string(input.TransactionType)}
	}

	// Account rows are locked in id order so two opposite transfers between
	// the same pair cannot deadlock.
	var fromAccount, toAccount *models.Account
	lockOrder := make([]string, 0, 2)
	if input.FromAccountID != nil {
		lockOrder = append(lockOrder, *input.FromAccountID)
	}
	if input.ToAccountID != nil {
		lockOrder = append(lockOrder, *input.ToAccountID)
	}
	if len(lockOrder) == 2 && lockOrder[0] > lockOrder[1] {
		lockOrder[0], lockOrder[1] = lockOrder[1], lockOrder[0]
	}
	locked := make(map[string]*models.Account, 2)
	for _, accountId := range lockOrder {
		account, err := models.GetAccountForUpdate(tx, accountId)
		if err != nil {
			config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "GetAccountForUpdate", accountId, err)
			return nil, err
		}
		locked[accountId] = account
	}
	if input.FromAccountID != nil {
		fromAccount = locked[*input.FromAccountID]
	}
	if input.ToAccountID != nil {
		toAccount = locked[*input.ToAccountID]
	}

	for _, account := range []*models.Account{fromAccount, toAccount} {
		if account == nil {
			continue
		}
		if account.IsActive != nil && !*account.IsActive {
			return nil, &utils.AccountFrozenError{AccountID: account.AccountID}
		}
		if account.Currency != input.Currency {
			mismatch := &utils.CurrencyMismatchError{Currency: string(input.Currency)}
			if fromAccount != nil {
				mismatch.FromAccountID = fromAccount.AccountID
				mismatch.FromCurrency = string(fromAccount.Currency)
			}
			if toAccount != nil {
				mismatch.ToAccountID = toAccount.AccountID
				mismatch.ToCurrency = string(toAccount.Currency)
			}
			return nil, mismatch
		}
	}

	// Debit-side plan, computed before any row is written.
	var allocations []lotAllocation
	if fromAccount != nil {
		if fromAccount.CurrentBalance.LessThan(input.Amount) {
			return nil, &utils.InsufficientBalanceError{
				AccountID: fromAccount.AccountID,
				Balance:   fromAccount.CurrentBalance,
				Required:  input.Amount,
				Currency:  string(input.Currency),
			}
		}
		lots, err := models.OpenLotsForUpdate(tx, fromAccount.AccountID)
		if err != nil {
			config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "OpenLotsForUpdate", fromAccount.AccountID, err)
			return nil, err
		}
		var shortfall decimal.Decimal
		allocations, shortfall = planFifoConsumption(lots, input.Amount)
		if shortfall.IsPositive() {
			// Cached balance said yes but the lots disagree; the lots win.
			return nil, &utils.InsufficientBalanceError{
				AccountID: fromAccount.AccountID,
				Balance:   input.Amount.Sub(shortfall),
				Required:  input.Amount,
				Currency:  string(input.Currency),
			}
		}
	}

	transactionDate := time.Now()
	if input.TransactionDate != nil {
		transactionDate = *input.TransactionDate
	}
	transactionId, err := models.NextTransactionId(tx)
	if err != nil {
		config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "NextTransactionId", nil, err)
		return nil, err
	}

	transaction := models.FinancialTransaction{
		TransactionID:   transactionId,
		TransactionType: input.TransactionType,
		FromAccountID:   input.FromAccountID,
		ToAccountID:     input.ToAccountID,
		Amount:          input.Amount,
		Currency:        input.Currency,
		ReferenceType:   input.ReferenceType,
		ReferenceID:     input.ReferenceID,
		Description:     input.Description,
		TransactionDate: transactionDate,
	}
	if err := tx.Create(&transaction).Error; err != nil {
		config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "Create transaction", transaction, err)
		return nil, err
	}

	if fromAccount != nil {
		for _, allocation := range allocations {
			consumptionId, err := models.NextConsumptionId(tx)
			if err != nil {
				config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "NextConsumptionId", nil, err)
				return nil, err
			}
			consumption := models.LotConsumption{
				ConsumptionID:  consumptionId,
				TransactionID:  transactionId,
				LotID:          allocation.LotID,
				AmountConsumed: allocation.Amount,
				ConsumedAt:     time.Now(),
			}
			if err := tx.Create(&consumption).Error; err != nil {
				config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "Create consumption", consumption, err)
				return nil, err
			}
			if err := tx.Model(&models.CurrencyLot{}).
				Where("lot_id = ?", allocation.LotID).
				Update("remaining_amount", gorm.Expr("remaining_amount - ?", allocation.Amount)).Error; err != nil {
				config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "Drain lot", allocation, err)
				return nil, err
			}
		}
		newBalance := fromAccount.CurrentBalance.Sub(input.Amount)
		if err := tx.Model(&models.Account{}).
			Where("account_id = ?", fromAccount.AccountID).
			Update("current_balance", newBalance).Error; err != nil {
			config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "Debit balance", fromAccount.AccountID, err)
			return nil, err
		}
	}

	if toAccount != nil {
		lotId, err := models.NextLotId(tx)
		if err != nil {
			config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "NextLotId", nil, err)
			return nil, err
		}
		lot := models.CurrencyLot{
			LotID:           lotId,
			AccountID:       toAccount.AccountID,
			Currency:        input.Currency,
			OriginalAmount:  input.Amount,
			RemainingAmount: input.Amount,
			LotDate:         transactionDate,
			TransactionID:   transactionId,
		}
		if err := tx.Create(&lot).Error; err != nil {
			config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "Create lot", lot, err)
			return nil, err
		}
		newBalance := toAccount.CurrentBalance.Add(input.Amount)
		if err := tx.Model(&models.Account{}).
			Where("account_id = ?", toAccount.AccountID).
			Update("current_balance", newBalance).Error; err != nil {
			config.LogError(logger, "financeWorkflow.go", "CreateTransaction", "Credit balance", toAccount.AccountID, err)
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"transaction_id": transactionId,
		"type":           input.TransactionType,
		"amount":         input.Amount.String(),
		"currency":       input.Currency,
	}).Info("transaction posted")

	return &transaction, nil
}

// RecalculateLot recomputes one lot's remaining amount from its consumption
// rows. Used to repair a lot after a reversal, never on the posting path.
// Idempotent: re-running it converges on the same value.
func RecalculateLot(tx *gorm.DB, logger *logrus.Logger, lotId string) (decimal.Decimal, error) {
	var lot models.CurrencyLot
	err := tx.Where("lot_id = ?", lotId).First(&lot).Error
	if err == gorm.ErrRecordNotFound {
		return decimal.Zero, &utils.NotFoundError{Entity: "currency lot", ID: lotId}
	}
	if err != nil {
		return decimal.Zero, err
	}

	consumed, err := models.SumConsumedForLot(tx, lotId)
	if err != nil {
		config.LogError(logger, "financeWorkflow.go", "RecalculateLot", "SumConsumedForLot", lotId, err)
		return decimal.Zero, err
	}

	remaining := lot.OriginalAmount.Sub(consumed)
	if err := tx.Model(&models.CurrencyLot{}).
		Where("lot_id = ?", lotId).
		Update("remaining_amount", remaining).Error; err != nil {
		config.LogError(logger, "financeWorkflow.go", "RecalculateLot", "Update remaining", lotId, err)
		return decimal.Zero, err
	}
	return remaining, nil
}

// RecalculateAccountBalance rebuilds the cached account balance from open
// lots. Pairs with RecalculateLot in repair scripts.
func RecalculateAccountBalance(tx *gorm.DB, logger *logrus.Logger, accountId string) (decimal.Decimal, error) {
	if _, err := models.GetAccountById(tx, accountId); err != nil {
		return decimal.Zero, err
	}

	var row struct {
		Total decimal.Decimal
	}
	err := tx.Model(&models.CurrencyLot{}).
		Select("COALESCE(SUM(remaining_amount), 0) AS total").
		Where("account_id = ? AND remaining_amount > 0", accountId).
		Scan(&row).Error
	if err != nil {
		config.LogError(logger, "financeWorkflow.go", "RecalculateAccountBalance", "Sum lots", accountId, err)
		return decimal.Zero, err
	}

	if err := tx.Model(&models.Account{}).
		Where("account_id = ?", accountId).
		Update("current_balance", row.Total).Error; err != nil {
		config.LogError(logger, "financeWorkflow.go", "RecalculateAccountBalance", "Update balance", accountId, err)
		return decimal.Zero, err
	}
	return row.Total, nil
}
