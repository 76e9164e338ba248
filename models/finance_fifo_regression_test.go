package models_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
	"bitbucket.org/andesdata/commerce_backend/workflow"
)

// The cached balance and the lot ledger must agree after a FIFO drain, and
// a debit beyond the lots must roll back without touching either.
func TestFifoLedgerDrainsOldestLotAndBlocksOverdraft(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	db := setupIntegrationDB(t)
	logger := logrus.New()

	account := models.Account{
		AccountID:   "ACC-FIFO-1",
		AccountName: "FIFO Cash",
		AccountType: models.AccountTypeCash,
		Currency:    models.CurrencyBOB,
		IsActive:    utils.NewTrue(),
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}

	income := func(amount int64) {
		t.Helper()
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := workflow.CreateTransaction(tx, logger, workflow.TransactionInput{
				TransactionType: models.TransactionTypeIncome,
				Amount:          decimal.NewFromInt(amount),
				Currency:        models.CurrencyBOB,
				ToAccountID:     &account.AccountID,
				Description:     "test income",
			})
			return err
		})
		if err != nil {
			t.Fatalf("income %d: %v", amount, err)
		}
	}
	income(100)
	income(50)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.CreateTransaction(tx, logger, workflow.TransactionInput{
			TransactionType: models.TransactionTypeExpense,
			Amount:          decimal.NewFromInt(120),
			Currency:        models.CurrencyBOB,
			FromAccountID:   &account.AccountID,
			Description:     "test expense",
		})
		return err
	})
	if err != nil {
		t.Fatalf("expense 120: %v", err)
	}

	var fresh models.Account
	if err := db.Where("account_id = ?", account.AccountID).First(&fresh).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if !fresh.CurrentBalance.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("balance = %s, want 30", fresh.CurrentBalance)
	}

	lots, err := models.GetLotsForAccount(db, account.AccountID, false)
	if err != nil {
		t.Fatalf("GetLotsForAccount: %v", err)
	}
	if len(lots) != 2 {
		t.Fatalf("expected 2 lots, got %d", len(lots))
	}
	if !lots[0].RemainingAmount.IsZero() {
		t.Fatalf("oldest lot remaining = %s, want 0", lots[0].RemainingAmount)
	}
	if !lots[1].RemainingAmount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("newest lot remaining = %s, want 30", lots[1].RemainingAmount)
	}

	// Overdraft attempt: rejected, nothing changes.
	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.CreateTransaction(tx, logger, workflow.TransactionInput{
			TransactionType: models.TransactionTypeExpense,
			Amount:          decimal.NewFromInt(40),
			Currency:        models.CurrencyBOB,
			FromAccountID:   &account.AccountID,
			Description:     "overdraft",
		})
		return err
	})
	var insufficient *utils.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}

	if err := db.Where("account_id = ?", account.AccountID).First(&fresh).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if !fresh.CurrentBalance.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("balance after rejected overdraft = %s, want 30", fresh.CurrentBalance)
	}
}

// Currency and frozen-account guards must reject the transaction before any
// write, leaving no transaction, lot, or consumption rows behind.
func TestTransactionGuardsLeaveNoPartialState(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	db := setupIntegrationDB(t)
	logger := logrus.New()

	bob := models.Account{
		AccountID:   "ACC-GUARD-BOB",
		AccountName: "Guard BOB",
		AccountType: models.AccountTypeCash,
		Currency:    models.CurrencyBOB,
		IsActive:    utils.NewTrue(),
	}
	usd := models.Account{
		AccountID:   "ACC-GUARD-USD",
		AccountName: "Guard USD",
		AccountType: models.AccountTypeBank,
		Currency:    models.CurrencyUSD,
		IsActive:    utils.NewTrue(),
	}
	frozen := models.Account{
		AccountID:   "ACC-GUARD-FROZEN",
		AccountName: "Guard Frozen",
		AccountType: models.AccountTypeBank,
		Currency:    models.CurrencyBOB,
		IsActive:    utils.NewFalse(),
	}
	for _, account := range []*models.Account{&bob, &usd, &frozen} {
		if err := db.Create(account).Error; err != nil {
			t.Fatalf("create account %s: %v", account.AccountID, err)
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.CreateTransaction(tx, logger, workflow.TransactionInput{
			TransactionType: models.TransactionTypeIncome,
			Amount:          decimal.NewFromInt(100),
			Currency:        models.CurrencyBOB,
			ToAccountID:     &bob.AccountID,
			Description:     "seed",
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed income: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.CreateTransaction(tx, logger, workflow.TransactionInput{
			TransactionType: models.TransactionTypeTransfer,
			Amount:          decimal.NewFromInt(50),
			Currency:        models.CurrencyBOB,
			FromAccountID:   &bob.AccountID,
			ToAccountID:     &usd.AccountID,
			Description:     "cross-currency transfer",
		})
		return err
	})
	var mismatch *utils.CurrencyMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected CurrencyMismatchError, got %v", err)
	}
	if mismatch.ToCurrency != string(models.CurrencyUSD) {
		t.Fatalf("mismatch detail wrong: %+v", mismatch)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.CreateTransaction(tx, logger, workflow.TransactionInput{
			TransactionType: models.TransactionTypeIncome,
			Amount:          decimal.NewFromInt(10),
			Currency:        models.CurrencyBOB,
			ToAccountID:     &frozen.AccountID,
			Description:     "income into frozen account",
		})
		return err
	})
	var accountFrozen *utils.AccountFrozenError
	if !errors.As(err, &accountFrozen) {
		t.Fatalf("expected AccountFrozenError, got %v", err)
	}

	// Only the seed income exists; the rejected calls wrote nothing.
	var txnCount int64
	if err := db.Model(&models.FinancialTransaction{}).Count(&txnCount).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if txnCount != 1 {
		t.Fatalf("transaction count = %d, want 1", txnCount)
	}
	var lotCount int64
	if err := db.Model(&models.CurrencyLot{}).Count(&lotCount).Error; err != nil {
		t.Fatalf("count lots: %v", err)
	}
	if lotCount != 1 {
		t.Fatalf("lot count = %d, want 1", lotCount)
	}
	var consumptionCount int64
	if err := db.Model(&models.LotConsumption{}).Count(&consumptionCount).Error; err != nil {
		t.Fatalf("count consumptions: %v", err)
	}
	if consumptionCount != 0 {
		t.Fatalf("consumption count = %d, want 0", consumptionCount)
	}

	var freshBob models.Account
	if err := db.Where("account_id = ?", bob.AccountID).First(&freshBob).Error; err != nil {
		t.Fatalf("reload bob: %v", err)
	}
	if !freshBob.CurrentBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("bob balance = %s, want 100", freshBob.CurrentBalance)
	}
}

// RecalculateLot must rebuild remaining_amount from the consumption ledger,
// converging after the cached value has drifted.
func TestRecalculateLotConvergesAfterDrift(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	db := setupIntegrationDB(t)
	logger := logrus.New()

	account := models.Account{
		AccountID:   "ACC-RECALC-1",
		AccountName: "Recalc Cash",
		AccountType: models.AccountTypeCash,
		Currency:    models.CurrencyBOB,
		IsActive:    utils.NewTrue(),
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := workflow.CreateTransaction(tx, logger, workflow.TransactionInput{
			TransactionType: models.TransactionTypeIncome,
			Amount:          decimal.NewFromInt(100),
			Currency:        models.CurrencyBOB,
			ToAccountID:     &account.AccountID,
			Description:     "income",
		}); err != nil {
			return err
		}
		_, err := workflow.CreateTransaction(tx, logger, workflow.TransactionInput{
			TransactionType: models.TransactionTypeExpense,
			Amount:          decimal.NewFromInt(60),
			Currency:        models.CurrencyBOB,
			FromAccountID:   &account.AccountID,
			Description:     "expense",
		})
		return err
	})
	if err != nil {
		t.Fatalf("post transactions: %v", err)
	}

	lots, err := models.GetLotsForAccount(db, account.AccountID, false)
	if err != nil {
		t.Fatalf("GetLotsForAccount: %v", err)
	}
	if len(lots) != 1 {
		t.Fatalf("expected 1 lot, got %d", len(lots))
	}
	lotId := lots[0].LotID

	// Simulate cache drift.
	if err := db.Model(&models.CurrencyLot{}).
		Where("lot_id = ?", lotId).
		Update("remaining_amount", decimal.NewFromInt(99)).Error; err != nil {
		t.Fatalf("inject drift: %v", err)
	}

	var remaining decimal.Decimal
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		remaining, err = workflow.RecalculateLot(tx, logger, lotId)
		return err
	})
	if err != nil {
		t.Fatalf("RecalculateLot: %v", err)
	}
	if !remaining.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("recalculated remaining = %s, want 40", remaining)
	}

	var fresh models.CurrencyLot
	if err := db.Where("lot_id = ?", lotId).First(&fresh).Error; err != nil {
		t.Fatalf("reload lot: %v", err)
	}
	if !fresh.RemainingAmount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("stored remaining = %s, want 40", fresh.RemainingAmount)
	}

	if _, err := models.GetLotsForAccount(db, "no-such-account", false); err != nil {
		t.Fatalf("GetLotsForAccount on unknown account: %v", err)
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.RecalculateLot(tx, logger, "LOT-MISSING")
		return err
	})
	var notFound *utils.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError for unknown lot, got %v", err)
	}
}

// Settling a pending weekly payment must mark it paid, credit the wallet,
// and refuse to settle the same payment twice.
func TestBatchSettlementCreditsWalletOnce(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	db := setupIntegrationDB(t)
	logger := logrus.New()
	ctx := context.Background()

	wallet := models.Account{
		AccountID:   "ACC-WALLET-1",
		AccountName: "Settlement Wallet",
		AccountType: models.AccountTypeBank,
		Currency:    models.CurrencyBOB,
		IsActive:    utils.NewTrue(),
	}
	if err := db.Create(&wallet).Error; err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	var carrier *models.Carrier
	var variant *models.ProductVariant
	var order *models.Order
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		carrier, _, err = models.CreateCarrier(tx, models.CarrierInput{CompanyName: "Settlement Cargo"})
		if err != nil {
			return err
		}
		if _, err = models.UpsertRate(tx, carrier.CarrierID, models.CarrierRateInput{
			Location:           "SANTA CRUZ",
			CommissionDelivery: decimal.NewFromInt(20),
			CommissionReturn:   decimal.NewFromInt(12),
			CommissionExpress:  decimal.NewFromInt(30),
		}); err != nil {
			return err
		}
		variant, _, err = models.FindOrCreateVariant(tx, models.VariantInput{ProductName: "Settlement Hoodie"})
		if err != nil {
			return err
		}
		if _, err = workflow.CreateMovement(tx, logger, variant.ProductVariantID, "SANTA CRUZ",
			models.MovementTypeAdjustment, 1, "SEED-"+variant.ProductVariantID, "opening stock"); err != nil {
			return err
		}
		order, _, err = workflow.CreateFullOrder(tx, logger, models.OrderInput{
			Customer: models.CustomerInput{
				FullName:   "Carlos Rojas",
				Phone:      "71122334",
				Department: "SANTA CRUZ",
			},
			Items: []models.OrderItemInput{{
				VariantInput: models.VariantInput{ProductName: "Settlement Hoodie"},
				Quantity:     1,
				UnitPrice:    decimal.NewFromInt(200),
				Subtotal:     decimal.NewFromInt(200),
			}},
			Total:     decimal.NewFromInt(200),
			CarrierID: &carrier.CarrierID,
		})
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.UpdateOrderStatus(tx, logger, order.OrderID, models.OrderStatusDelivered, "")
		return err
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	var payment models.CarrierPayment
	if err := db.Where("carrier_id = ?", carrier.CarrierID).First(&payment).Error; err != nil {
		t.Fatalf("fetch payment: %v", err)
	}

	settle := func() (*workflow.SettlementResult, error) {
		var result *workflow.SettlementResult
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			result, err = workflow.ProcessBatchSettlement(ctx, tx, logger, workflow.SettlementInput{
				CarrierID:  carrier.CarrierID,
				PaymentIDs: []string{payment.PaymentID},
				WalletID:   wallet.AccountID,
			})
			return err
		})
		return result, err
	}

	result, err := settle()
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if result.PaymentsProcessed != 1 {
		t.Fatalf("payments processed = %d, want 1", result.PaymentsProcessed)
	}
	if !result.TotalAmount.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("settled amount = %s, want 180", result.TotalAmount)
	}

	var settled models.CarrierPayment
	if err := db.Where("payment_id = ?", payment.PaymentID).First(&settled).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if settled.PaymentStatus != models.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", settled.PaymentStatus)
	}

	var freshWallet models.Account
	if err := db.Where("account_id = ?", wallet.AccountID).First(&freshWallet).Error; err != nil {
		t.Fatalf("reload wallet: %v", err)
	}
	if !freshWallet.CurrentBalance.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("wallet balance = %s, want 180", freshWallet.CurrentBalance)
	}

	// A second settlement attempt must fail without paying twice. The
	// payment is no longer pending, which the per-payment guard rejects.
	if _, err := settle(); err == nil {
		t.Fatal("expected second settlement to fail")
	}
	if err := db.Where("account_id = ?", wallet.AccountID).First(&freshWallet).Error; err != nil {
		t.Fatalf("reload wallet: %v", err)
	}
	if !freshWallet.CurrentBalance.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("wallet balance after replay = %s, want 180", freshWallet.CurrentBalance)
	}

	// The database backstop: even a writer that slips past the pending-status
	// guard cannot post a second transaction for the same payment reference.
	refType := models.TransactionReferencePayment
	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.CreateTransaction(tx, logger, workflow.TransactionInput{
			TransactionType: models.TransactionTypeIncome,
			Amount:          decimal.NewFromInt(180),
			Currency:        models.CurrencyBOB,
			ToAccountID:     &wallet.AccountID,
			ReferenceType:   &refType,
			ReferenceID:     &payment.PaymentID,
			Description:     "duplicate settlement credit",
		})
		return err
	})
	if err == nil {
		t.Fatal("expected duplicate payment reference to be rejected")
	}
	var referenced int64
	if err := db.Model(&models.FinancialTransaction{}).
		Where("reference_type = ? AND reference_id = ?", refType, payment.PaymentID).
		Count(&referenced).Error; err != nil {
		t.Fatalf("count referenced transactions: %v", err)
	}
	if referenced != 1 {
		t.Fatalf("transactions for payment reference = %d, want 1", referenced)
	}
}
