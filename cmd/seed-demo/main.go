// seed-demo bootstraps a development database: wallet accounts in each
// working currency, a demo carrier with rates for every stocking location,
// and a couple of product variants with starting stock.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
	"bitbucket.org/andesdata/commerce_backend/workflow"
)

func main() {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	models.MigrateTable()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := seedAccounts(tx); err != nil {
			return err
		}
		carrier, err := seedCarrier(tx)
		if err != nil {
			return err
		}
		if err := seedCatalog(tx, logger); err != nil {
			return err
		}
		fmt.Printf("seeded demo data (carrier %s)\n", carrier.CarrierID)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func seedAccounts(tx *gorm.DB) error {
	accounts := []models.Account{
		{AccountID: "ACC00000001", AccountName: "Caja BOB", AccountType: models.AccountTypeCash, Currency: models.CurrencyBOB},
		{AccountID: "ACC00000002", AccountName: "Banco Union BOB", AccountType: models.AccountTypeBank, Currency: models.CurrencyBOB},
		{AccountID: "ACC00000003", AccountName: "Binance USDT", AccountType: models.AccountTypeCryptoExchange, Currency: models.CurrencyUSDT},
		{AccountID: "ACC00000004", AccountName: "Banco USD", AccountType: models.AccountTypeBank, Currency: models.CurrencyUSD},
	}
	for i := range accounts {
		accounts[i].IsActive = utils.NewTrue()
		err := tx.Where("account_id = ?", accounts[i].AccountID).
			FirstOrCreate(&accounts[i]).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func seedCarrier(tx *gorm.DB) (*models.Carrier, error) {
	carrier, _, err := models.CreateCarrier(tx, models.CarrierInput{
		CompanyName: "Expreso Andino",
		Contact:     "Juan Mamani, +591 700 12345",
	})
	if err != nil {
		return nil, err
	}
	for _, location := range models.StockLocations {
		_, err := models.UpsertRate(tx, carrier.CarrierID, models.CarrierRateInput{
			Location:           location,
			CommissionDelivery: decimal.NewFromInt(15),
			CommissionReturn:   decimal.NewFromInt(10),
			CommissionExpress:  decimal.NewFromInt(25),
		})
		if err != nil {
			return nil, err
		}
	}
	return carrier, nil
}

func seedCatalog(tx *gorm.DB, logger *logrus.Logger) error {
	variants := []models.VariantInput{
		{ProductName: "Polera Basica", Sku: strPtr("POLERABASICA-001")},
		{ProductName: "Jeans Clasico", Sku: strPtr("JEANSCLASICO-001")},
	}
	for _, input := range variants {
		variant, _, err := models.FindOrCreateVariant(tx, input)
		if err != nil {
			return err
		}
		_, err = workflow.CreateMovement(tx, logger, variant.ProductVariantID, "LA PAZ",
			models.MovementTypeAdjustment, 50, "SEED-"+variant.ProductVariantID, "opening stock")
		if err != nil {
			return err
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
