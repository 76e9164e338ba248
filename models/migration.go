package models

import (
	"log"

	"bitbucket.org/andesdata/commerce_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Account{}, &CurrencyLot{}, &LotConsumption{}, &FinancialTransaction{},
		&Customer{},
		&Product{}, &ProductVariant{},
		&InventoryRecord{}, &InventoryMovement{},
		&Order{}, &OrderItem{}, &OrderTracking{},
		&Carrier{}, &CarrierRate{},
		&CarrierPayment{}, &PaymentOrder{},
		&Supplier{}, &Purchase{}, &PurchaseItem{},
		&EntitySequence{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
