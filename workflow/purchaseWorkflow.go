package workflow

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

// CreateFullPurchase receives inventory from a supplier: the purchase row,
// one item and one positive stock movement per (variant, location), and,
// when a payment account is given, the matching expense transaction through
// the financial ledger. All within one unit of work.
func CreateFullPurchase(tx *gorm.DB, logger *logrus.Logger, input models.PurchaseInput) (*models.Purchase, error) {
	if len(input.Items) == 0 {
		return nil, &utils.ValidationError{Field: "items", Message: "purchase must have at least one item"}
	}
	for i, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, &utils.ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "quantity must be positive",
			}
		}
		if !item.UnitCost.IsPositive() {
			return nil, &utils.ValidationError{
				Field:   fmt.Sprintf("items[%d].unit_cost", i),
				Message: "unit cost must be positive",
			}
		}
		if !models.ValidStockLocation(item.Location) {
			return nil, &utils.ValidationError{
				Field:   fmt.Sprintf("items[%d].location", i),
				Message: "unknown stocking location: " + item.Location,
			}
		}
	}

	supplier, _, err := models.FindOrCreateSupplier(tx, input.SupplierName)
	if err != nil {
		config.LogError(logger, "purchaseWorkflow.go", "CreateFullPurchase", "FindOrCreateSupplier", input.SupplierName, err)
		return nil, err
	}

	purchaseId, err := models.NextPurchaseId(tx)
	if err != nil {
		config.LogError(logger, "purchaseWorkflow.go", "CreateFullPurchase", "NextPurchaseId", nil, err)
		return nil, err
	}

	purchaseDate := time.Now()
	if input.PurchaseDate != nil {
		purchaseDate = *input.PurchaseDate
	}

	totalQuantity := 0
	totalCost := decimal.Zero
	for _, item := range input.Items {
		totalQuantity += item.Quantity
		totalCost = totalCost.Add(item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	purchase := models.Purchase{
		PurchaseID:       purchaseId,
		SupplierID:       supplier.SupplierID,
		PurchaseDate:     purchaseDate,
		TotalCost:        totalCost,
		TotalQuantity:    totalQuantity,
		Currency:         input.Currency,
		PaymentAccountID: input.PaymentAccountID,
		Status:           models.PurchaseStatusReceived,
		Notes:            input.Notes,
	}
	if err := tx.Create(&purchase).Error; err != nil {
		config.LogError(logger, "purchaseWorkflow.go", "CreateFullPurchase", "Create purchase", purchase, err)
		return nil, err
	}

	for _, item := range input.Items {
		variant, _, err := models.FindOrCreateVariant(tx, item.VariantInput)
		if err != nil {
			config.LogError(logger, "purchaseWorkflow.go", "CreateFullPurchase", "FindOrCreateVariant", item.ProductName, err)
			return nil, err
		}

		purchaseItem := models.PurchaseItem{
			PurchaseID:       purchaseId,
			ProductVariantID: variant.ProductVariantID,
			Location:         item.Location,
			Quantity:         item.Quantity,
			UnitCost:         item.UnitCost,
			Subtotal:         item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))),
		}
		if err := tx.Create(&purchaseItem).Error; err != nil {
			config.LogError(logger, "purchaseWorkflow.go", "CreateFullPurchase", "Create item", purchaseItem, err)
			return nil, err
		}
		purchase.Items = append(purchase.Items, purchaseItem)

		if _, err := CreateMovement(tx, logger, variant.ProductVariantID, item.Location,
			models.MovementTypePurchase, item.Quantity, purchaseId,
			fmt.Sprintf("inventory purchase, %d units", item.Quantity)); err != nil {
			return nil, err
		}
	}

	if input.PaymentAccountID != nil && *input.PaymentAccountID != "" {
		referenceType := models.TransactionReferencePurchase
		referenceId := purchaseId
		_, err := CreateTransaction(tx, logger, TransactionInput{
			TransactionType: models.TransactionTypeExpense,
			Amount:          totalCost,
			Currency:        input.Currency,
			FromAccountID:   input.PaymentAccountID,
			ReferenceType:   &referenceType,
			ReferenceID:     &referenceId,
			Description: fmt.Sprintf("Inventory purchase %s - supplier %s - %d units",
				purchaseId, supplier.SupplierName, totalQuantity),
			TransactionDate: &purchaseDate,
		})
		if err != nil {
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"purchase_id": purchaseId,
		"supplier_id": supplier.SupplierID,
		"items":       len(input.Items),
		"total_cost":  totalCost.String(),
	}).Info("purchase received")

	return &purchase, nil
}
