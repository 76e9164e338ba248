package workflow

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

// CreateMovement is the single write path for stock. It is idempotent on
// (referenceId, variant, location): a replay returns the existing movement
// untouched. Otherwise it locks the inventory row, rejects any change that
// would drive stock negative, and persists the movement together with the
// new cached quantity under the same lock.
func CreateMovement(tx *gorm.DB, logger *logrus.Logger, variantId string, location string,
	movementType models.MovementType, quantity int, referenceId string, notes string) (*models.InventoryMovement, error) {

	if quantity == 0 {
		return nil, &utils.ValidationError{Field: "quantity", Message: "movement quantity cannot be zero"}
	}
	if !models.ValidStockLocation(location) {
		return nil, &utils.ValidationError{Field: "location", Message: "unknown stocking location: " + location}
	}

	existing, err := models.FindMovementByReference(tx, referenceId, variantId, location)
	if err != nil {
		config.LogError(logger, "inventoryWorkflow.go", "CreateMovement", "FindMovementByReference", referenceId, err)
		return nil, err
	}
	if existing != nil {
		logger.WithFields(logrus.Fields{
			"movement_id": existing.MovementID,
			"reference":   referenceId,
		}).Info("movement replay, returning existing")
		return existing, nil
	}

	record, err := models.GetInventoryForUpdate(tx, variantId, location)
	if err != nil {
		config.LogError(logger, "inventoryWorkflow.go", "CreateMovement", "GetInventoryForUpdate", variantId+"/"+location, err)
		return nil, err
	}

	newQuantity := record.StockQuantity + quantity
	if newQuantity < 0 {
		return nil, &utils.NegativeStockError{
			VariantID: variantId,
			Location:  location,
			Available: record.StockQuantity,
			Requested: -quantity,
		}
	}

	movementId, err := models.NextMovementId(tx)
	if err != nil {
		config.LogError(logger, "inventoryWorkflow.go", "CreateMovement", "NextMovementId", nil, err)
		return nil, err
	}
	movement := models.InventoryMovement{
		MovementID:       movementId,
		ProductVariantID: variantId,
		Location:         location,
		MovementType:     movementType,
		Quantity:         quantity,
		ReferenceID:      referenceId,
		Notes:            notes,
	}
	if err := tx.Create(&movement).Error; err != nil {
		// A concurrent insert of the same reference loses the race here;
		// hand back the winner's movement.
		if isDuplicateKeyErr(err) {
			if winner, ferr := models.FindMovementByReference(tx, referenceId, variantId, location); ferr == nil && winner != nil {
				return winner, nil
			}
		}
		config.LogError(logger, "inventoryWorkflow.go", "CreateMovement", "Create movement", movement, err)
		return nil, err
	}

	if err := tx.Model(&models.InventoryRecord{}).
		Where("inventory_id = ?", record.InventoryID).
		Update("stock_quantity", newQuantity).Error; err != nil {
		config.LogError(logger, "inventoryWorkflow.go", "CreateMovement", "Update stock", record.InventoryID, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"movement_id": movementId,
		"variant":     variantId,
		"location":    location,
		"type":        movementType,
		"quantity":    quantity,
		"new_stock":   newQuantity,
	}).Info("stock movement recorded")

	return &movement, nil
}

// ValidateStock is the advisory, non-locking check used by pre-flight
// passes. It reports the available quantity so callers can build shortage
// detail. The authoritative check happens inside CreateMovement under lock.
func ValidateStock(tx *gorm.DB, variantId string, location string, required int) (bool, int, error) {
	available, err := models.GetStock(tx, variantId, location)
	if err != nil {
		return false, 0, err
	}
	return available >= required, available, nil
}

// TransferStock moves quantity between two locations as a paired
// transfer_out/transfer_in, both legs flowing through CreateMovement so they
// inherit its locking and replay behavior. Both legs share the transfer
// reference.
func TransferStock(tx *gorm.DB, logger *logrus.Logger, variantId string,
	fromLocation string, toLocation string, quantity int, transferId string) ([]*models.InventoryMovement, error) {

	if quantity <= 0 {
		return nil, &utils.ValidationError{Field: "quantity", Message: "transfer quantity must be positive"}
	}
	if fromLocation == toLocation {
		return nil, &utils.ValidationError{Field: "to_location", Message: "transfer source and destination must differ"}
	}

	reference := "TRANSFER-" + transferId

	out, err := CreateMovement(tx, logger, variantId, fromLocation,
		models.MovementTypeTransferOut, -quantity, reference, "")
	if err != nil {
		return nil, err
	}
	in, err := CreateMovement(tx, logger, variantId, toLocation,
		models.MovementTypeTransferIn, quantity, reference, "")
	if err != nil {
		return nil, err
	}
	return []*models.InventoryMovement{out, in}, nil
}

// CreateAdjustment records a manual correction, positive or negative. The
// movement id doubles as the reference so each adjustment is its own
// idempotency scope.
func CreateAdjustment(tx *gorm.DB, logger *logrus.Logger, variantId string, location string,
	quantity int, reason string, adjustedBy string) (*models.InventoryMovement, error) {

	if reason == "" {
		return nil, &utils.ValidationError{Field: "reason", Message: "adjustment reason is required"}
	}

	adjustmentId, err := models.NextMovementId(tx)
	if err != nil {
		config.LogError(logger, "inventoryWorkflow.go", "CreateAdjustment", "NextMovementId", nil, err)
		return nil, err
	}

	movement, err := CreateMovement(tx, logger, variantId, location,
		models.MovementTypeAdjustment, quantity, "ADJ-"+adjustmentId,
		fmt.Sprintf("%s (by %s)", reason, adjustedBy))
	if err != nil {
		return nil, err
	}
	if adjustedBy != "" {
		if err := tx.Model(&models.InventoryMovement{}).
			Where("movement_id = ?", movement.MovementID).
			Update("created_by", adjustedBy).Error; err != nil {
			config.LogError(logger, "inventoryWorkflow.go", "CreateAdjustment", "Record author", movement.MovementID, err)
			return nil, err
		}
		movement.CreatedBy = adjustedBy
	}
	return movement, nil
}

// SetMinStock configures the low-stock alert threshold for one record.
func SetMinStock(tx *gorm.DB, variantId string, location string, minStock *int) error {
	if minStock != nil && *minStock < 0 {
		return &utils.ValidationError{Field: "min_stock", Message: "min stock cannot be negative"}
	}
	record, err := models.GetInventoryForUpdate(tx, variantId, location)
	if err != nil {
		return err
	}
	return tx.Model(&models.InventoryRecord{}).
		Where("inventory_id = ?", record.InventoryID).
		Update("min_stock", minStock).Error
}
