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

// totalTolerance absorbs rounding drift between the caller's declared total
// and the per-item arithmetic.
var totalTolerance = decimal.NewFromFloat(0.01)

// validateOrderTotals checks sum(quantity * unit price) against the declared
// total within tolerance.
func validateOrderTotals(orderId string, items []models.OrderItemInput, declared decimal.Decimal) error {
	itemsTotal := decimal.Zero
	for _, item := range items {
		itemsTotal = itemsTotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	difference := itemsTotal.Sub(declared).Abs()
	if difference.GreaterThan(totalTolerance) {
		return &utils.TotalMismatchError{
			OrderID:       orderId,
			ItemsTotal:    itemsTotal,
			DeclaredTotal: declared,
			Difference:    difference,
		}
	}
	return nil
}

// CreateFullOrder ingests one order end to end: resolve-or-create the
// customer and every item's variant, persist the order, its items and the
// initial tracking row, and bump the customer's lifetime stats. Idempotent
// on the external order id: a replay returns the stored order unchanged.
// The bool reports whether a new order was created.
func CreateFullOrder(tx *gorm.DB, logger *logrus.Logger, input models.OrderInput) (*models.Order, bool, error) {
	if input.ExternalOrderID != nil && *input.ExternalOrderID != "" {
		existing, err := models.FindOrderByExternalId(tx, *input.ExternalOrderID)
		if err != nil {
			config.LogError(logger, "orderWorkflow.go", "CreateFullOrder", "FindOrderByExternalId", *input.ExternalOrderID, err)
			return nil, false, err
		}
		if existing != nil {
			logger.WithFields(logrus.Fields{
				"order_id":    existing.OrderID,
				"external_id": *input.ExternalOrderID,
			}).Info("order replay, returning existing")
			return existing, false, nil
		}
	}

	if len(input.Items) == 0 {
		return nil, false, &utils.ValidationError{Field: "items", Message: "order must have at least one item"}
	}
	for i, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, false, &utils.ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "quantity must be positive",
			}
		}
		if item.UnitPrice.IsNegative() {
			return nil, false, &utils.ValidationError{
				Field:   fmt.Sprintf("items[%d].unit_price", i),
				Message: "unit price cannot be negative",
			}
		}
	}
	if err := validateOrderTotals("", input.Items, input.Total); err != nil {
		return nil, false, err
	}

	customer, _, err := models.FindOrCreateCustomer(tx, &input.Customer)
	if err != nil {
		config.LogError(logger, "orderWorkflow.go", "CreateFullOrder", "FindOrCreateCustomer", input.Customer.Phone, err)
		return nil, false, err
	}

	if input.CarrierID != nil && *input.CarrierID != "" {
		if _, err := models.GetCarrierById(tx, *input.CarrierID); err != nil {
			return nil, false, err
		}
	}

	type resolvedItem struct {
		variant *models.ProductVariant
		input   models.OrderItemInput
	}
	resolved := make([]resolvedItem, 0, len(input.Items))
	for _, item := range input.Items {
		variant, _, err := models.FindOrCreateVariant(tx, item.VariantInput)
		if err != nil {
			config.LogError(logger, "orderWorkflow.go", "CreateFullOrder", "FindOrCreateVariant", item.ProductName, err)
			return nil, false, err
		}
		resolved = append(resolved, resolvedItem{variant: variant, input: item})
	}

	pairs := make([]variantQuantity, 0, len(resolved))
	for _, item := range resolved {
		pairs = append(pairs, variantQuantity{
			VariantID: item.variant.ProductVariantID,
			Quantity:  item.input.Quantity,
		})
	}
	if err := rejectDuplicateOrder(tx, logger, customer.CustomerID, pairs); err != nil {
		return nil, false, err
	}

	orderId, err := models.NextOrderId(tx)
	if err != nil {
		config.LogError(logger, "orderWorkflow.go", "CreateFullOrder", "NextOrderId", nil, err)
		return nil, false, err
	}

	isPriority := input.IsPriority
	order := models.Order{
		OrderID:         orderId,
		CustomerID:      customer.CustomerID,
		CarrierID:       input.CarrierID,
		Total:           input.Total,
		ExternalOrderID: input.ExternalOrderID,
		IsPriority:      &isPriority,
		Notes:           input.Notes,
	}
	if err := tx.Create(&order).Error; err != nil {
		// Two concurrent submissions with the same external id race past the
		// lookup above; the unique index decides, and the loser returns the
		// winner's order.
		if isDuplicateKeyErr(err) && input.ExternalOrderID != nil {
			if winner, ferr := models.FindOrderByExternalId(tx, *input.ExternalOrderID); ferr == nil && winner != nil {
				return winner, false, nil
			}
		}
		config.LogError(logger, "orderWorkflow.go", "CreateFullOrder", "Create order", order, err)
		return nil, false, err
	}

	for i, item := range resolved {
		orderItem := models.OrderItem{
			OrderItemID:      fmt.Sprintf("%s-%d", orderId, i+1),
			OrderID:          orderId,
			ProductVariantID: item.variant.ProductVariantID,
			ProductName:      item.input.ProductName,
			Quantity:         item.input.Quantity,
			UnitPrice:        item.input.UnitPrice,
			Subtotal:         item.input.UnitPrice.Mul(decimal.NewFromInt(int64(item.input.Quantity))),
		}
		if err := tx.Create(&orderItem).Error; err != nil {
			config.LogError(logger, "orderWorkflow.go", "CreateFullOrder", "Create item", orderItem, err)
			return nil, false, err
		}
		order.Items = append(order.Items, orderItem)
	}

	tracking := models.OrderTracking{
		OrderID:     orderId,
		OrderStatus: models.OrderStatusNew,
	}
	if err := tx.Create(&tracking).Error; err != nil {
		config.LogError(logger, "orderWorkflow.go", "CreateFullOrder", "Create tracking", tracking, err)
		return nil, false, err
	}
	order.Tracking = &tracking

	if err := tx.Model(&models.Customer{}).
		Where("customer_id = ?", customer.CustomerID).
		Updates(map[string]interface{}{
			"total_orders": gorm.Expr("total_orders + 1"),
			"total_spent":  gorm.Expr("total_spent + ?", input.Total),
		}).Error; err != nil {
		config.LogError(logger, "orderWorkflow.go", "CreateFullOrder", "Update customer stats", customer.CustomerID, err)
		return nil, false, err
	}

	logger.WithFields(logrus.Fields{
		"order_id":    orderId,
		"customer_id": customer.CustomerID,
		"items":       len(order.Items),
		"total":       input.Total.String(),
	}).Info("order created")

	return &order, true, nil
}

type variantQuantity struct {
	VariantID string
	Quantity  int
}

// rejectDuplicateOrder blocks a re-order of the same variant in the same
// quantity by the same customer within 24 hours. A different quantity or a
// different variant passes.
func rejectDuplicateOrder(tx *gorm.DB, logger *logrus.Logger, customerId string, pairs []variantQuantity) error {
	since := time.Now().Add(-24 * time.Hour)
	recent, err := models.ListRecentOrdersForCustomer(tx, customerId, since)
	if err != nil {
		config.LogError(logger, "orderWorkflow.go", "rejectDuplicateOrder", "ListRecentOrdersForCustomer", customerId, err)
		return err
	}
	for _, pair := range pairs {
		for _, order := range recent {
			for _, item := range order.Items {
				if item.ProductVariantID == pair.VariantID && item.Quantity == pair.Quantity {
					return &utils.ValidationError{
						Field: "items",
						Message: fmt.Sprintf(
							"duplicate order: customer %s already ordered %dx %s in order %s within the last 24h",
							customerId, pair.Quantity, pair.VariantID, order.OrderID),
					}
				}
			}
		}
	}
	return nil
}

// UpdateOrderStatus runs one fulfillment transition and all of its side
// effects in a single unit of work: empty-order guard, fail-fast stock
// validation, delivery/return cost resolution, weekly payment aggregation,
// and the inventory movements themselves. Any failure aborts the whole
// transition.
func UpdateOrderStatus(tx *gorm.DB, logger *logrus.Logger, orderId string,
	newStatus models.OrderStatus, notes string) (*models.OrderTracking, error) {

	if !newStatus.Valid() {
		return nil, &utils.ValidationError{Field: "status", Message: "unknown order status: " + string(newStatus)}
	}

	order, err := models.GetOrderForUpdate(tx, orderId)
	if err != nil {
		return nil, err
	}
	if order.Tracking == nil {
		return nil, &utils.NotFoundError{Entity: "order tracking", ID: orderId}
	}
	oldStatus := order.Tracking.OrderStatus

	if newStatus.RequiresItems() && len(order.Items) == 0 {
		return nil, &utils.EmptyOrderError{OrderID: orderId, Status: string(newStatus)}
	}

	customer, err := models.GetCustomerById(tx, order.CustomerID)
	if err != nil {
		return nil, err
	}
	location := customer.Department

	// Pre-flight stock pass: every item checked before any movement.
	if newStatus == models.OrderStatusDelivered {
		var short []utils.ShortItem
		for _, item := range order.Items {
			enough, available, err := ValidateStock(tx, item.ProductVariantID, location, item.Quantity)
			if err != nil {
				return nil, err
			}
			if !enough {
				short = append(short, utils.ShortItem{
					ProductName: item.ProductName,
					VariantID:   item.ProductVariantID,
					Location:    location,
					Required:    item.Quantity,
					Available:   available,
				})
			}
		}
		if len(short) > 0 {
			return nil, &utils.InsufficientStockError{OrderID: orderId, Items: short}
		}
	}

	updates := map[string]interface{}{"order_status": newStatus}
	if err := tx.Model(&models.OrderTracking{}).
		Where("order_id = ?", orderId).
		Updates(updates).Error; err != nil {
		config.LogError(logger, "orderWorkflow.go", "UpdateOrderStatus", "Update tracking", orderId, err)
		return nil, err
	}
	order.Tracking.OrderStatus = newStatus

	if notes != "" {
		appended := order.Notes
		if appended != "" {
			appended += "\n"
		}
		appended += fmt.Sprintf("[%s] %s", newStatus, notes)
		if err := tx.Model(&models.Order{}).
			Where("order_id = ?", orderId).
			Update("notes", appended).Error; err != nil {
			config.LogError(logger, "orderWorkflow.go", "UpdateOrderStatus", "Append notes", orderId, err)
			return nil, err
		}
		order.Notes = appended
	}

	// Cancellation ends the order's financial life: costs and payment
	// aggregates stay as they were.
	if newStatus != models.OrderStatusCancelled {
		if err := applyDeliveryCosts(tx, logger, order, location, newStatus); err != nil {
			return nil, err
		}
		if _, err := UpdatePaymentFromOrder(tx, logger, order, oldStatus, newStatus); err != nil {
			return nil, err
		}
	}

	switch newStatus {
	case models.OrderStatusDelivered:
		for _, item := range order.Items {
			if _, err := CreateMovement(tx, logger, item.ProductVariantID, location,
				models.MovementTypeSale, -item.Quantity, orderId, ""); err != nil {
				return nil, err
			}
		}
	case models.OrderStatusReturned:
		for _, item := range order.Items {
			if _, err := CreateMovement(tx, logger, item.ProductVariantID, location,
				models.MovementTypeReturn, item.Quantity, orderId+"-return", ""); err != nil {
				return nil, err
			}
		}
	}

	logger.WithFields(logrus.Fields{
		"order_id":   orderId,
		"old_status": oldStatus,
		"new_status": newStatus,
	}).Info("order status updated")

	return order.Tracking, nil
}

// applyDeliveryCosts resolves and stores the carrier commissions the new
// status implies. An order without a carrier carries zero costs; an
// assigned carrier with no rate for the customer's location is an error,
// not a silent zero.
func applyDeliveryCosts(tx *gorm.DB, logger *logrus.Logger, order *models.Order,
	location string, newStatus models.OrderStatus) error {

	deliveryCost := decimal.Zero
	returnCost := decimal.Zero

	if order.CarrierID != nil &&
		(newStatus == models.OrderStatusDelivered || newStatus == models.OrderStatusReturned) {

		isPriority := order.IsPriority != nil && *order.IsPriority
		cost, err := CalculateDeliveryCost(tx, *order.CarrierID, location, isPriority, newStatus)
		if err != nil {
			config.LogError(logger, "orderWorkflow.go", "applyDeliveryCosts", "CalculateDeliveryCost", order.OrderID, err)
			return err
		}
		if newStatus == models.OrderStatusDelivered {
			deliveryCost = cost
		} else {
			returnCost = cost
		}
	}

	if err := tx.Model(&models.Order{}).
		Where("order_id = ?", order.OrderID).
		Updates(map[string]interface{}{
			"delivery_cost": deliveryCost,
			"return_cost":   returnCost,
		}).Error; err != nil {
		config.LogError(logger, "orderWorkflow.go", "applyDeliveryCosts", "Update costs", order.OrderID, err)
		return err
	}
	order.DeliveryCost = deliveryCost
	order.ReturnCost = returnCost
	return nil
}
