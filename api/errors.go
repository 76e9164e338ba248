package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bitbucket.org/andesdata/commerce_backend/utils"
)

// writeError maps workflow errors onto HTTP responses. Every branch keeps
// the structured fields from the error so callers can act on them instead
// of parsing a message.
func writeError(c *gin.Context, err error) {
	var notFound *utils.NotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  notFound.Error(),
			"entity": notFound.Entity,
			"id":     notFound.ID,
		})
		return
	}

	var validation *utils.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validation.Error(),
			"field": validation.Field,
		})
		return
	}

	var totalMismatch *utils.TotalMismatchError
	if errors.As(err, &totalMismatch) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          totalMismatch.Error(),
			"order_id":       totalMismatch.OrderID,
			"items_total":    totalMismatch.ItemsTotal,
			"declared_total": totalMismatch.DeclaredTotal,
			"difference":     totalMismatch.Difference,
		})
		return
	}

	var emptyOrder *utils.EmptyOrderError
	if errors.As(err, &emptyOrder) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    emptyOrder.Error(),
			"order_id": emptyOrder.OrderID,
			"status":   emptyOrder.Status,
		})
		return
	}

	var insufficientStock *utils.InsufficientStockError
	if errors.As(err, &insufficientStock) {
		c.JSON(http.StatusConflict, gin.H{
			"error":    insufficientStock.Error(),
			"order_id": insufficientStock.OrderID,
			"items":    insufficientStock.Items,
		})
		return
	}

	var negativeStock *utils.NegativeStockError
	if errors.As(err, &negativeStock) {
		c.JSON(http.StatusConflict, gin.H{
			"error":      negativeStock.Error(),
			"variant_id": negativeStock.VariantID,
			"location":   negativeStock.Location,
			"available":  negativeStock.Available,
			"requested":  negativeStock.Requested,
		})
		return
	}

	var duplicateSettlement *utils.DuplicateSettlementError
	if errors.As(err, &duplicateSettlement) {
		c.JSON(http.StatusConflict, gin.H{
			"error":          duplicateSettlement.Error(),
			"payment_id":     duplicateSettlement.PaymentID,
			"transaction_id": duplicateSettlement.TransactionID,
		})
		return
	}

	var currencyMismatch *utils.CurrencyMismatchError
	if errors.As(err, &currencyMismatch) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           currencyMismatch.Error(),
			"from_account_id": currencyMismatch.FromAccountID,
			"from_currency":   currencyMismatch.FromCurrency,
			"to_account_id":   currencyMismatch.ToAccountID,
			"to_currency":     currencyMismatch.ToCurrency,
			"currency":        currencyMismatch.Currency,
		})
		return
	}

	var insufficientBalance *utils.InsufficientBalanceError
	if errors.As(err, &insufficientBalance) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      insufficientBalance.Error(),
			"account_id": insufficientBalance.AccountID,
			"balance":    insufficientBalance.Balance,
			"required":   insufficientBalance.Required,
			"currency":   insufficientBalance.Currency,
		})
		return
	}

	var frozen *utils.AccountFrozenError
	if errors.As(err, &frozen) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      frozen.Error(),
			"account_id": frozen.AccountID,
		})
		return
	}

	var noRate *utils.NoRateConfiguredError
	if errors.As(err, &noRate) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      noRate.Error(),
			"carrier_id": noRate.CarrierID,
			"location":   noRate.Location,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func bindError(c *gin.Context, err error) {
	if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}
