package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// Domain errors carry structured detail because the HTTP layer re-surfaces it
// to the calling automation system. Match with errors.As.

type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

type NotFoundError struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrorRecordNotFound
}

type TotalMismatchError struct {
	OrderID       string          `json:"order_id"`
	ItemsTotal    decimal.Decimal `json:"items_total"`
	DeclaredTotal decimal.Decimal `json:"declared_total"`
	Difference    decimal.Decimal `json:"difference"`
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("order %s totals do not match: items sum %s, declared %s (diff %s)",
		e.OrderID, e.ItemsTotal, e.DeclaredTotal, e.Difference)
}

type EmptyOrderError struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (e *EmptyOrderError) Error() string {
	return fmt.Sprintf("order %s has no items and cannot move to status %q", e.OrderID, e.Status)
}

// ShortItem is one variant/location pair that cannot cover the requested
// quantity. InsufficientStockError reports every short item at once so the
// operator can fix all of them in one pass.
type ShortItem struct {
	ProductName string `json:"product_name,omitempty"`
	VariantID   string `json:"variant_id"`
	Location    string `json:"location"`
	Required    int    `json:"required"`
	Available   int    `json:"available"`
}

type InsufficientStockError struct {
	OrderID string      `json:"order_id,omitempty"`
	Items   []ShortItem `json:"items"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Items))
}

type NegativeStockError struct {
	VariantID string `json:"variant_id"`
	Location  string `json:"location"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s at %s: available %d, requested %d",
		e.VariantID, e.Location, e.Available, e.Requested)
}

type CurrencyMismatchError struct {
	FromAccountID string `json:"from_account_id,omitempty"`
	FromCurrency  string `json:"from_currency,omitempty"`
	ToAccountID   string `json:"to_account_id,omitempty"`
	ToCurrency    string `json:"to_currency,omitempty"`
	Currency      string `json:"transaction_currency,omitempty"`
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s(%s) vs %s(%s), transaction %s",
		e.FromAccountID, e.FromCurrency, e.ToAccountID, e.ToCurrency, e.Currency)
}

type InsufficientBalanceError struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Required  decimal.Decimal `json:"required"`
	Currency  string          `json:"currency"`
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance in account %s: %s %s < %s %s",
		e.AccountID, e.Balance, e.Currency, e.Required, e.Currency)
}

type AccountFrozenError struct {
	AccountID string `json:"account_id"`
}

func (e *AccountFrozenError) Error() string {
	return fmt.Sprintf("account %s is frozen", e.AccountID)
}

type NoRateConfiguredError struct {
	CarrierID string `json:"carrier_id"`
	Location  string `json:"location"`
}

func (e *NoRateConfiguredError) Error() string {
	return fmt.Sprintf("no carrier rate configured for carrier %s in %s", e.CarrierID, e.Location)
}

type DuplicateSettlementError struct {
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
}

func (e *DuplicateSettlementError) Error() string {
	return fmt.Sprintf("payment %s already settled by transaction %s", e.PaymentID, e.TransactionID)
}
