package models

type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "income"
	TransactionTypeExpense  TransactionType = "expense"
	TransactionTypeTransfer TransactionType = "transfer"
)

type CurrencyCode string

const (
	CurrencyBOB  CurrencyCode = "BOB"
	CurrencyUSD  CurrencyCode = "USD"
	CurrencyUSDT CurrencyCode = "USDT"
	CurrencyUSDC CurrencyCode = "USDC"
	CurrencyEUR  CurrencyCode = "EUR"
	CurrencyCNY  CurrencyCode = "CNY"
	CurrencyPEN  CurrencyCode = "PEN"
)

// BaseCurrency is the settlement currency for carrier payments.
const BaseCurrency = CurrencyBOB

type AccountType string

const (
	AccountTypeBank           AccountType = "bank"
	AccountTypeCryptoExchange AccountType = "crypto_exchange"
	AccountTypeCash           AccountType = "cash"
	AccountTypePaymentGateway AccountType = "payment_gateway"
)

type TransactionReferenceType string

const (
	TransactionReferencePayment  TransactionReferenceType = "payment"
	TransactionReferencePurchase TransactionReferenceType = "purchase"
	TransactionReferenceOrder    TransactionReferenceType = "order"
)

type MovementType string

const (
	MovementTypePurchase    MovementType = "purchase"
	MovementTypeSale        MovementType = "sale"
	MovementTypeReturn      MovementType = "return"
	MovementTypeAdjustment  MovementType = "adjustment"
	MovementTypeTransferIn  MovementType = "transfer_in"
	MovementTypeTransferOut MovementType = "transfer_out"
)

type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusDispatched OrderStatus = "dispatched"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusReturned   OrderStatus = "returned"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusConfirmed, OrderStatusDispatched,
		OrderStatusDelivered, OrderStatusReturned, OrderStatusCancelled:
		return true
	}
	return false
}

// RequiresItems reports whether an order must have at least one item before
// entering this status.
func (s OrderStatus) RequiresItems() bool {
	switch s {
	case OrderStatusDispatched, OrderStatusDelivered, OrderStatusReturned:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type ContributionType string

const (
	ContributionTypeDelivery ContributionType = "delivery"
	ContributionTypeReturn   ContributionType = "return"
)

// Stocking locations match Bolivia's departments; stock is tracked per
// (variant, location) pair and orders draw from the customer's location.
var StockLocations = []string{
	"LA PAZ",
	"EL ALTO",
	"SANTA CRUZ",
	"COCHABAMBA",
	"ORURO",
	"POTOSI",
	"TARIJA",
	"CHUQUISACA",
	"BENI",
	"PANDO",
}

func ValidStockLocation(location string) bool {
	for _, l := range StockLocations {
		if l == location {
			return true
		}
	}
	return false
}
