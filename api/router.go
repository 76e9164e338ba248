package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the service surface under /api.
func RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	api.POST("/orders", CreateOrderHandler())
	api.GET("/orders", ListOrdersHandler())
	api.GET("/orders/:id", GetOrderHandler())
	api.PATCH("/orders/:id/status", UpdateOrderStatusHandler())

	api.GET("/inventory", ListInventoryHandler())
	api.GET("/inventory/movements", ListMovementsHandler())
	api.GET("/inventory/low-stock", LowStockHandler())
	api.POST("/inventory/transfers", TransferStockHandler())
	api.POST("/inventory/adjustments", CreateAdjustmentHandler())
	api.PUT("/inventory/min-stock", SetMinStockHandler())
	api.GET("/reports/inventory-valuation", ValuationReportHandler())
	api.GET("/reports/inventory-valuation/export", ValuationExportHandler())
	api.GET("/reports/movement-summary", MovementSummaryHandler())

	api.GET("/products/variants", ListVariantsHandler())
	api.DELETE("/products/:id", DeactivateProductHandler())

	api.POST("/transactions", CreateTransactionHandler())
	api.GET("/accounts", ListAccountsHandler())
	api.GET("/accounts/:id", GetAccountHandler())
	api.GET("/accounts/:id/lots", ListLotsHandler())
	api.GET("/accounts/:id/transactions", TransactionHistoryHandler())
	api.POST("/accounts/:id/recalculate", RecalculateBalanceHandler())
	api.POST("/lots/:id/recalculate", RecalculateLotHandler())

	api.GET("/carriers", ListCarriersHandler())
	api.POST("/carriers", CreateCarrierHandler())
	api.PUT("/carriers/:id/rates", UpsertRateHandler())
	api.GET("/payments", ListPaymentsHandler())
	api.GET("/payments/:id", GetPaymentHandler())
	api.POST("/payments/settle", BatchSettlementHandler())
	api.GET("/payments/alerts/negative-balance", NegativeBalanceAlertsHandler())

	api.POST("/purchases", CreatePurchaseHandler())
	api.GET("/purchases", ListPurchasesHandler())
	api.GET("/purchases/:id", GetPurchaseHandler())
}
