package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/workflow"
)

func CreateTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.TransactionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		logger := config.GetLogger()
		db := config.GetDB().WithContext(c.Request.Context())

		var txn *models.FinancialTransaction
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			txn, txErr = workflow.CreateTransaction(tx, logger, input)
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, txn)
	}
}

func ListAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accounts, err := models.ListAccounts(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"accounts": accounts, "count": len(accounts)})
	}
}

func GetAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		account, err := models.GetAccountById(db, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func ListLotsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		onlyOpen := c.DefaultQuery("only_open", "true") != "false"

		db := config.GetDB().WithContext(c.Request.Context())
		lots, err := models.GetLotsForAccount(db, c.Param("id"), onlyOpen)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"lots": lots, "count": len(lots)})
	}
}

func TransactionHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit < 1 {
			limit = 50
		}

		history, err := models.GetTransactionHistory(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": history, "count": len(history)})
	}
}

// RecalculateLotHandler rebuilds one lot's remaining amount from its
// recorded consumptions.
func RecalculateLotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		db := config.GetDB().WithContext(c.Request.Context())

		var remaining decimal.Decimal
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			remaining, txErr = workflow.RecalculateLot(tx, logger, c.Param("id"))
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"lot_id": c.Param("id"), "remaining_amount": remaining})
	}
}

// RecalculateBalanceHandler rebuilds the cached balance from open lots.
// Operational endpoint for when the cache is suspected stale.
func RecalculateBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		db := config.GetDB().WithContext(c.Request.Context())

		var balance decimal.Decimal
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			balance, txErr = workflow.RecalculateAccountBalance(tx, logger, c.Param("id"))
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"account_id": c.Param("id"), "current_balance": balance})
	}
}
