package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
	"bitbucket.org/andesdata/commerce_backend/workflow"
)

func ListPaymentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.PaymentFilter{
			CarrierID: c.Query("carrier_id"),
			Status:    c.Query("status"),
			Page:      pageParam(c),
		}
		payments, err := models.ListPayments(c.Request.Context(), filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
	}
}

func GetPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		payment, err := models.GetPaymentById(db, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, payment)
	}
}

func BatchSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.SettlementInput
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		logger := config.GetLogger()
		ctx := c.Request.Context()
		db := config.GetDB().WithContext(ctx)

		var result *workflow.SettlementResult
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			result, txErr = workflow.ProcessBatchSettlement(ctx, tx, logger, input)
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func NegativeBalanceAlertsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		threshold := decimal.Zero
		if raw := c.Query("threshold"); raw != "" {
			parsed, err := utils.ParseDecimal(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a decimal number"})
				return
			}
			threshold = parsed
		}

		minWeeks, err := strconv.Atoi(c.DefaultQuery("min_weeks", "1"))
		if err != nil || minWeeks < 1 {
			minWeeks = 1
		}

		alerts, err := workflow.CheckNegativeBalanceAlerts(c.Request.Context(), threshold, minWeeks)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
	}
}

func ListCarriersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		carriers, err := models.ListCarriers(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"carriers": carriers, "count": len(carriers)})
	}
}

func CreateCarrierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.CarrierInput
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var carrier *models.Carrier
		var created bool
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			carrier, created, txErr = models.CreateCarrier(tx, input)
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}

		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}
		c.JSON(status, carrier)
	}
}

func UpsertRateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		carrierId := c.Param("id")

		var input models.CarrierRateInput
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var rate *models.CarrierRate
		err := db.Transaction(func(tx *gorm.DB) error {
			if _, txErr := models.GetCarrierById(tx, carrierId); txErr != nil {
				return txErr
			}
			var txErr error
			rate, txErr = models.UpsertRate(tx, carrierId, input)
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rate)
	}
}
