package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/models/reports"
	"bitbucket.org/andesdata/commerce_backend/workflow"
)

func ListInventoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := models.ListInventory(c.Request.Context(),
			c.Query("variant_id"), c.Query("location"), pageParam(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"inventory": records, "count": len(records)})
	}
}

func ListMovementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		movements, err := models.ListMovements(c.Request.Context(),
			c.Query("variant_id"), c.Query("location"), c.Query("movement_type"), pageParam(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"movements": movements, "count": len(movements)})
	}
}

func LowStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := models.ListLowStock(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"low_stock": records, "count": len(records)})
	}
}

type transferRequest struct {
	ProductVariantID string `json:"product_variant_id" binding:"required"`
	FromLocation     string `json:"from_location" binding:"required"`
	ToLocation       string `json:"to_location" binding:"required"`
	Quantity         int    `json:"quantity" binding:"required,gt=0"`
	TransferID       string `json:"transfer_id" binding:"required"`
}

func TransferStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}

		logger := config.GetLogger()
		db := config.GetDB().WithContext(c.Request.Context())

		var movements []*models.InventoryMovement
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			movements, txErr = workflow.TransferStock(tx, logger, req.ProductVariantID,
				req.FromLocation, req.ToLocation, req.Quantity, req.TransferID)
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"movements": movements})
	}
}

type adjustmentRequest struct {
	ProductVariantID string `json:"product_variant_id" binding:"required"`
	Location         string `json:"location" binding:"required"`
	Quantity         int    `json:"quantity" binding:"required"`
	Reason           string `json:"reason" binding:"required"`
	AdjustedBy       string `json:"adjusted_by"`
}

func CreateAdjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adjustmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}

		logger := config.GetLogger()
		db := config.GetDB().WithContext(c.Request.Context())

		var movement *models.InventoryMovement
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			movement, txErr = workflow.CreateAdjustment(tx, logger, req.ProductVariantID,
				req.Location, req.Quantity, req.Reason, req.AdjustedBy)
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, movement)
	}
}

type minStockRequest struct {
	ProductVariantID string `json:"product_variant_id" binding:"required"`
	Location         string `json:"location" binding:"required"`
	MinStock         *int   `json:"min_stock"`
}

func SetMinStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req minStockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		err := db.Transaction(func(tx *gorm.DB) error {
			return workflow.SetMinStock(tx, req.ProductVariantID, req.Location, req.MinStock)
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func ValuationReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := reports.GetInventoryValuationReport(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rows": rows, "count": len(rows)})
	}
}

func ValuationExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reports.ExportValuationExcel(c.Writer, c.Request)
	}
}

func MovementSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fromDate, err := time.Parse("2006-01-02", c.Query("from_date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from_date must be YYYY-MM-DD"})
			return
		}
		toDate, err := time.Parse("2006-01-02", c.Query("to_date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to_date must be YYYY-MM-DD"})
			return
		}

		rows, err := reports.GetMovementSummaryReport(c.Request.Context(), fromDate, toDate)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rows": rows, "count": len(rows)})
	}
}

func ListVariantsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		variants, err := models.ListVariants(c.Request.Context(), c.Query("search"), pageParam(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"variants": variants, "count": len(variants)})
	}
}

func DeactivateProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		err := db.Transaction(func(tx *gorm.DB) error {
			return models.DeactivateProduct(tx, c.Param("id"))
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
