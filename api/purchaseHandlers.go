package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/workflow"
)

func CreatePurchaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.PurchaseInput
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		logger := config.GetLogger()
		db := config.GetDB().WithContext(c.Request.Context())

		var purchase *models.Purchase
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			purchase, txErr = workflow.CreateFullPurchase(tx, logger, input)
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"purchase_id":    purchase.PurchaseID,
			"supplier_id":    purchase.SupplierID,
			"total_cost":     purchase.TotalCost,
			"total_quantity": purchase.TotalQuantity,
		})
	}
}

func GetPurchaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		purchase, err := models.GetPurchaseById(db, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, purchase)
	}
}

func ListPurchasesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		purchases, err := models.ListPurchases(c.Request.Context(), c.Query("supplier_id"), pageParam(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"purchases": purchases, "count": len(purchases)})
	}
}
