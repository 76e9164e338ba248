package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/workflow"
)

func CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.OrderInput
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}

		logger := config.GetLogger()
		db := config.GetDB().WithContext(c.Request.Context())

		var order *models.Order
		var replayed bool
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			order, replayed, txErr = workflow.CreateFullOrder(tx, logger, input)
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}

		status := http.StatusCreated
		if replayed {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{
			"order_id":    order.OrderID,
			"customer_id": order.CustomerID,
			"item_count":  len(order.Items),
			"total":       order.Total,
			"replayed":    replayed,
		})
	}
}

type statusUpdateRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Notes  string             `json:"notes"`
}

func UpdateOrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId := c.Param("id")

		var req statusUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}

		logger := config.GetLogger()
		db := config.GetDB().WithContext(c.Request.Context())

		var tracking *models.OrderTracking
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			tracking, txErr = workflow.UpdateOrderStatus(tx, logger, orderId, req.Status, req.Notes)
			return txErr
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"order_id":      tracking.OrderID,
			"status":        tracking.OrderStatus,
			"tracking_code": tracking.TrackingCode,
		})
	}
}

func GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		order, err := models.GetOrderById(db, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.OrderFilter{
			Status:     c.Query("status"),
			CustomerID: c.Query("customer_id"),
			CarrierID:  c.Query("carrier_id"),
			Page:       pageParam(c),
		}
		if from := c.Query("date_from"); from != "" {
			t, err := time.Parse("2006-01-02", from)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date_from must be YYYY-MM-DD"})
				return
			}
			filter.DateFrom = &t
		}
		if to := c.Query("date_to"); to != "" {
			t, err := time.Parse("2006-01-02", to)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date_to must be YYYY-MM-DD"})
				return
			}
			filter.DateTo = &t
		}

		orders, err := models.ListOrders(c.Request.Context(), filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
	}
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
