package models

import (
	"strings"
	"time"

	"bitbucket.org/andesdata/commerce_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Customer struct {
	CustomerID  string          `gorm:"primaryKey;size:20" json:"customer_id"`
	FullName    string          `gorm:"size:150;not null" json:"full_name"`
	Phone       string          `gorm:"size:30;not null;uniqueIndex" json:"phone"`
	Email       string          `gorm:"size:150" json:"email"`
	Department  string          `gorm:"size:30;not null;index" json:"department"`
	Address     string          `gorm:"type:text" json:"address"`
	Reference   string          `gorm:"type:text" json:"reference"`
	TotalOrders int             `gorm:"not null;default:0" json:"total_orders"`
	TotalSpent  decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_spent"`
	IsActive    *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type CustomerInput struct {
	FullName   string `json:"full_name" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	Email      string `json:"email"`
	Department string `json:"department" binding:"required"`
	Address    string `json:"address"`
	Reference  string `json:"reference"`
}

// NormalizedDepartment maps webhook-style department names (LA_PAZ) onto the
// stocking-location spelling (LA PAZ).
func (in *CustomerInput) NormalizedDepartment() string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(in.Department)), "_", " ")
}

func GetCustomerById(tx *gorm.DB, customerId string) (*Customer, error) {
	var customer Customer
	err := tx.Where("customer_id = ?", customerId).First(&customer).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &utils.NotFoundError{Entity: "customer", ID: customerId}
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindOrCreateCustomer resolves a customer by phone, refreshing the stored
// snapshot on a hit and creating the record on a miss. An inactive customer
// cannot place orders.
func FindOrCreateCustomer(tx *gorm.DB, input *CustomerInput) (*Customer, bool, error) {
	department := input.NormalizedDepartment()

	var customer Customer
	err := tx.Where("phone = ?", input.Phone).First(&customer).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	if err == nil {
		if customer.IsActive != nil && !*customer.IsActive {
			return nil, false, &utils.ValidationError{
				Field:   "customer",
				Message: "customer " + customer.CustomerID + " is inactive and cannot place orders",
			}
		}
		updates := map[string]interface{}{
			"full_name":  input.FullName,
			"email":      input.Email,
			"department": department,
			"address":    input.Address,
			"reference":  input.Reference,
		}
		if err := tx.Model(&customer).Updates(updates).Error; err != nil {
			return nil, false, err
		}
		return &customer, false, nil
	}

	customerId, err := NextCustomerId(tx)
	if err != nil {
		return nil, false, err
	}
	customer = Customer{
		CustomerID: customerId,
		FullName:   input.FullName,
		Phone:      input.Phone,
		Email:      input.Email,
		Department: department,
		Address:    input.Address,
		Reference:  input.Reference,
		IsActive:   utils.NewTrue(),
	}
	if err := tx.Create(&customer).Error; err != nil {
		return nil, false, err
	}
	return &customer, true, nil
}
