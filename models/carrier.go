package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

type Carrier struct {
	CarrierID   string    `gorm:"primary_key;size:20" json:"carrier_id"`
	CompanyName string    `gorm:"size:100;not null;uniqueIndex" json:"company_name"`
	Contact     string    `gorm:"size:200" json:"contact"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Rates []CarrierRate `gorm:"foreignKey:CarrierID" json:"rates,omitempty"`
}

// CarrierRate is the commission table for one carrier in one location.
// Express applies when the order paid for priority shipping, otherwise
// delivery; return applies on returned orders.
type CarrierRate struct {
	RateID             string          `gorm:"primary_key;size:20" json:"rate_id"`
	CarrierID          string          `gorm:"size:20;not null;uniqueIndex:idx_carrier_location" json:"carrier_id"`
	Location           string          `gorm:"size:30;not null;uniqueIndex:idx_carrier_location" json:"location"`
	CommissionDelivery decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"commission_delivery"`
	CommissionReturn   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"commission_return"`
	CommissionExpress  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"commission_express"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type CarrierRateInput struct {
	Location           string          `json:"location" binding:"required"`
	CommissionDelivery decimal.Decimal `json:"commission_delivery" binding:"required"`
	CommissionReturn   decimal.Decimal `json:"commission_return" binding:"required"`
	CommissionExpress  decimal.Decimal `json:"commission_express" binding:"required"`
}

type CarrierInput struct {
	CompanyName string `json:"company_name" binding:"required"`
	Contact     string `json:"contact"`
}

// CreateCarrier registers a carrier; an existing company name returns the
// existing record.
func CreateCarrier(tx *gorm.DB, input CarrierInput) (*Carrier, bool, error) {
	var existing Carrier
	err := tx.Where("company_name = ?", input.CompanyName).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	carrierId, err := NextCarrierId(tx)
	if err != nil {
		return nil, false, err
	}
	carrier := Carrier{
		CarrierID:   carrierId,
		CompanyName: input.CompanyName,
		Contact:     input.Contact,
		IsActive:    utils.NewTrue(),
	}
	if err := tx.Create(&carrier).Error; err != nil {
		return nil, false, err
	}
	return &carrier, true, nil
}

func GetCarrierById(tx *gorm.DB, carrierId string) (*Carrier, error) {
	var carrier Carrier
	err := tx.Where("carrier_id = ?", carrierId).First(&carrier).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &utils.NotFoundError{Entity: "carrier", ID: carrierId}
	}
	if err != nil {
		return nil, err
	}
	return &carrier, nil
}

// FindRate returns nil, nil when the carrier has no rate configured for the
// location; the caller decides whether that is an error.
func FindRate(tx *gorm.DB, carrierId string, location string) (*CarrierRate, error) {
	var rate CarrierRate
	err := tx.Where("carrier_id = ? AND location = ?", carrierId, location).First(&rate).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// UpsertRate creates or replaces the carrier's commissions for a location.
func UpsertRate(tx *gorm.DB, carrierId string, input CarrierRateInput) (*CarrierRate, error) {
	if !ValidStockLocation(input.Location) {
		return nil, &utils.ValidationError{Field: "location", Message: "unknown stocking location: " + input.Location}
	}
	existing, err := FindRate(tx, carrierId, input.Location)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.CommissionDelivery = input.CommissionDelivery
		existing.CommissionReturn = input.CommissionReturn
		existing.CommissionExpress = input.CommissionExpress
		if err := tx.Save(existing).Error; err != nil {
			return nil, err
		}
		return existing, nil
	}

	rateId, err := NextRateId(tx)
	if err != nil {
		return nil, err
	}
	rate := CarrierRate{
		RateID:             rateId,
		CarrierID:          carrierId,
		Location:           input.Location,
		CommissionDelivery: input.CommissionDelivery,
		CommissionReturn:   input.CommissionReturn,
		CommissionExpress:  input.CommissionExpress,
	}
	if err := tx.Create(&rate).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func ListCarriers(ctx context.Context) ([]Carrier, error) {
	db := config.GetDB()
	var carriers []Carrier
	err := db.WithContext(ctx).Preload("Rates").Order("carrier_id").Find(&carriers).Error
	return carriers, err
}
