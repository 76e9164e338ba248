package models

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

type Product struct {
	ProductID         string    `gorm:"primary_key;size:20" json:"product_id"`
	ProductName       string    `gorm:"size:255;uniqueIndex;not null" json:"product_name"`
	ExternalProductID *string   `gorm:"size:50;index" json:"external_product_id"`
	Category          string    `gorm:"size:100;default:ROPA_Y_MODA" json:"category"`
	IsActive          *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Variants []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
}

type ProductVariant struct {
	ProductVariantID  string          `gorm:"primary_key;size:30" json:"product_variant_id"`
	ProductID         string          `gorm:"size:20;index;not null" json:"product_id"`
	VariantName       string          `gorm:"size:255;index;not null" json:"variant_name"`
	Sku               *string         `gorm:"size:50;uniqueIndex" json:"sku"`
	ExternalVariantID *string         `gorm:"size:50;index" json:"external_variant_id"`
	UnitCost          decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"unit_cost"`
	IsActive          *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// VariantInput is the catalog-facing shape of an order/purchase line: any of
// the three identifiers may be present, resolution cascades in this order.
type VariantInput struct {
	ExternalProductID *string `json:"external_product_id"`
	ExternalVariantID *string `json:"external_variant_id"`
	ProductName       string  `json:"product_name" binding:"required"`
	Sku               *string `json:"sku"`
}

var skuCleanPattern = regexp.MustCompile(`[^A-Za-z0-9]`)

func GetVariantById(tx *gorm.DB, variantId string) (*ProductVariant, error) {
	var variant ProductVariant
	err := tx.Where("product_variant_id = ?", variantId).First(&variant).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &utils.NotFoundError{Entity: "product variant", ID: variantId}
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// FindOrCreateVariant resolves an order/purchase line to a catalog variant.
// Resolution cascades: external variant id, then sku, then exact variant name;
// a miss on all three auto-creates the parent product, the variant and its
// per-location inventory records (stock 0). Identifiers learned from the input
// are backfilled onto matched rows. The second return reports whether a new
// variant was created.
func FindOrCreateVariant(tx *gorm.DB, input VariantInput) (*ProductVariant, bool, error) {
	if strings.TrimSpace(input.ProductName) == "" {
		return nil, false, &utils.ValidationError{Field: "product_name", Message: "product name is required"}
	}

	var variant ProductVariant

	if input.ExternalVariantID != nil && *input.ExternalVariantID != "" {
		err := tx.Where("external_variant_id = ?", *input.ExternalVariantID).First(&variant).Error
		if err == nil {
			return &variant, false, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, false, err
		}
	}

	if input.Sku != nil && *input.Sku != "" {
		err := tx.Where("sku = ?", *input.Sku).First(&variant).Error
		if err == nil {
			if input.ExternalVariantID != nil && *input.ExternalVariantID != "" && variant.ExternalVariantID == nil {
				variant.ExternalVariantID = input.ExternalVariantID
				if err := tx.Model(&ProductVariant{}).Where("product_variant_id = ?", variant.ProductVariantID).
					Update("external_variant_id", *input.ExternalVariantID).Error; err != nil {
					return nil, false, err
				}
			}
			return &variant, false, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, false, err
		}
	}

	err := tx.Where("variant_name = ?", input.ProductName).First(&variant).Error
	if err == nil {
		updates := map[string]interface{}{}
		if input.ExternalVariantID != nil && *input.ExternalVariantID != "" && variant.ExternalVariantID == nil {
			variant.ExternalVariantID = input.ExternalVariantID
			updates["external_variant_id"] = *input.ExternalVariantID
		}
		if input.Sku != nil && *input.Sku != "" && variant.Sku == nil {
			variant.Sku = input.Sku
			updates["sku"] = *input.Sku
		}
		if len(updates) > 0 {
			if err := tx.Model(&ProductVariant{}).Where("product_variant_id = ?", variant.ProductVariantID).
				Updates(updates).Error; err != nil {
				return nil, false, err
			}
		}
		return &variant, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	created, err := createProductAndVariant(tx, input)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func createProductAndVariant(tx *gorm.DB, input VariantInput) (*ProductVariant, error) {
	product, err := findOrCreateProduct(tx, input.ProductName, input.ExternalProductID)
	if err != nil {
		return nil, err
	}

	sku := input.Sku
	if sku == nil || *sku == "" {
		generated, err := generateSku(tx, input.ProductName)
		if err != nil {
			return nil, err
		}
		sku = &generated
	}

	var variantCount int64
	if err := tx.Model(&ProductVariant{}).Where("product_id = ?", product.ProductID).Count(&variantCount).Error; err != nil {
		return nil, err
	}

	variant := ProductVariant{
		ProductVariantID:  fmt.Sprintf("%s-%d", product.ProductID, variantCount+1),
		ProductID:         product.ProductID,
		VariantName:       input.ProductName,
		Sku:               sku,
		ExternalVariantID: input.ExternalVariantID,
		IsActive:          utils.NewTrue(),
	}
	if err := tx.Create(&variant).Error; err != nil {
		return nil, err
	}

	if err := EnsureInventoryRecords(tx, variant.ProductVariantID); err != nil {
		return nil, err
	}

	return &variant, nil
}

func findOrCreateProduct(tx *gorm.DB, productName string, externalProductId *string) (*Product, error) {
	var product Product

	if externalProductId != nil && *externalProductId != "" {
		err := tx.Where("external_product_id = ?", *externalProductId).First(&product).Error
		if err == nil {
			return &product, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	err := tx.Where("product_name = ?", productName).First(&product).Error
	if err == nil {
		if externalProductId != nil && *externalProductId != "" && product.ExternalProductID == nil {
			product.ExternalProductID = externalProductId
			if err := tx.Model(&Product{}).Where("product_id = ?", product.ProductID).
				Update("external_product_id", *externalProductId).Error; err != nil {
				return nil, err
			}
		}
		return &product, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	productId, err := NextProductId(tx)
	if err != nil {
		return nil, err
	}
	product = Product{
		ProductID:   productId,
		ProductName: productName,
		ExternalProductID: func() *string {
			if externalProductId != nil && *externalProductId != "" {
				return externalProductId
			}
			return nil
		}(),
		IsActive: utils.NewTrue(),
	}
	if err := tx.Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// generateSku derives a sku from the product name: strip to alphanumerics,
// uppercase, cap at 20 chars, suffix with the next 3-digit counter for that
// stem ("Chompa Roja" -> "CHOMPAROJA-001").
func generateSku(tx *gorm.DB, productName string) (string, error) {
	stem := skuCleanPattern.ReplaceAllString(strings.ToUpper(productName), "")
	if len(stem) > 20 {
		stem = stem[:20]
	}

	var last ProductVariant
	next := 1
	err := tx.Where("sku LIKE ?", stem+"-%").Order("sku DESC").First(&last).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return "", err
	}
	if err == nil && last.Sku != nil {
		parts := strings.Split(*last.Sku, "-")
		if len(parts) == 2 {
			if n, convErr := strconv.Atoi(parts[1]); convErr == nil {
				next = n + 1
			}
		}
	}

	return fmt.Sprintf("%s-%03d", stem, next), nil
}

func ListVariants(ctx context.Context, search string, page int) ([]ProductVariant, error) {
	db := config.GetDB()
	var variants []ProductVariant
	query := db.WithContext(ctx).Model(&ProductVariant{})
	if search != "" {
		query = query.Where("variant_name LIKE ? OR sku LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if page < 1 {
		page = 1
	}
	err := query.Order("product_variant_id").
		Limit(config.SearchLimit).Offset((page - 1) * config.SearchLimit).
		Find(&variants).Error
	return variants, err
}

// DeactivateProduct flags a product inactive and cascades to its variants.
func DeactivateProduct(tx *gorm.DB, productId string) error {
	var product Product
	err := tx.Where("product_id = ?", productId).First(&product).Error
	if err == gorm.ErrRecordNotFound {
		return &utils.NotFoundError{Entity: "product", ID: productId}
	}
	if err != nil {
		return err
	}
	if err := tx.Model(&Product{}).Where("product_id = ?", productId).
		Update("is_active", false).Error; err != nil {
		return err
	}
	return tx.Model(&ProductVariant{}).
		Where("product_id = ? AND is_active = ?", productId, true).
		Update("is_active", false).Error
}
