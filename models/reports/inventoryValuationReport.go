package reports

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/andesdata/commerce_backend/config"
)

// InventoryValuationRow values one variant's stock at one location using its
// most recent purchase cost.
type InventoryValuationRow struct {
	ProductVariantID string          `json:"product_variant_id"`
	VariantName      string          `json:"variant_name"`
	Sku              *string         `json:"sku"`
	Location         string          `json:"location"`
	StockQuantity    int             `json:"stock_quantity"`
	LastUnitCost     decimal.Decimal `json:"last_unit_cost"`
	StockValue       decimal.Decimal `json:"stock_value"`
}

const valuationCacheKey = "report:inventory_valuation"
const valuationCacheTTL = 10 * time.Minute

// GetInventoryValuationReport values all on-hand stock. The result is cached
// in Redis for a few minutes since the query walks every purchase item.
func GetInventoryValuationReport(ctx context.Context) ([]*InventoryValuationRow, error) {
	var rows []*InventoryValuationRow
	if exists, err := config.GetRedisObject(valuationCacheKey, &rows); err == nil && exists {
		return rows, nil
	}

	sql := `
SELECT
    ir.product_variant_id,
    pv.variant_name,
    pv.sku,
    ir.location,
    ir.stock_quantity,
    COALESCE(last_cost.unit_cost, 0) AS last_unit_cost,
    ir.stock_quantity * COALESCE(last_cost.unit_cost, 0) AS stock_value
FROM
    inventory_records ir
        JOIN
    product_variants pv ON pv.product_variant_id = ir.product_variant_id
        LEFT JOIN
    (SELECT
        pi.product_variant_id,
            SUBSTRING_INDEX(GROUP_CONCAT(pi.unit_cost ORDER BY p.purchase_date DESC), ',', 1) AS unit_cost
    FROM
        purchase_items pi
    JOIN purchases p ON p.purchase_id = pi.purchase_id
    WHERE
        p.status = 'received'
    GROUP BY pi.product_variant_id) AS last_cost
    ON last_cost.product_variant_id = ir.product_variant_id
WHERE
    ir.stock_quantity > 0
ORDER BY ir.product_variant_id , ir.location;
`

	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&rows).Error; err != nil {
		return nil, err
	}

	if err := config.SetRedisObject(valuationCacheKey, rows, valuationCacheTTL); err != nil {
		config.GetLogger().WithError(err).Warn("valuation cache write failed")
	}
	return rows, nil
}

// MovementSummaryRow aggregates ledger activity per location over a window.
type MovementSummaryRow struct {
	Location      string `json:"location"`
	MovementType  string `json:"movement_type"`
	MovementCount int    `json:"movement_count"`
	TotalUnits    int    `json:"total_units"`
}

// GetMovementSummaryReport breaks down movement activity by location and
// type between two dates, both inclusive.
func GetMovementSummaryReport(ctx context.Context, fromDate time.Time, toDate time.Time) ([]*MovementSummaryRow, error) {
	sql := `
SELECT
    location,
    movement_type,
    COUNT(*) AS movement_count,
    SUM(ABS(quantity)) AS total_units
FROM
    inventory_movements
WHERE
    created_at BETWEEN @fromDate AND @toDate
GROUP BY location , movement_type
ORDER BY location , movement_type;
`

	var rows []*MovementSummaryRow
	db := config.GetDB()
	err := db.WithContext(ctx).Raw(sql,
		map[string]interface{}{"fromDate": fromDate, "toDate": toDate.AddDate(0, 0, 1)}).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExportValuationExcel streams the valuation report as an xlsx attachment.
func ExportValuationExcel(w http.ResponseWriter, r *http.Request) {
	f := excelize.NewFile()
	_, err := f.NewSheet("Sheet1")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := GetInventoryValuationReport(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Add headers
	f.SetCellValue("Sheet1", "A1", "Variant")
	f.SetCellValue("Sheet1", "B1", "Name")
	f.SetCellValue("Sheet1", "C1", "Sku")
	f.SetCellValue("Sheet1", "D1", "Location")
	f.SetCellValue("Sheet1", "E1", "Stock")
	f.SetCellValue("Sheet1", "F1", "UnitCost")
	f.SetCellValue("Sheet1", "G1", "StockValue")

	// Add data
	for i, d := range data {
		sku := ""
		if d.Sku != nil {
			sku = *d.Sku
		}
		f.SetCellValue("Sheet1", "A"+fmt.Sprint(i+2), d.ProductVariantID)
		f.SetCellValue("Sheet1", "B"+fmt.Sprint(i+2), d.VariantName)
		f.SetCellValue("Sheet1", "C"+fmt.Sprint(i+2), sku)
		f.SetCellValue("Sheet1", "D"+fmt.Sprint(i+2), d.Location)
		f.SetCellValue("Sheet1", "E"+fmt.Sprint(i+2), d.StockQuantity)
		f.SetCellValue("Sheet1", "F"+fmt.Sprint(i+2), d.LastUnitCost)
		f.SetCellValue("Sheet1", "G"+fmt.Sprint(i+2), d.StockValue)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=inventory_valuation.xlsx")
	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write file", http.StatusInternalServerError)
	}
}
