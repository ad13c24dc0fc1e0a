package models

import (
	"context"
	"fmt"
	"io"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ValuationRow is one line of the stock valuation report: a cached balance
// joined with its item master data.
type ValuationRow struct {
	ItemId        int             `json:"item_id"`
	ItemName      string          `json:"item_name"`
	Sku           string          `json:"sku"`
	Category      ItemCategory    `json:"category"`
	UnitOfMeasure string          `json:"unit_of_measure"`
	Partition     StockPartition  `json:"partition"`
	Qty           decimal.Decimal `json:"qty"`
	Value         decimal.Decimal `json:"value"`
	AvgUnitCost   decimal.Decimal `json:"avg_unit_cost"`
}

// GetValuationReport returns every non-empty balance with its weighted-average
// unit cost, ordered by category then item name.
func GetValuationReport(ctx context.Context) ([]*ValuationRow, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, ErrDBNotInitialized
	}

	sql := `
SELECT
    items.id AS item_id,
    items.name AS item_name,
    items.sku,
    items.category,
    items.unit_of_measure,
    ss.partition,
    ss.qty,
    ss.value,
    CASE WHEN ss.qty = 0 THEN 0 ELSE ss.value / ss.qty END AS avg_unit_cost
FROM
    stock_summaries AS ss
        JOIN
    items ON items.id = ss.item_id
WHERE
    ss.business_id = @businessId AND ss.qty <> 0
ORDER BY items.category, items.name, ss.partition;
`

	var rows []*ValuationRow
	err := db.WithContext(ctx).
		Raw(sql, map[string]interface{}{"businessId": businessId}).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TotalStockValue sums the report's value column.
func TotalStockValue(rows []*ValuationRow) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Value)
	}
	return total
}

// WriteValuationExcel streams the valuation report as an xlsx workbook.
func WriteValuationExcel(ctx context.Context, w io.Writer) error {
	rows, err := GetValuationReport(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheetName := "Valuation"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headings := []string{"Item", "SKU", "Category", "UoM", "Partition", "Qty", "AvgUnitCost", "Value"}
	for i, h := range headings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}

	for i, r := range rows {
		rowNo := i + 2
		f.SetCellValue(sheetName, "A"+fmt.Sprint(rowNo), r.ItemName)
		f.SetCellValue(sheetName, "B"+fmt.Sprint(rowNo), r.Sku)
		f.SetCellValue(sheetName, "C"+fmt.Sprint(rowNo), string(r.Category))
		f.SetCellValue(sheetName, "D"+fmt.Sprint(rowNo), r.UnitOfMeasure)
		f.SetCellValue(sheetName, "E"+fmt.Sprint(rowNo), string(r.Partition))
		f.SetCellValue(sheetName, "F"+fmt.Sprint(rowNo), r.Qty.InexactFloat64())
		f.SetCellValue(sheetName, "G"+fmt.Sprint(rowNo), r.AvgUnitCost.Round(4).InexactFloat64())
		f.SetCellValue(sheetName, "H"+fmt.Sprint(rowNo), r.Value.InexactFloat64())
	}

	totalRow := len(rows) + 2
	f.SetCellValue(sheetName, "A"+fmt.Sprint(totalRow), "Total")
	f.SetCellValue(sheetName, "H"+fmt.Sprint(totalRow), TotalStockValue(rows).InexactFloat64())

	return f.Write(w)
}
