package models

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
)

// PackingRun converts bulk product plus packing materials into finished goods.
// Source says which bulk partition the run draws from: BATCH pulls in-house
// production output, GRN pulls third-party bulk. The bulk item itself is
// resolved from the finished good at completion time, preferring the explicit
// SourceBulkItemId link.
type PackingRun struct {
	ID               int               `gorm:"primary_key" json:"id"`
	BusinessId       string            `gorm:"index;not null" json:"business_id"`
	RunNumber        string            `gorm:"size:30;index;not null" json:"run_number"`
	OutputItemId     int               `gorm:"not null" json:"output_item_id"`
	OutputItem       *Item             `gorm:"foreignKey:OutputItemId" json:"output_item,omitempty"`
	OutputQty        decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"output_qty"`
	BulkQty          decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"bulk_qty"`
	Source           PackingSourceType `gorm:"type:enum('BATCH','GRN');default:BATCH" json:"source"`
	SourceBulkItemId *int              `json:"source_bulk_item_id"`
	Status           PackingRunStatus  `gorm:"type:enum('Created','Completed');default:Created" json:"status"`
	LotNumber        string            `gorm:"size:64" json:"lot_number"`
	Materials        []PackingMaterial `gorm:"foreignKey:PackingRunId" json:"materials"`
	CompletedAt      *time.Time        `json:"completed_at"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type PackingMaterial struct {
	ID           int             `gorm:"primary_key" json:"id"`
	PackingRunId int             `gorm:"index;not null" json:"packing_run_id"`
	ItemId       int             `gorm:"not null" json:"item_id"`
	Item         *Item           `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	Qty          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	LotNumber    string          `gorm:"size:64" json:"lot_number"`
}

type NewPackingRun struct {
	OutputItemId int                  `json:"output_item_id" binding:"required"`
	OutputQty    decimal.Decimal      `json:"output_qty" binding:"required"`
	BulkQty      decimal.Decimal      `json:"bulk_qty" binding:"required"`
	Source       PackingSourceType    `json:"source" binding:"required"`
	Materials    []NewPackingMaterial `json:"materials"`
}

type NewPackingMaterial struct {
	ItemId    int             `json:"item_id" binding:"required"`
	Qty       decimal.Decimal `json:"qty" binding:"required"`
	LotNumber string          `json:"lot_number"`
}

func (input *NewPackingRun) Validate(ctx context.Context, businessId string) error {
	if !input.OutputQty.IsPositive() {
		return &ValidationError{Field: "output_qty", Reason: "must be positive"}
	}
	if !input.BulkQty.IsPositive() {
		return &ValidationError{Field: "bulk_qty", Reason: "must be positive"}
	}
	output, err := utils.FetchModel[Item](ctx, businessId, input.OutputItemId)
	if err != nil {
		return &ValidationError{Field: "output_item_id", Reason: "item not found"}
	}
	if output.Category != ItemCategoryFinishedGood {
		return &ValidationError{Field: "output_item_id", Reason: "packing output must be a finished good"}
	}
	for _, m := range input.Materials {
		if !m.Qty.IsPositive() {
			return &ValidationError{Field: "materials", Reason: "material qty must be positive"}
		}
		item, err := utils.FetchModel[Item](ctx, businessId, m.ItemId)
		if err != nil {
			return &ValidationError{Field: "materials", Reason: "material item not found"}
		}
		if item.Category != ItemCategoryPacking {
			return &ValidationError{Field: "materials", Reason: "packing runs consume packing materials only"}
		}
	}
	return nil
}

// Transaction maps the run to the engine command.
func (run *PackingRun) Transaction() *PackTransaction {
	txn := &PackTransaction{
		RunNumber:    run.RunNumber,
		OutputItemId: run.OutputItemId,
		OutputQty:    run.OutputQty,
		BulkQty:      run.BulkQty,
		Source:       run.Source,
		LotNumber:    run.LotNumber,
	}
	for _, m := range run.Materials {
		txn.Materials = append(txn.Materials, ConsumeLine{
			ItemId:    m.ItemId,
			Partition: StockPartitionInHouse,
			Qty:       m.Qty,
			LotNumber: m.LotNumber,
		})
	}
	return txn
}

func GetPackingRun(ctx context.Context, id int) (*PackingRun, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchModel[PackingRun](ctx, businessId, id, "Materials", "Materials.Item", "OutputItem")
}

func ListPackingRuns(ctx context.Context) ([]*PackingRun, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchAllModels[PackingRun](ctx, businessId, "OutputItem")
}
