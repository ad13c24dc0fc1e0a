package models

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
)

// StockAdjustment is a signed correction with a mandatory reason. It is the
// only way to undo a posted document: completed batches, runs and dispatches
// never roll back.
type StockAdjustment struct {
	ID               int              `gorm:"primary_key" json:"id"`
	BusinessId       string           `gorm:"index;not null" json:"business_id"`
	AdjustmentNumber string           `gorm:"size:30;index;not null" json:"adjustment_number"`
	ItemId           int              `gorm:"not null" json:"item_id"`
	Item             *Item            `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	Partition        StockPartition   `gorm:"type:enum('IN_HOUSE','THIRD_PARTY');default:IN_HOUSE" json:"partition"`
	QtyDelta         decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"qty_delta"`
	UnitCost         decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Reason           AdjustmentReason `gorm:"size:30;not null" json:"reason"`
	Note             string           `gorm:"size:255" json:"note"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

type NewStockAdjustment struct {
	ItemId    int              `json:"item_id" binding:"required"`
	Partition StockPartition   `json:"partition"`
	QtyDelta  decimal.Decimal  `json:"qty_delta" binding:"required"`
	UnitCost  decimal.Decimal  `json:"unit_cost"`
	Reason    AdjustmentReason `json:"reason" binding:"required"`
	Note      string           `json:"note"`
}

func (input *NewStockAdjustment) Validate(ctx context.Context, businessId string) error {
	if input.QtyDelta.IsZero() {
		return &ValidationError{Field: "qty_delta", Reason: "must be non-zero"}
	}
	if input.Reason == "" {
		return &ValidationError{Field: "reason", Reason: "adjustment reason is required"}
	}
	if input.QtyDelta.IsPositive() && input.UnitCost.IsNegative() {
		return &ValidationError{Field: "unit_cost", Reason: "must not be negative"}
	}
	if _, err := utils.FetchModel[Item](ctx, businessId, input.ItemId); err != nil {
		return &ValidationError{Field: "item_id", Reason: "item not found"}
	}
	return nil
}

// Transaction maps the adjustment to the engine command.
func (adj *StockAdjustment) Transaction() *AdjustTransaction {
	return &AdjustTransaction{
		AdjustmentNumber: adj.AdjustmentNumber,
		ItemId:           adj.ItemId,
		Partition:        adj.Partition,
		QtyDelta:         adj.QtyDelta,
		UnitCost:         adj.UnitCost,
		Reason:           adj.Reason,
		Note:             adj.Note,
	}
}

func GetStockAdjustment(ctx context.Context, id int) (*StockAdjustment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchModel[StockAdjustment](ctx, businessId, id, "Item")
}

func ListStockAdjustments(ctx context.Context) ([]*StockAdjustment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchAllModels[StockAdjustment](ctx, businessId, "Item")
}
