package models

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
)

// GoodsReceipt (GRN) records inbound stock with its actual landed unit costs.
// The document is immutable once posted; corrections go through adjustments.
type GoodsReceipt struct {
	ID          int                `gorm:"primary_key" json:"id"`
	BusinessId  string             `gorm:"index;not null" json:"business_id"`
	GrnNumber   string             `gorm:"size:30;index;not null" json:"grn_number"`
	SupplierId  int                `gorm:"not null" json:"supplier_id"`
	Supplier    *Supplier          `gorm:"foreignKey:SupplierId" json:"supplier,omitempty"`
	ReceiptDate time.Time          `gorm:"not null" json:"receipt_date"`
	Lines       []GoodsReceiptLine `gorm:"foreignKey:GoodsReceiptId" json:"lines"`
	Notes       string             `gorm:"size:255" json:"notes"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

type GoodsReceiptLine struct {
	ID             int             `gorm:"primary_key" json:"id"`
	GoodsReceiptId int             `gorm:"index;not null" json:"goods_receipt_id"`
	ItemId         int             `gorm:"not null" json:"item_id"`
	Item           *Item           `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	Qty            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	LotNumber      string          `gorm:"size:64" json:"lot_number"`
}

type NewGoodsReceipt struct {
	SupplierId  int                   `json:"supplier_id" binding:"required"`
	ReceiptDate time.Time             `json:"receipt_date"`
	Lines       []NewGoodsReceiptLine `json:"lines" binding:"required,dive"`
	Notes       string                `json:"notes"`
}

type NewGoodsReceiptLine struct {
	ItemId    int             `json:"item_id" binding:"required"`
	Qty       decimal.Decimal `json:"qty" binding:"required"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	LotNumber string          `json:"lot_number"`
}

// Validate checks the whole document before anything posts: all lines good or
// nothing moves.
func (input *NewGoodsReceipt) Validate(ctx context.Context, businessId string) error {
	if len(input.Lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "goods receipt has no lines"}
	}
	if _, err := utils.FetchModel[Supplier](ctx, businessId, input.SupplierId); err != nil {
		return &ValidationError{Field: "supplier_id", Reason: "supplier not found"}
	}
	for _, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return &ValidationError{Field: "qty", Reason: "must be positive"}
		}
		if !line.UnitCost.IsPositive() {
			return &ValidationError{Field: "unit_cost", Reason: "must be positive"}
		}
		item, err := utils.FetchModel[Item](ctx, businessId, line.ItemId)
		if err != nil {
			return &ValidationError{Field: "item_id", Reason: "item not found"}
		}
		if item.Category == ItemCategoryFinishedGood {
			return &ValidationError{Field: "item_id", Reason: "finished goods are produced by packing, not received"}
		}
	}
	return nil
}

// Transaction maps the document to the engine command.
func (grn *GoodsReceipt) Transaction() *ReceiveTransaction {
	txn := &ReceiveTransaction{GrnNumber: grn.GrnNumber}
	for _, line := range grn.Lines {
		txn.Lines = append(txn.Lines, ReceiveLine{
			ItemId:    line.ItemId,
			Qty:       line.Qty,
			UnitCost:  line.UnitCost,
			LotNumber: line.LotNumber,
		})
	}
	return txn
}

func GetGoodsReceipt(ctx context.Context, id int) (*GoodsReceipt, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchModel[GoodsReceipt](ctx, businessId, id, "Lines", "Lines.Item", "Supplier")
}

func ListGoodsReceipts(ctx context.Context) ([]*GoodsReceipt, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchAllModels[GoodsReceipt](ctx, businessId, "Lines", "Supplier")
}
