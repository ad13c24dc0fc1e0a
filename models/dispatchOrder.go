package models

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
)

// DispatchOrder records finished goods leaving for a customer. Posting is a
// single step; every line must be coverable or the whole order is rejected.
type DispatchOrder struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"index;not null" json:"business_id"`
	OrderNumber  string          `gorm:"size:30;index;not null" json:"order_number"`
	CustomerId   int             `gorm:"not null" json:"customer_id"`
	Customer     *Customer       `gorm:"foreignKey:CustomerId" json:"customer,omitempty"`
	DispatchDate time.Time       `gorm:"not null" json:"dispatch_date"`
	Lines        []DispatchLine  `gorm:"foreignKey:DispatchOrderId" json:"lines"`
	TotalValue   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_value"`
	Notes        string          `gorm:"size:255" json:"notes"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type DispatchLine struct {
	ID              int             `gorm:"primary_key" json:"id"`
	DispatchOrderId int             `gorm:"index;not null" json:"dispatch_order_id"`
	ItemId          int             `gorm:"not null" json:"item_id"`
	Item            *Item           `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	LotNumber       string          `gorm:"size:64" json:"lot_number"`
}

type NewDispatchOrder struct {
	CustomerId   int               `json:"customer_id" binding:"required"`
	DispatchDate time.Time         `json:"dispatch_date"`
	Lines        []NewDispatchLine `json:"lines" binding:"required,dive"`
	Notes        string            `json:"notes"`
}

type NewDispatchLine struct {
	ItemId    int             `json:"item_id" binding:"required"`
	Qty       decimal.Decimal `json:"qty" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"required"`
	LotNumber string          `json:"lot_number"`
}

// validateLines checks the quantity and sale price on every line.
func (input *NewDispatchOrder) validateLines() error {
	if len(input.Lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "dispatch order has no lines"}
	}
	for _, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return &ValidationError{Field: "qty", Reason: "must be positive"}
		}
		if !line.UnitPrice.IsPositive() {
			return &ValidationError{Field: "unit_price", Reason: "must be positive"}
		}
	}
	return nil
}

func (input *NewDispatchOrder) Validate(ctx context.Context, businessId string) error {
	if err := input.validateLines(); err != nil {
		return err
	}
	if _, err := utils.FetchModel[Customer](ctx, businessId, input.CustomerId); err != nil {
		return &ValidationError{Field: "customer_id", Reason: "customer not found"}
	}
	for _, line := range input.Lines {
		item, err := utils.FetchModel[Item](ctx, businessId, line.ItemId)
		if err != nil {
			return &ValidationError{Field: "item_id", Reason: "item not found"}
		}
		if item.Category != ItemCategoryFinishedGood {
			return &ValidationError{Field: "item_id", Reason: "dispatch orders move finished goods only"}
		}
	}
	return nil
}

// InvoiceTotal derives the invoice amount from the order's lines.
func (order *DispatchOrder) InvoiceTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range order.Lines {
		total = total.Add(line.Qty.Mul(line.UnitPrice))
	}
	return total.Round(4)
}

// Transaction maps the order to the engine command.
func (order *DispatchOrder) Transaction() *DispatchTransaction {
	txn := &DispatchTransaction{OrderNumber: order.OrderNumber}
	for _, line := range order.Lines {
		txn.Lines = append(txn.Lines, ConsumeLine{
			ItemId:    line.ItemId,
			Partition: StockPartitionInHouse,
			Qty:       line.Qty,
			LotNumber: line.LotNumber,
		})
	}
	return txn
}

func GetDispatchOrder(ctx context.Context, id int) (*DispatchOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchModel[DispatchOrder](ctx, businessId, id, "Lines", "Lines.Item", "Customer")
}

func ListDispatchOrders(ctx context.Context) ([]*DispatchOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchAllModels[DispatchOrder](ctx, businessId, "Lines", "Customer")
}
