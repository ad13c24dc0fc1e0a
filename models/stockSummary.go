package models

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockSummary is the persisted read cache of the ledger: one row per
// (item, partition) holding the current quantity and asset value. It exists
// for cheap balance reads and reports; the audit trail stays the source of
// truth and the cache is rewritten from the posted ledger in the same
// transaction as every posting.
type StockSummary struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"uniqueIndex:idx_summary_biz_item_part,priority:1;not null" json:"business_id"`
	ItemId     int             `gorm:"uniqueIndex:idx_summary_biz_item_part,priority:2;not null" json:"item_id"`
	Item       *Item           `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	Partition  StockPartition  `gorm:"uniqueIndex:idx_summary_biz_item_part,priority:3;type:enum('IN_HOUSE','THIRD_PARTY');default:IN_HOUSE" json:"partition"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	Value      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// WeightedAvgCost mirrors StockBalance: derived, not stored.
func (s *StockSummary) WeightedAvgCost() decimal.Decimal {
	if s.Qty.IsZero() {
		return decimal.Zero
	}
	return s.Value.Div(s.Qty)
}

// SyncStockSummaries rewrites the cache rows touched by a posting from the
// ledger's post-transaction balances. Runs inside the posting transaction.
func SyncStockSummaries(tx *gorm.DB, businessId string, ledger *StockLedger, entries []*AuditEntry) error {
	touched := make(map[LedgerKey]bool, len(entries))
	for _, e := range entries {
		touched[LedgerKey{ItemId: e.ItemId, Partition: e.Partition}] = true
	}
	for key := range touched {
		balance := ledger.Balance(key.ItemId, key.Partition)
		summary := StockSummary{
			BusinessId: businessId,
			ItemId:     key.ItemId,
			Partition:  key.Partition,
			Qty:        balance.Qty,
			Value:      balance.Value,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "business_id"}, {Name: "item_id"}, {Name: "partition"}},
			DoUpdates: clause.AssignmentColumns([]string{"qty", "value", "updated_at"}),
		}).Create(&summary).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// RewriteStockSummaries drops and rebuilds every cache row for a business from
// a replayed ledger. Used by the rebuild tool.
func RewriteStockSummaries(tx *gorm.DB, businessId string, ledger *StockLedger) error {
	if err := tx.Where("business_id = ?", businessId).Delete(&StockSummary{}).Error; err != nil {
		return err
	}
	for _, balance := range ledger.Balances() {
		summary := StockSummary{
			BusinessId: businessId,
			ItemId:     balance.ItemId,
			Partition:  balance.Partition,
			Qty:        balance.Qty,
			Value:      balance.Value,
		}
		if err := tx.Create(&summary).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetStockSummaries returns the cached balances for the calling business,
// optionally narrowed to one item.
func GetStockSummaries(ctx context.Context, itemId *int) ([]*StockSummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, ErrDBNotInitialized
	}

	dbCtx := db.WithContext(ctx).Preload("Item").Where("business_id = ?", businessId)
	if itemId != nil && *itemId > 0 {
		dbCtx = dbCtx.Where("item_id = ?", *itemId)
	}
	var summaries []*StockSummary
	if err := dbCtx.Order("item_id, `partition`").Find(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetReorderAlerts lists items whose total on-hand quantity has fallen to or
// below their reorder level.
func GetReorderAlerts(ctx context.Context) ([]*StockSummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, ErrDBNotInitialized
	}

	var summaries []*StockSummary
	err := db.WithContext(ctx).Preload("Item").
		Where("business_id = ?", businessId).
		Where("item_id IN (?)", db.Model(&StockSummary{}).
			Select("item_id").
			Where("business_id = ?", businessId).
			Group("item_id").
			Having("SUM(qty) <= (SELECT reorder_level FROM items WHERE items.id = stock_summaries.item_id)")).
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
