package models

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AuditEntry is one immutable quantity movement. The table is append-only:
// entries are never updated or deleted, and the stock ledger must always be
// reconstructable as a fold over them in Seq order.
type AuditEntry struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index:idx_audit_biz_seq,priority:1;not null" json:"business_id"`
	Seq           int64           `gorm:"index:idx_audit_biz_seq,priority:2;not null" json:"seq"`
	EntryTime     time.Time       `gorm:"not null" json:"entry_time"`
	Kind          TransactionKind `gorm:"type:enum('RECEIVE','PRODUCE_CONSUME','PRODUCE_OUTPUT','PACK_CONSUME','PACK_OUTPUT','DISPATCH','ADJUST');not null" json:"kind"`
	ItemId        int             `gorm:"index;not null" json:"item_id"`
	Partition     StockPartition  `gorm:"type:enum('IN_HOUSE','THIRD_PARTY');default:IN_HOUSE" json:"partition"`
	QtyDelta      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_delta"`
	ValueDelta    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value_delta"`
	ReferenceType string          `gorm:"size:20;not null" json:"reference_type"` // GRN, BATCH, PACK, DISPATCH, ADJ
	ReferenceId   string          `gorm:"size:64;index;not null" json:"reference_id"`
	LotNumber     string          `gorm:"size:64" json:"lot_number"`
	Description   string          `gorm:"size:255" json:"description"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// AuditTrailFilter narrows read-only audit queries. Nil fields are ignored.
type AuditTrailFilter struct {
	ItemId        *int
	Kind          *TransactionKind
	ReferenceId   *string
	FromEntryTime *time.Time
	ToEntryTime   *time.Time
}

// GetAuditTrail returns audit entries for the calling business in posting
// order, optionally filtered.
func GetAuditTrail(ctx context.Context, filter AuditTrailFilter) ([]*AuditEntry, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, ErrDBNotInitialized
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if filter.ItemId != nil && *filter.ItemId > 0 {
		dbCtx = dbCtx.Where("item_id = ?", *filter.ItemId)
	}
	if filter.Kind != nil {
		dbCtx = dbCtx.Where("kind = ?", *filter.Kind)
	}
	if filter.ReferenceId != nil && *filter.ReferenceId != "" {
		dbCtx = dbCtx.Where("reference_id = ?", *filter.ReferenceId)
	}
	if filter.FromEntryTime != nil {
		dbCtx = dbCtx.Where("entry_time >= ?", *filter.FromEntryTime)
	}
	if filter.ToEntryTime != nil {
		dbCtx = dbCtx.Where("entry_time <= ?", *filter.ToEntryTime)
	}

	var entries []*AuditEntry
	if err := dbCtx.Order("seq, id").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadAuditTrail loads the complete trail for a business in fold order.
// Used by replay (workflow.ReplayLedger) and the reconciliation check.
func LoadAuditTrail(tx *gorm.DB, businessId string) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	if err := tx.
		Where("business_id = ?", businessId).
		Order("seq, id").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// NextAuditSeq returns the next per-business sequence number. Must be called
// inside the posting transaction, under the business posting lock.
func NextAuditSeq(tx *gorm.DB, businessId string) (int64, error) {
	var maxSeq int64
	if err := tx.Model(&AuditEntry{}).
		Where("business_id = ?", businessId).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	return maxSeq + 1, nil
}
