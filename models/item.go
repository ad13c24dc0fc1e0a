package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Item is master data. The transaction engine never mutates it; running stock
// lives in the ledger keyed by item id.
//
// SourceBulkItemId is the explicit link from a finished good to the bulk item
// it is packed from. It replaces the legacy name-match heuristic (which
// survives only as a migration aid in resolvePackingSource).
type Item struct {
	ID               int             `gorm:"primary_key" json:"id"`
	BusinessId       string          `gorm:"index;not null" json:"business_id"`
	Name             string          `gorm:"size:100;not null" json:"name"`
	Sku              string          `gorm:"size:100" json:"sku"`
	Category         ItemCategory    `gorm:"type:enum('RAW','BULK','PACKING','FINISHED_GOOD');not null" json:"category"`
	UnitOfMeasure    string          `gorm:"size:20;not null" json:"unit_of_measure"`
	ReorderLevel     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_level"`
	SourceBulkItemId *int            `gorm:"index" json:"source_bulk_item_id"`
	IsActive         *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewItem struct {
	Name             string          `json:"name" binding:"required"`
	Sku              string          `json:"sku"`
	Category         ItemCategory    `json:"category" binding:"required"`
	UnitOfMeasure    string          `json:"unit_of_measure" binding:"required"`
	ReorderLevel     decimal.Decimal `json:"reorder_level"`
	SourceBulkItemId *int            `json:"source_bulk_item_id"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewItem) validate(ctx context.Context, businessId string, id int) error {
	if input.ReorderLevel.IsNegative() {
		return &ValidationError{Field: "reorder_level", Reason: "must not be negative"}
	}
	if err := utils.ValidateUnique[Item](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if input.SourceBulkItemId != nil {
		if input.Category != ItemCategoryFinishedGood {
			return &ValidationError{Field: "source_bulk_item_id", Reason: "only finished goods reference a source bulk item"}
		}
		source, err := utils.FetchModel[Item](ctx, businessId, *input.SourceBulkItemId)
		if err != nil {
			return errors.New("source bulk item not found")
		}
		if source.Category != ItemCategoryBulk {
			return &ValidationError{Field: "source_bulk_item_id", Reason: "referenced item is not a bulk item"}
		}
	}
	return nil
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	item := Item{
		BusinessId:       businessId,
		Name:             input.Name,
		Sku:              input.Sku,
		Category:         input.Category,
		UnitOfMeasure:    input.UnitOfMeasure,
		ReorderLevel:     input.ReorderLevel,
		SourceBulkItemId: input.SourceBulkItemId,
		IsActive:         utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func UpdateItem(ctx context.Context, id int, input *NewItem) (*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	item, err := utils.FetchModel[Item](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	// Category changes after movements exist would re-route partitions; refuse.
	if item.Category != input.Category {
		db := config.GetDB()
		var moveCount int64
		if err := db.WithContext(ctx).Model(&AuditEntry{}).
			Where("business_id = ? AND item_id = ?", businessId, id).
			Count(&moveCount).Error; err != nil {
			return nil, err
		}
		if moveCount > 0 {
			return nil, &ValidationError{Field: "category", Reason: "cannot change category of an item with movements"}
		}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(item).Updates(map[string]interface{}{
		"Name":             input.Name,
		"Sku":              input.Sku,
		"Category":         input.Category,
		"UnitOfMeasure":    input.UnitOfMeasure,
		"ReorderLevel":     input.ReorderLevel,
		"SourceBulkItemId": input.SourceBulkItemId,
	}).Error
	if err != nil {
		return nil, err
	}
	return item, nil
}

func GetItem(ctx context.Context, id int) (*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchModel[Item](ctx, businessId, id)
}

func ListItems(ctx context.Context) ([]*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchAllModels[Item](ctx, businessId)
}

/* Catalog view used by the transaction engine */

// ItemCatalog is the read-only item lookup the transaction engine consumes.
// The engine never touches the database itself; the posting workflow hands it
// a catalog bound to the surrounding transaction.
type ItemCatalog interface {
	ItemById(id int) (*Item, error)
	BulkItems() ([]*Item, error)
}

type dbItemCatalog struct {
	tx         *gorm.DB
	businessId string
}

// NewDBItemCatalog binds an ItemCatalog to a gorm transaction.
func NewDBItemCatalog(tx *gorm.DB, businessId string) ItemCatalog {
	return &dbItemCatalog{tx: tx, businessId: businessId}
}

func (c *dbItemCatalog) ItemById(id int) (*Item, error) {
	var item Item
	if err := c.tx.Where("business_id = ?", c.businessId).First(&item, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &item, nil
}

func (c *dbItemCatalog) BulkItems() ([]*Item, error) {
	var items []*Item
	if err := c.tx.
		Where("business_id = ? AND category = ?", c.businessId, ItemCategoryBulk).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
