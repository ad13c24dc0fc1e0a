package workflow

import (
	"context"

	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"gorm.io/gorm"
)

// PostStockAdjustment persists and posts a signed correction. The mandatory
// reason keeps the audit trail explainable: an adjustment entry with no reason
// is indistinguishable from a silent edit.
func PostStockAdjustment(ctx context.Context, input *models.NewStockAdjustment) (*models.StockAdjustment, *models.LedgerSnapshot, error) {
	var adjustment *models.StockAdjustment

	snapshot, err := PostTransaction(ctx, "PostStockAdjustment", func(tx *gorm.DB, businessId string, engine *models.TransactionEngine) ([]*models.AuditEntry, error) {
		if err := input.Validate(ctx, businessId); err != nil {
			return nil, err
		}

		adjNumber, err := models.NextDocumentNumber(tx, businessId, "ADJ")
		if err != nil {
			return nil, err
		}

		partition := input.Partition
		if partition == "" {
			partition = models.StockPartitionInHouse
		}
		doc := models.StockAdjustment{
			BusinessId:       businessId,
			AdjustmentNumber: adjNumber,
			ItemId:           input.ItemId,
			Partition:        partition,
			QtyDelta:         input.QtyDelta,
			UnitCost:         input.UnitCost,
			Reason:           input.Reason,
			Note:             input.Note,
		}
		if err := tx.Create(&doc).Error; err != nil {
			return nil, err
		}

		entries, err := engine.Post(doc.Transaction())
		if err != nil {
			return nil, err
		}
		adjustment = &doc
		return entries, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return adjustment, snapshot, nil
}
