package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"gorm.io/gorm"
)

// CreateProductionBatch plans a batch. Nothing moves in the ledger until the
// batch is issued.
func CreateProductionBatch(ctx context.Context, input *models.NewProductionBatch) (*models.ProductionBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	if err := input.Validate(ctx, businessId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if db == nil {
		return nil, models.ErrDBNotInitialized
	}

	plannedDate := input.PlannedDate
	if plannedDate.IsZero() {
		plannedDate = time.Now()
	}

	var batch models.ProductionBatch
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batchNumber, err := models.NextDocumentNumber(tx, businessId, "BATCH")
		if err != nil {
			return err
		}
		batch = models.ProductionBatch{
			BusinessId:  businessId,
			BatchNumber: batchNumber,
			RecipeId:    input.RecipeId,
			PlannedQty:  input.PlannedQty,
			Status:      models.BatchStatusPlanned,
			LotNumber:   fmt.Sprintf("LOT-%s", batchNumber),
			PlannedDate: plannedDate,
		}
		return tx.Create(&batch).Error
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// IssueProductionBatch moves the batch Planned -> InProgress and deducts its
// raw materials at current weighted-average cost. The caller must state the
// actual quantity taken for every recipe ingredient; planned quantities are
// never issued implicitly.
func IssueProductionBatch(ctx context.Context, batchId int, input *models.IssueBatchInput) (*models.ProductionBatch, *models.LedgerSnapshot, error) {
	var batch *models.ProductionBatch

	snapshot, err := PostTransaction(ctx, "IssueProductionBatch", func(tx *gorm.DB, businessId string, engine *models.TransactionEngine) ([]*models.AuditEntry, error) {
		var doc models.ProductionBatch
		err := tx.Preload("Recipe").Preload("Recipe.Ingredients").
			Where("business_id = ?", businessId).
			First(&doc, batchId).Error
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		if !doc.CanTransition(models.BatchStatusInProgress) {
			return nil, &models.InvalidTransitionError{
				Entity: "production batch",
				From:   string(doc.Status),
				To:     string(models.BatchStatusInProgress),
			}
		}

		if err := input.ValidateAgainstRecipe(doc.Recipe); err != nil {
			return nil, err
		}

		txn := &models.IssueTransaction{BatchNumber: doc.BatchNumber}
		for _, line := range input.Lines {
			txn.Lines = append(txn.Lines, models.ConsumeLine{
				ItemId:    line.ItemId,
				Partition: models.StockPartitionInHouse,
				Qty:       line.Qty,
				LotNumber: line.LotNumber,
			})
		}

		entries, err := engine.Post(txn)
		if err != nil {
			return nil, err
		}

		// Consumed values come from the audit entries so the batch's recorded
		// cost basis is exactly what left the ledger.
		for _, entry := range entries {
			material := models.ConsumedMaterial{
				ProductionBatchId: doc.ID,
				ItemId:            entry.ItemId,
				Qty:               entry.QtyDelta.Neg(),
				ConsumedValue:     entry.ValueDelta.Neg(),
				LotNumber:         entry.LotNumber,
			}
			if err := tx.Create(&material).Error; err != nil {
				return nil, err
			}
		}

		now := time.Now()
		err = tx.Model(&doc).Updates(map[string]interface{}{
			"Status":    models.BatchStatusInProgress,
			"StartedAt": &now,
		}).Error
		if err != nil {
			return nil, err
		}
		batch = &doc
		return entries, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return batch, snapshot, nil
}

// CompleteProductionBatch records actual output and moves the batch
// InProgress -> Completed. The output credit carries the batch's full consumed
// value, so yield loss raises the bulk item's unit cost instead of leaking
// value out of the ledger.
func CompleteProductionBatch(ctx context.Context, batchId int, input *models.CompleteBatchInput) (*models.ProductionBatch, *models.LedgerSnapshot, error) {
	var batch *models.ProductionBatch

	snapshot, err := PostTransaction(ctx, "CompleteProductionBatch", func(tx *gorm.DB, businessId string, engine *models.TransactionEngine) ([]*models.AuditEntry, error) {
		var doc models.ProductionBatch
		err := tx.Preload("Recipe").Preload("ConsumedMaterials").
			Where("business_id = ?", businessId).
			First(&doc, batchId).Error
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		if !doc.CanTransition(models.BatchStatusCompleted) {
			return nil, &models.InvalidTransitionError{
				Entity: "production batch",
				From:   string(doc.Status),
				To:     string(models.BatchStatusCompleted),
			}
		}

		consumedQty, consumedValue := doc.TotalConsumed()
		if err := input.ValidateAgainstConsumed(doc.BatchNumber, consumedQty); err != nil {
			return nil, err
		}
		lotNumber := input.LotNumber
		if lotNumber == "" {
			lotNumber = doc.LotNumber
		}
		txn := &models.CompleteOutputTransaction{
			BatchNumber:   doc.BatchNumber,
			OutputItemId:  doc.Recipe.OutputItemId,
			OutputQty:     input.ActualOutputQty,
			ConsumedQty:   consumedQty,
			ConsumedValue: consumedValue,
			LotNumber:     lotNumber,
		}

		entries, err := engine.Post(txn)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		err = tx.Model(&doc).Updates(map[string]interface{}{
			"Status":          models.BatchStatusCompleted,
			"ActualOutputQty": input.ActualOutputQty,
			"Wastage":         input.Wastage,
			"LotNumber":       lotNumber,
			"CompletedAt":     &now,
		}).Error
		if err != nil {
			return nil, err
		}
		batch = &doc
		return entries, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return batch, snapshot, nil
}
