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

// CreatePackingRun records a planned run. Stock moves on completion.
func CreatePackingRun(ctx context.Context, input *models.NewPackingRun) (*models.PackingRun, error) {
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

	var run models.PackingRun
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		runNumber, err := models.NextDocumentNumber(tx, businessId, "PACK")
		if err != nil {
			return err
		}
		run = models.PackingRun{
			BusinessId:   businessId,
			RunNumber:    runNumber,
			OutputItemId: input.OutputItemId,
			OutputQty:    input.OutputQty,
			BulkQty:      input.BulkQty,
			Source:       input.Source,
			Status:       models.PackingRunStatusCreated,
			LotNumber:    fmt.Sprintf("LOT-%s", runNumber),
		}
		for _, m := range input.Materials {
			run.Materials = append(run.Materials, models.PackingMaterial{
				ItemId:    m.ItemId,
				Qty:       m.Qty,
				LotNumber: m.LotNumber,
			})
		}
		return tx.Create(&run).Error
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CompletePackingRun posts the run: bulk out of the selected partition,
// packing materials out of in-house stock, finished goods in at the summed
// consumed cost. The bulk item is resolved from the finished good at this
// point, so an ambiguous legacy name mapping fails here with nothing moved.
func CompletePackingRun(ctx context.Context, runId int) (*models.PackingRun, *models.LedgerSnapshot, error) {
	var run *models.PackingRun

	snapshot, err := PostTransaction(ctx, "CompletePackingRun", func(tx *gorm.DB, businessId string, engine *models.TransactionEngine) ([]*models.AuditEntry, error) {
		var doc models.PackingRun
		err := tx.Preload("Materials").Preload("OutputItem").
			Where("business_id = ?", businessId).
			First(&doc, runId).Error
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		if doc.Status != models.PackingRunStatusCreated {
			return nil, &models.InvalidTransitionError{
				Entity: "packing run",
				From:   string(doc.Status),
				To:     string(models.PackingRunStatusCompleted),
			}
		}

		entries, err := engine.Post(doc.Transaction())
		if err != nil {
			return nil, err
		}

		// Record which bulk item the run actually drew from. With multiple
		// consume entries the bulk one is the first (the engine posts bulk
		// before materials).
		var sourceBulkItemId *int
		for _, entry := range entries {
			if entry.Kind == models.TransactionKindPackConsume {
				itemId := entry.ItemId
				sourceBulkItemId = &itemId
				break
			}
		}

		now := time.Now()
		err = tx.Model(&doc).Updates(map[string]interface{}{
			"Status":           models.PackingRunStatusCompleted,
			"SourceBulkItemId": sourceBulkItemId,
			"CompletedAt":      &now,
		}).Error
		if err != nil {
			return nil, err
		}
		run = &doc
		return entries, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return run, snapshot, nil
}
