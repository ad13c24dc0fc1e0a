package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostGoodsReceipt validates, persists and posts a GRN in one transaction.
// Receiving is the only movement that sets a new actual cost; everything
// downstream is valued at weighted averages derived from receipts.
func PostGoodsReceipt(ctx context.Context, input *models.NewGoodsReceipt) (*models.GoodsReceipt, *models.LedgerSnapshot, error) {
	var grn *models.GoodsReceipt

	snapshot, err := PostTransaction(ctx, "PostGoodsReceipt", func(tx *gorm.DB, businessId string, engine *models.TransactionEngine) ([]*models.AuditEntry, error) {
		if err := input.Validate(ctx, businessId); err != nil {
			return nil, err
		}

		grnNumber, err := models.NextDocumentNumber(tx, businessId, "GRN")
		if err != nil {
			return nil, err
		}

		receiptDate := input.ReceiptDate
		if receiptDate.IsZero() {
			receiptDate = time.Now()
		}
		doc := models.GoodsReceipt{
			BusinessId:  businessId,
			GrnNumber:   grnNumber,
			SupplierId:  input.SupplierId,
			ReceiptDate: receiptDate,
			Notes:       input.Notes,
		}
		for _, line := range input.Lines {
			lot := line.LotNumber
			if lot == "" {
				lot = "LOT-" + uuid.NewString()[:8]
			}
			doc.Lines = append(doc.Lines, models.GoodsReceiptLine{
				ItemId:    line.ItemId,
				Qty:       line.Qty,
				UnitCost:  line.UnitCost,
				LotNumber: lot,
			})
		}
		if err := tx.Create(&doc).Error; err != nil {
			return nil, err
		}

		entries, err := engine.Post(doc.Transaction())
		if err != nil {
			return nil, err
		}
		grn = &doc
		return entries, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return grn, snapshot, nil
}
