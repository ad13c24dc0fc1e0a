package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"gorm.io/gorm"
)

// PostDispatchOrder persists and posts an outbound order in one step. Every
// line must be coverable by finished-good stock or the whole order is
// rejected; a shortfall error names the offending item.
func PostDispatchOrder(ctx context.Context, input *models.NewDispatchOrder) (*models.DispatchOrder, *models.LedgerSnapshot, error) {
	var order *models.DispatchOrder

	snapshot, err := PostTransaction(ctx, "PostDispatchOrder", func(tx *gorm.DB, businessId string, engine *models.TransactionEngine) ([]*models.AuditEntry, error) {
		if err := input.Validate(ctx, businessId); err != nil {
			return nil, err
		}

		orderNumber, err := models.NextDocumentNumber(tx, businessId, "DISPATCH")
		if err != nil {
			return nil, err
		}

		dispatchDate := input.DispatchDate
		if dispatchDate.IsZero() {
			dispatchDate = time.Now()
		}
		doc := models.DispatchOrder{
			BusinessId:   businessId,
			OrderNumber:  orderNumber,
			CustomerId:   input.CustomerId,
			DispatchDate: dispatchDate,
			Notes:        input.Notes,
		}
		for _, line := range input.Lines {
			doc.Lines = append(doc.Lines, models.DispatchLine{
				ItemId:    line.ItemId,
				Qty:       line.Qty,
				UnitPrice: line.UnitPrice,
				LotNumber: line.LotNumber,
			})
		}
		doc.TotalValue = doc.InvoiceTotal()
		if err := tx.Create(&doc).Error; err != nil {
			return nil, err
		}

		entries, err := engine.Post(doc.Transaction())
		if err != nil {
			return nil, err
		}
		order = &doc
		return entries, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, snapshot, nil
}
