package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LedgerDivergence describes one balance where the posted state and the audit
// trail replay disagree.
type LedgerDivergence struct {
	ItemId    int                   `json:"item_id"`
	Partition models.StockPartition `json:"partition"`
	Posted    models.StockBalance   `json:"posted"`
	Replayed  models.StockBalance   `json:"replayed"`
}

// VerifyLedger replays the business's audit trail and compares the result
// against the persisted stock summary cache. Any mismatch is returned loudly;
// divergence means a bug, not data to be papered over.
func VerifyLedger(ctx context.Context) ([]LedgerDivergence, error) {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, models.ErrDBNotInitialized
	}

	var divergences []LedgerDivergence
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trail, err := models.LoadAuditTrail(tx, businessId)
		if err != nil {
			return err
		}
		replayed := models.ReplayAuditTrail(trail)

		var summaries []*models.StockSummary
		if err := tx.Where("business_id = ?", businessId).Find(&summaries).Error; err != nil {
			return err
		}

		posted := make(map[models.LedgerKey]models.StockBalance, len(summaries))
		for _, s := range summaries {
			posted[models.LedgerKey{ItemId: s.ItemId, Partition: s.Partition}] = models.StockBalance{
				ItemId:    s.ItemId,
				Partition: s.Partition,
				Qty:       s.Qty,
				Value:     s.Value,
			}
		}

		seen := make(map[models.LedgerKey]bool)
		for _, balance := range replayed.Balances() {
			key := models.LedgerKey{ItemId: balance.ItemId, Partition: balance.Partition}
			seen[key] = true
			cached := posted[key]
			if !cached.Qty.Equal(balance.Qty) || !cached.Value.Equal(balance.Value) {
				divergences = append(divergences, LedgerDivergence{
					ItemId:    balance.ItemId,
					Partition: balance.Partition,
					Posted:    cached,
					Replayed:  balance,
				})
			}
		}
		for key, cached := range posted {
			if seen[key] {
				continue
			}
			if cached.Qty.IsZero() && cached.Value.IsZero() {
				continue
			}
			divergences = append(divergences, LedgerDivergence{
				ItemId:    key.ItemId,
				Partition: key.Partition,
				Posted:    cached,
				Replayed:  replayed.Balance(key.ItemId, key.Partition),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(divergences) > 0 {
		config.LogError(logger, moduleName, "VerifyLedger",
			fmt.Sprintf("%d diverged balances", len(divergences)), businessId, models.ErrLedgerDiverged)
		return divergences, models.ErrLedgerDiverged
	}
	logger.WithFields(logrus.Fields{"business_id": businessId}).Info("ledger.verify.clean")
	return nil, nil
}

// verifyLedgerInTx compares a just-posted in-memory ledger with a fresh replay
// of the trail as persisted in the same transaction.
func verifyLedgerInTx(tx *gorm.DB, businessId string, posted *models.StockLedger) error {
	trail, err := models.LoadAuditTrail(tx, businessId)
	if err != nil {
		return err
	}
	replayed := models.ReplayAuditTrail(trail)

	for _, balance := range posted.Balances() {
		rb := replayed.Balance(balance.ItemId, balance.Partition)
		if !rb.Qty.Equal(balance.Qty) || !rb.Value.Equal(balance.Value) {
			return fmt.Errorf("%w: item %d %s posted qty=%s value=%s, replayed qty=%s value=%s",
				models.ErrLedgerDiverged, balance.ItemId, balance.Partition,
				balance.Qty, balance.Value, rb.Qty, rb.Value)
		}
	}
	return nil
}
