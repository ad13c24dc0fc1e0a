package workflow

import (
	"context"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RebuildStockSummaries throws away the cached balances for a business and
// rewrites them from an audit trail replay. Safe to run any time: the trail is
// the source of truth and the cache carries no information of its own.
func RebuildStockSummaries(ctx context.Context) (*models.LedgerSnapshot, error) {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	lock, err := utils.BusinessLock(ctx, businessId, "posting", moduleName, "RebuildStockSummaries")
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	db := config.GetDB()
	if db == nil {
		return nil, models.ErrDBNotInitialized
	}

	var snapshot *models.LedgerSnapshot
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireBusinessPostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseBusinessPostingLock(tx, businessId)

		trail, err := models.LoadAuditTrail(tx, businessId)
		if err != nil {
			return err
		}
		ledger := models.ReplayAuditTrail(trail)
		if err := models.RewriteStockSummaries(tx, businessId, ledger); err != nil {
			return err
		}
		snapshot = ledger.Snapshot()
		return nil
	})
	if err != nil {
		config.LogError(logger, moduleName, "RebuildStockSummaries", "rebuild failed", businessId, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"business_id":    businessId,
		"ledger_version": snapshot.Version,
		"balances":       len(snapshot.Balances),
	}).Info("ledger.rebuild.done")
	return snapshot, nil
}

// CurrentLedgerSnapshot replays the trail read-only and returns the live
// state, bypassing the summary cache.
func CurrentLedgerSnapshot(ctx context.Context) (*models.LedgerSnapshot, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, models.ErrDBNotInitialized
	}

	trail, err := models.LoadAuditTrail(db.WithContext(ctx), businessId)
	if err != nil {
		return nil, err
	}
	return models.ReplayAuditTrail(trail).Snapshot(), nil
}
