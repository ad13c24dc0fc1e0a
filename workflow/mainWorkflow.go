package workflow

import (
	"context"
	"os"
	"strconv"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const moduleName = "workflow"

// postFn builds and posts the operation's transactions through the engine and
// persists the documents it touches. It returns the audit entries the engine
// produced, in posting order, with Seq unset.
type postFn func(tx *gorm.DB, businessId string, engine *models.TransactionEngine) ([]*models.AuditEntry, error)

// PostTransaction is the single posting path every write operation goes
// through. It serializes per business (redis lock across instances, MySQL
// advisory lock on the posting connection), replays the audit trail into a
// fresh ledger, runs the operation against the engine, then persists audit
// entries and the stock summary cache in one database transaction.
//
// Because the engine validates everything before applying, a returned error
// means the transaction rolled back with no audit entry written and no balance
// moved.
func PostTransaction(ctx context.Context, functionName string, fn postFn) (*models.LedgerSnapshot, error) {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	lock, err := utils.BusinessLock(ctx, businessId, "posting", moduleName, functionName)
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
		engine := models.NewTransactionEngine(businessId, ledger, models.NewDBItemCatalog(tx, businessId))

		entries, err := fn(tx, businessId, engine)
		if err != nil {
			return err
		}

		if len(entries) > 0 {
			seq, err := models.NextAuditSeq(tx, businessId)
			if err != nil {
				return err
			}
			for i, entry := range entries {
				entry.Seq = seq + int64(i)
			}
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
			if err := models.SyncStockSummaries(tx, businessId, engine.Ledger, entries); err != nil {
				return err
			}
		}

		if replayVerifyEnabled() {
			if err := verifyLedgerInTx(tx, businessId, engine.Ledger); err != nil {
				config.LogError(logger, moduleName, functionName, "post-posting replay check", businessId, err)
				return err
			}
		}

		snapshot = engine.Ledger.Snapshot()
		return nil
	})
	if err != nil {
		config.LogError(logger, moduleName, functionName, "posting failed", businessId, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"business_id":    businessId,
		"ledger_version": snapshot.Version,
	}).Info("ledger.post." + functionName)
	return snapshot, nil
}

// replayVerifyEnabled gates the in-transaction replay check behind
// LEDGER_VERIFY_ON_POST. It re-reads the whole trail per posting, so it is off
// unless explicitly enabled.
func replayVerifyEnabled() bool {
	enabled, err := strconv.ParseBool(os.Getenv("LEDGER_VERIFY_ON_POST"))
	return err == nil && enabled
}
