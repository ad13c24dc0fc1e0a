package models

import (
	"log"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Item{}, &Supplier{}, &Customer{},
		&Recipe{}, &RecipeIngredient{},
		&GoodsReceipt{}, &GoodsReceiptLine{},
		&ProductionBatch{}, &ConsumedMaterial{},
		&PackingRun{}, &PackingMaterial{},
		&DispatchOrder{}, &DispatchLine{},
		&StockAdjustment{},
		&AuditEntry{}, &StockSummary{},
		&DocumentNumberSeries{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
