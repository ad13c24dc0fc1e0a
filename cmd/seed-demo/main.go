package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"bitbucket.org/mmagrifoods/millstock_backend/workflow"
	"github.com/shopspring/decimal"
)

// Seeds a demo business with a small spice-mill dataset: masters, a recipe,
// one GRN, one produced batch and one packing run, so a fresh environment has
// something to look at.
func main() {
	businessID := flag.String("business-id", "demo", "business id to seed")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := utils.SetBusinessIdInContext(context.Background(), strings.TrimSpace(*businessID))

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Ayeyarwady Farms"})
	exitOn(err, "create supplier")
	_, err = models.CreateCustomer(ctx, &models.NewCustomer{Name: "City Mart Wholesale"})
	exitOn(err, "create customer")

	chili, err := models.CreateItem(ctx, &models.NewItem{
		Name: "Dried Red Chili", Category: models.ItemCategoryRaw, UnitOfMeasure: "kg",
		ReorderLevel: decimal.NewFromInt(100),
	})
	exitOn(err, "create raw item")
	chiliBulk, err := models.CreateItem(ctx, &models.NewItem{
		Name: "Red Chili Powder (Bulk)", Category: models.ItemCategoryBulk, UnitOfMeasure: "kg",
	})
	exitOn(err, "create bulk item")
	pouch, err := models.CreateItem(ctx, &models.NewItem{
		Name: "Pouch 50g", Category: models.ItemCategoryPacking, UnitOfMeasure: "pcs",
	})
	exitOn(err, "create packing item")
	_, err = models.CreateItem(ctx, &models.NewItem{
		Name: "Red Chili Powder 50g", Category: models.ItemCategoryFinishedGood, UnitOfMeasure: "pcs",
		SourceBulkItemId: &chiliBulk.ID,
	})
	exitOn(err, "create finished good")

	recipe, err := models.CreateRecipe(ctx, &models.NewRecipe{
		Name:         "Red Chili Powder",
		OutputItemId: chiliBulk.ID,
		Ingredients: []models.NewRecipeIngredient{
			{ItemId: chili.ID, QtyPerUnit: decimal.NewFromInt(1)},
		},
	})
	exitOn(err, "create recipe")

	_, _, err = workflow.PostGoodsReceipt(ctx, &models.NewGoodsReceipt{
		SupplierId: supplier.ID,
		Lines: []models.NewGoodsReceiptLine{
			{ItemId: chili.ID, Qty: decimal.NewFromInt(500), UnitCost: decimal.NewFromInt(100)},
			{ItemId: pouch.ID, Qty: decimal.NewFromInt(5000), UnitCost: decimal.NewFromFloat(2.5)},
		},
	})
	exitOn(err, "post goods receipt")

	batch, err := workflow.CreateProductionBatch(ctx, &models.NewProductionBatch{
		RecipeId:   recipe.ID,
		PlannedQty: decimal.NewFromInt(100),
	})
	exitOn(err, "create batch")
	_, _, err = workflow.IssueProductionBatch(ctx, batch.ID, &models.IssueBatchInput{
		Lines: []models.IssueBatchLine{
			{ItemId: chili.ID, Qty: decimal.NewFromInt(100)},
		},
	})
	exitOn(err, "issue batch")
	_, _, err = workflow.CompleteProductionBatch(ctx, batch.ID, &models.CompleteBatchInput{
		ActualOutputQty: decimal.NewFromInt(95),
		Wastage:         decimal.NewFromInt(5),
	})
	exitOn(err, "complete batch")

	snapshot, err := workflow.CurrentLedgerSnapshot(ctx)
	exitOn(err, "snapshot")
	fmt.Printf("seeded business %q: %d balances at ledger version %d\n",
		*businessID, len(snapshot.Balances), snapshot.Version)
}

func exitOn(err error, step string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
		os.Exit(1)
	}
}
