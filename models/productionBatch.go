package models

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
)

// ProductionBatch is one production run of a recipe. Its lifecycle is strictly
// Planned -> InProgress -> Completed; issuing materials drives the first
// transition and recording actual output drives the second. Completed is
// terminal, so a wrong completion is corrected with an adjustment, never by
// reopening the batch.
type ProductionBatch struct {
	ID                int                   `gorm:"primary_key" json:"id"`
	BusinessId        string                `gorm:"index;not null" json:"business_id"`
	BatchNumber       string                `gorm:"size:30;index;not null" json:"batch_number"`
	RecipeId          int                   `gorm:"not null" json:"recipe_id"`
	Recipe            *Recipe               `gorm:"foreignKey:RecipeId" json:"recipe,omitempty"`
	PlannedQty        decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"planned_qty"`
	ActualOutputQty   decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"actual_output_qty"`
	Wastage           decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"wastage"`
	Status            ProductionBatchStatus `gorm:"type:enum('Planned','InProgress','Completed');default:Planned" json:"status"`
	LotNumber         string                `gorm:"size:64" json:"lot_number"`
	PlannedDate       time.Time             `json:"planned_date"`
	StartedAt         *time.Time            `json:"started_at"`
	CompletedAt       *time.Time            `json:"completed_at"`
	ConsumedMaterials []ConsumedMaterial    `gorm:"foreignKey:ProductionBatchId" json:"consumed_materials"`
	CreatedAt         time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// ConsumedMaterial records what an issue actually took, with the value it was
// deducted at. Summing ConsumedValue across rows gives the exact cost basis
// the batch's output is credited with.
type ConsumedMaterial struct {
	ID                int             `gorm:"primary_key" json:"id"`
	ProductionBatchId int             `gorm:"index;not null" json:"production_batch_id"`
	ItemId            int             `gorm:"not null" json:"item_id"`
	Item              *Item           `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	Qty               decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	ConsumedValue     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"consumed_value"`
	LotNumber         string          `gorm:"size:64" json:"lot_number"`
}

type NewProductionBatch struct {
	RecipeId    int             `json:"recipe_id" binding:"required"`
	PlannedQty  decimal.Decimal `json:"planned_qty" binding:"required"`
	PlannedDate time.Time       `json:"planned_date"`
}

// IssueBatchInput carries the quantities actually taken from stores. The
// caller must state every line explicitly; recipe standards are a preview,
// not a default, so stale planning numbers are never issued by accident.
type IssueBatchInput struct {
	Lines []IssueBatchLine `json:"lines" binding:"required,dive"`
}

type IssueBatchLine struct {
	ItemId    int             `json:"item_id" binding:"required"`
	Qty       decimal.Decimal `json:"qty" binding:"required"`
	LotNumber string          `json:"lot_number"`
}

type CompleteBatchInput struct {
	ActualOutputQty decimal.Decimal `json:"actual_output_qty" binding:"required"`
	Wastage         decimal.Decimal `json:"wastage"`
	LotNumber       string          `json:"lot_number"`
}

func (input *NewProductionBatch) Validate(ctx context.Context, businessId string) error {
	if !input.PlannedQty.IsPositive() {
		return &ValidationError{Field: "planned_qty", Reason: "must be positive"}
	}
	recipe, err := utils.FetchModel[Recipe](ctx, businessId, input.RecipeId, "Ingredients")
	if err != nil {
		return &ValidationError{Field: "recipe_id", Reason: "recipe not found"}
	}
	if len(recipe.Ingredients) == 0 {
		return &InvalidRecipeError{RecipeId: recipe.ID, Reason: "recipe has no ingredients"}
	}
	for _, ing := range recipe.Ingredients {
		if !ing.QtyPerUnit.IsPositive() {
			return &InvalidRecipeError{RecipeId: recipe.ID, Reason: "ingredient quantity must be positive"}
		}
	}
	return nil
}

// ValidateAgainstRecipe checks that the issue states an explicit, positive
// quantity for every recipe ingredient and nothing outside the recipe.
func (input *IssueBatchInput) ValidateAgainstRecipe(recipe *Recipe) error {
	if len(input.Lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "issue must state actual quantities for every ingredient"}
	}
	stated := make(map[int]bool, len(input.Lines))
	for _, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return &ValidationError{Field: "qty", Reason: "must be positive"}
		}
		if stated[line.ItemId] {
			return &ValidationError{Field: "item_id", Reason: "duplicate issue line"}
		}
		stated[line.ItemId] = true
	}
	for _, ing := range recipe.Ingredients {
		if !stated[ing.ItemId] {
			return &ValidationError{Field: "lines", Reason: "issue is missing a recipe ingredient"}
		}
		delete(stated, ing.ItemId)
	}
	if len(stated) > 0 {
		return &ValidationError{Field: "item_id", Reason: "issue line is not a recipe ingredient"}
	}
	return nil
}

// ValidateAgainstConsumed checks the completion payload against what the
// issue actually took. Wastage is a physical write-off, so output plus
// wastage can never exceed the consumed mass.
func (input *CompleteBatchInput) ValidateAgainstConsumed(batchNumber string, consumedQty decimal.Decimal) error {
	if !input.ActualOutputQty.IsPositive() {
		return &ValidationError{Field: "actual_output_qty", Reason: "must be positive"}
	}
	if input.Wastage.IsNegative() {
		return &ValidationError{Field: "wastage", Reason: "must not be negative"}
	}
	if input.ActualOutputQty.Add(input.Wastage).GreaterThan(consumedQty) {
		return &OutputExceedsInputError{
			BatchNumber: batchNumber,
			Output:      input.ActualOutputQty.Add(input.Wastage),
			Input:       consumedQty,
		}
	}
	return nil
}

// CanTransition reports whether the batch may move to the target status.
func (batch *ProductionBatch) CanTransition(to ProductionBatchStatus) bool {
	switch to {
	case BatchStatusInProgress:
		return batch.Status == BatchStatusPlanned
	case BatchStatusCompleted:
		return batch.Status == BatchStatusInProgress
	default:
		return false
	}
}

// PlannedIssueLines expands the recipe to concrete quantities for this batch's
// planned output.
func (batch *ProductionBatch) PlannedIssueLines(recipe *Recipe) []IssueBatchLine {
	lines := make([]IssueBatchLine, 0, len(recipe.Ingredients))
	for _, ing := range recipe.Ingredients {
		lines = append(lines, IssueBatchLine{
			ItemId: ing.ItemId,
			Qty:    ing.QtyPerUnit.Mul(batch.PlannedQty).Round(4),
		})
	}
	return lines
}

// TotalConsumed sums quantity and value across the batch's consumed materials.
func (batch *ProductionBatch) TotalConsumed() (qty, value decimal.Decimal) {
	for _, m := range batch.ConsumedMaterials {
		qty = qty.Add(m.Qty)
		value = value.Add(m.ConsumedValue)
	}
	return qty, value
}

// YieldPercent is actual output over total consumed input, as a percentage.
// Zero before completion.
func (batch *ProductionBatch) YieldPercent() decimal.Decimal {
	qty, _ := batch.TotalConsumed()
	if qty.IsZero() || batch.Status != BatchStatusCompleted {
		return decimal.Zero
	}
	return batch.ActualOutputQty.Div(qty).Mul(decimal.NewFromInt(100)).Round(4)
}

func GetProductionBatch(ctx context.Context, id int) (*ProductionBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchModel[ProductionBatch](ctx, businessId, id,
		"Recipe", "Recipe.Ingredients", "ConsumedMaterials", "ConsumedMaterials.Item")
}

func ListProductionBatches(ctx context.Context) ([]*ProductionBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchAllModels[ProductionBatch](ctx, businessId, "Recipe")
}
