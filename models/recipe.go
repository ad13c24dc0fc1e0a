package models

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recipe describes how one bulk item is produced from raw materials.
// Ingredient quantities are per unit of planned output, so a batch planned at
// 100kg with an ingredient at 0.2 qty-per-unit consumes 20kg of that raw item.
type Recipe struct {
	ID                 int                `gorm:"primary_key" json:"id"`
	BusinessId         string             `gorm:"index;not null" json:"business_id"`
	Name               string             `gorm:"size:100;not null" json:"name"`
	OutputItemId       int                `gorm:"not null" json:"output_item_id"`
	OutputItem         *Item              `gorm:"foreignKey:OutputItemId" json:"output_item,omitempty"`
	ExpectedYieldRatio decimal.Decimal    `gorm:"type:decimal(8,4);default:1" json:"expected_yield_ratio"`
	Ingredients        []RecipeIngredient `gorm:"foreignKey:RecipeId" json:"ingredients"`
	IsActive           *bool              `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type RecipeIngredient struct {
	ID         int             `gorm:"primary_key" json:"id"`
	RecipeId   int             `gorm:"index;not null" json:"recipe_id"`
	ItemId     int             `gorm:"not null" json:"item_id"`
	Item       *Item           `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	QtyPerUnit decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_per_unit"`
}

type NewRecipe struct {
	Name               string                `json:"name" binding:"required"`
	OutputItemId       int                   `json:"output_item_id" binding:"required"`
	ExpectedYieldRatio decimal.Decimal       `json:"expected_yield_ratio"`
	Ingredients        []NewRecipeIngredient `json:"ingredients" binding:"required,dive"`
}

type NewRecipeIngredient struct {
	ItemId     int             `json:"item_id" binding:"required"`
	QtyPerUnit decimal.Decimal `json:"qty_per_unit" binding:"required"`
}

func (input *NewRecipe) validate(ctx context.Context, businessId string, id int) error {
	if len(input.Ingredients) == 0 {
		return &InvalidRecipeError{RecipeId: id, Reason: "recipe has no ingredients"}
	}
	if err := utils.ValidateUnique[Recipe](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}

	output, err := utils.FetchModel[Item](ctx, businessId, input.OutputItemId)
	if err != nil {
		return &InvalidRecipeError{RecipeId: id, Reason: "output item not found"}
	}
	if output.Category != ItemCategoryBulk {
		return &InvalidRecipeError{RecipeId: id, Reason: "output item must be a bulk item"}
	}
	if input.ExpectedYieldRatio.IsNegative() || input.ExpectedYieldRatio.GreaterThan(decimal.NewFromInt(1)) {
		return &InvalidRecipeError{RecipeId: id, Reason: "expected yield ratio must be between 0 and 1"}
	}

	seen := make(map[int]bool, len(input.Ingredients))
	for _, ing := range input.Ingredients {
		if seen[ing.ItemId] {
			return &InvalidRecipeError{RecipeId: id, Reason: "duplicate ingredient item"}
		}
		seen[ing.ItemId] = true
		if !ing.QtyPerUnit.IsPositive() {
			return &InvalidRecipeError{RecipeId: id, Reason: "ingredient quantity must be positive"}
		}
		raw, err := utils.FetchModel[Item](ctx, businessId, ing.ItemId)
		if err != nil {
			return &InvalidRecipeError{RecipeId: id, Reason: "ingredient item not found"}
		}
		if raw.Category != ItemCategoryRaw {
			return &InvalidRecipeError{RecipeId: id, Reason: "ingredient must be a raw material"}
		}
	}
	return nil
}

func CreateRecipe(ctx context.Context, input *NewRecipe) (*Recipe, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	yieldRatio := input.ExpectedYieldRatio
	if yieldRatio.IsZero() {
		yieldRatio = decimal.NewFromInt(1)
	}
	recipe := Recipe{
		BusinessId:         businessId,
		Name:               input.Name,
		OutputItemId:       input.OutputItemId,
		ExpectedYieldRatio: yieldRatio,
		IsActive:           utils.NewTrue(),
	}
	for _, ing := range input.Ingredients {
		recipe.Ingredients = append(recipe.Ingredients, RecipeIngredient{
			ItemId:     ing.ItemId,
			QtyPerUnit: ing.QtyPerUnit,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&recipe).Error; err != nil {
		return nil, err
	}
	return &recipe, nil
}

func UpdateRecipe(ctx context.Context, id int, input *NewRecipe) (*Recipe, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	recipe, err := utils.FetchModel[Recipe](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(recipe).Updates(map[string]interface{}{
			"Name":               input.Name,
			"OutputItemId":       input.OutputItemId,
			"ExpectedYieldRatio": input.ExpectedYieldRatio,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", id).Delete(&RecipeIngredient{}).Error; err != nil {
			return err
		}
		for _, ing := range input.Ingredients {
			if err := tx.Create(&RecipeIngredient{
				RecipeId:   id,
				ItemId:     ing.ItemId,
				QtyPerUnit: ing.QtyPerUnit,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetRecipe(ctx, id)
}

func GetRecipe(ctx context.Context, id int) (*Recipe, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchModel[Recipe](ctx, businessId, id, "Ingredients", "OutputItem")
}

func ListRecipes(ctx context.Context) ([]*Recipe, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchAllModels[Recipe](ctx, businessId, "Ingredients", "OutputItem")
}
