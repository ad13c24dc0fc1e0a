package models

import (
	"errors"
	"testing"
)

func testRecipe() *Recipe {
	return &Recipe{
		ID:           1,
		OutputItemId: bulkChiliId,
		Ingredients: []RecipeIngredient{
			{ItemId: rawChiliId, QtyPerUnit: d("1")},
			{ItemId: bulkTurmericId, QtyPerUnit: d("0.2")},
		},
	}
}

func TestIssueRequiresExplicitLines(t *testing.T) {
	recipe := testRecipe()

	input := &IssueBatchInput{}
	var validation *ValidationError
	if err := input.ValidateAgainstRecipe(recipe); !errors.As(err, &validation) {
		t.Fatalf("empty issue: err = %v, want ValidationError", err)
	}
}

func TestIssueMustCoverEveryIngredient(t *testing.T) {
	recipe := testRecipe()

	input := &IssueBatchInput{Lines: []IssueBatchLine{
		{ItemId: rawChiliId, Qty: d("100")},
	}}
	var validation *ValidationError
	if err := input.ValidateAgainstRecipe(recipe); !errors.As(err, &validation) {
		t.Fatalf("missing ingredient: err = %v, want ValidationError", err)
	}

	input = &IssueBatchInput{Lines: []IssueBatchLine{
		{ItemId: rawChiliId, Qty: d("100")},
		{ItemId: bulkTurmericId, Qty: d("20")},
		{ItemId: pouchId, Qty: d("5")},
	}}
	if err := input.ValidateAgainstRecipe(recipe); !errors.As(err, &validation) {
		t.Fatalf("line outside recipe: err = %v, want ValidationError", err)
	}

	input = &IssueBatchInput{Lines: []IssueBatchLine{
		{ItemId: rawChiliId, Qty: d("100")},
		{ItemId: rawChiliId, Qty: d("50")},
		{ItemId: bulkTurmericId, Qty: d("20")},
	}}
	if err := input.ValidateAgainstRecipe(recipe); !errors.As(err, &validation) {
		t.Fatalf("duplicate line: err = %v, want ValidationError", err)
	}

	input = &IssueBatchInput{Lines: []IssueBatchLine{
		{ItemId: rawChiliId, Qty: d("98.5")},
		{ItemId: bulkTurmericId, Qty: d("21")},
	}}
	if err := input.ValidateAgainstRecipe(recipe); err != nil {
		t.Fatalf("explicit full cover rejected: %v", err)
	}
}

func TestCompletionRejectsOutputPlusWastageOverConsumed(t *testing.T) {
	input := &CompleteBatchInput{
		ActualOutputQty: d("95"),
		Wastage:         d("10"),
	}
	var exceeds *OutputExceedsInputError
	if err := input.ValidateAgainstConsumed("BATCH-000001", d("100")); !errors.As(err, &exceeds) {
		t.Fatalf("output 95 + wastage 10 over consumed 100: err = %v, want OutputExceedsInputError", err)
	}

	input = &CompleteBatchInput{
		ActualOutputQty: d("95"),
		Wastage:         d("-1"),
	}
	var validation *ValidationError
	if err := input.ValidateAgainstConsumed("BATCH-000001", d("100")); !errors.As(err, &validation) {
		t.Fatalf("negative wastage: err = %v, want ValidationError", err)
	}

	input = &CompleteBatchInput{
		ActualOutputQty: d("95"),
		Wastage:         d("5"),
	}
	if err := input.ValidateAgainstConsumed("BATCH-000001", d("100")); err != nil {
		t.Fatalf("output plus wastage equal to consumed rejected: %v", err)
	}
}

func TestYieldPercent(t *testing.T) {
	batch := &ProductionBatch{
		Status:          BatchStatusCompleted,
		ActualOutputQty: d("95"),
		ConsumedMaterials: []ConsumedMaterial{
			{ItemId: rawChiliId, Qty: d("100"), ConsumedValue: d("10714.2857")},
		},
	}
	if got := batch.YieldPercent(); !got.Equal(d("95")) {
		t.Fatalf("yield percent = %s, want 95", got)
	}

	batch.Status = BatchStatusInProgress
	if got := batch.YieldPercent(); !got.IsZero() {
		t.Fatalf("yield percent before completion = %s, want 0", got)
	}
}
