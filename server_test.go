package main

import (
	"fmt"
	"net/http"
	"testing"

	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/shopspring/decimal"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"record not found", utils.ErrorRecordNotFound, http.StatusNotFound},
		{"missing business", models.ErrBusinessIdRequired, http.StatusUnauthorized},
		{"diverged ledger", models.ErrLedgerDiverged, http.StatusInternalServerError},
		{"wrapped diverged ledger", fmt.Errorf("verify: %w", models.ErrLedgerDiverged), http.StatusInternalServerError},
		{"insufficient stock", &models.InsufficientStockError{ItemId: 1, ItemName: "Dried Red Chili", Requested: decimal.NewFromInt(60), Available: decimal.NewFromInt(50)}, http.StatusConflict},
		{"invalid transition", &models.InvalidTransitionError{Entity: "production batch", From: "Planned", To: "Completed"}, http.StatusConflict},
		{"output exceeds input", &models.OutputExceedsInputError{BatchNumber: "BATCH-000001"}, http.StatusConflict},
		{"validation", &models.ValidationError{Field: "qty", Reason: "must be positive"}, http.StatusBadRequest},
		{"invalid recipe", &models.InvalidRecipeError{RecipeId: 3, Reason: "recipe has no ingredients"}, http.StatusBadRequest},
		{"ambiguous packing source", &models.AmbiguousPackingSourceError{OutputItemName: "Red Chili Powder 50g"}, http.StatusBadRequest},
		{"unknown error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusForError(tc.err); got != tc.want {
				t.Fatalf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
