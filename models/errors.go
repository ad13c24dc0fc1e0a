package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrBusinessIdRequired is returned when the context lacks a business id.
	ErrBusinessIdRequired = fmt.Errorf("business id is required")
	// ErrDBNotInitialized is returned when the DB connection has not been established.
	ErrDBNotInitialized = fmt.Errorf("database not initialized")
	// ErrLedgerDiverged signals that the posted ledger and a replay of the audit
	// trail disagree. This is a programming invariant violation, never clamped
	// away; it must reach the operator-visible error channel.
	ErrLedgerDiverged = errors.New("stock ledger diverged from audit trail replay")
)

// InsufficientStockError rejects any movement that would drive a balance
// negative. It always names the offending item.
type InsufficientStockError struct {
	ItemId    int
	ItemName  string
	Partition StockPartition
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (item %d, %s): requested %s, available %s",
		e.ItemName, e.ItemId, e.Partition, e.Requested, e.Available)
}

// InvalidRecipeError covers recipes with no ingredients or non-positive
// standard quantities.
type InvalidRecipeError struct {
	RecipeId int
	Reason   string
}

func (e *InvalidRecipeError) Error() string {
	return fmt.Sprintf("invalid recipe %d: %s", e.RecipeId, e.Reason)
}

// InvalidTransitionError is a state-machine violation, e.g. completing a batch
// that is still Planned.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

// OutputExceedsInputError rejects production output greater than total consumed
// mass.
type OutputExceedsInputError struct {
	BatchNumber string
	Output      decimal.Decimal
	Input       decimal.Decimal
}

func (e *OutputExceedsInputError) Error() string {
	return fmt.Sprintf("batch %s: actual output %s exceeds total input %s",
		e.BatchNumber, e.Output, e.Input)
}

// ValidationError covers non-positive quantities/prices and other malformed
// payload lines. The transaction is rejected with no partial mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AmbiguousPackingSourceError is raised when the legacy name heuristic matches
// more than one bulk item. The fix is an explicit SourceBulkItemId on the
// finished good, not a first-match guess.
type AmbiguousPackingSourceError struct {
	OutputItemName string
	Candidates     []string
}

func (e *AmbiguousPackingSourceError) Error() string {
	return fmt.Sprintf("packing source for %q is ambiguous: %d bulk items match %v; set source_bulk_item_id on the finished good",
		e.OutputItemName, len(e.Candidates), e.Candidates)
}
