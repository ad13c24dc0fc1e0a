package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the closed set of stock movements the engine can post. Each
// variant is a fully resolved command: the posting workflow loads documents,
// resolves items and recipes, then hands the engine plain values. The engine
// itself never touches the database.
//
// The interface is sealed via the unexported marker so the Post type switch is
// exhaustive over every possible variant.
type Transaction interface {
	txn()
	// Reference returns the (type, id) pair stamped on every audit entry the
	// transaction produces.
	Reference() (string, string)
}

// ReceiveLine is one GRN line: qty of an item at an actual unit cost.
type ReceiveLine struct {
	ItemId    int
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	LotNumber string
}

// ReceiveTransaction posts a goods receipt. Raw and packing materials land in
// IN_HOUSE; bulk items received from outside land in THIRD_PARTY so they never
// merge with in-house production output.
type ReceiveTransaction struct {
	GrnNumber string
	Lines     []ReceiveLine
}

// ConsumeLine is one deduction: qty of an item from a partition, valued at the
// current weighted-average cost.
type ConsumeLine struct {
	ItemId    int
	Partition StockPartition
	Qty       decimal.Decimal
	LotNumber string
}

// IssueTransaction moves a production batch's raw materials out of stock.
// Posted when the batch transitions Planned -> InProgress.
type IssueTransaction struct {
	BatchNumber string
	Lines       []ConsumeLine
}

// CompleteOutputTransaction credits the batch's bulk output at the summed cost
// of what the batch consumed. Posted when the batch transitions
// InProgress -> Completed.
type CompleteOutputTransaction struct {
	BatchNumber   string
	OutputItemId  int
	OutputQty     decimal.Decimal
	ConsumedQty   decimal.Decimal
	ConsumedValue decimal.Decimal
	LotNumber     string
}

// PackTransaction converts bulk plus packing materials into a finished good.
// Source selects which bulk partition the run draws from.
type PackTransaction struct {
	RunNumber    string
	OutputItemId int
	OutputQty    decimal.Decimal
	BulkQty      decimal.Decimal
	Source       PackingSourceType
	Materials    []ConsumeLine
	LotNumber    string
}

// DispatchTransaction deducts finished goods for an outbound order.
type DispatchTransaction struct {
	OrderNumber string
	Lines       []ConsumeLine
}

// AdjustTransaction is a signed correction. Increases carry an explicit unit
// cost; decreases are valued at the current weighted-average like any other
// deduction.
type AdjustTransaction struct {
	AdjustmentNumber string
	ItemId           int
	Partition        StockPartition
	QtyDelta         decimal.Decimal
	UnitCost         decimal.Decimal
	Reason           AdjustmentReason
	Note             string
}

func (t *ReceiveTransaction) txn()        {}
func (t *IssueTransaction) txn()          {}
func (t *CompleteOutputTransaction) txn() {}
func (t *PackTransaction) txn()           {}
func (t *DispatchTransaction) txn()       {}
func (t *AdjustTransaction) txn()         {}

func (t *ReceiveTransaction) Reference() (string, string) { return "GRN", t.GrnNumber }
func (t *IssueTransaction) Reference() (string, string)   { return "BATCH", t.BatchNumber }
func (t *CompleteOutputTransaction) Reference() (string, string) {
	return "BATCH", t.BatchNumber
}
func (t *PackTransaction) Reference() (string, string)     { return "PACK", t.RunNumber }
func (t *DispatchTransaction) Reference() (string, string) { return "DISPATCH", t.OrderNumber }
func (t *AdjustTransaction) Reference() (string, string)   { return "ADJ", t.AdjustmentNumber }

// TransactionEngine validates and posts transactions against one business's
// stock ledger. Validation is all-or-nothing: every line is checked before any
// balance moves, so a rejected transaction leaves the ledger untouched.
type TransactionEngine struct {
	BusinessId string
	Ledger     *StockLedger
	Items      ItemCatalog
	Now        func() time.Time
}

func NewTransactionEngine(businessId string, ledger *StockLedger, items ItemCatalog) *TransactionEngine {
	return &TransactionEngine{
		BusinessId: businessId,
		Ledger:     ledger,
		Items:      items,
		Now:        time.Now,
	}
}

// Post validates a transaction, applies it to the ledger and returns the audit
// entries it produced, in application order. Entries come back with Seq unset;
// the posting workflow assigns per-business sequence numbers when persisting.
//
// The type switch is exhaustive over the closed Transaction set; an unknown
// variant can only mean a new variant was added without a posting rule, which
// fails loudly rather than silently moving nothing.
func (e *TransactionEngine) Post(txn Transaction) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	var err error

	switch t := txn.(type) {
	case *ReceiveTransaction:
		entries, err = e.receive(t)
	case *IssueTransaction:
		entries, err = e.issue(t)
	case *CompleteOutputTransaction:
		entries, err = e.completeOutput(t)
	case *PackTransaction:
		entries, err = e.pack(t)
	case *DispatchTransaction:
		entries, err = e.dispatch(t)
	case *AdjustTransaction:
		entries, err = e.adjust(t)
	default:
		return nil, fmt.Errorf("no posting rule for transaction type %T", txn)
	}
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		e.Ledger.ApplyEntry(entry)
	}
	e.Ledger.bumpVersion()
	return entries, nil
}

func (e *TransactionEngine) newEntry(txn Transaction, kind TransactionKind, itemId int, partition StockPartition, qtyDelta, valueDelta decimal.Decimal, lotNumber, description string) *AuditEntry {
	refType, refId := txn.Reference()
	return &AuditEntry{
		BusinessId:    e.BusinessId,
		EntryTime:     e.Now(),
		Kind:          kind,
		ItemId:        itemId,
		Partition:     partition,
		QtyDelta:      qtyDelta.Round(4),
		ValueDelta:    valueDelta.Round(4),
		ReferenceType: refType,
		ReferenceId:   refId,
		LotNumber:     lotNumber,
		Description:   description,
	}
}

// pendingDeductions tracks in-transaction deductions per balance so that two
// lines hitting the same (item, partition) validate against what the first
// line already took.
type pendingDeductions struct {
	qty   map[LedgerKey]decimal.Decimal
	value map[LedgerKey]decimal.Decimal
}

func newPendingDeductions() *pendingDeductions {
	return &pendingDeductions{
		qty:   make(map[LedgerKey]decimal.Decimal),
		value: make(map[LedgerKey]decimal.Decimal),
	}
}

// take validates and prices one deduction. The value is the quantity at the
// balance's weighted-average cost rounded to 4 decimal places, except that
// emptying a balance takes its entire remaining value so no residue survives.
func (e *TransactionEngine) take(pending *pendingDeductions, item *Item, partition StockPartition, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "qty", Reason: "must be positive"}
	}
	key := LedgerKey{ItemId: item.ID, Partition: partition}
	balance := e.Ledger.Balance(item.ID, partition)
	availQty := balance.Qty.Sub(pending.qty[key])
	availValue := balance.Value.Sub(pending.value[key])

	if qty.GreaterThan(availQty) {
		return decimal.Zero, &InsufficientStockError{
			ItemId:    item.ID,
			ItemName:  item.Name,
			Partition: partition,
			Requested: qty,
			Available: availQty,
		}
	}

	var value decimal.Decimal
	if qty.Equal(availQty) {
		value = availValue
	} else {
		value = qty.Mul(balance.WeightedAvgCost()).Round(4)
		if value.GreaterThan(availValue) {
			value = availValue
		}
	}

	pending.qty[key] = pending.qty[key].Add(qty)
	pending.value[key] = pending.value[key].Add(value)
	return value, nil
}

/* posting rules */

func (e *TransactionEngine) receive(t *ReceiveTransaction) ([]*AuditEntry, error) {
	if len(t.Lines) == 0 {
		return nil, &ValidationError{Field: "lines", Reason: "goods receipt has no lines"}
	}

	entries := make([]*AuditEntry, 0, len(t.Lines))
	for _, line := range t.Lines {
		if !line.Qty.IsPositive() {
			return nil, &ValidationError{Field: "qty", Reason: "must be positive"}
		}
		if !line.UnitCost.IsPositive() {
			return nil, &ValidationError{Field: "unit_cost", Reason: "must be positive"}
		}
		item, err := e.Items.ItemById(line.ItemId)
		if err != nil {
			return nil, err
		}
		if item.Category == ItemCategoryFinishedGood {
			return nil, &ValidationError{Field: "item_id", Reason: "finished goods are produced by packing, not received"}
		}
		// Bulk bought from outside stays in its own partition; it must never
		// average into in-house production output.
		partition := StockPartitionInHouse
		if item.Category == ItemCategoryBulk {
			partition = StockPartitionThirdParty
		}
		entries = append(entries, e.newEntry(t, TransactionKindReceive,
			item.ID, partition,
			line.Qty, line.Qty.Mul(line.UnitCost),
			line.LotNumber,
			fmt.Sprintf("received %s %s of %s", line.Qty, item.UnitOfMeasure, item.Name)))
	}
	return entries, nil
}

func (e *TransactionEngine) issue(t *IssueTransaction) ([]*AuditEntry, error) {
	if len(t.Lines) == 0 {
		return nil, &ValidationError{Field: "lines", Reason: "nothing to issue"}
	}

	pending := newPendingDeductions()
	entries := make([]*AuditEntry, 0, len(t.Lines))
	for _, line := range t.Lines {
		item, err := e.Items.ItemById(line.ItemId)
		if err != nil {
			return nil, err
		}
		if item.Category != ItemCategoryRaw {
			return nil, &ValidationError{Field: "item_id", Reason: "production batches consume raw materials only"}
		}
		value, err := e.take(pending, item, StockPartitionInHouse, line.Qty)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e.newEntry(t, TransactionKindProduceConsume,
			item.ID, StockPartitionInHouse,
			line.Qty.Neg(), value.Neg(),
			line.LotNumber,
			fmt.Sprintf("issued %s %s of %s to batch %s", line.Qty, item.UnitOfMeasure, item.Name, t.BatchNumber)))
	}
	return entries, nil
}

func (e *TransactionEngine) completeOutput(t *CompleteOutputTransaction) ([]*AuditEntry, error) {
	if !t.OutputQty.IsPositive() {
		return nil, &ValidationError{Field: "actual_output_qty", Reason: "must be positive"}
	}
	if t.OutputQty.GreaterThan(t.ConsumedQty) {
		return nil, &OutputExceedsInputError{
			BatchNumber: t.BatchNumber,
			Output:      t.OutputQty,
			Input:       t.ConsumedQty,
		}
	}
	item, err := e.Items.ItemById(t.OutputItemId)
	if err != nil {
		return nil, err
	}
	if item.Category != ItemCategoryBulk {
		return nil, &ValidationError{Field: "output_item_id", Reason: "production output must be a bulk item"}
	}

	// The full consumed value flows into the output regardless of yield loss,
	// so process loss raises the unit cost of what came out.
	entry := e.newEntry(t, TransactionKindProduceOutput,
		item.ID, StockPartitionInHouse,
		t.OutputQty, t.ConsumedValue,
		t.LotNumber,
		fmt.Sprintf("batch %s produced %s %s of %s", t.BatchNumber, t.OutputQty, item.UnitOfMeasure, item.Name))
	return []*AuditEntry{entry}, nil
}

func (e *TransactionEngine) pack(t *PackTransaction) ([]*AuditEntry, error) {
	if !t.OutputQty.IsPositive() {
		return nil, &ValidationError{Field: "output_qty", Reason: "must be positive"}
	}
	if !t.BulkQty.IsPositive() {
		return nil, &ValidationError{Field: "bulk_qty", Reason: "must be positive"}
	}
	output, err := e.Items.ItemById(t.OutputItemId)
	if err != nil {
		return nil, err
	}
	if output.Category != ItemCategoryFinishedGood {
		return nil, &ValidationError{Field: "output_item_id", Reason: "packing output must be a finished good"}
	}
	bulk, err := e.resolvePackingSource(output)
	if err != nil {
		return nil, err
	}

	pending := newPendingDeductions()
	partition := t.Source.Partition()
	entries := make([]*AuditEntry, 0, len(t.Materials)+2)

	bulkValue, err := e.take(pending, bulk, partition, t.BulkQty)
	if err != nil {
		return nil, err
	}
	entries = append(entries, e.newEntry(t, TransactionKindPackConsume,
		bulk.ID, partition,
		t.BulkQty.Neg(), bulkValue.Neg(),
		t.LotNumber,
		fmt.Sprintf("packed %s %s of %s into %s", t.BulkQty, bulk.UnitOfMeasure, bulk.Name, output.Name)))

	totalValue := bulkValue
	for _, line := range t.Materials {
		item, err := e.Items.ItemById(line.ItemId)
		if err != nil {
			return nil, err
		}
		if item.Category != ItemCategoryPacking {
			return nil, &ValidationError{Field: "materials", Reason: "packing runs consume packing materials only"}
		}
		value, err := e.take(pending, item, StockPartitionInHouse, line.Qty)
		if err != nil {
			return nil, err
		}
		totalValue = totalValue.Add(value)
		entries = append(entries, e.newEntry(t, TransactionKindPackConsume,
			item.ID, StockPartitionInHouse,
			line.Qty.Neg(), value.Neg(),
			line.LotNumber,
			fmt.Sprintf("used %s %s of %s packing %s", line.Qty, item.UnitOfMeasure, item.Name, output.Name)))
	}

	entries = append(entries, e.newEntry(t, TransactionKindPackOutput,
		output.ID, StockPartitionInHouse,
		t.OutputQty, totalValue,
		t.LotNumber,
		fmt.Sprintf("run %s packed %s %s of %s", t.RunNumber, t.OutputQty, output.UnitOfMeasure, output.Name)))
	return entries, nil
}

// resolvePackingSource finds the bulk item a finished good is packed from. An
// explicit SourceBulkItemId wins. Items migrated without the link fall back to
// the historical name convention: the bulk item named "<product> (Bulk)", or
// failing that a containment match in either direction. More than one
// candidate is an error, never a guess.
func (e *TransactionEngine) resolvePackingSource(output *Item) (*Item, error) {
	if output.SourceBulkItemId != nil {
		source, err := e.Items.ItemById(*output.SourceBulkItemId)
		if err != nil {
			return nil, err
		}
		if source.Category != ItemCategoryBulk {
			return nil, &ValidationError{Field: "source_bulk_item_id", Reason: "linked source item is not a bulk item"}
		}
		return source, nil
	}

	bulkItems, err := e.Items.BulkItems()
	if err != nil {
		return nil, err
	}

	outputName := strings.ToLower(strings.TrimSpace(output.Name))
	var candidates []*Item
	for _, bulk := range bulkItems {
		bulkName := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(bulk.Name), "(Bulk)")))
		if strings.Contains(outputName, bulkName) || strings.Contains(bulkName, outputName) {
			candidates = append(candidates, bulk)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, &ValidationError{Field: "output_item_id",
			Reason: fmt.Sprintf("no bulk item matches %q; set source_bulk_item_id on the finished good", output.Name)}
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.Name
		}
		return nil, &AmbiguousPackingSourceError{OutputItemName: output.Name, Candidates: names}
	}
}

func (e *TransactionEngine) dispatch(t *DispatchTransaction) ([]*AuditEntry, error) {
	if len(t.Lines) == 0 {
		return nil, &ValidationError{Field: "lines", Reason: "dispatch order has no lines"}
	}

	pending := newPendingDeductions()
	entries := make([]*AuditEntry, 0, len(t.Lines))
	for _, line := range t.Lines {
		item, err := e.Items.ItemById(line.ItemId)
		if err != nil {
			return nil, err
		}
		if item.Category != ItemCategoryFinishedGood {
			return nil, &ValidationError{Field: "item_id", Reason: "dispatch orders move finished goods only"}
		}
		value, err := e.take(pending, item, StockPartitionInHouse, line.Qty)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e.newEntry(t, TransactionKindDispatch,
			item.ID, StockPartitionInHouse,
			line.Qty.Neg(), value.Neg(),
			line.LotNumber,
			fmt.Sprintf("dispatched %s %s of %s on %s", line.Qty, item.UnitOfMeasure, item.Name, t.OrderNumber)))
	}
	return entries, nil
}

func (e *TransactionEngine) adjust(t *AdjustTransaction) ([]*AuditEntry, error) {
	if t.QtyDelta.IsZero() {
		return nil, &ValidationError{Field: "qty_delta", Reason: "must be non-zero"}
	}
	if t.Reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "adjustment reason is required"}
	}
	item, err := e.Items.ItemById(t.ItemId)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("adjustment (%s)", t.Reason)
	if t.Note != "" {
		description = fmt.Sprintf("adjustment (%s): %s", t.Reason, t.Note)
	}

	if t.QtyDelta.IsPositive() {
		if t.UnitCost.IsNegative() {
			return nil, &ValidationError{Field: "unit_cost", Reason: "must not be negative"}
		}
		entry := e.newEntry(t, TransactionKindAdjust,
			item.ID, t.Partition,
			t.QtyDelta, t.QtyDelta.Mul(t.UnitCost),
			"", description)
		return []*AuditEntry{entry}, nil
	}

	pending := newPendingDeductions()
	qty := t.QtyDelta.Neg()
	value, err := e.take(pending, item, t.Partition, qty)
	if err != nil {
		return nil, err
	}
	entry := e.newEntry(t, TransactionKindAdjust,
		item.ID, t.Partition,
		t.QtyDelta, value.Neg(),
		"", description)
	return []*AuditEntry{entry}, nil
}
