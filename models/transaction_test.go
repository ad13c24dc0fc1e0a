package models

import (
	"errors"
	"sort"
	"testing"
	"time"
)

// fakeCatalog is an in-memory ItemCatalog for engine tests.
type fakeCatalog struct {
	items map[int]*Item
}

func (c *fakeCatalog) ItemById(id int) (*Item, error) {
	item, ok := c.items[id]
	if !ok {
		return nil, errors.New("item not found")
	}
	return item, nil
}

func (c *fakeCatalog) BulkItems() ([]*Item, error) {
	var bulk []*Item
	for _, item := range c.items {
		if item.Category == ItemCategoryBulk {
			bulk = append(bulk, item)
		}
	}
	sort.Slice(bulk, func(i, j int) bool { return bulk[i].ID < bulk[j].ID })
	return bulk, nil
}

const (
	rawChiliId     = 1
	bulkChiliId    = 2
	pouchId        = 3
	packedChiliId  = 4
	bulkTurmericId = 5
)

func testCatalog() *fakeCatalog {
	sourceBulk := bulkChiliId
	return &fakeCatalog{items: map[int]*Item{
		rawChiliId:     {ID: rawChiliId, Name: "Dried Red Chili", Category: ItemCategoryRaw, UnitOfMeasure: "kg"},
		bulkChiliId:    {ID: bulkChiliId, Name: "Red Chili Powder (Bulk)", Category: ItemCategoryBulk, UnitOfMeasure: "kg"},
		pouchId:        {ID: pouchId, Name: "Pouch 50g", Category: ItemCategoryPacking, UnitOfMeasure: "pcs"},
		packedChiliId:  {ID: packedChiliId, Name: "Red Chili Powder 50g", Category: ItemCategoryFinishedGood, UnitOfMeasure: "pcs", SourceBulkItemId: &sourceBulk},
		bulkTurmericId: {ID: bulkTurmericId, Name: "Turmeric Powder (Bulk)", Category: ItemCategoryBulk, UnitOfMeasure: "kg"},
	}}
}

func testEngine(catalog ItemCatalog) *TransactionEngine {
	engine := NewTransactionEngine("test-biz", NewStockLedger(), catalog)
	engine.Now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return engine
}

func mustPost(t *testing.T, engine *TransactionEngine, txn Transaction) []*AuditEntry {
	t.Helper()
	entries, err := engine.Post(txn)
	if err != nil {
		t.Fatalf("post %T: %v", txn, err)
	}
	return entries
}

func receiveChili(t *testing.T, engine *TransactionEngine) {
	t.Helper()
	mustPost(t, engine, &ReceiveTransaction{
		GrnNumber: "GRN-000001",
		Lines: []ReceiveLine{
			{ItemId: rawChiliId, Qty: d("500"), UnitCost: d("100")},
		},
	})
	mustPost(t, engine, &ReceiveTransaction{
		GrnNumber: "GRN-000002",
		Lines: []ReceiveLine{
			{ItemId: rawChiliId, Qty: d("200"), UnitCost: d("125")},
		},
	})
}

func TestReceiveRoutesBulkToThirdParty(t *testing.T) {
	engine := testEngine(testCatalog())

	entries := mustPost(t, engine, &ReceiveTransaction{
		GrnNumber: "GRN-000001",
		Lines: []ReceiveLine{
			{ItemId: rawChiliId, Qty: d("10"), UnitCost: d("100")},
			{ItemId: bulkChiliId, Qty: d("20"), UnitCost: d("90")},
		},
	})

	if entries[0].Partition != StockPartitionInHouse {
		t.Fatalf("raw material landed in %s, want IN_HOUSE", entries[0].Partition)
	}
	if entries[1].Partition != StockPartitionThirdParty {
		t.Fatalf("received bulk landed in %s, want THIRD_PARTY", entries[1].Partition)
	}
	if got := engine.Ledger.Balance(bulkChiliId, StockPartitionInHouse).Qty; !got.IsZero() {
		t.Fatalf("in-house bulk qty = %s, want 0", got)
	}
}

func TestReceiveRejectsFinishedGoods(t *testing.T) {
	engine := testEngine(testCatalog())

	_, err := engine.Post(&ReceiveTransaction{
		GrnNumber: "GRN-000001",
		Lines:     []ReceiveLine{{ItemId: packedChiliId, Qty: d("10"), UnitCost: d("5")}},
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestProductionValueConservation(t *testing.T) {
	engine := testEngine(testCatalog())
	receiveChili(t, engine)

	issueEntries := mustPost(t, engine, &IssueTransaction{
		BatchNumber: "BATCH-000001",
		Lines: []ConsumeLine{
			{ItemId: rawChiliId, Partition: StockPartitionInHouse, Qty: d("100")},
		},
	})
	consumedValue := issueEntries[0].ValueDelta.Neg()
	if !consumedValue.Equal(d("10714.2857")) {
		t.Fatalf("consumed value = %s, want 10714.2857", consumedValue)
	}

	outputEntries := mustPost(t, engine, &CompleteOutputTransaction{
		BatchNumber:   "BATCH-000001",
		OutputItemId:  bulkChiliId,
		OutputQty:     d("95"),
		ConsumedQty:   d("100"),
		ConsumedValue: consumedValue,
	})
	if !outputEntries[0].ValueDelta.Equal(consumedValue) {
		t.Fatalf("output value = %s, want %s", outputEntries[0].ValueDelta, consumedValue)
	}

	bulk := engine.Ledger.Balance(bulkChiliId, StockPartitionInHouse)
	if !bulk.Qty.Equal(d("95")) {
		t.Fatalf("bulk qty = %s, want 95", bulk.Qty)
	}
	// 5kg process loss raises the unit cost above the consumed average.
	if got := bulk.WeightedAvgCost().Round(4); !got.Equal(d("112.7820")) {
		t.Fatalf("bulk unit cost = %s, want 112.7820", got)
	}

	raw := engine.Ledger.Balance(rawChiliId, StockPartitionInHouse)
	total := raw.Value.Add(bulk.Value)
	if !total.Equal(d("75000")) {
		t.Fatalf("total value after production = %s, want 75000", total)
	}
}

func TestCompleteRejectsOutputExceedingInput(t *testing.T) {
	engine := testEngine(testCatalog())
	receiveChili(t, engine)
	mustPost(t, engine, &IssueTransaction{
		BatchNumber: "BATCH-000001",
		Lines: []ConsumeLine{
			{ItemId: rawChiliId, Partition: StockPartitionInHouse, Qty: d("100")},
		},
	})

	_, err := engine.Post(&CompleteOutputTransaction{
		BatchNumber:   "BATCH-000001",
		OutputItemId:  bulkChiliId,
		OutputQty:     d("101"),
		ConsumedQty:   d("100"),
		ConsumedValue: d("10714.2857"),
	})
	var exceeds *OutputExceedsInputError
	if !errors.As(err, &exceeds) {
		t.Fatalf("err = %v, want OutputExceedsInputError", err)
	}
}

func TestIssueRejectsInsufficientStockWithoutMutation(t *testing.T) {
	engine := testEngine(testCatalog())
	mustPost(t, engine, &ReceiveTransaction{
		GrnNumber: "GRN-000001",
		Lines:     []ReceiveLine{{ItemId: rawChiliId, Qty: d("50"), UnitCost: d("100")}},
	})
	versionBefore := engine.Ledger.Version()

	_, err := engine.Post(&IssueTransaction{
		BatchNumber: "BATCH-000001",
		Lines: []ConsumeLine{
			{ItemId: rawChiliId, Partition: StockPartitionInHouse, Qty: d("60")},
		},
	})
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if insufficient.ItemName != "Dried Red Chili" {
		t.Fatalf("shortfall names %q, want the offending item", insufficient.ItemName)
	}
	if engine.Ledger.Version() != versionBefore {
		t.Fatalf("rejected transaction moved the ledger version")
	}
	if got := engine.Ledger.Balance(rawChiliId, StockPartitionInHouse).Qty; !got.Equal(d("50")) {
		t.Fatalf("rejected transaction mutated balance: qty = %s, want 50", got)
	}
}

func TestDispatchIsAllOrNothing(t *testing.T) {
	engine := testEngine(testCatalog())
	mustPost(t, engine, &AdjustTransaction{
		AdjustmentNumber: "ADJ-000001",
		ItemId:           packedChiliId,
		Partition:        StockPartitionInHouse,
		QtyDelta:         d("100"),
		UnitCost:         d("6"),
		Reason:           AdjustmentReasonOpeningStock,
	})

	// Second line exceeds stock; the first must not post either.
	_, err := engine.Post(&DispatchTransaction{
		OrderNumber: "DISPATCH-000001",
		Lines: []ConsumeLine{
			{ItemId: packedChiliId, Partition: StockPartitionInHouse, Qty: d("40")},
			{ItemId: packedChiliId, Partition: StockPartitionInHouse, Qty: d("70")},
		},
	})
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if got := engine.Ledger.Balance(packedChiliId, StockPartitionInHouse).Qty; !got.Equal(d("100")) {
		t.Fatalf("partial dispatch leaked: qty = %s, want 100", got)
	}

	// Exactly coverable across both lines posts fine.
	mustPost(t, engine, &DispatchTransaction{
		OrderNumber: "DISPATCH-000002",
		Lines: []ConsumeLine{
			{ItemId: packedChiliId, Partition: StockPartitionInHouse, Qty: d("40")},
			{ItemId: packedChiliId, Partition: StockPartitionInHouse, Qty: d("60")},
		},
	})
	b := engine.Ledger.Balance(packedChiliId, StockPartitionInHouse)
	if !b.Qty.IsZero() || !b.Value.IsZero() {
		t.Fatalf("full dispatch left qty=%s value=%s, want both zero", b.Qty, b.Value)
	}
}

func TestPackingDrawsFromSelectedPartition(t *testing.T) {
	engine := testEngine(testCatalog())

	// In-house bulk from production, third-party bulk from a GRN, pouches.
	mustPost(t, engine, &AdjustTransaction{
		AdjustmentNumber: "ADJ-000001", ItemId: bulkChiliId, Partition: StockPartitionInHouse,
		QtyDelta: d("95"), UnitCost: d("112.782"), Reason: AdjustmentReasonOpeningStock,
	})
	mustPost(t, engine, &ReceiveTransaction{
		GrnNumber: "GRN-000001",
		Lines: []ReceiveLine{
			{ItemId: bulkChiliId, Qty: d("50"), UnitCost: d("90")},
			{ItemId: pouchId, Qty: d("1000"), UnitCost: d("2.5")},
		},
	})

	entries := mustPost(t, engine, &PackTransaction{
		RunNumber:    "PACK-000001",
		OutputItemId: packedChiliId,
		OutputQty:    d("400"),
		BulkQty:      d("20"),
		Source:       PackingSourceThirdParty,
		Materials: []ConsumeLine{
			{ItemId: pouchId, Qty: d("400")},
		},
	})

	if entries[0].Partition != StockPartitionThirdParty {
		t.Fatalf("bulk drawn from %s, want THIRD_PARTY", entries[0].Partition)
	}
	if got := engine.Ledger.Balance(bulkChiliId, StockPartitionInHouse).Qty; !got.Equal(d("95")) {
		t.Fatalf("in-house bulk touched: qty = %s, want 95", got)
	}
	if got := engine.Ledger.Balance(bulkChiliId, StockPartitionThirdParty).Qty; !got.Equal(d("30")) {
		t.Fatalf("third-party bulk qty = %s, want 30", got)
	}

	// Output value = 20kg at 90 + 400 pouches at 2.5.
	output := engine.Ledger.Balance(packedChiliId, StockPartitionInHouse)
	if !output.Value.Equal(d("2800")) {
		t.Fatalf("finished goods value = %s, want 2800", output.Value)
	}
}

func TestPackingSourceResolution(t *testing.T) {
	catalog := testCatalog()
	engine := testEngine(catalog)

	// Explicit link wins even with a same-named bulk item present.
	source, err := engine.resolvePackingSource(catalog.items[packedChiliId])
	if err != nil {
		t.Fatalf("resolve with explicit link: %v", err)
	}
	if source.ID != bulkChiliId {
		t.Fatalf("resolved item %d, want %d", source.ID, bulkChiliId)
	}

	// Legacy items without the link fall back to the name convention.
	legacy := &Item{ID: 9, Name: "Red Chili Powder 100g", Category: ItemCategoryFinishedGood}
	source, err = engine.resolvePackingSource(legacy)
	if err != nil {
		t.Fatalf("resolve by name: %v", err)
	}
	if source.ID != bulkChiliId {
		t.Fatalf("name match resolved item %d, want %d", source.ID, bulkChiliId)
	}

	// Two plausible bulk matches must fail, not guess.
	catalog.items[10] = &Item{ID: 10, Name: "Chili Powder (Bulk)", Category: ItemCategoryBulk}
	_, err = engine.resolvePackingSource(legacy)
	var ambiguous *AmbiguousPackingSourceError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("err = %v, want AmbiguousPackingSourceError", err)
	}
	if len(ambiguous.Candidates) != 2 {
		t.Fatalf("candidates = %v, want both bulk items", ambiguous.Candidates)
	}

	// No match at all is also an error.
	orphan := &Item{ID: 11, Name: "Garlic Paste 200g", Category: ItemCategoryFinishedGood}
	if _, err := engine.resolvePackingSource(orphan); err == nil {
		t.Fatalf("expected error for unmatched finished good")
	}
}

func TestAdjustmentRequiresReason(t *testing.T) {
	engine := testEngine(testCatalog())

	_, err := engine.Post(&AdjustTransaction{
		AdjustmentNumber: "ADJ-000001",
		ItemId:           rawChiliId,
		Partition:        StockPartitionInHouse,
		QtyDelta:         d("10"),
		UnitCost:         d("100"),
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want ValidationError for missing reason", err)
	}
}

func TestNegativeAdjustmentValuedAtAverage(t *testing.T) {
	engine := testEngine(testCatalog())
	receiveChili(t, engine)

	entries := mustPost(t, engine, &AdjustTransaction{
		AdjustmentNumber: "ADJ-000001",
		ItemId:           rawChiliId,
		Partition:        StockPartitionInHouse,
		QtyDelta:         d("-70"),
		Reason:           AdjustmentReasonDamage,
	})
	if !entries[0].ValueDelta.Equal(d("-7500")) {
		t.Fatalf("adjustment value = %s, want -7500", entries[0].ValueDelta)
	}
}

func TestEngineTrailReplaysToSameLedger(t *testing.T) {
	engine := testEngine(testCatalog())
	var trail []*AuditEntry

	post := func(txn Transaction) {
		t.Helper()
		trail = append(trail, mustPost(t, engine, txn)...)
	}

	post(&ReceiveTransaction{GrnNumber: "GRN-000001", Lines: []ReceiveLine{
		{ItemId: rawChiliId, Qty: d("500"), UnitCost: d("100")},
		{ItemId: pouchId, Qty: d("5000"), UnitCost: d("2.5")},
	}})
	post(&ReceiveTransaction{GrnNumber: "GRN-000002", Lines: []ReceiveLine{
		{ItemId: rawChiliId, Qty: d("200"), UnitCost: d("125")},
	}})
	post(&IssueTransaction{BatchNumber: "BATCH-000001", Lines: []ConsumeLine{
		{ItemId: rawChiliId, Partition: StockPartitionInHouse, Qty: d("100")},
	}})
	post(&CompleteOutputTransaction{
		BatchNumber: "BATCH-000001", OutputItemId: bulkChiliId,
		OutputQty: d("95"), ConsumedQty: d("100"), ConsumedValue: d("10714.2857"),
	})
	post(&PackTransaction{
		RunNumber: "PACK-000001", OutputItemId: packedChiliId,
		OutputQty: d("400"), BulkQty: d("20"), Source: PackingSourceInHouse,
		Materials: []ConsumeLine{{ItemId: pouchId, Qty: d("400")}},
	})
	post(&DispatchTransaction{OrderNumber: "DISPATCH-000001", Lines: []ConsumeLine{
		{ItemId: packedChiliId, Partition: StockPartitionInHouse, Qty: d("150")},
	}})
	post(&AdjustTransaction{
		AdjustmentNumber: "ADJ-000001", ItemId: rawChiliId, Partition: StockPartitionInHouse,
		QtyDelta: d("-10"), Reason: AdjustmentReasonStockCount,
	})

	replayed := ReplayAuditTrail(trail)
	for _, want := range engine.Ledger.Balances() {
		got := replayed.Balance(want.ItemId, want.Partition)
		if !got.Qty.Equal(want.Qty) || !got.Value.Equal(want.Value) {
			t.Fatalf("replay diverged for item %d %s: got qty=%s value=%s, want qty=%s value=%s",
				want.ItemId, want.Partition, got.Qty, got.Value, want.Qty, want.Value)
		}
	}
}

func TestReceiveRejectsZeroUnitCost(t *testing.T) {
	engine := testEngine(testCatalog())

	_, err := engine.Post(&ReceiveTransaction{
		GrnNumber: "GRN-000001",
		Lines: []ReceiveLine{
			{ItemId: rawChiliId, Qty: d("10"), UnitCost: d("0")},
		},
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("zero unit cost: err = %v, want ValidationError", err)
	}
	if got := engine.Ledger.Balance(rawChiliId, StockPartitionInHouse).Qty; !got.IsZero() {
		t.Fatalf("rejected receipt still moved stock: qty = %s", got)
	}
}
