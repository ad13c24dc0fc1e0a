package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func entry(kind TransactionKind, itemId int, partition StockPartition, qty, value, refId string) *AuditEntry {
	return &AuditEntry{
		BusinessId:  "test-biz",
		EntryTime:   time.Now(),
		Kind:        kind,
		ItemId:      itemId,
		Partition:   partition,
		QtyDelta:    d(qty),
		ValueDelta:  d(value),
		ReferenceId: refId,
	}
}

func TestWeightedAverageAcrossReceipts(t *testing.T) {
	ledger := NewStockLedger()

	// 500kg at 100, then 200kg at 125.
	ledger.ApplyEntry(entry(TransactionKindReceive, 1, StockPartitionInHouse, "500", "50000", "GRN-1"))
	ledger.ApplyEntry(entry(TransactionKindReceive, 1, StockPartitionInHouse, "200", "25000", "GRN-2"))

	b := ledger.Balance(1, StockPartitionInHouse)
	if !b.Qty.Equal(d("700")) {
		t.Fatalf("qty = %s, want 700", b.Qty)
	}
	if !b.Value.Equal(d("75000")) {
		t.Fatalf("value = %s, want 75000", b.Value)
	}
	got := b.WeightedAvgCost().Round(4)
	if !got.Equal(d("107.1429")) {
		t.Fatalf("avg cost = %s, want 107.1429", got)
	}
}

func TestDeductionKeepsAverageCost(t *testing.T) {
	ledger := NewStockLedger()
	ledger.ApplyEntry(entry(TransactionKindReceive, 1, StockPartitionInHouse, "700", "75000", "GRN-1"))

	// Deduct 100 at the current average.
	ledger.ApplyEntry(entry(TransactionKindProduceConsume, 1, StockPartitionInHouse, "-100", "-10714.2857", "BATCH-1"))

	b := ledger.Balance(1, StockPartitionInHouse)
	if !b.Qty.Equal(d("600")) {
		t.Fatalf("qty = %s, want 600", b.Qty)
	}
	before := d("75000").Div(d("700")).Round(4)
	after := b.WeightedAvgCost().Round(4)
	if !after.Equal(before) {
		t.Fatalf("avg cost changed on deduction: before %s, after %s", before, after)
	}
}

func TestEmptyBalanceCarriesNoValue(t *testing.T) {
	ledger := NewStockLedger()
	ledger.ApplyEntry(entry(TransactionKindReceive, 1, StockPartitionInHouse, "10", "100", "GRN-1"))
	// Rounded deduction leaves a tiny value residue; emptying the qty must
	// zero the value so the next receipt starts from a clean cost basis.
	ledger.ApplyEntry(entry(TransactionKindDispatch, 1, StockPartitionInHouse, "-10", "-99.9999", "DISPATCH-1"))

	b := ledger.Balance(1, StockPartitionInHouse)
	if !b.Qty.IsZero() || !b.Value.IsZero() {
		t.Fatalf("empty balance holds qty=%s value=%s, want both zero", b.Qty, b.Value)
	}
	if !b.WeightedAvgCost().IsZero() {
		t.Fatalf("avg cost of empty balance = %s, want 0", b.WeightedAvgCost())
	}
}

func TestNegativeDriftClampsToZero(t *testing.T) {
	ledger := NewStockLedger()
	ledger.ApplyEntry(entry(TransactionKindAdjust, 1, StockPartitionInHouse, "-5", "-50", "ADJ-1"))

	b := ledger.Balance(1, StockPartitionInHouse)
	if b.Qty.IsNegative() || b.Value.IsNegative() {
		t.Fatalf("balance went negative: qty=%s value=%s", b.Qty, b.Value)
	}
}

func TestPartitionsDoNotMerge(t *testing.T) {
	ledger := NewStockLedger()
	ledger.ApplyEntry(entry(TransactionKindProduceOutput, 2, StockPartitionInHouse, "95", "10714.2857", "BATCH-1"))
	ledger.ApplyEntry(entry(TransactionKindReceive, 2, StockPartitionThirdParty, "50", "4000", "GRN-9"))

	inHouse := ledger.Balance(2, StockPartitionInHouse)
	thirdParty := ledger.Balance(2, StockPartitionThirdParty)
	if !inHouse.Qty.Equal(d("95")) || !thirdParty.Qty.Equal(d("50")) {
		t.Fatalf("partitions merged: in-house qty=%s, third-party qty=%s", inHouse.Qty, thirdParty.Qty)
	}
	if inHouse.WeightedAvgCost().Round(4).Equal(thirdParty.WeightedAvgCost().Round(4)) {
		t.Fatalf("expected different unit costs per partition")
	}
	if !ledger.TotalOnHand(2).Equal(d("145")) {
		t.Fatalf("total on hand = %s, want 145", ledger.TotalOnHand(2))
	}
}

func TestReplayAuditTrailMatchesDirectFold(t *testing.T) {
	entries := []*AuditEntry{
		entry(TransactionKindReceive, 1, StockPartitionInHouse, "500", "50000", "GRN-1"),
		entry(TransactionKindReceive, 1, StockPartitionInHouse, "200", "25000", "GRN-2"),
		entry(TransactionKindProduceConsume, 1, StockPartitionInHouse, "-100", "-10714.2857", "BATCH-1"),
		entry(TransactionKindProduceOutput, 2, StockPartitionInHouse, "95", "10714.2857", "BATCH-1"),
		entry(TransactionKindReceive, 2, StockPartitionThirdParty, "50", "4000", "GRN-3"),
	}

	direct := NewStockLedger()
	for _, e := range entries {
		direct.ApplyEntry(e)
	}
	replayed := ReplayAuditTrail(entries)

	for _, want := range direct.Balances() {
		got := replayed.Balance(want.ItemId, want.Partition)
		if !got.Qty.Equal(want.Qty) || !got.Value.Equal(want.Value) {
			t.Fatalf("replay diverged for item %d %s: got qty=%s value=%s, want qty=%s value=%s",
				want.ItemId, want.Partition, got.Qty, got.Value, want.Qty, want.Value)
		}
	}
	// Four distinct reference ids in the trail.
	if replayed.Version() != 4 {
		t.Fatalf("replayed version = %d, want 4", replayed.Version())
	}
}
