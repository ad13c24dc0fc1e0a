package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// LedgerKey identifies one running balance: an item within a partition.
type LedgerKey struct {
	ItemId    int
	Partition StockPartition
}

// StockBalance is the running balance the ledger keeps per (item, partition).
//
// Value is the asset value of the quantity on hand; the weighted-average unit
// cost is derived from it rather than stored, so balances stay exactly equal to
// the sum of their audit entries (qty = SUM(qty_delta), value = SUM(value_delta)).
type StockBalance struct {
	ItemId    int             `json:"item_id"`
	Partition StockPartition  `json:"partition"`
	Qty       decimal.Decimal `json:"qty"`
	Value     decimal.Decimal `json:"value"`
}

// WeightedAvgCost returns Value/Qty, or zero when nothing is on hand.
func (b StockBalance) WeightedAvgCost() decimal.Decimal {
	if b.Qty.IsZero() {
		return decimal.Zero
	}
	return b.Value.Div(b.Qty)
}

// LedgerSnapshot is the read-only view returned to callers after a posting.
type LedgerSnapshot struct {
	Version  int64          `json:"version"`
	Balances []StockBalance `json:"balances"`
}

// StockLedger is the in-memory stock state for one business: one balance per
// (item, partition) plus a version that increases by one per applied
// transaction.
//
// The ledger itself is not safe for concurrent use. The host must serialize
// postings per business (see utils.BusinessLock); the ledger's contract assumes
// every apply observes a consistent, up-to-date snapshot.
type StockLedger struct {
	balances map[LedgerKey]*StockBalance
	version  int64
}

func NewStockLedger() *StockLedger {
	return &StockLedger{balances: make(map[LedgerKey]*StockBalance)}
}

func (l *StockLedger) Version() int64 {
	return l.version
}

// Balance returns a copy of the balance for (itemId, partition), zero-valued if
// the item has never moved.
func (l *StockLedger) Balance(itemId int, partition StockPartition) StockBalance {
	if b, ok := l.balances[LedgerKey{ItemId: itemId, Partition: partition}]; ok {
		return *b
	}
	return StockBalance{ItemId: itemId, Partition: partition, Qty: decimal.Zero, Value: decimal.Zero}
}

// TotalOnHand sums quantity across partitions for an item.
func (l *StockLedger) TotalOnHand(itemId int) decimal.Decimal {
	total := decimal.Zero
	for key, b := range l.balances {
		if key.ItemId == itemId {
			total = total.Add(b.Qty)
		}
	}
	return total
}

// Balances returns all non-empty balances ordered by item id then partition.
func (l *StockLedger) Balances() []StockBalance {
	out := make([]StockBalance, 0, len(l.balances))
	for _, b := range l.balances {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemId != out[j].ItemId {
			return out[i].ItemId < out[j].ItemId
		}
		return out[i].Partition < out[j].Partition
	})
	return out
}

func (l *StockLedger) Snapshot() *LedgerSnapshot {
	return &LedgerSnapshot{Version: l.version, Balances: l.Balances()}
}

// applyDelta folds one signed movement into a balance.
//
// Callers must have validated sufficiency beforehand; the clamp to zero here is
// a defensive floor against rounding drift, not the primary control against
// negative stock.
func (l *StockLedger) applyDelta(key LedgerKey, qtyDelta, valueDelta decimal.Decimal) {
	b, ok := l.balances[key]
	if !ok {
		b = &StockBalance{ItemId: key.ItemId, Partition: key.Partition, Qty: decimal.Zero, Value: decimal.Zero}
		l.balances[key] = b
	}
	b.Qty = b.Qty.Add(qtyDelta)
	b.Value = b.Value.Add(valueDelta)
	if b.Qty.IsNegative() {
		b.Qty = decimal.Zero
	}
	if b.Value.IsNegative() {
		b.Value = decimal.Zero
	}
	if b.Qty.IsZero() {
		// No quantity, no asset value: prevents a cost basis from surviving an
		// empty balance and leaking into the next receipt.
		b.Value = decimal.Zero
	}
}

// ApplyEntry folds one audit entry into the ledger. Direct posting and replay
// share this single code path, which is what makes the replay invariant hold:
// the ledger is always the fold of its audit trail.
func (l *StockLedger) ApplyEntry(e *AuditEntry) {
	l.applyDelta(LedgerKey{ItemId: e.ItemId, Partition: e.Partition}, e.QtyDelta, e.ValueDelta)
}

func (l *StockLedger) bumpVersion() {
	l.version++
}

// ReplayAuditTrail folds an ordered audit trail from an empty ledger. The
// result must equal the ledger produced by direct posting of the same
// transactions; workflow.VerifyLedgerAgainstTrail enforces this.
func ReplayAuditTrail(entries []*AuditEntry) *StockLedger {
	ledger := NewStockLedger()
	lastTxn := ""
	for _, e := range entries {
		ledger.ApplyEntry(e)
		if e.ReferenceId != lastTxn {
			ledger.bumpVersion()
			lastTxn = e.ReferenceId
		}
	}
	return ledger
}
