package models

import (
	"errors"
	"strconv"
)

// ItemCategory classifies every catalog item by the stage it belongs to in the
// raw -> bulk -> packed -> dispatched pipeline.
type ItemCategory string

const (
	ItemCategoryRaw          ItemCategory = "RAW"
	ItemCategoryBulk         ItemCategory = "BULK"
	ItemCategoryPacking      ItemCategory = "PACKING"
	ItemCategoryFinishedGood ItemCategory = "FINISHED_GOOD"
)

func (t ItemCategory) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *ItemCategory) UnmarshalJSON(b []byte) error {
	str, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.New("item category must be string")
	}
	switch str {
	case "RAW":
		*t = ItemCategoryRaw
	case "BULK":
		*t = ItemCategoryBulk
	case "PACKING":
		*t = ItemCategoryPacking
	case "FINISHED_GOOD":
		*t = ItemCategoryFinishedGood
	default:
		return errors.New("invalid item category")
	}
	return nil
}

// StockPartition keeps third-party bulk receipts apart from in-house bulk so
// packing can choose its source with provenance intact. Every balance and every
// audit entry carries a partition.
type StockPartition string

const (
	StockPartitionInHouse    StockPartition = "IN_HOUSE"
	StockPartitionThirdParty StockPartition = "THIRD_PARTY"
)

func (t StockPartition) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *StockPartition) UnmarshalJSON(b []byte) error {
	str, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.New("stock partition must be string")
	}
	switch str {
	case "IN_HOUSE":
		*t = StockPartitionInHouse
	case "THIRD_PARTY":
		*t = StockPartitionThirdParty
	default:
		return errors.New("invalid stock partition")
	}
	return nil
}

// TransactionKind tags audit entries with the movement that produced them.
type TransactionKind string

const (
	TransactionKindReceive        TransactionKind = "RECEIVE"
	TransactionKindProduceConsume TransactionKind = "PRODUCE_CONSUME"
	TransactionKindProduceOutput  TransactionKind = "PRODUCE_OUTPUT"
	TransactionKindPackConsume    TransactionKind = "PACK_CONSUME"
	TransactionKindPackOutput     TransactionKind = "PACK_OUTPUT"
	TransactionKindDispatch       TransactionKind = "DISPATCH"
	TransactionKindAdjust         TransactionKind = "ADJUST"
)

func (t TransactionKind) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *TransactionKind) UnmarshalJSON(b []byte) error {
	str, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.New("transaction kind must be string")
	}
	kinds := map[string]TransactionKind{
		"RECEIVE":         TransactionKindReceive,
		"PRODUCE_CONSUME": TransactionKindProduceConsume,
		"PRODUCE_OUTPUT":  TransactionKindProduceOutput,
		"PACK_CONSUME":    TransactionKindPackConsume,
		"PACK_OUTPUT":     TransactionKindPackOutput,
		"DISPATCH":        TransactionKindDispatch,
		"ADJUST":          TransactionKindAdjust,
	}
	var ok bool
	*t, ok = kinds[str]
	if !ok {
		return errors.New("invalid transaction kind")
	}
	return nil
}

// ProductionBatchStatus is the production run lifecycle. Transitions are
// one-directional: Planned -> InProgress -> Completed, terminal at Completed.
type ProductionBatchStatus string

const (
	BatchStatusPlanned    ProductionBatchStatus = "Planned"
	BatchStatusInProgress ProductionBatchStatus = "InProgress"
	BatchStatusCompleted  ProductionBatchStatus = "Completed"
)

func (t ProductionBatchStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *ProductionBatchStatus) UnmarshalJSON(b []byte) error {
	str, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.New("batch status must be string")
	}
	switch str {
	case "Planned":
		*t = BatchStatusPlanned
	case "InProgress":
		*t = BatchStatusInProgress
	case "Completed":
		*t = BatchStatusCompleted
	default:
		return errors.New("invalid batch status")
	}
	return nil
}

// PackingRunStatus has no separate issue step, so the lifecycle collapses to
// Created -> Completed.
type PackingRunStatus string

const (
	PackingRunStatusCreated   PackingRunStatus = "Created"
	PackingRunStatusCompleted PackingRunStatus = "Completed"
)

func (t PackingRunStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *PackingRunStatus) UnmarshalJSON(b []byte) error {
	str, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.New("packing run status must be string")
	}
	switch str {
	case "Created":
		*t = PackingRunStatusCreated
	case "Completed":
		*t = PackingRunStatusCompleted
	default:
		return errors.New("invalid packing run status")
	}
	return nil
}

// PackingSourceType distinguishes where the bulk powder being packed came from:
// a completed in-house production batch or a third-party GRN partition.
type PackingSourceType string

const (
	PackingSourceInHouse    PackingSourceType = "BATCH"
	PackingSourceThirdParty PackingSourceType = "GRN"
)

func (t PackingSourceType) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *PackingSourceType) UnmarshalJSON(b []byte) error {
	str, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.New("packing source type must be string")
	}
	switch str {
	case "BATCH":
		*t = PackingSourceInHouse
	case "GRN":
		*t = PackingSourceThirdParty
	default:
		return errors.New("invalid packing source type")
	}
	return nil
}

// Partition returns the stock partition a packing source draws bulk from.
func (t PackingSourceType) Partition() StockPartition {
	if t == PackingSourceThirdParty {
		return StockPartitionThirdParty
	}
	return StockPartitionInHouse
}

// AdjustmentReason is mandatory on every compensating adjustment. There is no
// rollback transition on completed documents; an Adjust entry is the only undo.
type AdjustmentReason string

const (
	AdjustmentReasonStockCount     AdjustmentReason = "StockCount"
	AdjustmentReasonDamage         AdjustmentReason = "Damage"
	AdjustmentReasonExpiry         AdjustmentReason = "Expiry"
	AdjustmentReasonCompensation   AdjustmentReason = "Compensation"
	AdjustmentReasonOpeningStock   AdjustmentReason = "OpeningStock"
	AdjustmentReasonReconciliation AdjustmentReason = "Reconciliation"
)

func (t AdjustmentReason) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *AdjustmentReason) UnmarshalJSON(b []byte) error {
	str, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.New("adjustment reason must be string")
	}
	reasons := map[string]AdjustmentReason{
		"StockCount":     AdjustmentReasonStockCount,
		"Damage":         AdjustmentReasonDamage,
		"Expiry":         AdjustmentReasonExpiry,
		"Compensation":   AdjustmentReasonCompensation,
		"OpeningStock":   AdjustmentReasonOpeningStock,
		"Reconciliation": AdjustmentReasonReconciliation,
	}
	var ok bool
	*t, ok = reasons[str]
	if !ok {
		return errors.New("invalid adjustment reason")
	}
	return nil
}
