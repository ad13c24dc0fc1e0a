package models

import (
	"errors"
	"testing"
)

func TestDispatchLineRequiresSalePrice(t *testing.T) {
	input := &NewDispatchOrder{
		CustomerId: 1,
		Lines: []NewDispatchLine{
			{ItemId: packedChiliId, Qty: d("40"), UnitPrice: d("0")},
		},
	}
	var validation *ValidationError
	if err := input.validateLines(); !errors.As(err, &validation) {
		t.Fatalf("zero unit price: err = %v, want ValidationError", err)
	}

	input.Lines[0].UnitPrice = d("-5")
	if err := input.validateLines(); !errors.As(err, &validation) {
		t.Fatalf("negative unit price: err = %v, want ValidationError", err)
	}

	input.Lines[0].UnitPrice = d("6.5")
	if err := input.validateLines(); err != nil {
		t.Fatalf("priced line rejected: %v", err)
	}
}

func TestDispatchInvoiceTotal(t *testing.T) {
	order := &DispatchOrder{
		OrderNumber: "DISPATCH-000001",
		Lines: []DispatchLine{
			{ItemId: packedChiliId, Qty: d("40"), UnitPrice: d("6.5")},
			{ItemId: packedChiliId, Qty: d("100"), UnitPrice: d("6.25")},
		},
	}
	if got := order.InvoiceTotal(); !got.Equal(d("885")) {
		t.Fatalf("invoice total = %s, want 885.0000", got)
	}
}
