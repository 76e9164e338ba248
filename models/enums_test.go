package models

import "testing"

func TestOrderStatusValid(t *testing.T) {
	for _, s := range []OrderStatus{
		OrderStatusNew, OrderStatusConfirmed, OrderStatusDispatched,
		OrderStatusDelivered, OrderStatusReturned, OrderStatusCancelled,
	} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if OrderStatus("shipped").Valid() {
		t.Fatal("unknown status accepted")
	}
	if OrderStatus("").Valid() {
		t.Fatal("empty status accepted")
	}
}

func TestOrderStatusRequiresItems(t *testing.T) {
	requires := map[OrderStatus]bool{
		OrderStatusNew:        false,
		OrderStatusConfirmed:  false,
		OrderStatusDispatched: true,
		OrderStatusDelivered:  true,
		OrderStatusReturned:   true,
		OrderStatusCancelled:  false,
	}
	for status, want := range requires {
		if got := status.RequiresItems(); got != want {
			t.Fatalf("%s.RequiresItems() = %v, want %v", status, got, want)
		}
	}
}

func TestValidStockLocation(t *testing.T) {
	if !ValidStockLocation("LA PAZ") {
		t.Fatal("LA PAZ should be a stocking location")
	}
	if ValidStockLocation("LA_PAZ") {
		t.Fatal("underscore spelling should not match")
	}
	if ValidStockLocation("MIAMI") {
		t.Fatal("unknown location accepted")
	}
}

func TestNormalizedDepartment(t *testing.T) {
	cases := map[string]string{
		"LA_PAZ":     "LA PAZ",
		" la paz ":   "LA PAZ",
		"SANTA_CRUZ": "SANTA CRUZ",
		"Cochabamba": "COCHABAMBA",
		"EL_ALTO":    "EL ALTO",
	}
	for in, want := range cases {
		input := CustomerInput{Department: in}
		if got := input.NormalizedDepartment(); got != want {
			t.Fatalf("NormalizedDepartment(%q) = %q, want %q", in, got, want)
		}
	}
}
