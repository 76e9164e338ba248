package workflow

import (
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/andesdata/commerce_backend/models"
)

func lot(id string, remaining int64) *models.CurrencyLot {
	return &models.CurrencyLot{
		LotID:           id,
		OriginalAmount:  decimal.NewFromInt(remaining),
		RemainingAmount: decimal.NewFromInt(remaining),
	}
}

func TestPlanFifoConsumptionDrainsOldestFirst(t *testing.T) {
	lots := []*models.CurrencyLot{lot("LOT1", 100), lot("LOT2", 50), lot("LOT3", 200)}

	allocations, shortfall := planFifoConsumption(lots, decimal.NewFromInt(120))
	if !shortfall.IsZero() {
		t.Fatalf("expected no shortfall, got %s", shortfall)
	}
	if len(allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocations))
	}
	if allocations[0].LotID != "LOT1" || !allocations[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("first allocation wrong: %+v", allocations[0])
	}
	if allocations[1].LotID != "LOT2" || !allocations[1].Amount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("second allocation wrong: %+v", allocations[1])
	}
}

func TestPlanFifoConsumptionExactDrain(t *testing.T) {
	lots := []*models.CurrencyLot{lot("LOT1", 100)}

	allocations, shortfall := planFifoConsumption(lots, decimal.NewFromInt(100))
	if !shortfall.IsZero() {
		t.Fatalf("expected no shortfall, got %s", shortfall)
	}
	if len(allocations) != 1 || !allocations[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected allocations: %+v", allocations)
	}
}

func TestPlanFifoConsumptionReportsShortfall(t *testing.T) {
	lots := []*models.CurrencyLot{lot("LOT1", 30), lot("LOT2", 20)}

	allocations, shortfall := planFifoConsumption(lots, decimal.NewFromInt(75))
	if !shortfall.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected shortfall 25, got %s", shortfall)
	}
	// The plan is still complete over what exists; the caller discards it.
	if len(allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocations))
	}
}

func TestPlanFifoConsumptionSkipsEmptyLots(t *testing.T) {
	drained := lot("LOT1", 0)
	lots := []*models.CurrencyLot{drained, lot("LOT2", 40)}

	allocations, shortfall := planFifoConsumption(lots, decimal.NewFromInt(40))
	if !shortfall.IsZero() {
		t.Fatalf("expected no shortfall, got %s", shortfall)
	}
	if len(allocations) != 1 || allocations[0].LotID != "LOT2" {
		t.Fatalf("expected only LOT2 allocated, got %+v", allocations)
	}
}

func TestPlanFifoConsumptionFractionalAmounts(t *testing.T) {
	lots := []*models.CurrencyLot{lot("LOT1", 10)}
	lots[0].RemainingAmount = decimal.RequireFromString("10.50")

	allocations, shortfall := planFifoConsumption(lots, decimal.RequireFromString("10.49"))
	if !shortfall.IsZero() {
		t.Fatalf("expected no shortfall, got %s", shortfall)
	}
	if !allocations[0].Amount.Equal(decimal.RequireFromString("10.49")) {
		t.Fatalf("unexpected allocation amount: %s", allocations[0].Amount)
	}
}
