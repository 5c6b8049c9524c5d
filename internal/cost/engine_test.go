package cost

import (
	"testing"

	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/pkg/config"
)

func TestCeilDivRoundsUp(t *testing.T) {
	if got := ceilDiv(1, 3); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := ceilDiv(0, 3); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := ceilDiv(9, 3); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestAccrueLiquidityCostOnOverdraft(t *testing.T) {
	a := domain.NewAgent("BANK_A", -100_000, 200_000)
	state := domain.NewSimulationState([]*domain.Agent{a})
	log := domain.NewEventLog()
	eng := NewEngine(state, log, config.CostRatesConfig{OverdraftBpsPerTick: 5, OverdueDelayMultiplier: 1})

	eng.Accrue(0)

	// credit_used = 100_000; ceil(100000*5/10000) = ceil(50) = 50
	if got := eng.Breakdown("BANK_A").LiquidityCost; got != 50 {
		t.Fatalf("expected liquidity cost 50, got %d", got)
	}
	if len(log.ForType(domain.EventCostAccrual)) != 1 {
		t.Fatal("expected one CostAccrual event")
	}
}

func TestEndOfDayPenaltyOnlyForOverdueTransactions(t *testing.T) {
	a := domain.NewAgent("BANK_A", 0, 0)
	b := domain.NewAgent("BANK_B", 0, 0)
	state := domain.NewSimulationState([]*domain.Agent{a, b})

	overdue := domain.NewTransaction("overdue", "BANK_A", "BANK_B", 100, 0, 5, 0)
	overdue.MarkOverdue(6)
	pending := domain.NewTransaction("pending", "BANK_A", "BANK_B", 100, 0, 50, 0)
	state.AddTransaction(overdue)
	state.AddTransaction(pending)

	log := domain.NewEventLog()
	eng := NewEngine(state, log, config.CostRatesConfig{EodPenaltyPerTransaction: 25, OverdueDelayMultiplier: 1})

	total := eng.ChargeEndOfDayPenalties(6)

	if total != 25 {
		t.Fatalf("expected eod penalty total 25 (one overdue tx), got %d", total)
	}
	if eng.Breakdown("BANK_A").PenaltyCost != 25 {
		t.Fatalf("expected BANK_A penalty 25, got %d", eng.Breakdown("BANK_A").PenaltyCost)
	}
}

func TestSplitFrictionChargedOncePerSplit(t *testing.T) {
	a := domain.NewAgent("BANK_A", 0, 0)
	state := domain.NewSimulationState([]*domain.Agent{a})
	log := domain.NewEventLog()
	eng := NewEngine(state, log, config.CostRatesConfig{SplitFrictionCost: 10, OverdueDelayMultiplier: 1})

	eng.ChargeSplitFriction("BANK_A", 3)

	if got := eng.Breakdown("BANK_A").SplitFrictionCost; got != 20 {
		t.Fatalf("expected 10*(3-1)=20, got %d", got)
	}
}
