package scenario

import (
	"testing"

	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/pkg/config"
)

func newState() *domain.SimulationState {
	a := domain.NewAgent("BANK_A", 1_000_000, 0)
	b := domain.NewAgent("BANK_B", 1_000_000, 0)
	return domain.NewSimulationState([]*domain.Agent{a, b})
}

func TestDirectTransferMovesBalanceSymmetrically(t *testing.T) {
	state := newState()
	log := domain.NewEventLog()
	events := []config.ScenarioConfig{
		{
			Kind:     "DirectTransfer",
			Schedule: config.ScheduleConfig{Kind: "OneTime", At: 3},
			From:     "BANK_A", To: "BANK_B", Amount: 200_000,
		},
	}
	eng := NewEngine(state, log, events)

	if _, err := eng.Apply(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Agents["BANK_A"].Balance != 1_000_000 {
		t.Fatal("transfer fired before its scheduled tick")
	}

	if _, err := eng.Apply(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Agents["BANK_A"].Balance != 800_000 || state.Agents["BANK_B"].Balance != 1_200_000 {
		t.Fatalf("unexpected balances after transfer: A=%d B=%d",
			state.Agents["BANK_A"].Balance, state.Agents["BANK_B"].Balance)
	}
	if len(log.ForType(domain.EventScenarioEventExecuted)) != 1 {
		t.Fatal("expected one ScenarioEventExecuted event")
	}
}

func TestRepeatingScheduleFiresOnInterval(t *testing.T) {
	sched := config.ScheduleConfig{Kind: "Repeating", Start: 10, Interval: 5}
	if sched.ShouldExecute(10) != true || sched.ShouldExecute(15) != true {
		t.Fatal("expected ticks 10 and 15 to fire")
	}
	if sched.ShouldExecute(12) {
		t.Fatal("tick 12 should not fire")
	}
	if sched.ShouldExecute(9) {
		t.Fatal("tick before start should not fire")
	}
}

func TestGlobalArrivalRateChangeProducesMutationNotStateChange(t *testing.T) {
	state := newState()
	log := domain.NewEventLog()
	events := []config.ScenarioConfig{
		{Kind: "GlobalArrivalRateChange", Schedule: config.ScheduleConfig{Kind: "OneTime", At: 0}, NewRate: 2.5},
	}
	eng := NewEngine(state, log, events)

	muts, err := eng.Apply(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(muts) != 1 || muts[0].Kind != "GlobalRate" || muts[0].NewRate != 2.5 {
		t.Fatalf("expected one GlobalRate mutation, got %v", muts)
	}
}

func TestCollateralAdjustmentBlockedByInvariantI2(t *testing.T) {
	state := newState()
	state.Agents["BANK_A"].PostedCollateral = 100
	state.Agents["BANK_A"].Balance = -100 // fully drawn against collateral-only headroom
	log := domain.NewEventLog()
	events := []config.ScenarioConfig{
		{Kind: "CollateralAdjustment", Schedule: config.ScheduleConfig{Kind: "OneTime", At: 0}, Agent: "BANK_A", Delta: -100},
	}
	eng := NewEngine(state, log, events)

	if _, err := eng.Apply(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Agents["BANK_A"].PostedCollateral != 100 {
		t.Fatal("collateral withdrawal should have been blocked, not applied")
	}
	if len(log.ForType(domain.EventCollateralTimerBlocked)) != 1 {
		t.Fatal("expected a CollateralTimerBlocked event")
	}
}
