package orchestrator

import (
	"testing"

	"github.com/kyd-labs/rtgs-sim/pkg/config"
)

func twoBankConfig() *config.Config {
	fifo := config.PolicyConfig{Kind: "Fifo"}
	arrivalsOff := config.ArrivalConfig{
		RatePerTick: 0,
		Amount:      config.AmountDistribution{Kind: "Uniform", Min: 100, Max: 100},
		Priority:    config.PriorityDistribution{Kind: "Fixed", Fixed: 0},
	}
	return &config.Config{
		TicksPerDay: 10,
		NumDays:     1,
		RngSeed:     42,
		AgentConfigs: []config.AgentConfig{
			{ID: "BANK_A", OpeningBalance: 1_000_000, UnsecuredCap: 0, Policy: fifo, Arrivals: arrivalsOff},
			{ID: "BANK_B", OpeningBalance: 1_000_000, UnsecuredCap: 0, Policy: fifo, Arrivals: arrivalsOff},
		},
		CostRates: config.CostRatesConfig{OverdueDelayMultiplier: 1},
		Lsm:       config.LsmConfig{Enabled: true, MaxCyclesPerTick: 4, MaxCycleLength: 3},
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := twoBankConfig()
	cfg.TicksPerDay = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("expected validation error for zero ticks_per_day")
	}
}

func TestSubmitTransactionThenTickSettlesImmediately(t *testing.T) {
	orch, err := New(twoBankConfig())
	if err != nil {
		t.Fatalf("unexpected error constructing orchestrator: %v", err)
	}

	id, err := orch.SubmitTransaction("BANK_A", "BANK_B", 50_000, 5, 0)
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if got := orch.GetQueue1Size("BANK_A"); got != 1 {
		t.Fatalf("expected tx to land in queue 1, got size %d", got)
	}

	if _, err := orch.Tick(); err != nil {
		t.Fatalf("unexpected tick error: %v", err)
	}

	tx, err := orch.GetTransactionDetails(id)
	if err != nil {
		t.Fatalf("unexpected error fetching tx: %v", err)
	}
	if !tx.IsFullySettled() {
		t.Fatal("expected fifo policy to release and settle the transaction within one tick")
	}

	balA, _ := orch.GetAgentBalance("BANK_A")
	balB, _ := orch.GetAgentBalance("BANK_B")
	if balA != 950_000 || balB != 1_050_000 {
		t.Fatalf("unexpected balances after settlement: A=%d B=%d", balA, balB)
	}
}

func TestQueuedTransactionSettlesOnceLiquidityReturns(t *testing.T) {
	cfg := twoBankConfig()
	cfg.AgentConfigs[0].OpeningBalance = 1_000
	orch, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := orch.SubmitTransaction("BANK_A", "BANK_B", 5_000, 20, 0)
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	if _, err := orch.Tick(); err != nil {
		t.Fatalf("unexpected tick error: %v", err)
	}
	tx, _ := orch.GetTransactionDetails(id)
	if tx.IsFullySettled() {
		t.Fatal("expected tx to queue, insufficient liquidity at BANK_A")
	}
	if orch.GetQueue2Size() != 1 {
		t.Fatalf("expected tx in queue 2, got size %d", orch.GetQueue2Size())
	}

	if res := orch.PostCollateral("BANK_A", 10_000); !res.Success {
		t.Fatalf("expected collateral post to succeed: %s", res.Message)
	}

	for i := 0; i < 5; i++ {
		if _, err := orch.Tick(); err != nil {
			t.Fatalf("unexpected tick error: %v", err)
		}
		tx, _ = orch.GetTransactionDetails(id)
		if tx.IsFullySettled() {
			break
		}
	}
	if !tx.IsFullySettled() {
		t.Fatal("expected tx to eventually settle after collateral restored liquidity")
	}
}

func TestBilateralOffsetSettlesBothLegsWithoutNetLiquidity(t *testing.T) {
	cfg := twoBankConfig()
	cfg.AgentConfigs[0].OpeningBalance = 0
	cfg.AgentConfigs[1].OpeningBalance = 0
	orch, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	idAB, err := orch.SubmitTransaction("BANK_A", "BANK_B", 10_000, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idBA, err := orch.SubmitTransaction("BANK_B", "BANK_A", 10_000, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := orch.Tick(); err != nil {
		t.Fatalf("unexpected tick error: %v", err)
	}

	txAB, _ := orch.GetTransactionDetails(idAB)
	txBA, _ := orch.GetTransactionDetails(idBA)
	if !txAB.IsFullySettled() || !txBA.IsFullySettled() {
		t.Fatal("expected the bilateral pair to offset and settle with zero net liquidity")
	}
	balA, _ := orch.GetAgentBalance("BANK_A")
	balB, _ := orch.GetAgentBalance("BANK_B")
	if balA != 0 || balB != 0 {
		t.Fatalf("expected balances unchanged after a perfectly offsetting pair: A=%d B=%d", balA, balB)
	}
}

func TestThreeAgentCycleSettlesViaMultilateralOffset(t *testing.T) {
	cfg := twoBankConfig()
	cfg.AgentConfigs[0].OpeningBalance = 0
	cfg.AgentConfigs[1].OpeningBalance = 0
	cfg.AgentConfigs = append(cfg.AgentConfigs, config.AgentConfig{
		ID: "BANK_C", OpeningBalance: 0, UnsecuredCap: 0,
		Policy:   config.PolicyConfig{Kind: "Fifo"},
		Arrivals: cfg.AgentConfigs[0].Arrivals,
	})
	orch, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	idAB, _ := orch.SubmitTransaction("BANK_A", "BANK_B", 7_000, 20, 0)
	idBC, _ := orch.SubmitTransaction("BANK_B", "BANK_C", 7_000, 20, 0)
	idCA, _ := orch.SubmitTransaction("BANK_C", "BANK_A", 7_000, 20, 0)

	if _, err := orch.Tick(); err != nil {
		t.Fatalf("unexpected tick error: %v", err)
	}

	for _, id := range []string{idAB, idBC, idCA} {
		tx, err := orch.GetTransactionDetails(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !tx.IsFullySettled() {
			t.Fatalf("expected cycle leg %s to settle via the multilateral pass", id)
		}
	}
}

func TestEndOfDayPenaltyScopedToOverdueOnly(t *testing.T) {
	cfg := twoBankConfig()
	cfg.TicksPerDay = 3
	cfg.AgentConfigs[0].OpeningBalance = 0
	cfg.CostRates.EodPenaltyPerTransaction = 500
	orch, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	overdueID, _ := orch.SubmitTransaction("BANK_A", "BANK_B", 1_000, 0, 0)
	onTimeID, _ := orch.SubmitTransaction("BANK_A", "BANK_B", 1_000, 50, 0)
	_ = onTimeID

	for i := 0; i < 3; i++ {
		if _, err := orch.Tick(); err != nil {
			t.Fatalf("unexpected tick error: %v", err)
		}
	}

	overdueTx, _ := orch.GetTransactionDetails(overdueID)
	if !overdueTx.IsOverdue() {
		t.Fatal("expected the zero-deadline transaction to be overdue by day end")
	}
	costs := orch.GetAgentAccumulatedCosts("BANK_A")
	if costs.PenaltyCost != 500 {
		t.Fatalf("expected exactly one eod penalty (overdue tx only), got %d", costs.PenaltyCost)
	}
}

func TestTickIsDeterministicAcrossTwoFreshRuns(t *testing.T) {
	cfg := twoBankConfig()
	cfg.AgentConfigs[0].Arrivals.RatePerTick = 0.8
	cfg.AgentConfigs[1].Arrivals.RatePerTick = 0.5

	run := func() []TickResult {
		orch, err := New(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var results []TickResult
		for i := 0; i < 10; i++ {
			r, err := orch.Tick()
			if err != nil {
				t.Fatalf("unexpected tick error: %v", err)
			}
			results = append(results, r)
		}
		return results
	}

	r1 := run()
	r2 := run()
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Fatalf("tick %d diverged between runs: %+v vs %+v", i, r1[i], r2[i])
		}
	}
}
