package lsm

import (
	"testing"

	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/pkg/config"
)

func newState(ids ...string) *domain.SimulationState {
	agents := make([]*domain.Agent, 0, len(ids))
	for _, id := range ids {
		agents = append(agents, domain.NewAgent(id, 0, 0))
	}
	return domain.NewSimulationState(agents)
}

func queueTx(state *domain.SimulationState, eng *Engine, id, sender, receiver string, amount, deadline, tick int64) *domain.Transaction {
	tx := domain.NewTransaction(id, sender, receiver, amount, tick, deadline, 0)
	state.AddTransaction(tx)
	state.EnqueueQueue2(id, sender, deadline)
	tx.SetRTGSSubmissionTick(tick)
	eng.OnEnqueue(tx, tick)
	return tx
}

func TestBilateralOffsetCancelsEqualCrossFlows(t *testing.T) {
	state := newState("BANK_A", "BANK_B")
	log := domain.NewEventLog()
	eng := NewEngine(state, log, config.LsmConfig{Enabled: true, MaxCyclesPerTick: 5, MaxCycleLength: 3})

	txAB := queueTx(state, eng, "ab", "BANK_A", "BANK_B", 500_000, 100, 0)
	txBA := queueTx(state, eng, "ba", "BANK_B", "BANK_A", 500_000, 100, 0)

	settled := eng.Run(1)

	if settled == 0 {
		t.Fatal("expected a bilateral offset to settle")
	}
	if !txAB.IsFullySettled() {
		t.Fatal("expected full tx ab settled")
	}
	if txBA.RemainingAmount != 0 {
		t.Fatal("expected ba fully consumed by the offset")
	}
	if state.Agents["BANK_A"].Balance != 0 || state.Agents["BANK_B"].Balance != 0 {
		t.Fatalf("bilateral offset must not move balances: got A=%d B=%d",
			state.Agents["BANK_A"].Balance, state.Agents["BANK_B"].Balance)
	}
	if state.Queue2Size() != 0 {
		t.Fatalf("expected queue2 drained, got %d remaining", state.Queue2Size())
	}
	if len(log.ForType(domain.EventLsmBilateralOffset)) != 1 {
		t.Fatalf("expected exactly one bilateral offset event, got %d", len(log.ForType(domain.EventLsmBilateralOffset)))
	}
}

func TestBilateralOffsetPartialWhenAmountsDiffer(t *testing.T) {
	state := newState("BANK_A", "BANK_B")
	log := domain.NewEventLog()
	eng := NewEngine(state, log, config.LsmConfig{Enabled: true, MaxCyclesPerTick: 5, MaxCycleLength: 3})

	queueTx(state, eng, "ab", "BANK_A", "BANK_B", 500_000, 100, 0)
	txBA := queueTx(state, eng, "ba", "BANK_B", "BANK_A", 200_000, 100, 0)

	eng.Run(1)

	if !txBA.IsFullySettled() {
		t.Fatal("expected smaller-side tx fully settled")
	}
	if state.Queue2Size() != 1 {
		t.Fatalf("expected one remaining (split) tx in queue2, got %d", state.Queue2Size())
	}
}

func TestThreeAgentCycleSettlesWithAsymmetricNet(t *testing.T) {
	state := newState("BANK_A", "BANK_B", "BANK_C")
	state.Agents["BANK_A"].UnsecuredCap = 100_000
	state.Agents["BANK_C"].UnsecuredCap = 100_000
	log := domain.NewEventLog()
	eng := NewEngine(state, log, config.LsmConfig{Enabled: true, MaxCyclesPerTick: 5, MaxCycleLength: 3})

	// A -> B 100k, B -> C 80k, C -> A 90k: a genuine 3-cycle, not a bilateral pair.
	queueTx(state, eng, "ab", "BANK_A", "BANK_B", 100_000, 100, 0)
	queueTx(state, eng, "bc", "BANK_B", "BANK_C", 80_000, 100, 0)
	queueTx(state, eng, "ca", "BANK_C", "BANK_A", 90_000, 100, 0)

	settled := eng.Run(1)

	if settled != 3 {
		t.Fatalf("expected all three cycle legs settled, got %d", settled)
	}
	if state.Queue2Size() != 0 {
		t.Fatalf("expected queue2 drained, got %d", state.Queue2Size())
	}
	if len(log.ForType(domain.EventLsmCycleSettlement)) != 1 {
		t.Fatalf("expected exactly one cycle settlement event, got %d", len(log.ForType(domain.EventLsmCycleSettlement)))
	}
	// A: -100k out, +90k in = -10k net; B: +100k-80k = +20k; C: +80k-90k = -10k.
	if state.Agents["BANK_A"].Balance != -10_000 {
		t.Fatalf("expected BANK_A net -10000, got %d", state.Agents["BANK_A"].Balance)
	}
	if state.Agents["BANK_B"].Balance != 20_000 {
		t.Fatalf("expected BANK_B net 20000, got %d", state.Agents["BANK_B"].Balance)
	}
}

func TestCycleInfeasibleWhenHeadroomInsufficient(t *testing.T) {
	state := newState("BANK_A", "BANK_B", "BANK_C")
	// No unsecured cap anywhere: any negative net is infeasible.
	log := domain.NewEventLog()
	eng := NewEngine(state, log, config.LsmConfig{Enabled: true, MaxCyclesPerTick: 5, MaxCycleLength: 3})

	queueTx(state, eng, "ab", "BANK_A", "BANK_B", 100_000, 100, 0)
	queueTx(state, eng, "bc", "BANK_B", "BANK_C", 80_000, 100, 0)
	queueTx(state, eng, "ca", "BANK_C", "BANK_A", 90_000, 100, 0)

	settled := eng.Run(1)

	if settled != 0 {
		t.Fatalf("expected cycle to be rejected as infeasible, settled %d", settled)
	}
	if state.Queue2Size() != 3 {
		t.Fatalf("expected all three legs to remain queued, got %d", state.Queue2Size())
	}
}

func TestTwoCycleNeverHandledByMultilateralPath(t *testing.T) {
	state := newState("BANK_A", "BANK_B")
	log := domain.NewEventLog()
	eng := NewEngine(state, log, config.LsmConfig{Enabled: true, MaxCyclesPerTick: 5, MaxCycleLength: 5})

	queueTx(state, eng, "ab", "BANK_A", "BANK_B", 100_000, 100, 0)
	queueTx(state, eng, "ba", "BANK_B", "BANK_A", 100_000, 100, 0)

	eng.Run(1)

	if len(log.ForType(domain.EventLsmCycleSettlement)) != 0 {
		t.Fatal("a 2-cycle must never emit a cycle settlement event")
	}
	if len(log.ForType(domain.EventLsmBilateralOffset)) != 1 {
		t.Fatal("a 2-cycle must be cleared by the bilateral path")
	}
}
