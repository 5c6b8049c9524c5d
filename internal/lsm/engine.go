// Package lsm implements the liquidity-saving mechanism: incremental
// bilateral offsetting and multilateral cycle settlement over Queue 2.
package lsm

import (
	"sort"

	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/pkg/config"
)

// Engine runs the LSM passes against a SimulationState and owns the
// incremental bilateral pair index, which the caller must keep in sync via
// OnEnqueue/OnDequeue for every Queue 2 membership change that happens
// outside the engine itself (RTGS immediate settlement and process_queue).
type Engine struct {
	state *domain.SimulationState
	log   *domain.EventLog
	cfg   config.LsmConfig
	idx   *bilateralIndex
}

// NewEngine constructs an Engine with an empty bilateral index; callers
// must replay existing Queue 2 contents through OnEnqueue before the first
// Run if the engine is constructed against a non-empty queue (e.g. after a
// checkpoint restore).
func NewEngine(state *domain.SimulationState, log *domain.EventLog, cfg config.LsmConfig) *Engine {
	return &Engine{state: state, log: log, cfg: cfg, idx: newBilateralIndex()}
}

// OnEnqueue must be called whenever a transaction enters Queue 2.
func (e *Engine) OnEnqueue(tx *domain.Transaction, tick int64) {
	e.idx.Add(tx.SenderID, tx.ReceiverID, tx.RemainingAmount, tick, tx.ID)
}

// OnDequeue must be called whenever a transaction leaves Queue 2 for any
// reason (settled, dropped, reprioritized out of band).
func (e *Engine) OnDequeue(tx *domain.Transaction, amount int64) {
	e.idx.Remove(tx.SenderID, tx.ReceiverID, amount, tx.ID)
}

// Run iterates bilateral then multilateral passes until an iteration settles
// nothing and returns the number of transactions fully settled this tick (a
// transaction only partially settled by a bilateral split is not counted).
// Each multilateral pass settles at most MaxCyclesPerTick cycles; the cap is
// not summed across iterations, so one Run can settle more cycles in total.
func (e *Engine) Run(tick int64) int {
	if !e.cfg.Enabled {
		return 0
	}
	total := 0
	for {
		bilateral := e.runBilateralPass(tick)
		multilateral := e.runMultilateralPass(tick)
		total += bilateral + multilateral
		if bilateral == 0 && multilateral == 0 {
			return total
		}
	}
}

// runBilateralPass drains the ready heap once, executing every feasible
// offset batch it finds.
func (e *Engine) runBilateralPass(tick int64) int {
	settled := 0
	for {
		key, entry, ok := e.idx.PopBestPair()
		if !ok {
			return settled
		}
		n := e.executeBilateralOffset(key, entry, tick)
		settled += n
	}
}

func (e *Engine) executeBilateralOffset(key pairKey, entry *pairEntry, tick int64) int {
	offset := entry.offset()
	if offset <= 0 {
		return 0
	}

	aSide, aSplitID, aSplitAmt, _ := selectPrefix(entry.AtoB, e.remainingOf, offset)
	bSide, bSplitID, bSplitAmt, _ := selectPrefix(entry.BtoA, e.remainingOf, offset)

	agentA := e.state.Agents[key.A]
	agentB := e.state.Agents[key.B]

	if !agentA.CheckBilateralLimit(key.B, offset) || !agentB.CheckBilateralLimit(key.A, offset) ||
		!agentA.CheckMultilateralLimit(offset) || !agentB.CheckMultilateralLimit(offset) {
		return 0
	}

	allIDs := make([]string, 0, len(aSide)+len(bSide)+2)
	for _, id := range aSide {
		tx := e.state.Transactions[id]
		e.mustSettleFull(tx, tick)
		allIDs = append(allIDs, id)
	}
	if aSplitID != "" {
		tx := e.state.Transactions[aSplitID]
		if err := tx.SettlePartial(aSplitAmt, tick); err != nil {
			panic("lsm: bilateral split settlement failed: " + err.Error())
		}
	}
	for _, id := range bSide {
		tx := e.state.Transactions[id]
		e.mustSettleFull(tx, tick)
		allIDs = append(allIDs, id)
	}
	if bSplitID != "" {
		tx := e.state.Transactions[bSplitID]
		if err := tx.SettlePartial(bSplitAmt, tick); err != nil {
			panic("lsm: bilateral split settlement failed: " + err.Error())
		}
	}

	agentA.RecordOutflow(key.B, offset)
	agentB.RecordOutflow(key.A, offset)

	fullyRemoved := e.removeFullySettled(key, aSide, bSide, aSplitID, bSplitID)

	e.log.Append(domain.EventLsmBilateralOffset, tick, "", "", map[string]interface{}{
		"agent_a":       key.A,
		"agent_b":       key.B,
		"offset_amount": offset,
		"a_to_b_tx_ids": aSide,
		"b_to_a_tx_ids": bSide,
	})

	return len(fullyRemoved)
}

func (e *Engine) mustSettleFull(tx *domain.Transaction, tick int64) {
	if err := tx.Settle(tx.RemainingAmount, tick); err != nil {
		panic("lsm: bilateral full settlement failed: " + err.Error())
	}
}

// removeFullySettled drops every fully-settled tx id from Queue 2 and the
// bilateral index, and updates the index for a split tx's reduced amount.
func (e *Engine) removeFullySettled(key pairKey, aSide, bSide []string, aSplitID, bSplitID string) []string {
	var removed []string
	for _, id := range aSide {
		e.removeQueuedTx(id)
		removed = append(removed, id)
	}
	for _, id := range bSide {
		e.removeQueuedTx(id)
		removed = append(removed, id)
	}
	if aSplitID != "" {
		tx := e.state.Transactions[aSplitID]
		if tx.IsFullySettled() {
			e.removeQueuedTx(aSplitID)
			removed = append(removed, aSplitID)
		} else {
			e.idx.Remove(tx.SenderID, tx.ReceiverID, tx.SettledAmount(), tx.ID)
		}
	}
	if bSplitID != "" {
		tx := e.state.Transactions[bSplitID]
		if tx.IsFullySettled() {
			e.removeQueuedTx(bSplitID)
			removed = append(removed, bSplitID)
		} else {
			e.idx.Remove(tx.SenderID, tx.ReceiverID, tx.SettledAmount(), tx.ID)
		}
	}
	return removed
}

func (e *Engine) removeQueuedTx(id string) {
	tx := e.state.Transactions[id]
	e.state.RemoveFromQueue2(id, tx.SenderID, tx.DeadlineTick)
	e.idx.Remove(tx.SenderID, tx.ReceiverID, tx.Amount, id)
}

func (e *Engine) remainingOf(id string) int64 {
	return e.state.Transactions[id].RemainingAmount
}

// selectPrefix walks ids from the front accumulating remaining amounts
// until target is reached, splitting the final entry if the cumulative sum
// would otherwise overshoot. ids not consumed are left untouched by the
// caller (still queued, still in the index at their original amount).
func selectPrefix(ids []string, amountOf func(string) int64, target int64) (full []string, splitID string, splitAmt int64, ok bool) {
	var cum int64
	for _, id := range ids {
		amt := amountOf(id)
		if cum+amt < target {
			full = append(full, id)
			cum += amt
			continue
		}
		if cum+amt == target {
			full = append(full, id)
			return full, "", 0, true
		}
		return full, id, target - cum, true
	}
	return full, "", 0, false
}

// runMultilateralPass rebuilds the directed graph snapshot, searches for
// feasible cycles, and settles them one at a time until the cap is hit or
// no feasible cycle remains.
func (e *Engine) runMultilateralPass(tick int64) int {
	settled := 0
	for i := 0; i < e.cfg.MaxCyclesPerTick; i++ {
		g := e.snapshotGraph()
		cycle, edges := e.findFeasibleCycle(g)
		if cycle == nil {
			return settled
		}
		settled += e.executeCycle(cycle, edges, tick)
	}
	return settled
}

func (e *Engine) snapshotGraph() *graph {
	bySender := make(map[string]map[string]*graphEdge)
	for _, txID := range e.state.Queue2 {
		tx := e.state.Transactions[txID]
		if tx.RemainingAmount == 0 {
			continue
		}
		byReceiver, ok := bySender[tx.SenderID]
		if !ok {
			byReceiver = make(map[string]*graphEdge)
			bySender[tx.SenderID] = byReceiver
		}
		edge, ok := byReceiver[tx.ReceiverID]
		if !ok {
			edge = &graphEdge{To: tx.ReceiverID}
			byReceiver[tx.ReceiverID] = edge
		}
		edge.Amount += tx.RemainingAmount
		edge.TxIDs = append(edge.TxIDs, txID)
	}
	return buildGraph(bySender)
}

// findFeasibleCycle returns the first feasible cycle found across every
// non-trivial SCC, in SCC order (SCCs are themselves sorted by their
// smallest vertex, so the overall search order is deterministic).
func (e *Engine) findFeasibleCycle(g *graph) ([]string, []graphEdge) {
	for _, scc := range g.tarjanSCC() {
		maxLen := e.cfg.MaxCycleLength
		if maxLen < 3 {
			maxLen = 3
		}
		cycle := g.findCycle(scc, maxLen)
		if cycle == nil {
			continue
		}
		edges := g.cycleEdges(cycle)
		if len(edges) < 3 {
			continue // a 2-cycle is a bilateral pair; never handled here
		}
		if e.cycleFeasible(cycle, edges) {
			return cycle, edges
		}
	}
	return nil, nil
}

// cycleFeasible computes each participant's net position (incoming cycle
// flow minus outgoing) and checks the agent with the most negative net
// against its current headroom.
func (e *Engine) cycleFeasible(cycle []string, edges []graphEdge) bool {
	net := netPositions(cycle, edges)
	worstAgent, worstNet := mostNegative(cycle, net)
	if worstNet >= 0 {
		return true
	}
	agent := e.state.Agents[worstAgent]
	return -worstNet <= agent.Headroom()
}

func netPositions(cycle []string, edges []graphEdge) map[string]int64 {
	net := make(map[string]int64, len(cycle))
	for i, from := range cycle {
		to := cycle[(i+1)%len(cycle)]
		amt := edges[i].Amount
		net[from] -= amt
		net[to] += amt
	}
	return net
}

func mostNegative(cycle []string, net map[string]int64) (string, int64) {
	worst := cycle[0]
	worstVal := net[worst]
	for _, id := range cycle[1:] {
		if net[id] < worstVal {
			worst = id
			worstVal = net[id]
		}
	}
	return worst, worstVal
}

func (e *Engine) executeCycle(cycle []string, edges []graphEdge, tick int64) int {
	net := netPositions(cycle, edges)
	settledCount := 0

	for _, edge := range edges {
		for _, txID := range edge.TxIDs {
			tx := e.state.Transactions[txID]
			if err := tx.Settle(tx.RemainingAmount, tick); err != nil {
				panic("lsm: cycle settlement failed: " + err.Error())
			}
			e.removeQueuedTx(txID)
			settledCount++
		}
	}

	ids := append([]string(nil), cycle...)
	sort.Strings(ids)
	for _, id := range ids {
		agent := e.state.Agents[id]
		agent.Balance += net[id]
	}
	for i, from := range cycle {
		to := cycle[(i+1)%len(cycle)]
		e.state.Agents[from].RecordOutflow(to, edges[i].Amount)
	}

	worstAgent, worstNet := mostNegative(cycle, net)

	amounts := make([]int64, len(edges))
	txIDs := make([][]string, len(edges))
	netPositionsOrdered := make([]int64, len(cycle))
	for i, id := range cycle {
		netPositionsOrdered[i] = net[id]
	}
	for i, edge := range edges {
		amounts[i] = edge.Amount
		txIDs[i] = edge.TxIDs
	}

	e.log.Append(domain.EventLsmCycleSettlement, tick, "", "", map[string]interface{}{
		"agents":               cycle,
		"amounts":              amounts,
		"tx_ids":               txIDs,
		"net_positions":        netPositionsOrdered,
		"max_net_outflow":      -worstNet,
		"max_net_outflow_agent": worstAgent,
	})

	return settledCount
}
