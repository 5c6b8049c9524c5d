// Package cost implements the per-tick cost accrual model of §4.6: integer
// ceiling-division liquidity, delay, and collateral costs, plus one-time
// split-friction, deadline, and end-of-day penalties.
package cost

import (
	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/pkg/config"
)

// Engine accrues costs into each agent's CostBreakdown.
type Engine struct {
	state *domain.SimulationState
	log   *domain.EventLog
	rates config.CostRatesConfig
	books map[string]*domain.CostBreakdown
}

// NewEngine constructs a cost Engine with a zeroed CostBreakdown per agent.
func NewEngine(state *domain.SimulationState, log *domain.EventLog, rates config.CostRatesConfig) *Engine {
	books := make(map[string]*domain.CostBreakdown, len(state.Agents))
	for id := range state.Agents {
		books[id] = domain.NewCostBreakdown()
	}
	return &Engine{state: state, log: log, rates: rates, books: books}
}

// Breakdown returns the running CostBreakdown for agentID.
func (e *Engine) Breakdown(agentID string) *domain.CostBreakdown {
	return e.books[agentID]
}

// Books returns the engine's per-agent accumulator map, for checkpointing.
func (e *Engine) Books() map[string]*domain.CostBreakdown {
	return e.books
}

// RestoreBooks replaces the engine's per-agent accumulators wholesale, e.g.
// when loading a checkpoint.
func (e *Engine) RestoreBooks(books map[string]*domain.CostBreakdown) {
	e.books = books
}

// ceilDiv performs integer ceiling division for non-negative numerator and
// strictly positive denominator, per the spec's "integer math" requirement
// for liquidity and collateral costs.
func ceilDiv(numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	return (numerator + denominator - 1) / denominator
}

// Accrue runs one tick's cost accrual for every agent (sorted id order),
// emits one CostAccrual event per agent with a non-zero total this tick, and
// returns the sum of liquidity+delay+collateral cost charged this tick
// across all agents (the TickResult.total_cost component attributable to
// step 8; one-time penalties are tracked separately by their own charge
// calls).
func (e *Engine) Accrue(tick int64) int64 {
	var tickTotal int64
	for _, id := range domain.SortedAgentIDs(e.state.Agents) {
		agent := e.state.Agents[id]
		book := e.books[id]

		liquidity := ceilDiv(agent.CreditUsed()*e.rates.OverdraftBpsPerTick, 10_000)
		delay := e.delayCostForAgent(id)
		collateral := ceilDiv(agent.PostedCollateral*e.rates.CollateralBpsPerTick, 10_000)

		book.LiquidityCost += liquidity
		book.DelayCost += delay
		book.CollateralCost += collateral
		book.RecordBalance(agent.Balance)

		agentTotal := liquidity + delay + collateral
		tickTotal += agentTotal
		if agentTotal > 0 {
			e.log.Append(domain.EventCostAccrual, tick, "", id, map[string]interface{}{
				"liquidity_cost":  liquidity,
				"delay_cost":      delay,
				"collateral_cost": collateral,
			})
		}
	}
	return tickTotal
}

// delayCostForAgent returns ceil(sum of remaining * delay_rate * multiplier)
// over every transaction the agent is the sender of, in Queue 1 or Queue 2.
func (e *Engine) delayCostForAgent(agentID string) int64 {
	agent := e.state.Agents[agentID]
	var total float64
	for _, txID := range agent.OutgoingQueue {
		tx, ok := e.state.Transactions[txID]
		if !ok {
			continue
		}
		total += e.delayContribution(tx)
	}
	for _, txID := range e.state.Queue2 {
		tx, ok := e.state.Transactions[txID]
		if !ok || tx.SenderID != agentID {
			continue
		}
		total += e.delayContribution(tx)
	}
	return ceilFloat(total)
}

func (e *Engine) delayContribution(tx *domain.Transaction) float64 {
	multiplier := 1.0
	if tx.IsOverdue() {
		multiplier = e.rates.OverdueDelayMultiplier
	}
	return float64(tx.RemainingAmount) * e.rates.DelayPerTickPerCent * multiplier
}

func ceilFloat(f float64) int64 {
	i := int64(f)
	if f > float64(i) {
		i++
	}
	return i
}

// ChargeSplitFriction applies the one-time split-friction cost for creating
// numSplits children (charged once, at split time, not per tick).
func (e *Engine) ChargeSplitFriction(agentID string, numSplits int) {
	cost := e.rates.SplitFrictionCost * int64(numSplits-1)
	if cost <= 0 {
		return
	}
	e.books[agentID].SplitFrictionCost += cost
}

// ChargeDeadlinePenalty applies the one-time penalty when a transaction
// transitions to Overdue.
func (e *Engine) ChargeDeadlinePenalty(agentID string) {
	e.books[agentID].PenaltyCost += e.rates.DeadlinePenalty
}

// ChargeEndOfDayPenalties applies eod_penalty_per_transaction for every
// transaction currently Overdue at the final tick of the day (not every
// unsettled transaction), grouped by sender, and returns the total charged.
func (e *Engine) ChargeEndOfDayPenalties(tick int64) int64 {
	var total int64
	for _, tx := range e.state.Transactions {
		if !tx.IsOverdue() {
			continue
		}
		book, ok := e.books[tx.SenderID]
		if !ok {
			continue
		}
		book.PenaltyCost += e.rates.EodPenaltyPerTransaction
		total += e.rates.EodPenaltyPerTransaction
	}
	return total
}
