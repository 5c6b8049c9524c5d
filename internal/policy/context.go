package policy

import (
	"math"

	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/pkg/config"
)

// knownFields is the exact named field set the validator checks Field
// references against (plus any name with the "bank_state_" prefix, which is
// always legal and defaults to 0.0 when unset).
var knownFields = buildKnownFields()

func buildKnownFields() map[string]bool {
	names := []string{
		"amount", "remaining_amount", "settled_amount", "arrival_tick", "deadline_tick",
		"priority", "is_split", "is_past_deadline", "is_overdue", "overdue_duration",
		"is_in_queue2", "ticks_to_deadline", "queue_age",

		"balance", "credit_limit", "credit_used", "available_liquidity", "effective_liquidity",
		"credit_headroom", "is_using_credit", "liquidity_buffer", "liquidity_pressure",
		"outgoing_queue_size", "incoming_expected_count", "posted_collateral", "collateral_haircut",
		"unsecured_cap", "max_collateral_capacity", "remaining_collateral_capacity",
		"collateral_utilization", "allowed_overdraft_limit", "overdraft_headroom",
		"required_collateral_for_usage", "excess_collateral", "overdraft_utilization",
		"queue1_liquidity_gap", "queue1_total_value", "headroom", "is_overdraft_capped",

		"current_tick", "rtgs_queue_size", "rtgs_queue_value", "total_agents", "queue2_size",
		"queue2_count_for_agent", "queue2_nearest_deadline", "ticks_to_nearest_queue2_deadline",
		"system_ticks_per_day", "system_current_day", "system_tick_in_day",
		"ticks_remaining_in_day", "day_progress_fraction", "is_eod_rush",

		"cost_overdraft_bps_per_tick", "cost_delay_per_tick_per_cent", "cost_collateral_bps_per_tick",
		"cost_split_friction", "cost_deadline_penalty", "cost_eod_penalty",
		"cost_delay_this_tx_one_tick", "cost_overdraft_this_amount_one_tick",

		"my_q2_out_value_to_counterparty", "my_q2_in_value_from_counterparty", "my_bilateral_net_q2",
		"my_throughput_fraction_today", "expected_throughput_fraction_by_now", "throughput_gap",
		"system_queue2_pressure_index", "lsm_run_rate_last_10_ticks",
		"system_throughput_guidance_fraction_by_tick",
	}
	for i := 1; i <= 5; i++ {
		names = append(names,
			topN("my_q2_out_value_top_", i),
			topN("my_q2_in_value_top_", i),
			topN("my_bilateral_net_q2_top_", i),
			topN("top_cpty_", i)+"_id_hash",
		)
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func topN(prefix string, i int) string {
	return prefix + itoa(i)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// isKnownField reports whether name is a recognized Field reference: one of
// the fixed names, or a "bank_state_" register.
func isKnownField(name string) bool {
	if knownFields[name] {
		return true
	}
	return hasPrefix(name, "bank_state_")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// LSMSignals carries the cross-agent/history fields the orchestrator
// computes once per tick (bilateral Queue-2 exposure, throughput tracking,
// system-wide pressure) and merges into every per-transaction context built
// that tick. Zero value means "no signal available yet" (e.g. day 0).
type LSMSignals struct {
	Q2OutValueToCounterparty  map[string]int64 // this agent -> counterparty
	Q2InValueFromCounterparty map[string]int64 // counterparty -> this agent
	MyThroughputFractionToday float64
	ExpectedThroughputByNow   float64
	SystemQueue2PressureIndex float64
	LsmRunRateLast10Ticks     float64
	SystemThroughputGuidance  float64
}

// BuildContext computes the named evaluation-context fields for one
// transaction belonging to agent, at tick, against state. extra supplies
// the LSM-aware and throughput fields the orchestrator tracks; a nil extra
// yields zeros for all of them (legal: those fields simply read as 0.0).
func BuildContext(
	tx *domain.Transaction,
	agent *domain.Agent,
	state *domain.SimulationState,
	tick int64,
	rates config.CostRatesConfig,
	ticksPerDay int,
	eodRushThreshold float64,
	extra *LSMSignals,
) map[string]float64 {
	f := make(map[string]float64, len(knownFields)+len(agent.StateRegisters))

	if tx != nil {
		f["amount"] = float64(tx.Amount)
		f["remaining_amount"] = float64(tx.RemainingAmount)
		f["settled_amount"] = float64(tx.SettledAmount())
		f["arrival_tick"] = float64(tx.ArrivalTick)
		f["deadline_tick"] = float64(tx.DeadlineTick)
		f["priority"] = float64(tx.Priority)
		f["is_split"] = boolF(tx.IsSplit())
		f["is_past_deadline"] = boolF(tx.IsPastDeadline(tick))
		f["is_overdue"] = boolF(tx.IsOverdue())
		overdueDuration := int64(0)
		if tx.IsOverdue() && tick > tx.DeadlineTick {
			overdueDuration = tick - tx.DeadlineTick
		}
		f["overdue_duration"] = float64(overdueDuration)
		_, inQueue2 := state.Transactions[tx.ID]
		f["is_in_queue2"] = boolF(inQueue2 && containsTxID(state.Queue2, tx.ID))
		f["ticks_to_deadline"] = float64(tx.DeadlineTick - tick)
		f["queue_age"] = float64(tick - tx.ArrivalTick)
		f["cost_delay_this_tx_one_tick"] = float64(tx.RemainingAmount) * rates.DelayPerTickPerCent
		f["cost_overdraft_this_amount_one_tick"] = (float64(rates.OverdraftBpsPerTick) / 10_000) * float64(tx.RemainingAmount)
	}

	if agent != nil {
		f["balance"] = float64(agent.Balance)
		f["credit_limit"] = float64(agent.UnsecuredCap)
		f["credit_used"] = float64(agent.CreditUsed())
		f["available_liquidity"] = float64(agent.AvailableLiquidity())
		f["credit_headroom"] = float64(agent.Headroom())
		f["effective_liquidity"] = float64(agent.Balance) + float64(agent.Headroom())
		f["is_using_credit"] = boolF(agent.Balance < 0)
		f["liquidity_buffer"] = float64(agent.LiquidityBuffer)

		avail := agent.AvailableLiquidity()
		if agent.LiquidityBuffer > 0 {
			pressure := 1 - float64(avail)/float64(agent.LiquidityBuffer)
			f["liquidity_pressure"] = clamp01(pressure)
		} else {
			f["liquidity_pressure"] = 0
		}

		f["outgoing_queue_size"] = float64(len(agent.OutgoingQueue))
		f["incoming_expected_count"] = float64(len(agent.IncomingExpected))
		f["posted_collateral"] = float64(agent.PostedCollateral)
		f["collateral_haircut"] = agent.CollateralHaircut
		f["unsecured_cap"] = float64(agent.UnsecuredCap)

		maxCollateralCapacity := int64(0)
		if agent.CollateralHaircut < 1 {
			maxCollateralCapacity = int64(float64(agent.AllowedOverdraftLimit()-agent.UnsecuredCap) / (1 - agent.CollateralHaircut))
		}
		f["max_collateral_capacity"] = float64(maxCollateralCapacity)
		f["remaining_collateral_capacity"] = float64(maxCollateralCapacity - agent.PostedCollateral)

		if agent.PostedCollateral > 0 {
			f["collateral_utilization"] = clamp01(float64(agent.CreditUsed()) / (float64(agent.PostedCollateral) * (1 - agent.CollateralHaircut + 1e-12)))
		} else {
			f["collateral_utilization"] = 0
		}

		f["allowed_overdraft_limit"] = float64(agent.AllowedOverdraftLimit())
		f["overdraft_headroom"] = float64(agent.Headroom())
		requiredCollateral := int64(0)
		if agent.CreditUsed() > agent.UnsecuredCap && agent.CollateralHaircut < 1 {
			requiredCollateral = int64(float64(agent.CreditUsed()-agent.UnsecuredCap) / (1 - agent.CollateralHaircut))
		}
		f["required_collateral_for_usage"] = float64(requiredCollateral)
		f["excess_collateral"] = float64(agent.PostedCollateral - requiredCollateral)
		if agent.AllowedOverdraftLimit() > 0 {
			f["overdraft_utilization"] = clamp01(float64(agent.CreditUsed()) / float64(agent.AllowedOverdraftLimit()))
		} else {
			f["overdraft_utilization"] = 0
		}

		queue1Total := int64(0)
		for _, id := range agent.OutgoingQueue {
			if qtx, ok := state.Transactions[id]; ok {
				queue1Total += qtx.RemainingAmount
			}
		}
		f["queue1_total_value"] = float64(queue1Total)
		f["queue1_liquidity_gap"] = float64(queue1Total - agent.AvailableLiquidity())
		f["headroom"] = float64(agent.Headroom())
		f["is_overdraft_capped"] = boolF(agent.CreditUsed() >= agent.AllowedOverdraftLimit())

		nearest, hasNearest := state.Queue2NearestDeadline(agent.ID)
		f["queue2_count_for_agent"] = float64(state.Queue2CountForAgent(agent.ID))
		if hasNearest {
			f["queue2_nearest_deadline"] = float64(nearest)
			f["ticks_to_nearest_queue2_deadline"] = float64(nearest - tick)
		} else {
			f["queue2_nearest_deadline"] = 0
			f["ticks_to_nearest_queue2_deadline"] = math.Inf(1)
		}

		for k, v := range agent.StateRegisters {
			f[k] = v
		}
	}

	f["current_tick"] = float64(tick)
	f["total_agents"] = float64(len(state.Agents))
	f["queue2_size"] = float64(state.Queue2Size())

	rtgsSize, rtgsValue := int64(0), int64(0)
	for _, id := range state.Queue2 {
		if qtx, ok := state.Transactions[id]; ok {
			rtgsSize++
			rtgsValue += qtx.RemainingAmount
		}
	}
	f["rtgs_queue_size"] = float64(rtgsSize)
	f["rtgs_queue_value"] = float64(rtgsValue)

	if ticksPerDay > 0 {
		day := tick / int64(ticksPerDay)
		tickInDay := tick % int64(ticksPerDay)
		f["system_ticks_per_day"] = float64(ticksPerDay)
		f["system_current_day"] = float64(day)
		f["system_tick_in_day"] = float64(tickInDay)
		f["ticks_remaining_in_day"] = float64(int64(ticksPerDay) - tickInDay - 1)
		progress := float64(tickInDay) / float64(ticksPerDay)
		f["day_progress_fraction"] = progress
		f["is_eod_rush"] = boolF(progress >= eodRushThreshold)
	}

	f["cost_overdraft_bps_per_tick"] = float64(rates.OverdraftBpsPerTick)
	f["cost_delay_per_tick_per_cent"] = rates.DelayPerTickPerCent
	f["cost_collateral_bps_per_tick"] = float64(rates.CollateralBpsPerTick)
	f["cost_split_friction"] = float64(rates.SplitFrictionCost)
	f["cost_deadline_penalty"] = float64(rates.DeadlinePenalty)
	f["cost_eod_penalty"] = float64(rates.EodPenaltyPerTransaction)

	if extra != nil {
		applyLSMSignals(f, agent, extra)
	}

	return f
}

func applyLSMSignals(f map[string]float64, agent *domain.Agent, extra *LSMSignals) {
	f["my_throughput_fraction_today"] = extra.MyThroughputFractionToday
	f["expected_throughput_fraction_by_now"] = extra.ExpectedThroughputByNow
	f["throughput_gap"] = extra.ExpectedThroughputByNow - extra.MyThroughputFractionToday
	f["system_queue2_pressure_index"] = extra.SystemQueue2PressureIndex
	f["lsm_run_rate_last_10_ticks"] = extra.LsmRunRateLast10Ticks
	f["system_throughput_guidance_fraction_by_tick"] = extra.SystemThroughputGuidance

	if agent == nil {
		return
	}
	type cptyVal struct {
		id  string
		out int64
		in  int64
	}
	ids := make(map[string]bool)
	for id := range extra.Q2OutValueToCounterparty {
		ids[id] = true
	}
	for id := range extra.Q2InValueFromCounterparty {
		ids[id] = true
	}
	pairs := make([]cptyVal, 0, len(ids))
	for id := range ids {
		pairs = append(pairs, cptyVal{
			id:  id,
			out: extra.Q2OutValueToCounterparty[id],
			in:  extra.Q2InValueFromCounterparty[id],
		})
	}
	// Ranked by gross exposure (out+in) descending, id ascending to break ties.
	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			gi, gj := pairs[i].out+pairs[i].in, pairs[j].out+pairs[j].in
			if gj > gi || (gj == gi && pairs[j].id < pairs[i].id) {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	for rank := 1; rank <= 5; rank++ {
		suffix := itoa(rank)
		if rank-1 < len(pairs) {
			p := pairs[rank-1]
			f["my_q2_out_value_top_"+suffix] = float64(p.out)
			f["my_q2_in_value_top_"+suffix] = float64(p.in)
			f["my_bilateral_net_q2_top_"+suffix] = float64(p.in - p.out)
			f["top_cpty_"+suffix+"_id_hash"] = float64(idHash(p.id))
		} else {
			f["my_q2_out_value_top_"+suffix] = 0
			f["my_q2_in_value_top_"+suffix] = 0
			f["my_bilateral_net_q2_top_"+suffix] = 0
			f["top_cpty_"+suffix+"_id_hash"] = 0
		}
	}
	if len(pairs) > 0 {
		f["my_q2_out_value_to_counterparty"] = float64(pairs[0].out)
		f["my_q2_in_value_from_counterparty"] = float64(pairs[0].in)
		f["my_bilateral_net_q2"] = float64(pairs[0].in - pairs[0].out)
	}
}

// idHash turns a counterparty id into a small deterministic numeric field
// (FNV-1a truncated to 32 bits), so the DSL can branch on "is this my
// largest counterparty" without exposing the string type to Value.
func idHash(id string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return h
}

func containsTxID(queue []string, id string) bool {
	for _, q := range queue {
		if q == id {
			return true
		}
	}
	return false
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
