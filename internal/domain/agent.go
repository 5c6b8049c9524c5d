package domain

import "sort"

// Agent is a participant bank: it owns a settlement balance at the central
// fabric, an unsecured daylight overdraft cap, posted collateral, and its
// own Queue 1 (the strategic release queue governed by policy).
type Agent struct {
	ID string

	// Balance is the signed cents balance at the central settlement fabric.
	// May go negative up to the allowed overdraft limit.
	Balance int64

	UnsecuredCap      int64
	PostedCollateral  int64
	CollateralHaircut float64 // in [0,1]
	LiquidityBuffer   int64

	// OutgoingQueue is Queue 1: transaction ids awaiting a cash-manager
	// release decision, in insertion order.
	OutgoingQueue []string

	// IncomingExpected is used for inbound-flow forecasting only.
	IncomingExpected []string

	LastDecisionTick *int64

	// OutflowLedger tracks intraday outflow per counterparty, for bilateral
	// and multilateral limit checks. Reset is never performed mid-run; it
	// accumulates for the life of the simulation day set by the embedder.
	OutflowLedger map[string]int64

	// StateRegisters is the policy DSL's per-agent scratch memory, named
	// "bank_state_*" fields that default to 0.0 when unset.
	StateRegisters map[string]float64

	BilateralLimits    map[string]int64 // counterparty id -> max intraday outflow
	MultilateralLimit  int64            // 0 means unlimited
	ReleaseBudget      *ReleaseBudget
}

// ReleaseBudget is set by a SetReleaseBudget policy action and observed by
// the payment tree evaluator within the same tick.
type ReleaseBudget struct {
	MaxValue            int64
	FocusCounterparties []string
	MaxPerCounterparty  int64
	usedTotal           int64
	usedByCounterparty  map[string]int64
}

// NewAgent constructs an Agent with empty queues and ledgers.
func NewAgent(id string, balance, unsecuredCap int64) *Agent {
	return &Agent{
		ID:                id,
		Balance:           balance,
		UnsecuredCap:      unsecuredCap,
		OutflowLedger:     make(map[string]int64),
		StateRegisters:    make(map[string]float64),
		BilateralLimits:   make(map[string]int64),
	}
}

// CreditUsed is max(0, -balance): cents of overdraft currently drawn.
func (a *Agent) CreditUsed() int64 {
	if a.Balance >= 0 {
		return 0
	}
	return -a.Balance
}

// AllowedOverdraftLimit is floor(posted_collateral*(1-haircut)) + unsecured_cap.
func (a *Agent) AllowedOverdraftLimit() int64 {
	collateralValue := int64(float64(a.PostedCollateral) * (1 - a.CollateralHaircut))
	return collateralValue + a.UnsecuredCap
}

// Headroom is remaining overdraft capacity.
func (a *Agent) Headroom() int64 {
	return a.AllowedOverdraftLimit() - a.CreditUsed()
}

// AvailableLiquidity is max(0,balance) + headroom.
func (a *Agent) AvailableLiquidity() int64 {
	pos := a.Balance
	if pos < 0 {
		pos = 0
	}
	return pos + a.Headroom()
}

// CanPay reports whether amount is settleable given available liquidity.
func (a *Agent) CanPay(amount int64) bool {
	return amount <= a.AvailableLiquidity()
}

// Debit decreases balance by amount. Caller must have already verified
// CanPay; Debit itself re-checks Invariant I1 and panics if violated, since
// a debit that breaks I1 after a successful CanPay indicates a programmer
// error (concurrent mutation within a tick, which the orchestrator forbids).
func (a *Agent) Debit(amount int64) {
	a.Balance -= amount
	if a.CreditUsed() > a.AllowedOverdraftLimit() {
		panic("domain: Debit violated invariant I1 (credit_used > allowed_overdraft_limit)")
	}
}

// Credit increases balance by amount.
func (a *Agent) Credit(amount int64) {
	a.Balance += amount
}

// RecordOutflow accumulates intraday outflow to counterparty, for bilateral
// and multilateral limit tracking.
func (a *Agent) RecordOutflow(counterparty string, amount int64) {
	a.OutflowLedger[counterparty] += amount
}

// CheckBilateralLimit reports whether sending amount more to counterparty
// stays within any configured bilateral cap.
func (a *Agent) CheckBilateralLimit(counterparty string, amount int64) bool {
	limit, ok := a.BilateralLimits[counterparty]
	if !ok || limit <= 0 {
		return true
	}
	return a.OutflowLedger[counterparty]+amount <= limit
}

// CheckMultilateralLimit reports whether sending amount more, summed across
// all counterparties, stays within the agent's multilateral cap.
func (a *Agent) CheckMultilateralLimit(amount int64) bool {
	if a.MultilateralLimit <= 0 {
		return true
	}
	total := int64(0)
	for _, v := range a.OutflowLedger {
		total += v
	}
	return total+amount <= a.MultilateralLimit
}

// WithdrawCollateralAllowed implements Invariant I2: a withdrawal of amount
// w is legal only if the post-withdrawal collateral value still covers
// credit_used minus the unsecured cap.
func (a *Agent) WithdrawCollateralAllowed(w int64) bool {
	if w > a.PostedCollateral {
		return false
	}
	postValue := float64(a.PostedCollateral-w) * (1 - a.CollateralHaircut)
	required := float64(a.CreditUsed() - a.UnsecuredCap)
	return postValue >= required
}

// PostCollateral increases posted collateral.
func (a *Agent) PostCollateral(amount int64) {
	a.PostedCollateral += amount
}

// WithdrawCollateral decreases posted collateral. Caller must check
// WithdrawCollateralAllowed first.
func (a *Agent) WithdrawCollateral(amount int64) {
	a.PostedCollateral -= amount
	if a.PostedCollateral < 0 {
		panic("domain: WithdrawCollateral left posted_collateral negative")
	}
}

// SetReleaseBudget installs a fresh budget, replacing any prior one for the
// current tick.
func (a *Agent) SetReleaseBudget(b *ReleaseBudget) {
	if b != nil {
		b.usedByCounterparty = make(map[string]int64)
	}
	a.ReleaseBudget = b
}

// BudgetAllows reports whether releasing amount to counterparty is still
// within the active release budget (always true if no budget is set).
func (a *Agent) BudgetAllows(counterparty string, amount int64) bool {
	b := a.ReleaseBudget
	if b == nil {
		return true
	}
	if b.usedTotal+amount > b.MaxValue {
		return false
	}
	if b.MaxPerCounterparty > 0 && len(b.FocusCounterparties) > 0 && containsID(b.FocusCounterparties, counterparty) {
		if b.usedByCounterparty[counterparty]+amount > b.MaxPerCounterparty {
			return false
		}
	}
	return true
}

// RecordBudgetUsage debits the active release budget after a successful
// release.
func (a *Agent) RecordBudgetUsage(counterparty string, amount int64) {
	b := a.ReleaseBudget
	if b == nil {
		return
	}
	b.usedTotal += amount
	if b.usedByCounterparty == nil {
		b.usedByCounterparty = make(map[string]int64)
	}
	b.usedByCounterparty[counterparty] += amount
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// RemoveFromOutgoingQueue removes the first occurrence of txID from Queue 1.
func (a *Agent) RemoveFromOutgoingQueue(txID string) {
	for i, id := range a.OutgoingQueue {
		if id == txID {
			a.OutgoingQueue = append(a.OutgoingQueue[:i], a.OutgoingQueue[i+1:]...)
			return
		}
	}
}

// SortedAgentIDs returns ids in lexicographic order, the iteration order
// required at every orchestrator step that iterates agents.
func SortedAgentIDs(agents map[string]*Agent) []string {
	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
