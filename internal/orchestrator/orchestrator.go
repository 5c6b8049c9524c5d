// Package orchestrator drives the ten-step tick loop of §4.8 and exposes
// the single facade an embedder talks to (§6): construction, ticking, and
// every query/control surface method.
package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kyd-labs/rtgs-sim/internal/arrivals"
	"github.com/kyd-labs/rtgs-sim/internal/checkpoint"
	"github.com/kyd-labs/rtgs-sim/internal/cost"
	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/internal/lsm"
	"github.com/kyd-labs/rtgs-sim/internal/policy"
	"github.com/kyd-labs/rtgs-sim/internal/rng"
	"github.com/kyd-labs/rtgs-sim/internal/scenario"
	"github.com/kyd-labs/rtgs-sim/internal/settlement"
	"github.com/kyd-labs/rtgs-sim/pkg/config"
	"github.com/kyd-labs/rtgs-sim/pkg/errors"
	"github.com/kyd-labs/rtgs-sim/pkg/logger"
)

// TickResult is returned to callers at the end of every tick; all other
// detail lives in the event log.
type TickResult struct {
	Tick           int64
	NumArrivals    int
	NumSettlements int
	NumLsmReleases int
	TotalCost      int64
}

type pendingStagger struct {
	injectTick int64
	agentID    string
	txID       string
}

// Orchestrator owns the RNG, event log, and simulation state exclusively
// for the duration of a tick; it is not safe for concurrent ticks, but
// carries a mutex to guard concurrent queries arriving mid-tick.
type Orchestrator struct {
	mu sync.Mutex

	cfg   *config.Config
	state *domain.SimulationState
	log   *domain.EventLog
	src   *rng.Source

	settle   *settlement.Service
	lsmEng   *lsm.Engine
	costEng  *cost.Engine
	scenEng  *scenario.Engine
	tracker  *throughputTracker

	arrivalGens map[string]*arrivals.Generator
	policies    map[string]*policy.Tree
	agentOrder  []string

	currentTick int64
	nextTxSeq   int64

	staggered []pendingStagger
}

// New validates cfg and constructs a ready-to-tick Orchestrator.
func New(cfg *config.Config) (*Orchestrator, error) {
	validated, err := config.Load(cfg)
	if err != nil {
		return nil, err
	}
	cfg = validated

	agents := make([]*domain.Agent, 0, len(cfg.AgentConfigs))
	for _, ac := range cfg.AgentConfigs {
		a := domain.NewAgent(ac.ID, ac.OpeningBalance, ac.UnsecuredCap)
		a.PostedCollateral = ac.PostedCollateral
		a.CollateralHaircut = ac.CollateralHaircut
		a.LiquidityBuffer = ac.LiquidityBuffer
		for cpty, limit := range ac.BilateralLimits {
			a.BilateralLimits[cpty] = limit
		}
		if ac.MultilateralLimit != nil {
			a.MultilateralLimit = *ac.MultilateralLimit
		}
		agents = append(agents, a)
	}
	state := domain.NewSimulationState(agents)
	eventLog := domain.NewEventLog()
	src := rng.New(cfg.RngSeed)

	policies := make(map[string]*policy.Tree, len(cfg.AgentConfigs))
	arrivalGens := make(map[string]*arrivals.Generator, len(cfg.AgentConfigs))
	for _, ac := range cfg.AgentConfigs {
		tree, err := policy.Build(ac.Policy)
		if err != nil {
			return nil, &errors.ConfigInvalid{Field: "agent_configs." + ac.ID + ".policy", Reason: err.Error()}
		}
		if errs := policy.Validate(tree); len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = e.Error()
			}
			return nil, &errors.ValidationFailed{Errors: msgs}
		}
		policies[ac.ID] = tree
		arrivalGens[ac.ID] = arrivals.NewGenerator(ac.ID, ac.Arrivals, src)
	}

	agentOrder := domain.SortedAgentIDs(state.Agents)

	lg := logger.New("orchestrator")
	settle := settlement.NewService(state, eventLog, logger.New("settlement"))
	lsmEng := lsm.NewEngine(state, eventLog, cfg.Lsm)
	costEng := cost.NewEngine(state, eventLog, cfg.CostRates)
	scenEng := scenario.NewEngine(state, eventLog, cfg.ScenarioEvents)

	lg.Info("orchestrator constructed", map[string]interface{}{
		"num_agents": len(agents), "ticks_per_day": cfg.TicksPerDay, "num_days": cfg.NumDays,
	})

	return &Orchestrator{
		cfg: cfg, state: state, log: eventLog, src: src,
		settle: settle, lsmEng: lsmEng, costEng: costEng, scenEng: scenEng,
		tracker:     newThroughputTracker(),
		arrivalGens: arrivalGens,
		policies:    policies,
		agentOrder:  agentOrder,
	}, nil
}

// CurrentTick returns the next tick to be executed.
func (o *Orchestrator) CurrentTick() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentTick
}

// CurrentDay returns the day containing CurrentTick.
func (o *Orchestrator) CurrentDay() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentDay()
}

func (o *Orchestrator) currentDay() int64 {
	if o.cfg.TicksPerDay == 0 {
		return 0
	}
	return o.currentTick / int64(o.cfg.TicksPerDay)
}

// Tick executes one full pass of the §4.8 loop and advances current_tick.
func (o *Orchestrator) Tick() (TickResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t := o.currentTick
	result := TickResult{Tick: t}

	if err := o.applyScenarioEvents(t); err != nil {
		return result, err
	}

	result.NumArrivals = o.sampleArrivals(t)

	for _, id := range o.agentOrder {
		o.evalStrategicCollateral(id, t)
	}

	settledInStep4 := o.runPaymentTrees(t)
	result.NumSettlements += settledInStep4

	var deferredCredits map[string]int64
	if o.cfg.DeferredCrediting {
		deferredCredits = make(map[string]int64)
	}
	qr := o.settle.ProcessQueue(t, deferredCredits)
	result.NumSettlements += qr.SettledCount
	for _, id := range qr.Settled {
		if tx, ok := o.state.Transactions[id]; ok {
			o.tracker.recordSettlement(tx.SenderID, tx.SettledAmount())
			o.lsmEng.OnDequeue(tx, tx.Amount)
		}
	}
	for _, e := range o.log.ForTick(t) {
		if e.Type == domain.EventOverdue {
			if tx, ok := o.state.Transactions[e.TxID]; ok {
				if tx.WasOverdueOnce {
					continue
				}
				tx.WasOverdueOnce = true
			}
			o.costEng.ChargeDeadlinePenalty(e.AgentID)
		}
	}

	lsmReleases := o.lsmEng.Run(t)
	result.NumLsmReleases = lsmReleases
	o.tracker.recordTick(lsmReleases)

	for _, id := range o.agentOrder {
		o.evalEndOfTickCollateral(id, t)
	}

	if deferredCredits != nil {
		o.settle.ApplyDeferredCredits(deferredCredits, t)
	}

	result.TotalCost = o.costEng.Accrue(t)

	if o.isLastTickOfDay(t) {
		o.emitEndOfDay(t)
		o.tracker.resetDay()
	}

	o.currentTick++
	return result, nil
}

func (o *Orchestrator) isLastTickOfDay(t int64) bool {
	if o.cfg.TicksPerDay == 0 {
		return false
	}
	return (t+1)%int64(o.cfg.TicksPerDay) == 0
}

func (o *Orchestrator) emitEndOfDay(t int64) {
	overdueCount := 0
	for _, tx := range o.state.Transactions {
		if tx.IsOverdue() {
			overdueCount++
		}
	}
	totalPenalties := o.costEng.ChargeEndOfDayPenalties(t)
	o.log.Append(domain.EventEndOfDay, t, "", "", map[string]interface{}{
		"overdue_count":   overdueCount,
		"total_penalties": totalPenalties,
	})
}

// --- step 1: scenario events ---

func (o *Orchestrator) applyScenarioEvents(t int64) error {
	mutations, err := o.scenEng.Apply(t)
	if err != nil {
		return err
	}
	for _, m := range mutations {
		switch m.Kind {
		case "GlobalRate":
			for _, id := range o.agentOrder {
				o.arrivalGens[id].SetRatePerTick(m.NewRate)
			}
		case "AgentRate":
			if gen, ok := o.arrivalGens[m.Agent]; ok {
				gen.SetRatePerTick(m.NewRate)
			}
		case "CounterpartyWeight":
			if gen, ok := o.arrivalGens[m.Agent]; ok {
				gen.SetCounterpartyWeight(m.Counterparty, m.NewWeight)
			}
		case "DeadlineWindow":
			if gen, ok := o.arrivalGens[m.Agent]; ok {
				gen.SetDeadlineWindow(m.NewMin, m.NewMax)
			}
		}
	}
	return nil
}

// --- step 2: arrivals ---

func (o *Orchestrator) sampleArrivals(t int64) int {
	n := 0
	o.injectDueStaggers(t)
	for _, id := range o.agentOrder {
		gen := o.arrivalGens[id]
		agent := o.state.Agents[id]
		txs := gen.Sample(t, o.agentOrder)
		for _, tx := range txs {
			o.state.AddTransaction(tx)
			agent.OutgoingQueue = append(agent.OutgoingQueue, tx.ID)
			o.log.Append(domain.EventArrival, t, tx.ID, id, map[string]interface{}{
				"receiver_id": tx.ReceiverID, "amount": tx.Amount, "deadline_tick": tx.DeadlineTick,
			})
			n++
		}
	}
	return n
}

func (o *Orchestrator) injectDueStaggers(t int64) {
	var remaining []pendingStagger
	for _, s := range o.staggered {
		if s.injectTick > t {
			remaining = append(remaining, s)
			continue
		}
		agent, ok := o.state.Agents[s.agentID]
		if !ok {
			continue
		}
		agent.OutgoingQueue = append(agent.OutgoingQueue, s.txID)
	}
	o.staggered = remaining
}

// --- steps 3 & 7: collateral trees ---

func (o *Orchestrator) evalStrategicCollateral(agentID string, t int64) {
	tree, ok := o.policies[agentID]
	if !ok || tree.StrategicCollateralTree == nil {
		return
	}
	o.evalCollateralTree(agentID, tree, tree.StrategicCollateralTree, t)
}

func (o *Orchestrator) evalEndOfTickCollateral(agentID string, t int64) {
	tree, ok := o.policies[agentID]
	if !ok || tree.EndOfTickCollateralTree == nil {
		return
	}
	o.evalCollateralTree(agentID, tree, tree.EndOfTickCollateralTree, t)
}

func (o *Orchestrator) evalCollateralTree(agentID string, tree *policy.Tree, root *policy.Node, t int64) {
	agent := o.state.Agents[agentID]
	ctx := policy.BuildContext(nil, agent, o.state, t, o.cfg.CostRates, o.cfg.TicksPerDay, o.cfg.EodRushThreshold, o.lsmSignals(agentID))
	ip := policy.NewInterpreter(ctx, tree.Parameters)
	dec := ip.EvalCollateral(root)
	o.applyCollateralDecision(agent, dec, t)
}

func (o *Orchestrator) applyCollateralDecision(agent *domain.Agent, dec *policy.CollateralDecision, t int64) {
	switch dec.Kind {
	case policy.DecPostCollateral:
		agent.PostCollateral(dec.Amount)
		o.log.Append(domain.EventCollateralPost, t, "", agent.ID, map[string]interface{}{"amount": dec.Amount})
	case policy.DecWithdrawCollateral:
		if !agent.WithdrawCollateralAllowed(dec.Amount) {
			o.log.Append(domain.EventCollateralTimerBlocked, t, "", agent.ID, map[string]interface{}{
				"reason": "invariant I2 would be violated", "amount": dec.Amount,
			})
			return
		}
		agent.WithdrawCollateral(dec.Amount)
		o.log.Append(domain.EventCollateralWithdraw, t, "", agent.ID, map[string]interface{}{"amount": dec.Amount})
	case policy.DecHoldCollateral:
		// no-op by design
	case policy.DecSetState:
		old := agent.StateRegisters[dec.Key]
		agent.StateRegisters[dec.Key] = dec.Value
		o.log.Append(domain.EventStateRegisterSet, t, "", agent.ID, map[string]interface{}{
			"key": dec.Key, "old": old, "new": dec.Value,
		})
	case policy.DecAddState:
		old := agent.StateRegisters[dec.Key]
		agent.StateRegisters[dec.Key] = old + dec.Delta
		o.log.Append(domain.EventStateRegisterSet, t, "", agent.ID, map[string]interface{}{
			"key": dec.Key, "old": old, "new": old + dec.Delta,
		})
	case policy.DecSetReleaseBudget:
		agent.SetReleaseBudget(&domain.ReleaseBudget{
			MaxValue:            dec.MaxValue,
			FocusCounterparties: dec.FocusCounterparties,
			MaxPerCounterparty:  dec.MaxPerCounterparty,
		})
		o.log.Append(domain.EventBankBudgetSet, t, "", agent.ID, map[string]interface{}{
			"max_value": dec.MaxValue, "max_per_counterparty": dec.MaxPerCounterparty,
		})
	}
}

// --- step 4: payment tree ---

func (o *Orchestrator) runPaymentTrees(t int64) int {
	settled := 0
	for _, id := range o.agentOrder {
		tree, ok := o.policies[id]
		if !ok || tree.PaymentTree == nil {
			continue
		}
		agent := o.state.Agents[id]
		snapshot := append([]string(nil), agent.OutgoingQueue...)
		for _, txID := range snapshot {
			tx, ok := o.state.Transactions[txID]
			if !ok {
				continue
			}
			ctx := policy.BuildContext(tx, agent, o.state, t, o.cfg.CostRates, o.cfg.TicksPerDay, o.cfg.EodRushThreshold, o.lsmSignals(id))
			ip := policy.NewInterpreter(ctx, tree.Parameters)
			dec := ip.EvalRelease(tree.PaymentTree, txID)
			if o.dispatchReleaseDecision(agent, tx, dec, t) {
				settled++
			}
		}
	}
	return settled
}

func (o *Orchestrator) dispatchReleaseDecision(agent *domain.Agent, tx *domain.Transaction, dec *policy.ReleaseDecision, t int64) (settled bool) {
	switch dec.Kind {
	case policy.DecRelease, policy.DecReleaseWithCredit:
		if !agent.BudgetAllows(tx.ReceiverID, tx.RemainingAmount) {
			o.log.Append(domain.EventPolicyDecision, t, tx.ID, agent.ID, map[string]interface{}{
				"decision": "Hold", "reason": "release_budget_exhausted",
			})
			return false
		}
		agent.RemoveFromOutgoingQueue(tx.ID)
		agent.RecordBudgetUsage(tx.ReceiverID, tx.RemainingAmount)
		res := o.settle.SubmitTransaction(tx, t)
		if !res.Settled {
			o.lsmEng.OnEnqueue(tx, t)
		}
		o.log.Append(domain.EventPolicySubmit, t, tx.ID, agent.ID, map[string]interface{}{
			"with_credit": dec.Kind == policy.DecReleaseWithCredit,
		})
		return res.Settled
	case policy.DecHold:
		o.log.Append(domain.EventPolicyDecision, t, tx.ID, agent.ID, map[string]interface{}{"decision": "Hold", "reason": dec.Reason})
		return false
	case policy.DecDrop:
		agent.RemoveFromOutgoingQueue(tx.ID)
		o.log.Append(domain.EventPolicyDrop, t, tx.ID, agent.ID, nil)
		return false
	case policy.DecSplit:
		o.executeSplit(agent, tx, dec, t, false)
		return false
	case policy.DecStaggerSplit:
		o.executeSplit(agent, tx, dec, t, true)
		return false
	case policy.DecReprioritize:
		tx.Priority = dec.NewPriority
		o.log.Append(domain.EventTransactionReprioritized, t, tx.ID, agent.ID, map[string]interface{}{"new_priority": dec.NewPriority})
		return false
	default:
		return false
	}
}

func (o *Orchestrator) executeSplit(agent *domain.Agent, tx *domain.Transaction, dec *policy.ReleaseDecision, t int64, stagger bool) {
	n := dec.NumSplits
	if n < 2 {
		return
	}
	agent.RemoveFromOutgoingQueue(tx.ID)

	share := tx.Amount / int64(n)
	if share < dec.MinSplitAmount && dec.MinSplitAmount > 0 {
		share = dec.MinSplitAmount
	}
	childIDs := make([]string, 0, n)
	var allocated int64
	for i := 0; i < n; i++ {
		amt := share
		if i == n-1 {
			amt = tx.Amount - allocated
		}
		allocated += amt
		o.nextTxSeq++
		childID := fmt.Sprintf("%s-split-%d", tx.ID, o.nextTxSeq)
		child := domain.NewTransaction(childID, tx.SenderID, tx.ReceiverID, amt, t, tx.DeadlineTick, tx.Priority)
		child.ParentID = tx.ID
		child.DeclaredRTGSPriority = tx.DeclaredRTGSPriority
		if stagger && dec.PriorityBoostChildren > 0 {
			child.Priority += dec.PriorityBoostChildren
			if child.Priority > 10 {
				child.Priority = 10
			}
		}
		o.state.AddTransaction(child)
		childIDs = append(childIDs, childID)

		if stagger {
			injectAt := t + dec.StaggerGapTicks*int64(i)
			if i == 0 && dec.StaggerFirstNow {
				injectAt = t
			}
			if injectAt <= t {
				agent.OutgoingQueue = append(agent.OutgoingQueue, childID)
			} else {
				o.staggered = append(o.staggered, pendingStagger{injectTick: injectAt, agentID: agent.ID, txID: childID})
			}
		} else {
			agent.OutgoingQueue = append(agent.OutgoingQueue, childID)
		}
	}

	o.costEng.ChargeSplitFriction(agent.ID, n)

	eventType := domain.EventPolicySplit
	o.log.Append(eventType, t, tx.ID, agent.ID, map[string]interface{}{
		"num_splits": n, "child_ids": childIDs, "staggered": stagger,
	})
}

// lsmSignals builds the per-agent LSM-aware/throughput fields. The
// system_queue2_pressure_index is computed from the current Queue 2 size on
// each call; no history of it is kept.
func (o *Orchestrator) lsmSignals(agentID string) *policy.LSMSignals {
	agent := o.state.Agents[agentID]
	out := make(map[string]int64)
	in := make(map[string]int64)
	for _, txID := range o.state.Queue2 {
		tx, ok := o.state.Transactions[txID]
		if !ok {
			continue
		}
		if tx.SenderID == agentID {
			out[tx.ReceiverID] += tx.RemainingAmount
		}
		if tx.ReceiverID == agentID {
			in[tx.SenderID] += tx.RemainingAmount
		}
	}

	expected := 0.0
	if o.cfg.TicksPerDay > 0 {
		tickInDay := o.currentTick % int64(o.cfg.TicksPerDay)
		expected = float64(tickInDay+1) / float64(o.cfg.TicksPerDay)
	}
	settledToday := o.tracker.settledToday(agentID)
	queue1Value := int64(0)
	for _, id := range agent.OutgoingQueue {
		if tx, ok := o.state.Transactions[id]; ok {
			queue1Value += tx.RemainingAmount
		}
	}
	denom := settledToday + queue1Value
	actual := 0.0
	if denom > 0 {
		actual = float64(settledToday) / float64(denom)
	}

	return &policy.LSMSignals{
		Q2OutValueToCounterparty:  out,
		Q2InValueFromCounterparty: in,
		MyThroughputFractionToday: actual,
		ExpectedThroughputByNow:   expected,
		SystemQueue2PressureIndex: queue2PressureIndex(o.state.Queue2Size(), len(o.state.Agents)),
		LsmRunRateLast10Ticks:     o.tracker.lsmRunRate(),
		SystemThroughputGuidance:  expected,
	}
}

// SubmitTransaction creates a transaction at the current tick and appends
// it to sender's Queue 1, per §6. It does not attempt settlement itself;
// the next tick's payment_tree pass (or a direct embedder call sequence
// that mimics it) decides when to release it.
func (o *Orchestrator) SubmitTransaction(sender, receiver string, amount, deadlineTick int64, priority int) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	agent, ok := o.state.Agents[sender]
	if !ok {
		return "", errors.ErrAgentNotFound
	}
	if _, ok := o.state.Agents[receiver]; !ok {
		return "", errors.ErrAgentNotFound
	}
	if amount <= 0 {
		return "", errors.ErrInvalidAmount
	}

	o.nextTxSeq++
	id := fmt.Sprintf("submit-%s-%d", sender, o.nextTxSeq)
	tx := domain.NewTransaction(id, sender, receiver, amount, o.currentTick, deadlineTick, priority)
	o.state.AddTransaction(tx)
	agent.OutgoingQueue = append(agent.OutgoingQueue, id)
	o.log.Append(domain.EventArrival, o.currentTick, id, sender, map[string]interface{}{
		"receiver_id": receiver, "amount": amount, "source": "submit_transaction",
	})
	return id, nil
}

// PostCollateral and WithdrawCollateral are the §6 collateral control
// surface; both enforce Invariant I2 and return a human-readable outcome.
type ControlResult struct {
	Success bool
	Message string
}

func (o *Orchestrator) PostCollateral(agentID string, amount int64) ControlResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	agent, ok := o.state.Agents[agentID]
	if !ok {
		return ControlResult{Success: false, Message: "unknown agent"}
	}
	agent.PostCollateral(amount)
	o.log.Append(domain.EventCollateralPost, o.currentTick, "", agentID, map[string]interface{}{"amount": amount})
	return ControlResult{Success: true, Message: "posted"}
}

func (o *Orchestrator) WithdrawCollateral(agentID string, amount int64) ControlResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	agent, ok := o.state.Agents[agentID]
	if !ok {
		return ControlResult{Success: false, Message: "unknown agent"}
	}
	if !agent.WithdrawCollateralAllowed(amount) {
		o.log.Append(domain.EventCollateralTimerBlocked, o.currentTick, "", agentID, map[string]interface{}{"amount": amount})
		return ControlResult{Success: false, Message: "blocked by invariant I2"}
	}
	agent.WithdrawCollateral(amount)
	o.log.Append(domain.EventCollateralWithdraw, o.currentTick, "", agentID, map[string]interface{}{"amount": amount})
	return ControlResult{Success: true, Message: "withdrawn"}
}

// --- query surface (§6) ---

func (o *Orchestrator) GetAgentBalance(agentID string) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	agent, ok := o.state.Agents[agentID]
	if !ok {
		return 0, errors.ErrAgentNotFound
	}
	return agent.Balance, nil
}

func (o *Orchestrator) GetAgentUnsecuredCap(agentID string) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	agent, ok := o.state.Agents[agentID]
	if !ok {
		return 0, errors.ErrAgentNotFound
	}
	return agent.UnsecuredCap, nil
}

// AgentState reports every headroom/liquidity metric for one agent.
type AgentState struct {
	Balance              int64
	CreditUsed           int64
	AllowedOverdraftLimit int64
	Headroom             int64
	AvailableLiquidity   int64
	PostedCollateral     int64
	Queue1Size           int
}

func (o *Orchestrator) GetAgentState(agentID string) (AgentState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	agent, ok := o.state.Agents[agentID]
	if !ok {
		return AgentState{}, errors.ErrAgentNotFound
	}
	return AgentState{
		Balance:               agent.Balance,
		CreditUsed:            agent.CreditUsed(),
		AllowedOverdraftLimit: agent.AllowedOverdraftLimit(),
		Headroom:              agent.Headroom(),
		AvailableLiquidity:    agent.AvailableLiquidity(),
		PostedCollateral:      agent.PostedCollateral,
		Queue1Size:            len(agent.OutgoingQueue),
	}, nil
}

func (o *Orchestrator) GetQueue1Size(agentID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	agent, ok := o.state.Agents[agentID]
	if !ok {
		return 0
	}
	return len(agent.OutgoingQueue)
}

func (o *Orchestrator) GetQueue2Size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Queue2Size()
}

func (o *Orchestrator) GetAgentQueue1Contents(agentID string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	agent, ok := o.state.Agents[agentID]
	if !ok {
		return nil
	}
	return append([]string(nil), agent.OutgoingQueue...)
}

func (o *Orchestrator) GetRTGSQueueContents() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.state.Queue2...)
}

func (o *Orchestrator) GetTransactionDetails(txID string) (*domain.Transaction, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tx, ok := o.state.Transactions[txID]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	return tx, nil
}

func (o *Orchestrator) GetTickEvents(tick int64) []domain.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.log.ForTick(tick)
}

func (o *Orchestrator) GetAllEvents() []domain.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.log.All()
}

func (o *Orchestrator) GetTransactionsForDay(day int64) []*domain.Transaction {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cfg.TicksPerDay == 0 {
		return nil
	}
	start := day * int64(o.cfg.TicksPerDay)
	end := start + int64(o.cfg.TicksPerDay)
	var out []*domain.Transaction
	for _, tx := range o.state.Transactions {
		if tx.ArrivalTick >= start && tx.ArrivalTick < end {
			out = append(out, tx)
		}
	}
	return out
}

// DailyAgentMetrics summarizes one agent's activity over a day.
type DailyAgentMetrics struct {
	AgentID        string
	ArrivalCount   int
	SettledCount   int
	SettledValue   int64
	OverdueCount   int
	TotalCost      int64
}

func (o *Orchestrator) GetDailyAgentMetrics(day int64) map[string]DailyAgentMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cfg.TicksPerDay == 0 {
		return nil
	}
	start := day * int64(o.cfg.TicksPerDay)
	end := start + int64(o.cfg.TicksPerDay)
	out := make(map[string]DailyAgentMetrics, len(o.state.Agents))
	for _, id := range o.agentOrder {
		out[id] = DailyAgentMetrics{AgentID: id, TotalCost: o.costEng.Breakdown(id).Total()}
	}
	for tick := start; tick < end; tick++ {
		for _, e := range o.log.ForTick(tick) {
			m, ok := out[e.AgentID]
			if !ok {
				continue
			}
			switch e.Type {
			case domain.EventArrival:
				m.ArrivalCount++
			case domain.EventRtgsImmediateSettlement, domain.EventQueue2LiquidityRelease:
				m.SettledCount++
				if tx, ok := o.state.Transactions[e.TxID]; ok {
					m.SettledValue += tx.SettledAmount()
				}
			case domain.EventOverdue:
				m.OverdueCount++
			}
			out[e.AgentID] = m
		}
	}
	return out
}

func (o *Orchestrator) GetLsmCyclesForDay(day int64) []domain.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cfg.TicksPerDay == 0 {
		return nil
	}
	start := day * int64(o.cfg.TicksPerDay)
	end := start + int64(o.cfg.TicksPerDay)
	var out []domain.Event
	for _, e := range o.log.ForType(domain.EventLsmCycleSettlement) {
		if e.Tick >= start && e.Tick < end {
			out = append(out, e)
		}
	}
	return out
}

func (o *Orchestrator) GetCollateralEventsForDay(day int64) []domain.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cfg.TicksPerDay == 0 {
		return nil
	}
	start := day * int64(o.cfg.TicksPerDay)
	end := start + int64(o.cfg.TicksPerDay)
	kinds := []domain.EventType{domain.EventCollateralPost, domain.EventCollateralWithdraw, domain.EventCollateralTimerBlocked}
	var out []domain.Event
	for _, k := range kinds {
		for _, e := range o.log.ForType(k) {
			if e.Tick >= start && e.Tick < end {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (o *Orchestrator) GetAgentAccumulatedCosts(agentID string) *domain.CostBreakdown {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.costEng.Breakdown(agentID)
}

// SystemMetrics is the snapshot returned by get_system_metrics.
type SystemMetrics struct {
	CurrentTick   int64
	CurrentDay    int64
	TotalAgents   int
	Queue2Size    int
	Queue2Value   int64
	TotalBalance  int64
	LsmRunRate    float64
}

func (o *Orchestrator) GetSystemMetrics() SystemMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	var value int64
	for _, id := range o.state.Queue2 {
		if tx, ok := o.state.Transactions[id]; ok {
			value += tx.RemainingAmount
		}
	}
	return SystemMetrics{
		CurrentTick:  o.currentTick,
		CurrentDay:   o.currentDay(),
		TotalAgents:  len(o.state.Agents),
		Queue2Size:   o.state.Queue2Size(),
		Queue2Value:  value,
		TotalBalance: o.state.TotalBalance(),
		LsmRunRate:   o.tracker.lsmRunRate(),
	}
}

func (o *Orchestrator) GetTransactionsNearDeadline(within int64) []*domain.Transaction {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*domain.Transaction
	for _, tx := range o.state.Transactions {
		if tx.IsFullySettled() {
			continue
		}
		if tx.DeadlineTick-o.currentTick <= within && tx.DeadlineTick >= o.currentTick {
			out = append(out, tx)
		}
	}
	return out
}

func (o *Orchestrator) GetOverdueTransactions() []*domain.Transaction {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*domain.Transaction
	for _, tx := range o.state.Transactions {
		if tx.IsOverdue() {
			out = append(out, tx)
		}
	}
	return out
}

func (o *Orchestrator) GetAgentPolicies() map[string]*policy.Tree {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.policies
}

// --- checkpoint (§4.9, §6) ---

// SaveState writes a full checkpoint of the current run to path.
func (o *Orchestrator) SaveState(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	arrivalSeqs := make(map[string]int64, len(o.arrivalGens))
	for id, gen := range o.arrivalGens {
		arrivalSeqs[id] = gen.Seq()
	}
	staggered := make([]checkpoint.PendingStagger, len(o.staggered))
	for i, s := range o.staggered {
		staggered[i] = checkpoint.PendingStagger{InjectTick: s.injectTick, AgentID: s.agentID, TxID: s.txID}
	}

	books := o.costEng.Books()
	costAccumulators := make(map[string]*domain.CostBreakdown, len(books))
	for id, b := range books {
		cp := *b
		costAccumulators[id] = &cp
	}

	snap := checkpoint.Snapshot{
		CurrentTick:      o.currentTick,
		CurrentDay:       o.currentDay(),
		NextTxSeq:        o.nextTxSeq,
		RngState:         o.src.State(),
		RngSeed:          o.cfg.RngSeed,
		Agents:           o.state.Agents,
		Transactions:     o.state.Transactions,
		Queue2:           append([]string(nil), o.state.Queue2...),
		Events:           o.log.All(),
		ArrivalSeqs:      arrivalSeqs,
		Staggered:        staggered,
		CostAccumulators: costAccumulators,
	}
	return checkpoint.Save(path, o.cfg, snap)
}

// LoadState replaces the orchestrator's entire runtime state with the
// checkpoint at path, after verifying its config hash matches cfg (the
// same config New was built with) and re-checking, through
// validateInvariants, I1 and non-negative posted collateral against the
// restored state.
func (o *Orchestrator) LoadState(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap, err := checkpoint.Load(path, o.cfg)
	if err != nil {
		return err
	}

	o.state.Agents = snap.Agents
	o.state.Transactions = snap.Transactions
	o.state.Queue2 = append([]string(nil), snap.Queue2...)
	o.log.RestoreFrom(snap.Events)
	o.src = rng.Restore(snap.RngState)
	o.currentTick = snap.CurrentTick
	o.nextTxSeq = snap.NextTxSeq
	o.agentOrder = domain.SortedAgentIDs(o.state.Agents)

	for id, gen := range o.arrivalGens {
		if seq, ok := snap.ArrivalSeqs[id]; ok {
			gen.RestoreSeq(seq)
		}
	}
	o.staggered = o.staggered[:0]
	for _, s := range snap.Staggered {
		o.staggered = append(o.staggered, pendingStagger{injectTick: s.InjectTick, agentID: s.AgentID, txID: s.TxID})
	}

	o.lsmEng = lsm.NewEngine(o.state, o.log, o.cfg.Lsm)
	for _, txID := range o.state.Queue2 {
		if tx, ok := o.state.Transactions[txID]; ok {
			o.lsmEng.OnEnqueue(tx, o.currentTick)
		}
	}

	books := make(map[string]*domain.CostBreakdown, len(o.state.Agents))
	for id := range o.state.Agents {
		if b, ok := snap.CostAccumulators[id]; ok {
			books[id] = b
		} else {
			books[id] = domain.NewCostBreakdown()
		}
	}
	o.costEng.RestoreBooks(books)

	return o.validateInvariants()
}

// GetCheckpointInfo reads a checkpoint's metadata without restoring it.
func (o *Orchestrator) GetCheckpointInfo(path string) (checkpoint.Info, error) {
	return checkpoint.GetInfo(path)
}

// validateInvariants re-checks I1 (no agent's credit use above its allowed
// overdraft limit) after a checkpoint restore, and reports an I2 violation
// only when an agent's posted collateral is negative. It does not compare
// posted collateral with what the current draw requires, and it makes no
// balance-conservation check.
func (o *Orchestrator) validateInvariants() error {
	for _, id := range o.agentOrder {
		agent := o.state.Agents[id]
		if agent.CreditUsed() > agent.AllowedOverdraftLimit() {
			return &errors.InvariantViolated{
				Invariant: "I1", Detail: "agent " + id + " exceeds its allowed overdraft limit after restore",
			}
		}
		if agent.PostedCollateral < 0 {
			return &errors.InvariantViolated{
				Invariant: "I2", Detail: "agent " + id + " has negative posted collateral after restore",
			}
		}
	}
	return nil
}
