// Package settlement implements the RTGS settlement primitive: immediate
// try_settle, Queue 1 submission, and Queue 2 priority-band processing.
package settlement

import (
	"sort"

	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/pkg/errors"
	"github.com/kyd-labs/rtgs-sim/pkg/logger"
)

// Service runs the settlement primitive against a SimulationState.
type Service struct {
	state *domain.SimulationState
	log   logger.Logger
	log2  *domain.EventLog
}

// NewService builds a settlement Service over state, appending events to log.
func NewService(state *domain.SimulationState, log2 *domain.EventLog, lg logger.Logger) *Service {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Service{state: state, log: lg, log2: log2}
}

// TrySettle attempts to atomically settle tx in full at tick. On success it
// debits sender, credits receiver, records outflow, settles tx (and
// propagates to a split parent), and returns nil. On failure it leaves all
// state untouched and returns a typed *errors.InsufficientLiquidity or
// *errors.LimitExceeded.
func (s *Service) TrySettle(tx *domain.Transaction, tick int64) error {
	if tx.RemainingAmount == 0 {
		return errors.ErrTransactionAlreadySettled
	}

	sender, ok := s.state.Agents[tx.SenderID]
	if !ok {
		return errors.ErrAgentNotFound
	}
	receiver, ok := s.state.Agents[tx.ReceiverID]
	if !ok {
		return errors.ErrAgentNotFound
	}

	amount := tx.RemainingAmount

	if !sender.CanPay(amount) {
		return &errors.InsufficientLiquidity{Required: amount, Available: sender.AvailableLiquidity()}
	}
	if !sender.CheckBilateralLimit(tx.ReceiverID, amount) {
		s.log2.Append(domain.EventBilateralLimitExceeded, tick, tx.ID, tx.SenderID, map[string]interface{}{
			"counterparty": tx.ReceiverID, "amount": amount,
		})
		return &errors.LimitExceeded{Kind: errors.LimitKindBilateral, Counterparty: tx.ReceiverID, Amount: amount}
	}
	if !sender.CheckMultilateralLimit(amount) {
		s.log2.Append(domain.EventMultilateralLimitExceeded, tick, tx.ID, tx.SenderID, map[string]interface{}{
			"counterparty": tx.ReceiverID, "amount": amount,
		})
		return &errors.LimitExceeded{Kind: errors.LimitKindMultilateral, Counterparty: tx.ReceiverID, Amount: amount}
	}

	sender.Debit(amount)
	receiver.Credit(amount)
	sender.RecordOutflow(tx.ReceiverID, amount)

	if err := tx.Settle(amount, tick); err != nil {
		panic("settlement: Settle failed after a successful liquidity/limit check: " + err.Error())
	}
	s.settleParentIfAny(tx, tick)
	return nil
}

func (s *Service) settleParentIfAny(tx *domain.Transaction, tick int64) {
	if tx.ParentID == "" {
		return
	}
	parent, ok := s.state.Transactions[tx.ParentID]
	if !ok {
		return
	}
	if err := parent.ReduceRemainingForChild(tx.Amount, tick); err != nil {
		panic("settlement: split-parent accounting broke: " + err.Error())
	}
}

// SubmitResult reports the outcome of SubmitTransaction.
type SubmitResult struct {
	Settled       bool
	QueuePosition int
}

// SubmitTransaction adds tx to state, attempts immediate settlement, and on
// failure appends it to Queue 2, recording its RTGS submission tick for
// later tie-breaking. Emits RtgsImmediateSettlement or QueuedRtgs.
func (s *Service) SubmitTransaction(tx *domain.Transaction, tick int64) SubmitResult {
	s.state.AddTransaction(tx)

	if err := s.TrySettle(tx, tick); err == nil {
		s.log2.Append(domain.EventRtgsImmediateSettlement, tick, tx.ID, tx.SenderID, map[string]interface{}{
			"receiver_id": tx.ReceiverID,
			"amount":      tx.Amount,
		})
		return SubmitResult{Settled: true}
	}

	tx.SetRTGSSubmissionTick(tick)
	s.state.EnqueueQueue2(tx.ID, tx.SenderID, tx.DeadlineTick)
	pos := len(s.state.Queue2)
	s.log2.Append(domain.EventQueuedRtgs, tick, tx.ID, tx.SenderID, map[string]interface{}{
		"receiver_id": tx.ReceiverID,
		"amount":      tx.RemainingAmount,
		"position":    pos,
	})
	return SubmitResult{Settled: false, QueuePosition: pos}
}

// QueueProcessingResult summarizes one process_queue pass.
type QueueProcessingResult struct {
	SettledCount   int
	SettledValue   int64
	RemainingSize  int
	OverdueCount   int
	Settled        []string
}

// ProcessQueue iterates Queue 2 in priority-band order (HighlyUrgent <
// Urgent < Normal, ties broken by rtgs_submission_tick then insertion
// order), transitioning past-deadline candidates to Overdue exactly once,
// and attempting settlement for each. When deferredCredits is non-nil,
// successful credits accumulate there instead of being applied immediately
// (the caller applies them atomically at end of tick). Re-queues candidates
// that fail, preserving Queue 2's relative order.
func (s *Service) ProcessQueue(tick int64, deferredCredits map[string]int64) QueueProcessingResult {
	order := s.priorityOrder()

	result := QueueProcessingResult{}
	var stillQueued []string
	settledSet := make(map[string]bool)

	for _, txID := range order {
		tx, ok := s.state.Transactions[txID]
		if !ok {
			panic("settlement: queue2 contains unknown tx id " + txID)
		}

		if tx.IsPastDeadline(tick) && !tx.IsOverdue() && !tx.IsFullySettled() {
			tx.MarkOverdue(tick)
			result.OverdueCount++
			s.log2.Append(domain.EventOverdue, tick, tx.ID, tx.SenderID, map[string]interface{}{
				"deadline_tick": tx.DeadlineTick,
			})
		}

		wasOverdue := tx.IsOverdue()
		if err := s.trySettleDeferrable(tx, tick, deferredCredits); err != nil {
			stillQueued = append(stillQueued, txID)
			continue
		}

		settledSet[txID] = true
		result.SettledCount++
		result.SettledValue += tx.SettledAmount()
		result.Settled = append(result.Settled, txID)

		s.state.RemoveFromQueue2(txID, tx.SenderID, tx.DeadlineTick)
		s.log2.Append(domain.EventQueue2LiquidityRelease, tick, tx.ID, tx.SenderID, map[string]interface{}{
			"receiver_id": tx.ReceiverID,
			"amount":      tx.Amount,
		})
		if wasOverdue {
			s.log2.Append(domain.EventOverdueTransactionSettled, tick, tx.ID, tx.SenderID, nil)
		}
	}

	result.RemainingSize = s.state.Queue2Size()
	return result
}

// trySettleDeferrable settles tx like TrySettle, but when deferredCredits is
// non-nil the receiver credit is withheld and accumulated by receiver id
// instead of applied immediately; the sender side (debit, outflow ledger,
// tx status) is applied now regardless.
func (s *Service) trySettleDeferrable(tx *domain.Transaction, tick int64, deferredCredits map[string]int64) error {
	if deferredCredits == nil {
		return s.TrySettle(tx, tick)
	}
	if tx.RemainingAmount == 0 {
		return errors.ErrTransactionAlreadySettled
	}

	sender, ok := s.state.Agents[tx.SenderID]
	if !ok {
		return errors.ErrAgentNotFound
	}
	if _, ok := s.state.Agents[tx.ReceiverID]; !ok {
		return errors.ErrAgentNotFound
	}

	amount := tx.RemainingAmount
	if !sender.CanPay(amount) {
		return &errors.InsufficientLiquidity{Required: amount, Available: sender.AvailableLiquidity()}
	}
	if !sender.CheckBilateralLimit(tx.ReceiverID, amount) {
		s.log2.Append(domain.EventBilateralLimitExceeded, tick, tx.ID, tx.SenderID, map[string]interface{}{
			"counterparty": tx.ReceiverID, "amount": amount,
		})
		return &errors.LimitExceeded{Kind: errors.LimitKindBilateral, Counterparty: tx.ReceiverID, Amount: amount}
	}
	if !sender.CheckMultilateralLimit(amount) {
		s.log2.Append(domain.EventMultilateralLimitExceeded, tick, tx.ID, tx.SenderID, map[string]interface{}{
			"counterparty": tx.ReceiverID, "amount": amount,
		})
		return &errors.LimitExceeded{Kind: errors.LimitKindMultilateral, Counterparty: tx.ReceiverID, Amount: amount}
	}

	sender.Debit(amount)
	sender.RecordOutflow(tx.ReceiverID, amount)
	deferredCredits[tx.ReceiverID] += amount

	if err := tx.Settle(amount, tick); err != nil {
		panic("settlement: Settle failed after a successful liquidity/limit check: " + err.Error())
	}
	s.settleParentIfAny(tx, tick)
	return nil
}

// ApplyDeferredCredits credits every accumulated receiver in sorted id
// order, atomically, and emits one DeferredCreditApplied event per receiver.
func (s *Service) ApplyDeferredCredits(deferredCredits map[string]int64, tick int64) {
	ids := make([]string, 0, len(deferredCredits))
	for id := range deferredCredits {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		amount := deferredCredits[id]
		if amount == 0 {
			continue
		}
		agent, ok := s.state.Agents[id]
		if !ok {
			panic("settlement: deferred credit references unknown agent " + id)
		}
		agent.Credit(amount)
		s.log2.Append(domain.EventDeferredCreditApplied, tick, "", id, map[string]interface{}{
			"amount": amount,
		})
	}
}

// AgentMetrics is one agent's slice of the Metrics snapshot.
type AgentMetrics struct {
	Queue2Count          int
	Queue2NearestDeadline int64
	HasQueue2Entries     bool
}

// Metrics returns queue2_count_for_agent and queue2_nearest_deadline for
// every agent, backing the Policy DSL's System-scoped context fields. Both
// values are maintained incrementally by SimulationState's queue2 index
// (push/pop on enqueue/dequeue), not recomputed by scanning Queue 2.
func (s *Service) Metrics() map[string]AgentMetrics {
	out := make(map[string]AgentMetrics, len(s.state.Agents))
	for id := range s.state.Agents {
		deadline, ok := s.state.Queue2NearestDeadline(id)
		out[id] = AgentMetrics{
			Queue2Count:           s.state.Queue2CountForAgent(id),
			Queue2NearestDeadline: deadline,
			HasQueue2Entries:      ok,
		}
	}
	return out
}

// priorityOrder returns Queue 2's transaction ids ordered by RTGS priority
// band (HighlyUrgent < Urgent < Normal), ties broken by rtgs_submission_tick
// then by original insertion order (a stable sort over the existing slice
// achieves the insertion-order tiebreak for free).
func (s *Service) priorityOrder() []string {
	order := make([]string, len(s.state.Queue2))
	copy(order, s.state.Queue2)

	sort.SliceStable(order, func(i, j int) bool {
		ti := s.state.Transactions[order[i]]
		tj := s.state.Transactions[order[j]]
		bi, bj := ti.RTGSPriority.Band(), tj.RTGSPriority.Band()
		if bi != bj {
			return bi < bj
		}
		return ti.RTGSSubmissionTick < tj.RTGSSubmissionTick
	})
	return order
}
