package domain

import "container/heap"

// SimulationState holds the agent table, the transaction table, and Queue 2
// (the central RTGS retry queue). Total balance across all agents is
// conserved by every operation except arrivals (no balance effect) and cost
// accrual (no balance effect); scenario direct-transfers move balance
// symmetrically and so also conserve the total.
type SimulationState struct {
	Agents       map[string]*Agent
	Transactions map[string]*Transaction

	// Queue2 is the ordered sequence of transaction ids awaiting RTGS
	// settlement, in insertion order. It is the authoritative source for
	// size and contents queries; priority-band iteration order is computed
	// by the settlement package from this sequence plus each
	// Transaction's RTGSPriority/RTGSSubmissionTick.
	Queue2 []string

	queue2Index *queue2AgentIndex
}

// NewSimulationState constructs an empty state from a set of agents.
func NewSimulationState(agents []*Agent) *SimulationState {
	m := make(map[string]*Agent, len(agents))
	for _, a := range agents {
		m[a.ID] = a
	}
	return &SimulationState{
		Agents:       m,
		Transactions: make(map[string]*Transaction),
		queue2Index:  newQueue2AgentIndex(),
	}
}

// AddTransaction registers a new transaction in the transaction table.
func (s *SimulationState) AddTransaction(tx *Transaction) {
	s.Transactions[tx.ID] = tx
}

// EnqueueQueue2 appends txID to Queue 2 and updates the per-agent index.
// agentOfTx identifies which agent (the sender) the transaction counts
// against for queue2_count_for_agent / nearest-deadline metrics.
func (s *SimulationState) EnqueueQueue2(txID, agentOfTx string, deadline int64) {
	s.Queue2 = append(s.Queue2, txID)
	s.queue2Index.add(agentOfTx, txID, deadline)
}

// RemoveFromQueue2 removes the first occurrence of txID from Queue 2 and
// updates the per-agent index.
func (s *SimulationState) RemoveFromQueue2(txID, agentOfTx string, deadline int64) {
	for i, id := range s.Queue2 {
		if id == txID {
			s.Queue2 = append(s.Queue2[:i], s.Queue2[i+1:]...)
			break
		}
	}
	s.queue2Index.remove(agentOfTx, txID, deadline)
}

// Queue2Size returns len(Queue2).
func (s *SimulationState) Queue2Size() int {
	return len(s.Queue2)
}

// Queue2CountForAgent is the O(1) per-agent queued count.
func (s *SimulationState) Queue2CountForAgent(agentID string) int {
	return s.queue2Index.count(agentID)
}

// Queue2NearestDeadline returns the nearest deadline tick among this agent's
// queued transactions, and whether one exists.
func (s *SimulationState) Queue2NearestDeadline(agentID string) (int64, bool) {
	return s.queue2Index.nearestDeadline(agentID)
}

// TotalBalance sums every agent's balance, the conserved quantity checked by
// property tests.
func (s *SimulationState) TotalBalance() int64 {
	var total int64
	for _, a := range s.Agents {
		total += a.Balance
	}
	return total
}

// --- per-agent Queue 2 index ---

// queue2AgentIndex tracks, per agent, a queued-count and a lazily-cleaned
// min-heap of deadlines so Queue2NearestDeadline stays O(log n) per update
// instead of rescanning Queue2.
type queue2AgentIndex struct {
	counts    map[string]int
	deadlines map[string]*deadlineHeap
	refCounts map[string]map[int64]int
}

func newQueue2AgentIndex() *queue2AgentIndex {
	return &queue2AgentIndex{
		counts:    make(map[string]int),
		deadlines: make(map[string]*deadlineHeap),
		refCounts: make(map[string]map[int64]int),
	}
}

func (idx *queue2AgentIndex) add(agentID, _ string, deadline int64) {
	idx.counts[agentID]++
	h, ok := idx.deadlines[agentID]
	if !ok {
		h = &deadlineHeap{}
		heap.Init(h)
		idx.deadlines[agentID] = h
	}
	heap.Push(h, deadline)
	if idx.refCounts[agentID] == nil {
		idx.refCounts[agentID] = make(map[int64]int)
	}
	idx.refCounts[agentID][deadline]++
}

func (idx *queue2AgentIndex) remove(agentID, _ string, deadline int64) {
	if idx.counts[agentID] > 0 {
		idx.counts[agentID]--
	}
	if rc := idx.refCounts[agentID]; rc != nil && rc[deadline] > 0 {
		rc[deadline]--
	}
}

func (idx *queue2AgentIndex) count(agentID string) int {
	return idx.counts[agentID]
}

func (idx *queue2AgentIndex) nearestDeadline(agentID string) (int64, bool) {
	h, ok := idx.deadlines[agentID]
	if !ok {
		return 0, false
	}
	rc := idx.refCounts[agentID]
	for h.Len() > 0 {
		top := (*h)[0]
		if rc[top] > 0 {
			return top, true
		}
		heap.Pop(h)
	}
	return 0, false
}

// deadlineHeap is a min-heap of deadline ticks.
type deadlineHeap []int64

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x interface{}) { *h = append(*h, x.(int64)) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
