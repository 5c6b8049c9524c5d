package domain

// EventType tags the closed Event sum type. Consumers must treat unknown
// event types as forward-compatible and ignore them.
type EventType string

const (
	EventArrival                    EventType = "Arrival"
	EventPolicyDecision              EventType = "PolicyDecision"
	EventPolicyDrop                  EventType = "PolicyDrop"
	EventPolicySplit                 EventType = "PolicySplit"
	EventPolicySubmit                EventType = "PolicySubmit"
	EventCollateralPost              EventType = "CollateralPost"
	EventCollateralWithdraw          EventType = "CollateralWithdraw"
	EventCollateralTimerBlocked      EventType = "CollateralTimerBlocked"
	EventQueuedRtgs                  EventType = "QueuedRtgs"
	EventRtgsImmediateSettlement     EventType = "RtgsImmediateSettlement"
	EventTransactionReprioritized    EventType = "TransactionReprioritized"
	EventStateRegisterSet            EventType = "StateRegisterSet"
	EventBankBudgetSet               EventType = "BankBudgetSet"
	EventQueue2LiquidityRelease      EventType = "Queue2LiquidityRelease"
	EventDeferredCreditApplied       EventType = "DeferredCreditApplied"
	EventLsmBilateralOffset          EventType = "LsmBilateralOffset"
	EventLsmCycleSettlement          EventType = "LsmCycleSettlement"
	EventBilateralLimitExceeded      EventType = "BilateralLimitExceeded"
	EventMultilateralLimitExceeded   EventType = "MultilateralLimitExceeded"
	EventCostAccrual                 EventType = "CostAccrual"
	EventOverdue                     EventType = "Overdue"
	EventOverdueTransactionSettled   EventType = "OverdueTransactionSettled"
	EventScenarioEventExecuted       EventType = "ScenarioEventExecuted"
	EventEndOfDay                    EventType = "EndOfDay"
)

// Event is a single tagged record in the replayable event log. Every event
// carries Tick; most carry TxID and/or AgentID. The remaining detail lives
// in Fields, a flat map so the log stays self-describing JSON without a
// per-variant Go struct explosion at the storage layer (the typed accessors
// in orchestrator build/consume Fields for each EventType).
type Event struct {
	Seq     int64
	Type    EventType
	Tick    int64
	TxID    string
	AgentID string
	Fields  map[string]interface{}

	// LegacyType is populated alongside Queue2LiquidityRelease events with
	// the deprecated predecessor name "RtgsQueue2Settle", per the Design
	// Notes' open question: implementations must emit the canonical event;
	// embedders decide whether to expose the legacy alias.
	LegacyType string
}

func newEvent(seq int64, typ EventType, tick int64) Event {
	return Event{Seq: seq, Type: typ, Tick: tick, Fields: make(map[string]interface{})}
}

// EventLog is an append-only, query-indexed log of Events in generation
// order.
type EventLog struct {
	events    []Event
	byTick    map[int64][]int
	byType    map[EventType][]int
	byTxID    map[string][]int
	byAgentID map[string][]int
	nextSeq   int64
}

// NewEventLog constructs an empty log.
func NewEventLog() *EventLog {
	return &EventLog{
		byTick:    make(map[int64][]int),
		byType:    make(map[EventType][]int),
		byTxID:    make(map[string][]int),
		byAgentID: make(map[string][]int),
	}
}

// Append records e (assigning Seq) and updates all indices.
func (l *EventLog) Append(typ EventType, tick int64, txID, agentID string, fields map[string]interface{}) Event {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	e := Event{
		Seq:     l.nextSeq,
		Type:    typ,
		Tick:    tick,
		TxID:    txID,
		AgentID: agentID,
		Fields:  fields,
	}
	if typ == EventQueue2LiquidityRelease {
		e.LegacyType = "RtgsQueue2Settle"
	}
	idx := len(l.events)
	l.events = append(l.events, e)
	l.byTick[tick] = append(l.byTick[tick], idx)
	l.byType[typ] = append(l.byType[typ], idx)
	if txID != "" {
		l.byTxID[txID] = append(l.byTxID[txID], idx)
	}
	if agentID != "" {
		l.byAgentID[agentID] = append(l.byAgentID[agentID], idx)
	}
	l.nextSeq++
	return e
}

// All returns every event in generation order.
func (l *EventLog) All() []Event {
	return l.events
}

// ForTick returns events emitted during the given tick, in generation order.
func (l *EventLog) ForTick(tick int64) []Event {
	return l.collect(l.byTick[tick])
}

// ForType returns events of the given type, in generation order.
func (l *EventLog) ForType(typ EventType) []Event {
	return l.collect(l.byType[typ])
}

// ForTxID returns events referencing the given transaction id.
func (l *EventLog) ForTxID(txID string) []Event {
	return l.collect(l.byTxID[txID])
}

// ForAgentID returns events referencing the given agent id.
func (l *EventLog) ForAgentID(agentID string) []Event {
	return l.collect(l.byAgentID[agentID])
}

// Len returns the number of events recorded.
func (l *EventLog) Len() int {
	return len(l.events)
}

// RestoreFrom replaces the log's contents with events (already Seq-ordered,
// as produced by a prior All()) and rebuilds every index, for checkpoint
// load. nextSeq continues from the highest restored Seq.
func (l *EventLog) RestoreFrom(events []Event) {
	l.events = append([]Event(nil), events...)
	l.byTick = make(map[int64][]int)
	l.byType = make(map[EventType][]int)
	l.byTxID = make(map[string][]int)
	l.byAgentID = make(map[string][]int)
	l.nextSeq = 0
	for idx, e := range l.events {
		l.byTick[e.Tick] = append(l.byTick[e.Tick], idx)
		l.byType[e.Type] = append(l.byType[e.Type], idx)
		if e.TxID != "" {
			l.byTxID[e.TxID] = append(l.byTxID[e.TxID], idx)
		}
		if e.AgentID != "" {
			l.byAgentID[e.AgentID] = append(l.byAgentID[e.AgentID], idx)
		}
		if e.Seq >= l.nextSeq {
			l.nextSeq = e.Seq + 1
		}
	}
}

func (l *EventLog) collect(indices []int) []Event {
	out := make([]Event, 0, len(indices))
	for _, i := range indices {
		out = append(out, l.events[i])
	}
	return out
}
