// Package scenario applies the configured out-of-band events of §4.7 at
// the tick they're scheduled for: direct transfers, collateral adjustments,
// and the four arrival-config mutations wired at the orchestrator level per
// the Design Notes' second open question.
package scenario

import (
	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/pkg/config"
	"github.com/kyd-labs/rtgs-sim/pkg/errors"
)

// ArrivalMutation describes a change to one or all agents' active arrival
// config that the orchestrator must apply before sampling step 2. Engine
// never mutates arrival configs itself — it has no reference to them — so
// it reports the mutation back to the caller instead.
type ArrivalMutation struct {
	Kind         string // "GlobalRate" | "AgentRate" | "CounterpartyWeight" | "DeadlineWindow"
	Agent        string // empty for Global*
	NewRate      float64
	Counterparty string
	NewWeight    float64
	NewMin       int
	NewMax       int
}

// Engine replays the configured ScenarioConfig list against a tick,
// executing every event whose schedule fires and returning the arrival
// mutations the orchestrator must apply before sampling.
type Engine struct {
	state   *domain.SimulationState
	log     *domain.EventLog
	events  []config.ScenarioConfig
}

// NewEngine constructs an Engine over the configured event list.
func NewEngine(state *domain.SimulationState, log *domain.EventLog, events []config.ScenarioConfig) *Engine {
	return &Engine{state: state, log: log, events: events}
}

// Apply executes every configured event whose schedule fires at tick, in
// configured order, and returns the arrival mutations produced (if any).
func (e *Engine) Apply(tick int64) ([]ArrivalMutation, error) {
	var mutations []ArrivalMutation
	for i := range e.events {
		se := e.events[i]
		if !se.Schedule.ShouldExecute(int(tick)) {
			continue
		}
		mutation, err := e.execute(se, tick)
		if err != nil {
			return mutations, err
		}
		if mutation != nil {
			mutations = append(mutations, *mutation)
		}
	}
	return mutations, nil
}

func (e *Engine) execute(se config.ScenarioConfig, tick int64) (*ArrivalMutation, error) {
	switch se.Kind {
	case "DirectTransfer":
		return nil, e.directTransfer(se, tick)
	case "CollateralAdjustment":
		return nil, e.collateralAdjustment(se, tick)
	case "GlobalArrivalRateChange":
		e.emit(se, tick, map[string]interface{}{"new_rate": se.NewRate})
		return &ArrivalMutation{Kind: "GlobalRate", NewRate: se.NewRate}, nil
	case "AgentArrivalRateChange":
		e.emit(se, tick, map[string]interface{}{"agent": se.Agent, "new_rate": se.NewRate})
		return &ArrivalMutation{Kind: "AgentRate", Agent: se.Agent, NewRate: se.NewRate}, nil
	case "CounterpartyWeightChange":
		e.emit(se, tick, map[string]interface{}{
			"agent": se.Agent, "counterparty": se.Counterparty, "new_weight": se.NewWeight,
		})
		return &ArrivalMutation{Kind: "CounterpartyWeight", Agent: se.Agent, Counterparty: se.Counterparty, NewWeight: se.NewWeight}, nil
	case "DeadlineWindowChange":
		e.emit(se, tick, map[string]interface{}{"agent": se.Agent, "new_min": se.NewMin, "new_max": se.NewMax})
		return &ArrivalMutation{Kind: "DeadlineWindow", Agent: se.Agent, NewMin: se.NewMin, NewMax: se.NewMax}, nil
	case "CustomTransactionArrival":
		return nil, e.customArrival(se, tick)
	default:
		return nil, nil
	}
}

func (e *Engine) directTransfer(se config.ScenarioConfig, tick int64) error {
	from, ok := e.state.Agents[se.From]
	if !ok {
		return errors.ErrAgentNotFound
	}
	to, ok := e.state.Agents[se.To]
	if !ok {
		return errors.ErrAgentNotFound
	}
	from.Balance -= se.Amount
	to.Balance += se.Amount
	e.emit(se, tick, map[string]interface{}{"from": se.From, "to": se.To, "amount": se.Amount})
	return nil
}

func (e *Engine) collateralAdjustment(se config.ScenarioConfig, tick int64) error {
	agent, ok := e.state.Agents[se.Agent]
	if !ok {
		return errors.ErrAgentNotFound
	}
	if se.Delta < 0 {
		if !agent.WithdrawCollateralAllowed(-se.Delta) {
			e.log.Append(domain.EventCollateralTimerBlocked, tick, "", se.Agent, map[string]interface{}{
				"reason": "scenario collateral withdrawal blocked by invariant I2",
				"delta":  se.Delta,
			})
			return nil
		}
		agent.WithdrawCollateral(-se.Delta)
	} else {
		agent.PostCollateral(se.Delta)
	}
	e.emit(se, tick, map[string]interface{}{"agent": se.Agent, "delta": se.Delta})
	return nil
}

// customArrival injects a single transaction directly into the sender's
// Queue 1, bypassing the normal arrivals sampler, per the config's explicit
// sender/receiver/deadline/priority fields.
func (e *Engine) customArrival(se config.ScenarioConfig, tick int64) error {
	sender, ok := e.state.Agents[se.SenderID]
	if !ok {
		return errors.ErrAgentNotFound
	}
	if _, ok := e.state.Agents[se.ReceiverID]; !ok {
		return errors.ErrAgentNotFound
	}
	id := "scenario-" + se.SenderID + "-" + se.ReceiverID + "-" + itoa64(tick)
	tx := domain.NewTransaction(id, se.SenderID, se.ReceiverID, se.Amount, tick, int64(se.DeadlineTick), se.Priority)
	e.state.AddTransaction(tx)
	sender.OutgoingQueue = append(sender.OutgoingQueue, id)
	e.log.Append(domain.EventArrival, tick, id, se.SenderID, map[string]interface{}{
		"amount": se.Amount, "receiver": se.ReceiverID, "source": "scenario",
	})
	e.emit(se, tick, map[string]interface{}{"tx_id": id})
	return nil
}

func (e *Engine) emit(se config.ScenarioConfig, tick int64, fields map[string]interface{}) {
	fields["kind"] = se.Kind
	e.log.Append(domain.EventScenarioEventExecuted, tick, "", "", fields)
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
