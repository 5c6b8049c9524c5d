// Package config defines and validates the simulator's top-level
// configuration: the schema an embedder supplies to construct an
// Orchestrator, plus the per-agent, cost, LSM, and scenario sub-configs
// it carries.
package config

import (
	"fmt"

	"github.com/kyd-labs/rtgs-sim/pkg/errors"
	"github.com/kyd-labs/rtgs-sim/pkg/validator"
)

// Config is the root configuration for a simulation run.
type Config struct {
	TicksPerDay    int              `json:"ticks_per_day" validate:"required,gt=0"`
	NumDays        int              `json:"num_days" validate:"required,gt=0"`
	EodRushThreshold float64        `json:"eod_rush_threshold" validate:"gte=0,lte=1"`
	RngSeed        uint64           `json:"rng_seed"`
	AgentConfigs   []AgentConfig    `json:"agent_configs" validate:"required,min=1,dive"`
	CostRates      CostRatesConfig  `json:"cost_rates" validate:"required"`
	Lsm            LsmConfig        `json:"lsm_config" validate:"required"`
	ScenarioEvents []ScenarioConfig `json:"scenario_events" validate:"dive"`

	PriorityMode               bool `json:"priority_mode"`
	AlgorithmSequencing         bool `json:"algorithm_sequencing"`
	EntryDispositionOffsetting bool `json:"entry_disposition_offsetting"`
	DeferredCrediting           bool `json:"deferred_crediting"`
}

// AgentConfig seeds one bank: its opening balance sheet, policy
// selection, and arrival-process parameters.
type AgentConfig struct {
	ID                string  `json:"id" validate:"required"`
	OpeningBalance    int64   `json:"opening_balance"`
	UnsecuredCap      int64   `json:"unsecured_cap" validate:"gte=0"`
	PostedCollateral  int64   `json:"posted_collateral" validate:"gte=0"`
	CollateralHaircut float64 `json:"collateral_haircut" validate:"gte=0,lte=1"`
	LiquidityBuffer   int64   `json:"liquidity_buffer" validate:"gte=0"`

	Policy   PolicyConfig  `json:"policy" validate:"required"`
	Arrivals ArrivalConfig `json:"arrivals" validate:"required"`

	BilateralLimits    map[string]int64 `json:"bilateral_limits"`
	MultilateralLimit  *int64           `json:"multilateral_limit"`
}

// PolicyConfig names a factory-recognized policy kind and its parameters,
// or carries an inline FromJson policy tree.
type PolicyConfig struct {
	Kind string `json:"kind" validate:"required,oneof=Fifo Deadline LiquidityAware LiquiditySplitting FromJson"`

	UrgencyThreshold float64 `json:"urgency_threshold"`
	TargetBuffer     int64   `json:"target_buffer"`
	MaxSplits        int     `json:"max_splits"`
	MinSplitAmount   int64   `json:"min_split_amount"`

	JSON string `json:"json"`
}

// ArrivalConfig drives one agent's Poisson arrival process.
type ArrivalConfig struct {
	RatePerTick          float64            `json:"rate_per_tick" validate:"gte=0"`
	Amount               AmountDistribution `json:"amount" validate:"required"`
	CounterpartyWeights  map[string]float64 `json:"counterparty_weights"`
	DeadlineOffsetMin    int                `json:"deadline_offset_min" validate:"gte=0"`
	DeadlineOffsetMax    int                `json:"deadline_offset_max" validate:"gtefield=DeadlineOffsetMin"`
	Priority             PriorityDistribution `json:"priority"`
}

// AmountDistribution selects the shape used to sample a transaction
// amount; every sampled amount, Uniform included, is raised to at least
// 1 cent.
type AmountDistribution struct {
	Kind   string  `json:"kind" validate:"required,oneof=Uniform Normal LogNormal Exponential"`
	Min    int64   `json:"min"`
	Max    int64   `json:"max"`
	Mu     float64 `json:"mu"`
	Sigma  float64 `json:"sigma"`
	Lambda float64 `json:"lambda"`
}

// PriorityDistribution selects how a new transaction's priority is drawn.
type PriorityDistribution struct {
	Kind        string  `json:"kind" validate:"required,oneof=Fixed Categorical Uniform"`
	Fixed       int     `json:"fixed" validate:"gte=0,lte=10"`
	Weights     []float64 `json:"weights"`
	UniformMin  int     `json:"uniform_min" validate:"gte=0,lte=10"`
	UniformMax  int     `json:"uniform_max" validate:"gte=0,lte=10"`
}

// CostRatesConfig supplies the integer-basis-point and per-tick rates
// the cost engine accrues against every agent.
type CostRatesConfig struct {
	OverdraftBpsPerTick     int64   `json:"overdraft_bps_per_tick" validate:"gte=0"`
	DelayPerTickPerCent     float64 `json:"delay_per_tick_per_cent" validate:"gte=0"`
	CollateralBpsPerTick    int64   `json:"collateral_bps_per_tick" validate:"gte=0"`
	SplitFrictionCost       int64   `json:"split_friction_cost" validate:"gte=0"`
	DeadlinePenalty         int64   `json:"deadline_penalty" validate:"gte=0"`
	EodPenaltyPerTransaction int64  `json:"eod_penalty_per_transaction" validate:"gte=0"`
	OverdueDelayMultiplier  float64 `json:"overdue_delay_multiplier" validate:"gte=1"`
}

// LsmConfig bounds the liquidity-saving mechanism's per-tick search.
type LsmConfig struct {
	Enabled            bool `json:"enabled"`
	MaxCyclesPerTick   int  `json:"max_cycles_per_tick" validate:"gte=0"`
	MaxCycleLength     int  `json:"max_cycle_length" validate:"gte=3,lte=5"`
	EnableSplitOnOffset bool `json:"enable_split_on_offset"`
}

// ScenarioConfig describes one scheduled scenario event and its
// predicate for when it fires.
type ScenarioConfig struct {
	Schedule ScheduleConfig `json:"schedule" validate:"required"`
	Kind     string         `json:"kind" validate:"required,oneof=DirectTransfer CollateralAdjustment GlobalArrivalRateChange AgentArrivalRateChange CounterpartyWeightChange DeadlineWindowChange CustomTransactionArrival"`

	From, To string
	Amount   int64
	Agent    string
	Delta    int64
	NewRate  float64
	Counterparty string
	NewWeight    float64
	NewMin, NewMax int

	SenderID, ReceiverID string
	DeadlineTick         int
	Priority             int
}

// ScheduleConfig selects when a scenario event fires: exactly once, on
// a repeating interval, or anywhere within an inclusive tick range.
type ScheduleConfig struct {
	Kind     string `json:"kind" validate:"required,oneof=OneTime Repeating Range"`
	At       int    `json:"at"`
	Start    int    `json:"start"`
	Interval int    `json:"interval"`
	End      int    `json:"end"`
}

// ShouldExecute reports whether this schedule fires at tick t.
func (s ScheduleConfig) ShouldExecute(tick int) bool {
	switch s.Kind {
	case "OneTime":
		return tick == s.At
	case "Repeating":
		return tick >= s.Start && (tick-s.Start)%s.Interval == 0
	case "Range":
		return tick >= s.Start && tick <= s.End
	default:
		return false
	}
}

// Load validates cfg and returns it unchanged, or a *errors.ConfigInvalid
// wrapping the batched validator failures.
func Load(cfg *Config) (*Config, error) {
	v := validator.New()
	if msgs := v.ValidateBatch(cfg); len(msgs) > 0 {
		return nil, &errors.ConfigInvalid{
			Field:  "config",
			Reason: fmt.Sprintf("%v", msgs),
		}
	}
	if err := validateCrossFields(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
