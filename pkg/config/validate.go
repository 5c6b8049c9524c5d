package config

import (
	"fmt"
	"sort"

	"github.com/kyd-labs/rtgs-sim/pkg/errors"
)

// validateCrossFields checks constraints that span multiple fields or
// require cross-referencing agent ids, which struct tags alone cannot
// express.
func validateCrossFields(cfg *Config) error {
	var reasons []string

	seen := make(map[string]bool, len(cfg.AgentConfigs))
	ids := make([]string, 0, len(cfg.AgentConfigs))
	for _, a := range cfg.AgentConfigs {
		if seen[a.ID] {
			reasons = append(reasons, fmt.Sprintf("duplicate agent id %q", a.ID))
			continue
		}
		seen[a.ID] = true
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)

	for _, a := range cfg.AgentConfigs {
		for cpty := range a.BilateralLimits {
			if !seen[cpty] {
				reasons = append(reasons, fmt.Sprintf("agent %q bilateral_limits references unknown counterparty %q", a.ID, cpty))
			}
		}
		for cpty := range a.Arrivals.CounterpartyWeights {
			if !seen[cpty] {
				reasons = append(reasons, fmt.Sprintf("agent %q counterparty_weights references unknown counterparty %q", a.ID, cpty))
			}
		}
		if a.Policy.Kind == "FromJson" && a.Policy.JSON == "" {
			reasons = append(reasons, fmt.Sprintf("agent %q policy kind FromJson requires a non-empty json tree", a.ID))
		}
		if a.Policy.Kind == "LiquiditySplitting" && a.Policy.MaxSplits < 1 {
			reasons = append(reasons, fmt.Sprintf("agent %q policy LiquiditySplitting requires max_splits >= 1", a.ID))
		}
	}

	for i, se := range cfg.ScenarioEvents {
		switch se.Kind {
		case "DirectTransfer":
			if !seen[se.From] || !seen[se.To] {
				reasons = append(reasons, fmt.Sprintf("scenario_events[%d] DirectTransfer references unknown agent", i))
			}
		case "CollateralAdjustment", "AgentArrivalRateChange":
			if !seen[se.Agent] {
				reasons = append(reasons, fmt.Sprintf("scenario_events[%d] references unknown agent %q", i, se.Agent))
			}
		}
		if se.Schedule.Kind == "Repeating" && se.Schedule.Interval <= 0 {
			reasons = append(reasons, fmt.Sprintf("scenario_events[%d] Repeating schedule requires interval > 0", i))
		}
		if se.Schedule.Kind == "Range" && se.Schedule.End < se.Schedule.Start {
			reasons = append(reasons, fmt.Sprintf("scenario_events[%d] Range schedule requires end >= start", i))
		}
	}

	if len(reasons) > 0 {
		return &errors.ConfigInvalid{Field: "config", Reason: fmt.Sprintf("%v", reasons)}
	}
	return nil
}
