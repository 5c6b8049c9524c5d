package policy

import (
	"fmt"

	"github.com/kyd-labs/rtgs-sim/pkg/config"
)

// Build constructs a Tree for one of the recognized named policy kinds, or
// parses an inline FromJson tree. The factory is the only place a named
// policy's shape is defined; the orchestrator never special-cases a policy
// kind directly (per the Design Notes' "policy trees, not policy code").
func Build(cfg config.PolicyConfig) (*Tree, error) {
	switch cfg.Kind {
	case "Fifo":
		return fifoTree(), nil
	case "Deadline":
		return deadlineTree(cfg.UrgencyThreshold), nil
	case "LiquidityAware":
		return liquidityAwareTree(float64(cfg.TargetBuffer), cfg.UrgencyThreshold), nil
	case "LiquiditySplitting":
		return liquiditySplittingTree(cfg.MaxSplits, cfg.MinSplitAmount), nil
	case "FromJson":
		return ParseJSON([]byte(cfg.JSON))
	default:
		return nil, fmt.Errorf("policy: unrecognized policy kind %q", cfg.Kind)
	}
}

func action(id string, kind ActionKind, params map[string]Value) *Node {
	return &Node{ID: id, Kind: NodeAction, Action: kind, Parameters: params}
}

func condition(id string, cond Expression, onTrue, onFalse *Node) *Node {
	return &Node{ID: id, Kind: NodeCondition, Condition: cond, OnTrue: onTrue, OnFalse: onFalse}
}

// noopCollateralTree is the conservative default for named policies that
// don't manage collateral themselves: a bank using Fifo/Deadline/
// LiquidityAware/LiquiditySplitting is expected to manage collateral out of
// band (scenario events, or an embedder's own calls) unless it supplies a
// FromJson tree with its own strategic/end_of_tick roots.
func noopCollateralTree(id string) *Node {
	return action(id, ActionHoldCollateral, nil)
}

// fifoTree always releases: ordering discipline lives entirely in Queue 1's
// insertion order and Queue 2's mechanical FIFO-within-band retry, not in
// the payment tree itself.
func fifoTree() *Tree {
	return &Tree{
		PaymentTree:             action("fifo_release", ActionRelease, nil),
		StrategicCollateralTree: noopCollateralTree("fifo_strategic_noop"),
		EndOfTickCollateralTree: noopCollateralTree("fifo_eot_noop"),
		Parameters:              map[string]float64{},
	}
}

// deadlineTree releases once a transaction is within urgency_threshold
// ticks of its deadline (or already past it), otherwise holds.
func deadlineTree(urgencyThreshold float64) *Tree {
	release := action("deadline_release", ActionRelease, nil)
	hold := action("deadline_hold", ActionHold, nil)
	root := condition("deadline_urgent",
		BoolOp(ExprOr,
			Cmp(ExprGte, Field("is_past_deadline"), Lit(1)),
			Cmp(ExprLte, Field("ticks_to_deadline"), Param("urgency_threshold")),
		),
		release, hold,
	)
	return &Tree{
		PaymentTree:             root,
		StrategicCollateralTree: noopCollateralTree("deadline_strategic_noop"),
		EndOfTickCollateralTree: noopCollateralTree("deadline_eot_noop"),
		Parameters:              map[string]float64{"urgency_threshold": urgencyThreshold},
	}
}

// liquidityAwareTree releases when doing so leaves at least target_buffer
// of liquidity behind, or when the transaction has become urgent, and holds
// otherwise.
func liquidityAwareTree(targetBuffer, urgencyThreshold float64) *Tree {
	release := action("la_release", ActionRelease, nil)
	hold := action("la_hold", ActionHold, nil)
	root := condition("la_decision",
		BoolOp(ExprOr,
			Cmp(ExprGte, Compute(OpSub, Field("available_liquidity"), Field("remaining_amount")), Param("target_buffer")),
			Cmp(ExprLte, Field("ticks_to_deadline"), Param("urgency_threshold")),
		),
		release, hold,
	)
	return &Tree{
		PaymentTree:             root,
		StrategicCollateralTree: noopCollateralTree("la_strategic_noop"),
		EndOfTickCollateralTree: noopCollateralTree("la_eot_noop"),
		Parameters: map[string]float64{
			"target_buffer":     targetBuffer,
			"urgency_threshold": urgencyThreshold,
		},
	}
}

// liquiditySplittingTree releases in full when liquid, splits into
// max_splits children (each >= min_split_amount) once the transaction is
// overdue and still can't be released whole, and holds otherwise.
func liquiditySplittingTree(maxSplits int, minSplitAmount int64) *Tree {
	release := action("ls_release", ActionRelease, nil)
	split := action("ls_split", ActionSplit, map[string]Value{
		"num_splits":       Param("max_splits"),
		"min_split_amount": Param("min_split_amount"),
	})
	hold := action("ls_hold", ActionHold, nil)

	splitOrHold := condition("ls_overdue_check",
		Cmp(ExprGte, Field("is_overdue"), Lit(1)),
		split, hold,
	)
	root := condition("ls_liquid_check",
		Cmp(ExprGte, Field("available_liquidity"), Field("remaining_amount")),
		release, splitOrHold,
	)
	return &Tree{
		PaymentTree:             root,
		StrategicCollateralTree: noopCollateralTree("ls_strategic_noop"),
		EndOfTickCollateralTree: noopCollateralTree("ls_eot_noop"),
		Parameters: map[string]float64{
			"max_splits":       float64(maxSplits),
			"min_split_amount": float64(minSplitAmount),
		},
	}
}
