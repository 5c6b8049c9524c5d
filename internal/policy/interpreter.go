package policy

import (
	"fmt"
	"math"
)

const maxTreeDepth = 100

// Interpreter evaluates Node trees against a context/parameter pair,
// recursively, with a hard depth guard matching the validator's bound.
type Interpreter struct {
	context    map[string]float64
	parameters map[string]float64
}

// NewInterpreter binds a context (built by BuildContext) and parameter map
// (the tree's Parameters, merged with any instance overrides).
func NewInterpreter(context, parameters map[string]float64) *Interpreter {
	return &Interpreter{context: context, parameters: parameters}
}

// EvalRelease walks root (a payment_tree) to its first reached Action and
// returns the ReleaseDecision it produces. Panics if root is nil or the
// reached Action is not a release-tree action, both reachable only under a
// bug (the validator rejects trees that could reach a foreign action kind).
func (ip *Interpreter) EvalRelease(root *Node, txID string) *ReleaseDecision {
	node := ip.walk(root, 0)
	return ip.releaseFromAction(node, txID)
}

// EvalCollateral walks root (a strategic/end-of-tick collateral tree) to its
// first reached Action and returns the CollateralDecision it produces.
func (ip *Interpreter) EvalCollateral(root *Node) *CollateralDecision {
	node := ip.walk(root, 0)
	return ip.collateralFromAction(node)
}

// walk descends Condition nodes until it reaches an Action node, evaluating
// at most maxTreeDepth levels.
func (ip *Interpreter) walk(node *Node, depth int) *Node {
	if node == nil {
		panic("policy: nil node reached during tree evaluation")
	}
	if depth > maxTreeDepth {
		panic("policy: tree depth exceeded maxTreeDepth during evaluation")
	}
	if node.Kind == NodeAction {
		return node
	}
	if ip.evalExpr(node.Condition, depth+1) {
		return ip.walk(node.OnTrue, depth+1)
	}
	return ip.walk(node.OnFalse, depth+1)
}

func (ip *Interpreter) evalExpr(e Expression, depth int) bool {
	if depth > maxTreeDepth {
		panic("policy: expression depth exceeded maxTreeDepth during evaluation")
	}
	switch e.Kind {
	case ExprAnd:
		for _, s := range e.Sub {
			if !ip.evalExpr(s, depth+1) {
				return false
			}
		}
		return true
	case ExprOr:
		for _, s := range e.Sub {
			if ip.evalExpr(s, depth+1) {
				return true
			}
		}
		return false
	case ExprNot:
		return !ip.evalExpr(e.Sub[0], depth+1)
	default:
		l := ip.evalValue(e.Left, depth+1)
		r := ip.evalValue(e.Right, depth+1)
		switch e.Kind {
		case ExprEq:
			return l == r
		case ExprNeq:
			return l != r
		case ExprLt:
			return l < r
		case ExprLte:
			return l <= r
		case ExprGt:
			return l > r
		case ExprGte:
			return l >= r
		default:
			panic(fmt.Sprintf("policy: unknown expression kind %q", e.Kind))
		}
	}
}

func (ip *Interpreter) evalValue(v Value, depth int) float64 {
	if depth > maxTreeDepth {
		panic("policy: value depth exceeded maxTreeDepth during evaluation")
	}
	switch v.Kind {
	case ValueField:
		return ip.context[v.Name]
	case ValueParam:
		return ip.parameters[v.Name]
	case ValueLiteral:
		return v.Literal
	case ValueCompute:
		return ip.evalCompute(v, depth+1)
	default:
		panic(fmt.Sprintf("policy: unknown value kind %q", v.Kind))
	}
}

func (ip *Interpreter) evalCompute(v Value, depth int) float64 {
	switch v.Op {
	case OpNeg:
		return -ip.evalValue(v.Args[0], depth+1)
	case OpAbs:
		return math.Abs(ip.evalValue(v.Args[0], depth+1))
	}
	a := ip.evalValue(v.Args[0], depth+1)
	b := ip.evalValue(v.Args[1], depth+1)
	switch v.Op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		if b == 0 {
			panic("policy: runtime division by zero in Compute(Div) node that passed validation")
		}
		return a / b
	case OpMin:
		return math.Min(a, b)
	case OpMax:
		return math.Max(a, b)
	default:
		panic(fmt.Sprintf("policy: unknown compute op %q", v.Op))
	}
}

// roundCents rounds a float64 DSL output to the nearest integer cent, per
// the spec's "monetary outputs are rounded to integer cents before any
// state mutation" rule.
func roundCents(v float64) int64 {
	return int64(math.Round(v))
}

func (ip *Interpreter) paramValue(node *Node, key string, depth int) Value {
	v, ok := node.Parameters[key]
	if !ok {
		panic(fmt.Sprintf("policy: action %q missing required parameter %q", node.ID, key))
	}
	_ = depth
	return v
}

func (ip *Interpreter) intParam(node *Node, key string) int64 {
	return roundCents(ip.evalValue(ip.paramValue(node, key, 0), 0))
}

func (ip *Interpreter) optIntParam(node *Node, key string, def int64) int64 {
	v, ok := node.Parameters[key]
	if !ok {
		return def
	}
	return roundCents(ip.evalValue(v, 0))
}

func (ip *Interpreter) releaseFromAction(node *Node, txID string) *ReleaseDecision {
	switch node.Action {
	case ActionRelease:
		return &ReleaseDecision{Kind: DecRelease, TxID: txID}
	case ActionReleaseWithCredit:
		return &ReleaseDecision{Kind: DecReleaseWithCredit, TxID: txID}
	case ActionHold:
		return &ReleaseDecision{Kind: DecHold, TxID: txID, Reason: ip.stringParam(node, "reason")}
	case ActionDrop:
		return &ReleaseDecision{Kind: DecDrop, TxID: txID}
	case ActionSplit:
		return &ReleaseDecision{
			Kind:           DecSplit,
			TxID:           txID,
			NumSplits:      int(ip.intParam(node, "num_splits")),
			MinSplitAmount: ip.optIntParam(node, "min_split_amount", 0),
		}
	case ActionStaggerSplit:
		return &ReleaseDecision{
			Kind:                  DecStaggerSplit,
			TxID:                  txID,
			NumSplits:             int(ip.intParam(node, "num_splits")),
			StaggerFirstNow:       ip.optIntParam(node, "stagger_first_now", 1) != 0,
			StaggerGapTicks:       ip.optIntParam(node, "stagger_gap_ticks", 1),
			PriorityBoostChildren: int(ip.optIntParam(node, "priority_boost_children", 0)),
		}
	case ActionReprioritize:
		p := int(ip.intParam(node, "new_priority"))
		if p > 10 {
			p = 10
		}
		if p < 0 {
			p = 0
		}
		return &ReleaseDecision{Kind: DecReprioritize, TxID: txID, NewPriority: p}
	default:
		panic(fmt.Sprintf("policy: action %q of kind %q is not a release-tree action", node.ID, node.Action))
	}
}

func (ip *Interpreter) collateralFromAction(node *Node) *CollateralDecision {
	switch node.Action {
	case ActionPostCollateral:
		return &CollateralDecision{Kind: DecPostCollateral, Amount: ip.intParam(node, "amount")}
	case ActionWithdrawCollateral:
		return &CollateralDecision{Kind: DecWithdrawCollateral, Amount: ip.intParam(node, "amount")}
	case ActionHoldCollateral:
		return &CollateralDecision{Kind: DecHoldCollateral}
	case ActionSetState:
		return &CollateralDecision{
			Kind:  DecSetState,
			Key:   ip.stringParam(node, "key"),
			Value: ip.evalValue(ip.paramValue(node, "value", 0), 0),
		}
	case ActionAddState:
		return &CollateralDecision{
			Kind:  DecAddState,
			Key:   ip.stringParam(node, "key"),
			Delta: ip.evalValue(ip.paramValue(node, "delta", 0), 0),
		}
	case ActionSetReleaseBudget:
		return &CollateralDecision{
			Kind:                DecSetReleaseBudget,
			MaxValue:            ip.intParam(node, "max_value"),
			MaxPerCounterparty:  ip.optIntParam(node, "max_per_counterparty", 0),
			FocusCounterparties: node.FocusCounterparties,
		}
	default:
		panic(fmt.Sprintf("policy: action %q of kind %q is not a collateral-tree action", node.ID, node.Action))
	}
}

// stringParam reads a parameter the DSL carries as an encoded key name; the
// Value machinery is numeric-only, so key/reason-style string parameters are
// carried directly on the Node's StringParams map (the JSON form's
// string_params) rather than through Value evaluation. The factory's named
// policies set no string parameters.
func (ip *Interpreter) stringParam(node *Node, key string) string {
	if node.StringParams != nil {
		if s, ok := node.StringParams[key]; ok {
			return s
		}
	}
	return ""
}
