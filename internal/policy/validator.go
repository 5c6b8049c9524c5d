package policy

import "fmt"

// ValidationError is one finding from Validate; callers collect every
// finding before failing, per the spec's "errors are surfaced together"
// requirement.
type ValidationError struct {
	NodeID string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("policy: node %q: %s", e.NodeID, e.Reason)
}

// Validate runs every check from §4.5 against tree and returns every
// violation found (nil if the tree is valid). It validates all three roots
// that are non-nil.
func Validate(tree *Tree) []error {
	v := &validation{
		seenIDs:    make(map[string]bool),
		duplicates: make(map[string]bool),
		parameters: tree.Parameters,
	}
	if tree.PaymentTree != nil {
		v.walk(tree.PaymentTree, 0, releaseActionKinds)
	}
	if tree.StrategicCollateralTree != nil {
		v.walk(tree.StrategicCollateralTree, 0, collateralActionKinds)
	}
	if tree.EndOfTickCollateralTree != nil {
		v.walk(tree.EndOfTickCollateralTree, 0, collateralActionKinds)
	}
	return v.errs
}

var releaseActionKinds = map[ActionKind]bool{
	ActionRelease: true, ActionHold: true, ActionDrop: true, ActionSplit: true,
	ActionStaggerSplit: true, ActionReprioritize: true, ActionReleaseWithCredit: true,
}

var collateralActionKinds = map[ActionKind]bool{
	ActionPostCollateral: true, ActionWithdrawCollateral: true, ActionHoldCollateral: true,
	ActionSetState: true, ActionAddState: true, ActionSetReleaseBudget: true,
}

type validation struct {
	seenIDs    map[string]bool
	duplicates map[string]bool
	parameters map[string]float64
	errs       []error
}

func (v *validation) fail(nodeID, reason string) {
	v.errs = append(v.errs, ValidationError{NodeID: nodeID, Reason: reason})
}

func (v *validation) walk(node *Node, depth int, allowed map[ActionKind]bool) {
	if node == nil {
		return
	}
	if depth > maxTreeDepth {
		v.fail(node.ID, fmt.Sprintf("tree depth exceeds %d", maxTreeDepth))
		return
	}
	if node.ID == "" {
		v.fail("<empty>", "node_id must not be empty")
	} else if v.seenIDs[node.ID] {
		if !v.duplicates[node.ID] {
			v.fail(node.ID, "duplicate node_id")
			v.duplicates[node.ID] = true
		}
	} else {
		v.seenIDs[node.ID] = true
	}

	switch node.Kind {
	case NodeCondition:
		v.checkExpr(node.ID, node.Condition, depth+1)
		v.walk(node.OnTrue, depth+1, allowed)
		v.walk(node.OnFalse, depth+1, allowed)
	case NodeAction:
		if !allowed[node.Action] {
			v.fail(node.ID, fmt.Sprintf("action kind %q is not valid for this tree", node.Action))
		}
		for _, val := range node.Parameters {
			v.checkValue(node.ID, val, depth+1)
		}
	default:
		v.fail(node.ID, fmt.Sprintf("unknown node kind %q", node.Kind))
	}
}

func (v *validation) checkExpr(nodeID string, e Expression, depth int) {
	if depth > maxTreeDepth {
		v.fail(nodeID, fmt.Sprintf("expression depth exceeds %d", maxTreeDepth))
		return
	}
	switch e.Kind {
	case ExprAnd, ExprOr:
		for _, s := range e.Sub {
			v.checkExpr(nodeID, s, depth+1)
		}
	case ExprNot:
		if len(e.Sub) != 1 {
			v.fail(nodeID, "Not expression must have exactly one sub-expression")
			return
		}
		v.checkExpr(nodeID, e.Sub[0], depth+1)
	case ExprEq, ExprNeq, ExprLt, ExprLte, ExprGt, ExprGte:
		v.checkValue(nodeID, e.Left, depth+1)
		v.checkValue(nodeID, e.Right, depth+1)
	default:
		v.fail(nodeID, fmt.Sprintf("unknown expression kind %q", e.Kind))
	}
}

func (v *validation) checkValue(nodeID string, val Value, depth int) {
	if depth > maxTreeDepth {
		v.fail(nodeID, fmt.Sprintf("value depth exceeds %d", maxTreeDepth))
		return
	}
	switch val.Kind {
	case ValueField:
		if !isKnownField(val.Name) {
			v.fail(nodeID, fmt.Sprintf("unknown field %q", val.Name))
		}
	case ValueParam:
		if _, ok := v.parameters[val.Name]; !ok {
			v.fail(nodeID, fmt.Sprintf("unknown parameter %q", val.Name))
		}
	case ValueLiteral:
		// always valid
	case ValueCompute:
		v.checkComputeArity(nodeID, val)
		for _, a := range val.Args {
			v.checkValue(nodeID, a, depth+1)
		}
		if val.Op == OpDiv && len(val.Args) == 2 {
			v.checkDivByZero(nodeID, val.Args[1])
		}
	default:
		v.fail(nodeID, fmt.Sprintf("unknown value kind %q", val.Kind))
	}
}

func (v *validation) checkComputeArity(nodeID string, val Value) {
	switch val.Op {
	case OpNeg, OpAbs:
		if len(val.Args) != 1 {
			v.fail(nodeID, fmt.Sprintf("Compute(%s) requires exactly one argument", val.Op))
		}
	case OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax:
		if len(val.Args) != 2 {
			v.fail(nodeID, fmt.Sprintf("Compute(%s) requires exactly two arguments", val.Op))
		}
	default:
		v.fail(nodeID, fmt.Sprintf("unknown compute op %q", val.Op))
	}
}

// checkDivByZero flags a divisor that is statically known to be zero: a
// zero Literal, or a Param that is currently zero in the bound parameter
// map. It cannot catch a Field divisor that happens to be zero at
// evaluation time — that case is a runtime panic by design, not a
// validation error.
func (v *validation) checkDivByZero(nodeID string, divisor Value) {
	switch divisor.Kind {
	case ValueLiteral:
		if divisor.Literal == 0 {
			v.fail(nodeID, "Div node has a literal zero divisor")
		}
	case ValueParam:
		if p, ok := v.parameters[divisor.Name]; ok && p == 0 {
			v.fail(nodeID, fmt.Sprintf("Div node divisor parameter %q is zero", divisor.Name))
		}
	}
}

// ReachableActions collects every Action node id reachable from root.
// Validate does not call it and makes no reachability check of its own.
func ReachableActions(root *Node) map[string]bool {
	reached := make(map[string]bool)
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.Kind == NodeAction {
			reached[n.ID] = true
			return
		}
		walk(n.OnTrue)
		walk(n.OnFalse)
	}
	walk(root)
	return reached
}
