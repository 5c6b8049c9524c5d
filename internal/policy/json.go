package policy

import (
	"encoding/json"
	"fmt"
)

// ParseJSON decodes the self-describing wire format used by the FromJson
// policy kind into a Tree. The wire format mirrors Node/Value/Expression
// directly (a "kind" discriminator per node, matching §4.5's tagged-union
// shape) rather than Go's native struct layout, so trees remain portable
// JSON documents independent of this package's internal types.
func ParseJSON(data []byte) (*Tree, error) {
	var w wireTree
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("policy: invalid policy JSON: %w", err)
	}
	tree := &Tree{Parameters: w.Parameters}
	var err error
	if w.PaymentTree != nil {
		if tree.PaymentTree, err = w.PaymentTree.toNode(); err != nil {
			return nil, err
		}
	}
	if w.StrategicCollateralTree != nil {
		if tree.StrategicCollateralTree, err = w.StrategicCollateralTree.toNode(); err != nil {
			return nil, err
		}
	}
	if w.EndOfTickCollateralTree != nil {
		if tree.EndOfTickCollateralTree, err = w.EndOfTickCollateralTree.toNode(); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

type wireTree struct {
	PaymentTree             *wireNode          `json:"payment_tree,omitempty"`
	StrategicCollateralTree *wireNode          `json:"strategic_collateral_tree,omitempty"`
	EndOfTickCollateralTree *wireNode          `json:"end_of_tick_collateral_tree,omitempty"`
	Parameters              map[string]float64 `json:"parameters,omitempty"`
}

type wireValue struct {
	Kind    string      `json:"kind"`
	Name    string      `json:"name,omitempty"`
	Literal float64     `json:"literal,omitempty"`
	Op      string      `json:"op,omitempty"`
	Args    []wireValue `json:"args,omitempty"`
}

type wireExpr struct {
	Kind  string      `json:"kind"`
	Left  *wireValue  `json:"left,omitempty"`
	Right *wireValue  `json:"right,omitempty"`
	Sub   []wireExpr  `json:"sub,omitempty"`
}

type wireNode struct {
	ID          string                   `json:"id"`
	Description string                   `json:"description,omitempty"`
	Kind        string                   `json:"kind"`
	Condition   *wireExpr                `json:"condition,omitempty"`
	OnTrue      *wireNode                `json:"on_true,omitempty"`
	OnFalse     *wireNode                `json:"on_false,omitempty"`
	Action      string                   `json:"action,omitempty"`
	Parameters  map[string]wireValue     `json:"parameters,omitempty"`
	StringParams map[string]string       `json:"string_params,omitempty"`
	FocusCounterparties []string         `json:"focus_counterparties,omitempty"`
}

func (w *wireValue) toValue() (Value, error) {
	switch ValueKind(w.Kind) {
	case ValueField:
		return Field(w.Name), nil
	case ValueParam:
		return Param(w.Name), nil
	case ValueLiteral:
		return Lit(w.Literal), nil
	case ValueCompute:
		args := make([]Value, 0, len(w.Args))
		for i := range w.Args {
			v, err := w.Args[i].toValue()
			if err != nil {
				return Value{}, err
			}
			args = append(args, v)
		}
		return Compute(ComputeOp(w.Op), args...), nil
	default:
		return Value{}, fmt.Errorf("policy: unknown value kind %q", w.Kind)
	}
}

func (w *wireExpr) toExpr() (Expression, error) {
	switch ExprKind(w.Kind) {
	case ExprAnd, ExprOr, ExprNot:
		sub := make([]Expression, 0, len(w.Sub))
		for i := range w.Sub {
			e, err := w.Sub[i].toExpr()
			if err != nil {
				return Expression{}, err
			}
			sub = append(sub, e)
		}
		return BoolOp(ExprKind(w.Kind), sub...), nil
	case ExprEq, ExprNeq, ExprLt, ExprLte, ExprGt, ExprGte:
		if w.Left == nil || w.Right == nil {
			return Expression{}, fmt.Errorf("policy: comparison expression %q missing left/right", w.Kind)
		}
		l, err := w.Left.toValue()
		if err != nil {
			return Expression{}, err
		}
		r, err := w.Right.toValue()
		if err != nil {
			return Expression{}, err
		}
		return Cmp(ExprKind(w.Kind), l, r), nil
	default:
		return Expression{}, fmt.Errorf("policy: unknown expression kind %q", w.Kind)
	}
}

func (w *wireNode) toNode() (*Node, error) {
	n := &Node{
		ID:                  w.ID,
		Description:         w.Description,
		StringParams:        w.StringParams,
		FocusCounterparties: w.FocusCounterparties,
	}
	switch NodeKind(w.Kind) {
	case NodeCondition:
		n.Kind = NodeCondition
		if w.Condition == nil || w.OnTrue == nil || w.OnFalse == nil {
			return nil, fmt.Errorf("policy: condition node %q missing condition/on_true/on_false", w.ID)
		}
		cond, err := w.Condition.toExpr()
		if err != nil {
			return nil, err
		}
		n.Condition = cond
		if n.OnTrue, err = w.OnTrue.toNode(); err != nil {
			return nil, err
		}
		if n.OnFalse, err = w.OnFalse.toNode(); err != nil {
			return nil, err
		}
	case NodeAction:
		n.Kind = NodeAction
		n.Action = ActionKind(w.Action)
		n.Parameters = make(map[string]Value, len(w.Parameters))
		for k, wv := range w.Parameters {
			v, err := wv.toValue()
			if err != nil {
				return nil, err
			}
			n.Parameters[k] = v
		}
	default:
		return nil, fmt.Errorf("policy: node %q has unknown kind %q", w.ID, w.Kind)
	}
	return n, nil
}
