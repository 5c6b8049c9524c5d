// Package policy implements the decision-tree DSL of §4.5: a bank's cash
// management rules expressed as data (Condition/Action nodes over a small
// Value/Expression language) rather than code, so that a simulation run
// stays deterministic, checkpointable, and auditable.
package policy

// ComputeOp names a binary or unary numeric operator over nested Values.
type ComputeOp string

const (
	OpAdd ComputeOp = "Add"
	OpSub ComputeOp = "Sub"
	OpMul ComputeOp = "Mul"
	OpDiv ComputeOp = "Div"
	OpMin ComputeOp = "Min"
	OpMax ComputeOp = "Max"
	OpNeg ComputeOp = "Neg"
	OpAbs ComputeOp = "Abs"
)

// ValueKind tags the closed Field | Param | Literal | Compute union.
type ValueKind string

const (
	ValueField   ValueKind = "Field"
	ValueParam   ValueKind = "Param"
	ValueLiteral ValueKind = "Literal"
	ValueCompute ValueKind = "Compute"
)

// Value is a numeric expression node: a context field lookup, a parameter
// lookup, a literal, or a Compute op over nested Values.
type Value struct {
	Kind ComputeValueKind

	Name    string  // Field/Param name
	Literal float64 // Literal value

	Op   ComputeOp
	Args []Value // Compute operands (Neg/Abs take exactly one)
}

// ComputeValueKind is a type alias of ValueKind: the two names denote the
// same type and share the same constants.
type ComputeValueKind = ValueKind

// Field builds a Field{name} Value.
func Field(name string) Value { return Value{Kind: ValueField, Name: name} }

// Param builds a Param{name} Value.
func Param(name string) Value { return Value{Kind: ValueParam, Name: name} }

// Lit builds a Literal Value.
func Lit(v float64) Value { return Value{Kind: ValueLiteral, Literal: v} }

// Compute builds a Compute{op} Value over args.
func Compute(op ComputeOp, args ...Value) Value { return Value{Kind: ValueCompute, Op: op, Args: args} }

// ExprKind tags the closed boolean-expression union.
type ExprKind string

const (
	ExprEq  ExprKind = "Eq"
	ExprNeq ExprKind = "Neq"
	ExprLt  ExprKind = "Lt"
	ExprLte ExprKind = "Lte"
	ExprGt  ExprKind = "Gt"
	ExprGte ExprKind = "Gte"
	ExprAnd ExprKind = "And"
	ExprOr  ExprKind = "Or"
	ExprNot ExprKind = "Not"
)

// Expression is a boolean node: a comparison over two Values, or a boolean
// combinator over nested Expressions.
type Expression struct {
	Kind ExprKind

	Left, Right Value // valid for Eq/Neq/Lt/Lte/Gt/Gte

	Sub []Expression // valid for And/Or (any length >= 1) / Not (exactly 1)
}

// Cmp builds a comparison Expression.
func Cmp(kind ExprKind, left, right Value) Expression {
	return Expression{Kind: kind, Left: left, Right: right}
}

// BoolOp builds an And/Or/Not Expression.
func BoolOp(kind ExprKind, sub ...Expression) Expression {
	return Expression{Kind: kind, Sub: sub}
}

// NodeKind tags the closed Condition | Action union.
type NodeKind string

const (
	NodeCondition NodeKind = "Condition"
	NodeAction    NodeKind = "Action"
)

// ActionKind names one of the recognized policy actions of §4.5, ordered by
// observability as the spec lists them.
type ActionKind string

const (
	ActionRelease             ActionKind = "Release"
	ActionHold                ActionKind = "Hold"
	ActionDrop                ActionKind = "Drop"
	ActionSplit               ActionKind = "Split"
	ActionStaggerSplit        ActionKind = "StaggerSplit"
	ActionReprioritize        ActionKind = "Reprioritize"
	ActionReleaseWithCredit   ActionKind = "ReleaseWithCredit"
	ActionPostCollateral      ActionKind = "PostCollateral"
	ActionWithdrawCollateral  ActionKind = "WithdrawCollateral"
	ActionHoldCollateral      ActionKind = "HoldCollateral"
	ActionSetState            ActionKind = "SetState"
	ActionAddState             ActionKind = "AddState"
	ActionSetReleaseBudget    ActionKind = "SetReleaseBudget"
)

// Node is a tree node: exactly one of Condition or Action is populated,
// discriminated by Kind.
type Node struct {
	ID          string
	Description string
	Kind        NodeKind

	// Condition fields.
	Condition Expression
	OnTrue    *Node
	OnFalse   *Node

	// Action fields.
	Action       ActionKind
	Parameters   map[string]Value
	StringParams map[string]string // non-numeric parameters: reason, state key, counterparty focus list key
	FocusCounterparties []string   // SetReleaseBudget focus_counterparties, carried verbatim
}

// Tree bundles the three optional roots a bank's policy may define, plus the
// parameter map injected by the factory or supplied inline.
type Tree struct {
	PaymentTree                *Node
	StrategicCollateralTree    *Node
	EndOfTickCollateralTree    *Node
	Parameters                 map[string]float64
}
