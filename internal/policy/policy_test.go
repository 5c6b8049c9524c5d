package policy

import (
	"testing"

	"github.com/kyd-labs/rtgs-sim/pkg/config"
)

func TestInterpreterWalksConditionToAction(t *testing.T) {
	ctx := map[string]float64{"remaining_amount": 500, "available_liquidity": 1000}
	ip := NewInterpreter(ctx, map[string]float64{})

	tree := liquidityAwareTree(100, 0)
	dec := ip.EvalRelease(tree.PaymentTree, "tx1")
	if dec.Kind != DecRelease {
		t.Fatalf("expected Release, got %v", dec.Kind)
	}
}

func TestInterpreterHoldsWhenIlliquidAndNotUrgent(t *testing.T) {
	ctx := map[string]float64{"remaining_amount": 5000, "available_liquidity": 1000, "ticks_to_deadline": 50}
	ip := NewInterpreter(ctx, map[string]float64{"target_buffer": 100, "urgency_threshold": 5})

	tree := liquidityAwareTree(100, 5)
	dec := ip.EvalRelease(tree.PaymentTree, "tx1")
	if dec.Kind != DecHold {
		t.Fatalf("expected Hold, got %v", dec.Kind)
	}
}

func TestInterpreterComputeArithmetic(t *testing.T) {
	ip := NewInterpreter(map[string]float64{"a": 10, "b": 4}, map[string]float64{})
	v := Compute(OpSub, Field("a"), Field("b"))
	if got := ip.evalValue(v, 0); got != 6 {
		t.Fatalf("expected 6, got %v", got)
	}
	abs := Compute(OpAbs, Compute(OpNeg, Lit(7)))
	if got := ip.evalValue(abs, 0); got != 7 {
		t.Fatalf("expected 7, got %v", got)
	}
}

func TestInterpreterPanicsOnRuntimeDivByZero(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on runtime division by zero")
		}
	}()
	ip := NewInterpreter(map[string]float64{"zero": 0}, map[string]float64{})
	ip.evalValue(Compute(OpDiv, Lit(1), Field("zero")), 0)
}

func TestValidateRejectsUnknownField(t *testing.T) {
	tree := &Tree{
		PaymentTree: condition("c1", Cmp(ExprGt, Field("not_a_real_field"), Lit(0)),
			action("a1", ActionRelease, nil), action("a2", ActionHold, nil)),
		Parameters: map[string]float64{},
	}
	errs := Validate(tree)
	if len(errs) == 0 {
		t.Fatal("expected a validation error for unknown field")
	}
}

func TestValidateRejectsUnknownParam(t *testing.T) {
	tree := &Tree{
		PaymentTree: condition("c1", Cmp(ExprGt, Field("amount"), Param("missing_param")),
			action("a1", ActionRelease, nil), action("a2", ActionHold, nil)),
		Parameters: map[string]float64{},
	}
	errs := Validate(tree)
	if len(errs) == 0 {
		t.Fatal("expected a validation error for unknown parameter")
	}
}

func TestValidateRejectsDuplicateNodeID(t *testing.T) {
	dup := action("dup", ActionRelease, nil)
	tree := &Tree{
		PaymentTree: condition("dup", Cmp(ExprGt, Field("amount"), Lit(0)), dup, action("a2", ActionHold, nil)),
		Parameters:  map[string]float64{},
	}
	errs := Validate(tree)
	found := false
	for _, e := range errs {
		if ve, ok := e.(ValidationError); ok && ve.Reason == "duplicate node_id" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a duplicate node_id error, got %v", errs)
	}
}

func TestValidateFlagsLiteralZeroDivisor(t *testing.T) {
	tree := &Tree{
		PaymentTree: condition("c1", Cmp(ExprGt, Compute(OpDiv, Field("amount"), Lit(0)), Lit(0)),
			action("a1", ActionRelease, nil), action("a2", ActionHold, nil)),
		Parameters: map[string]float64{},
	}
	errs := Validate(tree)
	if len(errs) == 0 {
		t.Fatal("expected a literal-zero-divisor error")
	}
}

func TestValidateRejectsActionKindForeignToTree(t *testing.T) {
	tree := &Tree{
		PaymentTree: action("a1", ActionPostCollateral, map[string]Value{"amount": Lit(100)}),
		Parameters:  map[string]float64{},
	}
	errs := Validate(tree)
	if len(errs) == 0 {
		t.Fatal("expected PostCollateral to be rejected in a payment tree")
	}
}

func TestBuildFifoAlwaysReleases(t *testing.T) {
	tree, err := Build(fifoConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errs := Validate(tree); len(errs) != 0 {
		t.Fatalf("expected valid tree, got %v", errs)
	}
	ip := NewInterpreter(map[string]float64{}, tree.Parameters)
	dec := ip.EvalRelease(tree.PaymentTree, "tx1")
	if dec.Kind != DecRelease {
		t.Fatalf("expected Release, got %v", dec.Kind)
	}
}

func TestBuildLiquiditySplittingSplitsWhenOverdueAndIlliquid(t *testing.T) {
	tree, err := Build(splittingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := map[string]float64{"available_liquidity": 10, "remaining_amount": 1000, "is_overdue": 1}
	ip := NewInterpreter(ctx, tree.Parameters)
	dec := ip.EvalRelease(tree.PaymentTree, "tx1")
	if dec.Kind != DecSplit {
		t.Fatalf("expected Split, got %v", dec.Kind)
	}
	if dec.NumSplits != 3 {
		t.Fatalf("expected num_splits 3, got %d", dec.NumSplits)
	}
}

func TestParseJSONRoundTripsAMinimalTree(t *testing.T) {
	doc := `{
		"payment_tree": {"id": "root", "kind": "Action", "action": "Release"},
		"parameters": {}
	}`
	tree, err := ParseJSON([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.PaymentTree.Action != ActionRelease {
		t.Fatalf("expected Release action, got %v", tree.PaymentTree.Action)
	}
}

func fifoConfig() config.PolicyConfig {
	return config.PolicyConfig{Kind: "Fifo"}
}

func splittingConfig() config.PolicyConfig {
	return config.PolicyConfig{Kind: "LiquiditySplitting", MaxSplits: 3, MinSplitAmount: 10}
}
