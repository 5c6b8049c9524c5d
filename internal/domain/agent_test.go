package domain

import "testing"

func TestAvailableLiquidityPositiveBalance(t *testing.T) {
	a := NewAgent("BANK_A", 1_000_000, 500_000)
	if got := a.AvailableLiquidity(); got != 1_500_000 {
		t.Fatalf("expected 1500000, got %d", got)
	}
}

func TestAvailableLiquidityWithCollateral(t *testing.T) {
	a := NewAgent("BANK_A", 0, 0)
	a.PostedCollateral = 1_000_000
	a.CollateralHaircut = 0.1
	// allowed_overdraft_limit = floor(1_000_000*0.9) + 0 = 900_000
	if got := a.AllowedOverdraftLimit(); got != 900_000 {
		t.Fatalf("expected 900000, got %d", got)
	}
}

func TestInvariantI1HoldsAfterDebit(t *testing.T) {
	a := NewAgent("BANK_A", 100_000, 50_000)
	a.Debit(150_000) // exactly at the limit: balance -50000, credit_used 50000
	if a.CreditUsed() != a.AllowedOverdraftLimit() {
		t.Fatalf("expected credit used to equal limit, got %d vs %d", a.CreditUsed(), a.AllowedOverdraftLimit())
	}
}

func TestInvariantI1PanicsOnOverdraw(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when debit breaks I1")
		}
	}()
	a := NewAgent("BANK_A", 0, 0)
	a.Debit(1) // no liquidity at all: should break I1
}

func TestInvariantI2BlocksUnsafeWithdrawal(t *testing.T) {
	a := NewAgent("BANK_A", -80_000, 0) // fully using overdraft via collateral
	a.PostedCollateral = 100_000
	a.CollateralHaircut = 0.0
	// credit_used = 80_000, required collateral value = 80_000 (unsecured cap 0)
	if a.WithdrawCollateralAllowed(30_000) {
		t.Fatal("expected withdrawal of 30000 to be blocked (would leave only 70000 < 80000 required)")
	}
	if !a.WithdrawCollateralAllowed(10_000) {
		t.Fatal("expected withdrawal of 10000 to be allowed (leaves 90000 >= 80000 required)")
	}
}

func TestCanPay(t *testing.T) {
	a := NewAgent("BANK_A", 1_000_000, 500_000)
	if !a.CanPay(500_000) {
		t.Fatal("expected CanPay(500000) to be true")
	}
	if a.CanPay(2_000_000) {
		t.Fatal("expected CanPay(2000000) to be false")
	}
}

func TestSortedAgentIDs(t *testing.T) {
	agents := map[string]*Agent{
		"BANK_C": NewAgent("BANK_C", 0, 0),
		"BANK_A": NewAgent("BANK_A", 0, 0),
		"BANK_B": NewAgent("BANK_B", 0, 0),
	}
	ids := SortedAgentIDs(agents)
	want := []string{"BANK_A", "BANK_B", "BANK_C"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("expected sorted order %v, got %v", want, ids)
		}
	}
}
