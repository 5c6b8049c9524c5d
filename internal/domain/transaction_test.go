package domain

import "testing"

func TestIsPastDeadlineStrictlyGreater(t *testing.T) {
	tx := NewTransaction("tx1", "A", "B", 1000, 0, 100, 5)
	if tx.IsPastDeadline(100) {
		t.Fatal("deadline tick itself should still be on time")
	}
	if !tx.IsPastDeadline(101) {
		t.Fatal("tick after deadline should be past deadline")
	}
}

func TestSettleRequiresExactRemaining(t *testing.T) {
	tx := NewTransaction("tx1", "A", "B", 1000, 0, 100, 0)
	if err := tx.Settle(999, 5); err == nil {
		t.Fatal("expected error settling with wrong amount")
	}
	if err := tx.Settle(1000, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.IsFullySettled() {
		t.Fatal("expected fully settled")
	}
	if tx.RemainingAmount != 0 {
		t.Fatalf("expected remaining 0, got %d", tx.RemainingAmount)
	}
}

func TestSplitChildSettlementReducesParent(t *testing.T) {
	parent := NewTransaction("parent", "A", "B", 1000, 0, 100, 0)
	if err := parent.ReduceRemainingForChild(400, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parent.RemainingAmount != 600 {
		t.Fatalf("expected remaining 600, got %d", parent.RemainingAmount)
	}
	if parent.IsFullySettled() {
		t.Fatal("parent should not be fully settled yet")
	}
	if err := parent.ReduceRemainingForChild(600, 6); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !parent.IsFullySettled() {
		t.Fatal("parent should be fully settled once remaining hits zero")
	}
}

func TestOverdueThenSettleable(t *testing.T) {
	tx := NewTransaction("tx1", "A", "B", 1000, 0, 50, 0)
	tx.MarkOverdue(51)
	if !tx.IsOverdue() {
		t.Fatal("expected overdue status")
	}
	if err := tx.Settle(1000, 60); err != nil {
		t.Fatalf("unexpected error settling overdue tx: %v", err)
	}
	if !tx.IsFullySettled() {
		t.Fatal("overdue transaction must still be settleable")
	}
}

func TestAmountConservation(t *testing.T) {
	parent := NewTransaction("parent", "A", "B", 1000, 0, 100, 0)
	_ = parent.ReduceRemainingForChild(300, 1)
	_ = parent.ReduceRemainingForChild(700, 2)
	if parent.SettledAmount()+parent.RemainingAmount != parent.Amount {
		t.Fatal("settled + remaining must equal original amount")
	}
}
