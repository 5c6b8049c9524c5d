package policy

// ReleaseDecisionKind tags the payment-tree outcome union.
type ReleaseDecisionKind string

const (
	DecRelease           ReleaseDecisionKind = "Release"
	DecHold              ReleaseDecisionKind = "Hold"
	DecDrop              ReleaseDecisionKind = "Drop"
	DecSplit             ReleaseDecisionKind = "Split"
	DecStaggerSplit      ReleaseDecisionKind = "StaggerSplit"
	DecReprioritize      ReleaseDecisionKind = "Reprioritize"
	DecReleaseWithCredit ReleaseDecisionKind = "ReleaseWithCredit"
)

// ReleaseDecision is the evaluation outcome of one payment_tree pass over
// one transaction.
type ReleaseDecision struct {
	Kind ReleaseDecisionKind
	TxID string

	Reason string // Hold

	NumSplits      int   // Split / StaggerSplit
	MinSplitAmount int64 // Split / StaggerSplit

	StaggerFirstNow       bool  // StaggerSplit
	StaggerGapTicks       int64 // StaggerSplit
	PriorityBoostChildren int   // StaggerSplit

	NewPriority int // Reprioritize
}

// CollateralDecisionKind tags the collateral/state-tree outcome union,
// produced by the strategic and end-of-tick collateral trees.
type CollateralDecisionKind string

const (
	DecPostCollateral     CollateralDecisionKind = "PostCollateral"
	DecWithdrawCollateral CollateralDecisionKind = "WithdrawCollateral"
	DecHoldCollateral     CollateralDecisionKind = "HoldCollateral"
	DecSetState           CollateralDecisionKind = "SetState"
	DecAddState           CollateralDecisionKind = "AddState"
	DecSetReleaseBudget   CollateralDecisionKind = "SetReleaseBudget"
)

// CollateralDecision is the evaluation outcome of a collateral/state tree
// pass for one agent.
type CollateralDecision struct {
	Kind   CollateralDecisionKind
	Amount int64
	Reason string

	Key   string  // SetState / AddState
	Value float64 // SetState
	Delta float64 // AddState

	MaxValue            int64    // SetReleaseBudget
	FocusCounterparties []string // SetReleaseBudget
	MaxPerCounterparty  int64    // SetReleaseBudget
}
