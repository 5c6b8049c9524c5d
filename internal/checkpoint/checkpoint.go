// Package checkpoint implements §4.9's save_state/load_state primitive: a
// self-describing JSON snapshot of an Orchestrator run, bound to a
// canonical SHA-256 hash of the config that produced it. Grounded on the
// teacher's hash-over-canonical-fields idiom
// (ZeroKnowledgeAuditor.GenerateCommitment, ledger.Service.calculateHash):
// sha256.Sum256 over a deterministic byte representation, hex-encoded.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/pkg/config"
	"github.com/kyd-labs/rtgs-sim/pkg/errors"
)

// PendingStagger mirrors the orchestrator's internal stagger-queue entry,
// exported here so a checkpoint can carry it without importing orchestrator.
type PendingStagger struct {
	InjectTick int64  `json:"inject_tick"`
	AgentID    string `json:"agent_id"`
	TxID       string `json:"tx_id"`
}

// Snapshot is the full in-memory state needed to resume a run byte-for-byte:
// every agent, every transaction, Queue 2's order, the complete event log,
// the RNG's internal state, and the per-generator id counters.
type Snapshot struct {
	CurrentTick      int64                           `json:"current_tick"`
	CurrentDay       int64                           `json:"current_day"`
	NextTxSeq        int64                           `json:"next_tx_seq"`
	RngState         uint64                          `json:"rng_state"`
	RngSeed          uint64                          `json:"rng_seed"`
	Agents           map[string]*domain.Agent        `json:"agents"`
	Transactions     map[string]*domain.Transaction  `json:"transactions"`
	Queue2           []string                        `json:"queue2"`
	Events           []domain.Event                  `json:"events"`
	ArrivalSeqs      map[string]int64                `json:"arrival_seqs"`
	Staggered        []PendingStagger                `json:"staggered"`
	CostAccumulators map[string]*domain.CostBreakdown `json:"cost_accumulators"`
}

// Info is the metadata get_checkpoint_info reports without loading the full
// snapshot body, matching spec.md's documented
// {current_tick, current_day, rng_seed, config_hash, num_agents,
// num_transactions} return shape.
type Info struct {
	CurrentTick     int64  `json:"current_tick"`
	CurrentDay      int64  `json:"current_day"`
	RngSeed         uint64 `json:"rng_seed"`
	ConfigHash      string `json:"config_hash"`
	NumAgents       int    `json:"num_agents"`
	NumTransactions int    `json:"num_transactions"`
}

// file is the on-disk envelope: the snapshot plus the config hash it was
// produced under.
type file struct {
	ConfigHash string   `json:"config_hash"`
	Snapshot   Snapshot `json:"snapshot"`
}

// HashConfig computes a stable SHA-256 hash over cfg's canonical JSON
// encoding. encoding/json already emits object keys in the struct's
// declared field order and, for map[string]T fields, in sorted key order,
// so two encodes of an equal Config always produce identical bytes.
func HashConfig(cfg *config.Config) (string, error) {
	canon, err := canonicalize(cfg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize round-trips v through map[string]interface{} so that any
// non-map-keyed-by-string ordering quirks are normalized before re-encoding
// with sorted keys (encoding/json sorts map[string]interface{} keys on
// Marshal).
func canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Save writes snap to path as a self-describing JSON document bound to
// cfg's hash.
func Save(path string, cfg *config.Config, snap Snapshot) error {
	hash, err := HashConfig(cfg)
	if err != nil {
		return err
	}
	out := file{ConfigHash: hash, Snapshot: snap}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// Load reads a checkpoint file and verifies its config hash matches cfg's
// current hash, returning *errors.CheckpointMismatch on divergence.
func Load(path string, cfg *config.Config) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return Snapshot{}, err
	}
	wantHash, err := HashConfig(cfg)
	if err != nil {
		return Snapshot{}, err
	}
	if f.ConfigHash != wantHash {
		return Snapshot{}, &errors.CheckpointMismatch{Expected: wantHash, Actual: f.ConfigHash}
	}
	restoreTransactionFlags(f.Snapshot)
	return f.Snapshot, nil
}

// GetInfo reads just the envelope's metadata without reconstructing state.
func GetInfo(path string) (Info, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return Info{}, err
	}
	return Info{
		CurrentTick:     f.Snapshot.CurrentTick,
		CurrentDay:      f.Snapshot.CurrentDay,
		RngSeed:         f.Snapshot.RngSeed,
		ConfigHash:      f.ConfigHash,
		NumAgents:       len(f.Snapshot.Agents),
		NumTransactions: len(f.Snapshot.Transactions),
	}, nil
}

// restoreTransactionFlags re-derives hasSubmissionTick (unexported, so
// dropped by JSON round-tripping) for every transaction still in Queue 2:
// every transaction in Queue2 has had SetRTGSSubmissionTick called on it.
// Transactions that have left Queue 2 (settled) also had it called, but the
// flag is not restored for them.
func restoreTransactionFlags(snap Snapshot) {
	inQueue2 := make(map[string]bool, len(snap.Queue2))
	for _, id := range snap.Queue2 {
		inQueue2[id] = true
	}
	for id, tx := range snap.Transactions {
		if inQueue2[id] {
			tx.SetRTGSSubmissionTick(tx.RTGSSubmissionTick)
		}
	}
}
