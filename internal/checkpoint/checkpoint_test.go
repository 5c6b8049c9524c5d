package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kyd-labs/rtgs-sim/internal/domain"
	"github.com/kyd-labs/rtgs-sim/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		TicksPerDay: 10,
		NumDays:     1,
		RngSeed:     7,
		AgentConfigs: []config.AgentConfig{
			{ID: "BANK_A", OpeningBalance: 100, Policy: config.PolicyConfig{Kind: "Fifo"},
				Arrivals: config.ArrivalConfig{Amount: config.AmountDistribution{Kind: "Uniform", Min: 1, Max: 1}}},
		},
		CostRates: config.CostRatesConfig{OverdueDelayMultiplier: 1},
		Lsm:       config.LsmConfig{MaxCycleLength: 3},
	}
}

func TestHashConfigIsStableAcrossEncodes(t *testing.T) {
	cfg := testConfig()
	h1, err := HashConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := HashConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical hashes for the same config, got %s vs %s", h1, h2)
	}
}

func TestHashConfigChangesWithConfig(t *testing.T) {
	cfg := testConfig()
	h1, _ := HashConfig(cfg)
	cfg.RngSeed = 8
	h2, _ := HashConfig(cfg)
	if h1 == h2 {
		t.Fatal("expected hash to change when config changes")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := testConfig()
	agent := domain.NewAgent("BANK_A", 100, 0)
	tx := domain.NewTransaction("tx-1", "BANK_A", "BANK_B", 50, 0, 10, 0)

	book := domain.NewCostBreakdown()
	book.LiquidityCost = 5
	book.PenaltyCost = 9

	snap := Snapshot{
		CurrentTick:      3,
		CurrentDay:       0,
		NextTxSeq:        1,
		RngState:         42,
		RngSeed:          cfg.RngSeed,
		Agents:           map[string]*domain.Agent{"BANK_A": agent},
		Transactions:     map[string]*domain.Transaction{"tx-1": tx},
		Queue2:           nil,
		Events:           nil,
		ArrivalSeqs:      map[string]int64{"BANK_A": 2},
		CostAccumulators: map[string]*domain.CostBreakdown{"BANK_A": book},
	}

	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := Save(path, cfg, snap); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	loaded, err := Load(path, cfg)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if loaded.CurrentTick != 3 || loaded.RngState != 42 {
		t.Fatalf("unexpected round-tripped snapshot: %+v", loaded)
	}
	if loaded.Agents["BANK_A"].Balance != 100 {
		t.Fatalf("unexpected agent balance after round trip: %d", loaded.Agents["BANK_A"].Balance)
	}
	if loaded.CostAccumulators["BANK_A"].LiquidityCost != 5 || loaded.CostAccumulators["BANK_A"].PenaltyCost != 9 {
		t.Fatalf("unexpected cost accumulators after round trip: %+v", loaded.CostAccumulators["BANK_A"])
	}
}

func TestLoadRejectsMismatchedConfig(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := Save(path, cfg, Snapshot{}); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	cfg2 := testConfig()
	cfg2.RngSeed = 99
	if _, err := Load(path, cfg2); err == nil {
		t.Fatal("expected a config hash mismatch error")
	}
}

func TestGetInfoReadsMetadataWithoutFullRestore(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	snap := Snapshot{
		CurrentTick:  5,
		CurrentDay:   0,
		RngSeed:      cfg.RngSeed,
		Agents:       map[string]*domain.Agent{"BANK_A": domain.NewAgent("BANK_A", 0, 0)},
		Transactions: map[string]*domain.Transaction{"tx-1": domain.NewTransaction("tx-1", "BANK_A", "BANK_B", 50, 0, 10, 0)},
	}
	if err := Save(path, cfg, snap); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	info, err := GetInfo(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.CurrentTick != 5 || info.NumAgents != 1 || info.NumTransactions != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.RngSeed != cfg.RngSeed {
		t.Fatalf("expected rng_seed %d, got %d", cfg.RngSeed, info.RngSeed)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected checkpoint file to exist: %v", err)
	}
}
