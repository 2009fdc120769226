package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/painrank/pkg/painrank/internalerr"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestDefaultTuningKnobs(t *testing.T) {
	cfg := Default()
	if cfg.Need.TopK != 10 {
		t.Errorf("need top_k = %d, want 10", cfg.Need.TopK)
	}
	if cfg.Need.MinConfidence != 0.4 {
		t.Errorf("need min_confidence = %v, want 0.4", cfg.Need.MinConfidence)
	}
	if cfg.LLM.ExtractBatchSize != 10 {
		t.Errorf("extract batch size = %d, want 10", cfg.LLM.ExtractBatchSize)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
store:
  path: /tmp/override.db
pphi:
  freshness_window_days: 14
cost:
  monthly_budget_usd: 50
llm:
  model: gpt-4.1
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Path != "/tmp/override.db" {
		t.Errorf("store path = %s", cfg.Store.Path)
	}
	if cfg.Score.FreshnessWindowDays != 14 {
		t.Errorf("freshness window = %v", cfg.Score.FreshnessWindowDays)
	}
	if cfg.Cost.MonthlyBudgetUSD != 50 {
		t.Errorf("budget = %v", cfg.Cost.MonthlyBudgetUSD)
	}
	if cfg.LLM.Model != "gpt-4.1" {
		t.Errorf("model = %s", cfg.LLM.Model)
	}
	// Untouched sections keep their defaults.
	if cfg.Funnel.BatchSize != 30 {
		t.Errorf("funnel batch size = %d", cfg.Funnel.BatchSize)
	}
	if cfg.Trend.HotStreak != 3 {
		t.Errorf("hot streak = %d", cfg.Trend.HotStreak)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKeyEnv != "PAINRANK_API_KEY" {
		t.Errorf("api key env = %s", cfg.LLM.APIKeyEnv)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"negative weight":         func(c *Config) { c.Score.Weights.Frequency = -0.1 },
		"zero freshness window":   func(c *Config) { c.Score.FreshnessWindowDays = 0 },
		"zero batch size":         func(c *Config) { c.Funnel.BatchSize = 0 },
		"negative budget":         func(c *Config) { c.Cost.MonthlyBudgetUSD = -1 },
		"decreasing cost ratios":  func(c *Config) { c.Cost.PauseRatio = 0.5 },
		"zero hot streak":         func(c *Config) { c.Trend.HotStreak = 0 },
		"need confidence above 1": func(c *Config) { c.Need.MinConfidence = 1.5 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, internalerr.ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", name, err)
		}
	}
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("PAINRANK_TEST_KEY", "sk-test")
	l := LLMConfig{APIKeyEnv: "PAINRANK_TEST_KEY"}
	if got := l.APIKey(); got != "sk-test" {
		t.Errorf("APIKey = %q", got)
	}
}

func TestAllSignalsFiltersByDecay(t *testing.T) {
	v := Vocabulary{
		Signals: map[string][]string{"zh": {"卡顿"}, "en": {"crash"}},
		Discovered: map[string][]HotWord{
			"zh": {
				{Word: "炸显存", DecayScore: 0.9},
				{Word: "过气词", DecayScore: 0.1},
			},
		},
	}

	signals := v.AllSignals(0.3)
	want := map[string]bool{"卡顿": true, "crash": true, "炸显存": true}
	if len(signals) != len(want) {
		t.Fatalf("signals = %v", signals)
	}
	for _, s := range signals {
		if !want[s] {
			t.Errorf("unexpected signal %q", s)
		}
	}
}

func TestVocabularyCloneIsDeep(t *testing.T) {
	v := DefaultVocabulary()
	v.Discovered["zh"] = []HotWord{{Word: "缩缸门", DecayScore: 1}}

	cp := v.Clone()
	cp.Signals["zh"][0] = "mutated"
	cp.Discovered["zh"][0].Word = "mutated"

	if v.Signals["zh"][0] == "mutated" || v.Discovered["zh"][0].Word == "mutated" {
		t.Error("clone shares backing storage with the original")
	}
}
