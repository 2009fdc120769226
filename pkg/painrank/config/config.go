// Package config holds the runtime configuration and the versioned
// vocabulary that seeds collection and funnel heuristics.
package config

import (
	"fmt"

	"github.com/cognicore/painrank/pkg/painrank/internalerr"
)

// Config is the full runtime configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	LLM       LLMConfig       `yaml:"llm"`
	Retry     RetryConfig     `yaml:"retry"`
	Clean     CleanConfig     `yaml:"clean"`
	Funnel    FunnelConfig    `yaml:"funnel"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Score     ScoreConfig     `yaml:"pphi"`
	Need      NeedConfig      `yaml:"need"`
	Trend     TrendConfig     `yaml:"trend"`
	Cost      CostConfig      `yaml:"cost"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Vocab     VocabConfig     `yaml:"vocabulary"`
}

// StoreConfig locates the durable store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LLMConfig configures the oracle endpoint.
type LLMConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKeyEnv         string `yaml:"api_key_env"`
	Model             string `yaml:"model"`
	CheapModel        string `yaml:"cheap_model"`
	MaxTokens         int    `yaml:"max_tokens"`
	RequestIntervalMS int    `yaml:"request_interval_ms"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	ExtractBatchSize  int    `yaml:"extract_batch_size"`
}

// RetryConfig bounds retries on external calls.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

// CleanConfig controls record normalization.
type CleanConfig struct {
	MaxBodyRunes int `yaml:"max_body_runes"`
}

// FunnelConfig controls the three-tier relevance funnel.
type FunnelConfig struct {
	BatchSize       int      `yaml:"batch_size"`
	MaxDeep         int      `yaml:"max_deep"`
	MaxLight        int      `yaml:"max_light"`
	TitleMaxRunes   int      `yaml:"title_max_runes"`
	SignalHitWeight float64  `yaml:"signal_hit_weight"`
	ExcludePenalty  float64  `yaml:"exclude_penalty"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// AggregateConfig controls topic bucketing.
type AggregateConfig struct {
	Synonyms       [][]string `yaml:"synonyms"`
	MinFuzzyRunes  int        `yaml:"min_fuzzy_runes"`
	MinNameOverlap float64    `yaml:"min_name_overlap"`
	CategoryLabels []string   `yaml:"category_labels"`
	FillerPhrases  []string   `yaml:"filler_phrases"`
}

// ScoreConfig holds the five-component scoring model.
type ScoreConfig struct {
	Weights             Weights            `yaml:"weights"`
	FreshnessWindowDays float64            `yaml:"freshness_window_days"`
	SourceTrust         map[string]float64 `yaml:"source_trust"`
	DefaultTrust        float64            `yaml:"default_trust"`
}

// Weights are the component weights of the popularity score.
type Weights struct {
	Frequency     float64 `yaml:"frequency"`
	SourceQuality float64 `yaml:"source_quality"`
	Interaction   float64 `yaml:"interaction"`
	CrossPlatform float64 `yaml:"cross_platform"`
	Freshness     float64 `yaml:"freshness"`
}

// NeedConfig bounds latent-need inference.
type NeedConfig struct {
	// TopK is how many of the biggest buckets get a need inferred per
	// round.
	TopK int `yaml:"top_k"`

	// MinConfidence discards inferred needs the oracle itself is not
	// sure about.
	MinConfidence float64 `yaml:"min_confidence"`
}

// TrendConfig holds trend-detection thresholds.
type TrendConfig struct {
	RiseDelta  float64 `yaml:"rise_delta"`
	FallDelta  float64 `yaml:"fall_delta"`
	HotDelta   float64 `yaml:"hot_delta"`
	HotStreak  int     `yaml:"hot_streak"`
	MaxHistory int     `yaml:"max_history"`
}

// CostConfig holds the monthly budget and its escalation thresholds,
// expressed as fractions of the budget.
type CostConfig struct {
	MonthlyBudgetUSD float64 `yaml:"monthly_budget_usd"`
	WarningRatio     float64 `yaml:"warning_ratio"`
	DowngradeRatio   float64 `yaml:"downgrade_ratio"`
	PauseRatio       float64 `yaml:"pause_ratio"`
	StopRatio        float64 `yaml:"stop_ratio"`
}

// SnapshotConfig bounds persisted rankings.
type SnapshotConfig struct {
	MaxEntries    int `yaml:"max_entries"`
	HistoryRounds int `yaml:"history_rounds"`
}

// VocabConfig controls hot-word discovery.
type VocabConfig struct {
	MinFrequency    int      `yaml:"min_frequency"`
	MaxChinese      int      `yaml:"max_chinese"`
	MaxEnglish      int      `yaml:"max_english"`
	DecayWindowDays int      `yaml:"decay_window_days"`
	MinDecayScore   float64  `yaml:"min_decay_score"`
	Stopwords       []string `yaml:"stopwords"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store:   StoreConfig{Path: "painrank.db"},
		Logging: LoggingConfig{Level: "info"},
		LLM: LLMConfig{
			BaseURL:           "https://api.openai.com/v1/chat/completions",
			APIKeyEnv:         "PAINRANK_API_KEY",
			Model:             "gpt-4o",
			CheapModel:        "gpt-4o-mini",
			MaxTokens:         2048,
			RequestIntervalMS: 750,
			TimeoutSeconds:    60,
			ExtractBatchSize:  10,
		},
		Retry: RetryConfig{MaxAttempts: 3, BaseDelayMS: 500, MaxDelayMS: 5000},
		Clean: CleanConfig{MaxBodyRunes: 2000},
		Funnel: FunnelConfig{
			BatchSize:       30,
			MaxDeep:         30,
			MaxLight:        20,
			TitleMaxRunes:   80,
			SignalHitWeight: 3,
			ExcludePenalty:  20,
			ExcludePatterns: []string{
				`抽奖|开箱|晒单|求推荐|求购|出二手|收卡`,
				`(?i)giveaway|unboxing|for sale|wts|wtb`,
				`(?i)^\[?ad\]?|广告|推广`,
			},
		},
		Aggregate: AggregateConfig{
			MinFuzzyRunes:  5,
			MinNameOverlap: 0.2,
			CategoryLabels: []string{
				"性能", "价格", "散热", "驱动", "生态", "显存", "功耗", "其他",
				"performance", "price", "thermal", "driver", "ecosystem",
				"memory", "power", "other",
			},
			FillerPhrases: []string{
				"一言难尽", "懂的都懂", "绷不住了", "无话可说", "就这",
				"lol", "emmm", "rip", "sigh",
			},
		},
		Score: ScoreConfig{
			Weights: Weights{
				Frequency:     0.30,
				SourceQuality: 0.20,
				Interaction:   0.15,
				CrossPlatform: 0.15,
				Freshness:     0.20,
			},
			FreshnessWindowDays: 7,
			SourceTrust: map[string]float64{
				"reddit":   0.9,
				"chiphell": 0.9,
				"zhihu":    0.8,
				"tieba":    0.6,
				"bilibili": 0.6,
				"weibo":    0.5,
			},
			DefaultTrust: 0.5,
		},
		Need: NeedConfig{TopK: 10, MinConfidence: 0.4},
		Trend: TrendConfig{
			RiseDelta:  3,
			FallDelta:  -3,
			HotDelta:   2,
			HotStreak:  3,
			MaxHistory: 4,
		},
		Cost: CostConfig{
			MonthlyBudgetUSD: 100,
			WarningRatio:     0.8,
			DowngradeRatio:   0.9,
			PauseRatio:       0.95,
			StopRatio:        1.0,
		},
		Snapshot: SnapshotConfig{MaxEntries: 50, HistoryRounds: 4},
		Vocab: VocabConfig{
			MinFrequency:    2,
			MaxChinese:      12,
			MaxEnglish:      8,
			DecayWindowDays: 14,
			MinDecayScore:   0.3,
			Stopwords: []string{
				"显卡", "问题", "因为", "所以", "但是", "这个", "那个", "真的",
				"card", "with", "that", "this", "have", "from", "about", "issue",
			},
		},
	}
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	w := c.Score.Weights
	for name, v := range map[string]float64{
		"frequency":      w.Frequency,
		"source_quality": w.SourceQuality,
		"interaction":    w.Interaction,
		"cross_platform": w.CrossPlatform,
		"freshness":      w.Freshness,
	} {
		if v < 0 {
			return fmt.Errorf("%w: negative weight %s", internalerr.ErrInvalidConfig, name)
		}
	}
	if c.Score.FreshnessWindowDays <= 0 {
		return fmt.Errorf("%w: freshness window must be positive", internalerr.ErrInvalidConfig)
	}
	if c.Funnel.BatchSize <= 0 {
		return fmt.Errorf("%w: funnel batch size must be positive", internalerr.ErrInvalidConfig)
	}
	if c.Cost.MonthlyBudgetUSD < 0 {
		return fmt.Errorf("%w: negative budget", internalerr.ErrInvalidConfig)
	}
	r := c.Cost
	if !(r.WarningRatio <= r.DowngradeRatio && r.DowngradeRatio <= r.PauseRatio && r.PauseRatio <= r.StopRatio) {
		return fmt.Errorf("%w: cost ratios must be non-decreasing", internalerr.ErrInvalidConfig)
	}
	if c.Trend.HotStreak <= 0 || c.Trend.MaxHistory <= 0 {
		return fmt.Errorf("%w: trend window must be positive", internalerr.ErrInvalidConfig)
	}
	if c.Need.MinConfidence < 0 || c.Need.MinConfidence > 1 {
		return fmt.Errorf("%w: need confidence must be within [0,1]", internalerr.ErrInvalidConfig)
	}
	return nil
}
