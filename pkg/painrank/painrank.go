// Package painrank is the pipeline facade: it wires the cleaner, the
// relevance funnel, the aggregator, scoring, tiering, trend detection
// and the budget governor into one round runner.
package painrank

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/painrank/pkg/painrank/aggregate"
	"github.com/cognicore/painrank/pkg/painrank/budget"
	"github.com/cognicore/painrank/pkg/painrank/clean"
	"github.com/cognicore/painrank/pkg/painrank/config"
	"github.com/cognicore/painrank/pkg/painrank/funnel"
	"github.com/cognicore/painrank/pkg/painrank/internalerr"
	"github.com/cognicore/painrank/pkg/painrank/quality"
	"github.com/cognicore/painrank/pkg/painrank/score"
	"github.com/cognicore/painrank/pkg/painrank/store"
	"github.com/cognicore/painrank/pkg/painrank/topic"
	"github.com/cognicore/painrank/pkg/painrank/trend"
	"github.com/cognicore/painrank/pkg/painrank/vocab"
)

// Depth selects how much record text the extractor may spend tokens on.
type Depth string

const (
	DepthDeep  Depth = "deep"
	DepthLight Depth = "light"
)

// Extractor pulls pain-point mentions out of records.
type Extractor interface {
	Extract(ctx context.Context, records []store.Record, depth Depth) ([]topic.Mention, error)
}

// NeedInferrer derives the latent need behind an aggregated topic.
type NeedInferrer interface {
	InferNeed(ctx context.Context, t *topic.Aggregated) (*topic.InferredNeed, error)
}

// NeedReviewer judges an inferred need.
type NeedReviewer interface {
	ReviewNeed(ctx context.Context, t *topic.Aggregated, need *topic.InferredNeed) (*topic.NeedReview, error)
}

// ModelDowngrader switches the oracle to its cheap tier. Optional.
type ModelDowngrader interface {
	Downgrade()
}

// Options configures an Engine instance
type Options struct {
	Store      store.Store
	Classifier funnel.Classifier
	Extractor  Extractor
	Inferrer   NeedInferrer
	Reviewer   NeedReviewer
	Merger     aggregate.MergeOracle
	Downgrader ModelDowngrader
	Config     *config.Config
	Logger     *slog.Logger

	// Now overrides the clock, for reproducible runs.
	Now func() time.Time
}

// Engine is the pipeline facade
type Engine struct {
	store      store.Store
	cleaner    *clean.Cleaner
	funnel     *funnel.Funnel
	aggregator *aggregate.Aggregator
	scorer     *score.Scorer
	detector   trend.Detector
	governor   budget.Governor
	discoverer *vocab.Discoverer
	extractor  Extractor
	inferrer   NeedInferrer
	reviewer   NeedReviewer
	downgrader ModelDowngrader
	cfg        *config.Config
	logger     *slog.Logger
	entropy    *ulid.MonotonicEntropy
	now        func() time.Time
}

// New creates an Engine with the given dependencies. Store, Classifier
// and Extractor are required; the need, review and merge oracles are
// optional and simply disable their stages when absent.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store required", internalerr.ErrInvalidConfig)
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("%w: extractor required", internalerr.ErrInvalidConfig)
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("%w: classifier required", internalerr.ErrInvalidConfig)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	vocabulary, ok, err := opts.Store.LoadVocabulary(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	if !ok {
		vocabulary = config.DefaultVocabulary()
	}

	fn, err := funnel.New(funnel.Config{
		PainSignals:     vocabulary.AllSignals(cfg.Vocab.MinDecayScore),
		ExcludePatterns: cfg.Funnel.ExcludePatterns,
		BatchSize:       cfg.Funnel.BatchSize,
		MaxDeep:         cfg.Funnel.MaxDeep,
		MaxLight:        cfg.Funnel.MaxLight,
		TitleMaxRunes:   cfg.Funnel.TitleMaxRunes,
		SignalHitWeight: cfg.Funnel.SignalHitWeight,
		ExcludePenalty:  cfg.Funnel.ExcludePenalty,
	}, opts.Classifier, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:   opts.Store,
		cleaner: &clean.Cleaner{MaxBodyRunes: cfg.Clean.MaxBodyRunes},
		funnel:  fn,
		aggregator: aggregate.New(aggregate.Config{
			Synonyms:       cfg.Aggregate.Synonyms,
			MinFuzzyRunes:  cfg.Aggregate.MinFuzzyRunes,
			MinNameOverlap: cfg.Aggregate.MinNameOverlap,
			CategoryLabels: cfg.Aggregate.CategoryLabels,
			FillerPhrases:  cfg.Aggregate.FillerPhrases,
		}, opts.Merger, logger),
		scorer: score.NewScorer(score.Weights{
			Frequency:     cfg.Score.Weights.Frequency,
			SourceQuality: cfg.Score.Weights.SourceQuality,
			Interaction:   cfg.Score.Weights.Interaction,
			CrossPlatform: cfg.Score.Weights.CrossPlatform,
			Freshness:     cfg.Score.Weights.Freshness,
		}, cfg.Score.SourceTrust, cfg.Score.DefaultTrust, cfg.Score.FreshnessWindowDays),
		detector: trend.Detector{
			RiseDelta:  cfg.Trend.RiseDelta,
			FallDelta:  cfg.Trend.FallDelta,
			HotDelta:   cfg.Trend.HotDelta,
			HotStreak:  cfg.Trend.HotStreak,
			MaxHistory: cfg.Trend.MaxHistory,
		},
		governor: budget.NewGovernor(cfg.Cost.MonthlyBudgetUSD, budget.Thresholds{
			Warning:   cfg.Cost.WarningRatio,
			Downgrade: cfg.Cost.DowngradeRatio,
			Pause:     cfg.Cost.PauseRatio,
			Stop:      cfg.Cost.StopRatio,
		}),
		discoverer: vocab.NewDiscoverer(cfg.Vocab),
		extractor:  opts.Extractor,
		inferrer:   opts.Inferrer,
		reviewer:   opts.Reviewer,
		downgrader: opts.Downgrader,
		cfg:        cfg,
		logger:     logger,
		entropy:    ulid.Monotonic(rand.Reader, 0),
		now:        now,
	}, nil
}

// Close cleanly shuts down the engine
func (e *Engine) Close() error {
	return e.store.Close()
}

// RoundReport summarizes one pipeline round.
type RoundReport struct {
	RoundID     string
	BudgetState budget.State
	SpentUSD    float64
	RecordsIn   int
	RecordsNew  int
	Deep        int
	Light       int
	Mentions    int
	Topics      int
	Entries     []store.RankingEntry
}

// RunRound executes one full pipeline round over a batch of raw
// records and persists the resulting ranking snapshot.
func (e *Engine) RunRound(ctx context.Context, records []store.Record) (*RoundReport, error) {
	now := e.now()
	report := &RoundReport{RecordsIn: len(records)}

	state := e.budgetState(ctx, now)
	report.BudgetState = state
	if !state.AllowsRound() {
		return report, fmt.Errorf("%w: state %s", internalerr.ErrBudgetExhausted, state)
	}
	if state.ForcesCheapModel() && e.downgrader != nil {
		e.downgrader.Downgrade()
	}
	if state != budget.StateNormal {
		e.logger.Warn("budget governor engaged", "state", state)
	}

	// Clean, drop already-seen content, persist the rest. Record
	// persistence is best effort: the round keeps its in-memory batch
	// when the store misbehaves, and only the snapshot write is fatal.
	cleaned := e.cleaner.Clean(records)
	fresh, err := e.store.FilterNewRecords(ctx, cleaned)
	if err != nil {
		e.logger.Error("filter records failed, treating the whole batch as new", "error", err)
		fresh = cleaned
	}
	if err := e.store.SaveRecords(ctx, fresh); err != nil {
		e.logger.Error("save records failed, continuing in memory", "error", err)
	}
	report.RecordsNew = len(fresh)

	// Relevance funnel.
	var deep, light []store.Record
	if len(fresh) > 0 {
		res, err := e.funnel.Run(ctx, fresh)
		if err != nil {
			return nil, err
		}
		deep, light = res.Deep, res.Light
	}
	report.Deep, report.Light = len(deep), len(light)

	// Extraction. A failed depth degrades to the other one's output.
	mentions := e.extract(ctx, deep, light)
	report.Mentions = len(mentions)

	// Prior snapshot feeds aggregation so topics accumulate across
	// rounds, and trend detection gets its history.
	history, err := e.store.RecentSnapshots(ctx, e.cfg.Trend.MaxHistory)
	if err != nil {
		e.logger.Error("load history failed, running the round without it", "error", err)
		history = nil
	}
	all := mentions
	if len(history) > 0 {
		all = append(entriesToMentions(history[0].Entries), mentions...)
	}

	buckets := e.aggregator.Aggregate(all)

	// Optional oracle stages.
	state = e.budgetState(ctx, now)
	report.BudgetState = state
	if !state.AllowsRound() {
		return report, fmt.Errorf("%w: state %s", internalerr.ErrBudgetExhausted, state)
	}
	if !state.SkipsOptional() {
		buckets = e.aggregator.OracleMerge(ctx, buckets)
		e.inferNeeds(ctx, buckets)
	} else {
		e.logger.Warn("skipping oracle merge and need inference", "state", state)
	}

	// Score, rank, tier, trend.
	e.scorer.Rank(buckets, now)
	scoreHistory := historyScores(history)
	for _, b := range buckets {
		b.Tier = string(quality.Classify(b.Need))
		b.Trend = string(e.detector.Detect(scoreHistory[b.Key], b.Score))
	}

	report.Topics = len(buckets)
	if max := e.cfg.Snapshot.MaxEntries; max > 0 && len(buckets) > max {
		buckets = buckets[:max]
	}

	snap := store.Snapshot{
		RoundID: ulid.MustNew(ulid.Timestamp(now), e.entropy).String(),
		TakenAt: now,
		Entries: bucketsToEntries(buckets),
	}
	if err := e.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	report.RoundID = snap.RoundID
	report.Entries = snap.Entries

	e.updateVocabulary(ctx, buckets, now)

	spent, _ := e.monthlySpend(ctx, now)
	report.SpentUSD = spent
	e.logger.Info("round complete",
		"round", snap.RoundID, "records_new", report.RecordsNew,
		"topics", report.Topics, "budget_state", report.BudgetState)
	return report, nil
}

// extract runs the extractor over both funnel sets. Extraction failure
// on one set does not waste the other.
func (e *Engine) extract(ctx context.Context, deep, light []store.Record) []topic.Mention {
	var mentions []topic.Mention
	if len(deep) > 0 {
		got, err := e.extractor.Extract(ctx, deep, DepthDeep)
		if err != nil {
			e.logger.Error("deep extraction failed", "records", len(deep), "error", err)
		} else {
			mentions = append(mentions, got...)
		}
	}
	if len(light) > 0 {
		got, err := e.extractor.Extract(ctx, light, DepthLight)
		if err != nil {
			e.logger.Error("light extraction failed", "records", len(light), "error", err)
		} else {
			mentions = append(mentions, got...)
		}
	}
	return mentions
}

// inferNeeds fills missing needs for the biggest buckets and has fresh
// chained needs reviewed. Individual failures skip the bucket.
func (e *Engine) inferNeeds(ctx context.Context, buckets []*topic.Aggregated) {
	if e.inferrer == nil {
		return
	}

	topK := e.cfg.Need.TopK
	if topK <= 0 {
		topK = 10
	}
	inferred := 0
	for _, b := range buckets {
		if inferred >= topK {
			break
		}
		if !b.Need.Empty() {
			continue
		}
		need, err := e.inferrer.InferNeed(ctx, b)
		if err != nil {
			e.logger.Warn("need inference failed", "topic", b.Name, "error", err)
			continue
		}
		if need.Empty() {
			continue
		}
		b.Need = need
		inferred++
	}

	if e.reviewer == nil {
		return
	}
	for _, b := range buckets {
		if b.Need.Empty() || !b.Need.HasChain() || b.Need.Review != nil {
			continue
		}
		review, err := e.reviewer.ReviewNeed(ctx, b, b.Need)
		if err != nil {
			e.logger.Warn("need review failed", "topic", b.Name, "error", err)
			continue
		}
		b.Need.Review = review
	}
}

// updateVocabulary runs hot-word discovery and writes the vocabulary
// back. A version conflict drops this round's update; the next round
// rediscovers against the newer version.
func (e *Engine) updateVocabulary(ctx context.Context, buckets []*topic.Aggregated, now time.Time) {
	vocabulary, ok, err := e.store.LoadVocabulary(ctx)
	if err != nil {
		e.logger.Warn("load vocabulary failed", "error", err)
		return
	}
	if !ok {
		vocabulary = config.DefaultVocabulary()
		vocabulary.Version = 0
	}

	found := e.discoverer.Discover(buckets)
	e.discoverer.Apply(&vocabulary, found, now)

	if err := e.store.SaveVocabulary(ctx, vocabulary); err != nil {
		e.logger.Warn("vocabulary update dropped", "error", err)
	}
}

func (e *Engine) monthlySpend(ctx context.Context, now time.Time) (float64, error) {
	return e.store.MonthlySpend(ctx, now.UTC().Format("2006-01"))
}

func (e *Engine) budgetState(ctx context.Context, now time.Time) budget.State {
	spent, err := e.monthlySpend(ctx, now)
	if err != nil {
		e.logger.Error("monthly spend lookup failed, assuming normal budget", "error", err)
		return budget.StateNormal
	}
	return e.governor.Evaluate(spent)
}

// entriesToMentions rehydrates a snapshot into historical mentions.
func entriesToMentions(entries []store.RankingEntry) []topic.Mention {
	mentions := make([]topic.Mention, len(entries))
	for i, e := range entries {
		mentions[i] = topic.Mention{
			Label:      e.Name,
			Key:        e.Key,
			Category:   e.Category,
			Sources:    e.Sources,
			SourceURLs: e.URLs,
			Tags:       e.Tags,
			Replies:    e.Replies,
			Likes:      e.Likes,
			FirstSeen:  e.FirstSeen,
			Count:      e.Mentions,
			Historical: true,
			Need:       e.Need,
		}
	}
	return mentions
}

func bucketsToEntries(buckets []*topic.Aggregated) []store.RankingEntry {
	entries := make([]store.RankingEntry, len(buckets))
	for i, b := range buckets {
		entries[i] = store.RankingEntry{
			Rank:      i + 1,
			Key:       b.Key,
			Name:      b.Name,
			Category:  b.Category,
			Score:     b.Score,
			Tier:      b.Tier,
			Trend:     b.Trend,
			Mentions:  b.Count,
			Sources:   b.Sources,
			URLs:      b.URLs,
			Tags:      b.Tags,
			Replies:   b.Replies,
			Likes:     b.Likes,
			FirstSeen: b.FirstSeen,
			Flagged:   b.NameFlagged,
			Need:      b.Need,
		}
	}
	return entries
}

// historyScores maps topic key to prior scores, oldest round first.
func historyScores(history []store.Snapshot) map[string][]float64 {
	scores := make(map[string][]float64)
	for i := len(history) - 1; i >= 0; i-- {
		for _, e := range history[i].Entries {
			scores[e.Key] = append(scores[e.Key], e.Score)
		}
	}
	return scores
}
