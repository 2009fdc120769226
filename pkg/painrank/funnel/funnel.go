// Package funnel implements the three-tier relevance funnel that turns
// a pile of cleaned records into small deep- and light-analysis sets.
//
// Tier one is a local heuristic: pain-signal hits raise a record's
// score, exclusion patterns (ads, giveaways, resale posts) penalize it.
// No record is dropped at this tier, only ordered. Tier two asks the
// classifier to judge batches of titles. Tier three splits the
// survivors into capped deep and light sets.
package funnel

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/cognicore/painrank/pkg/painrank/store"
)

// Class is a tier-two relevance judgement for one record.
type Class int

const (
	ClassIrrelevant Class = iota
	ClassUncertain
	ClassDefinite
)

// Classifier judges batches of record titles. Implementations return
// one Class per title, positionally.
type Classifier interface {
	ClassifyBatch(ctx context.Context, titles []string) ([]Class, error)
}

// Config holds funnel parameters.
type Config struct {
	PainSignals     []string
	ExcludePatterns []string
	BatchSize       int
	MaxDeep         int
	MaxLight        int
	TitleMaxRunes   int
	SignalHitWeight float64
	ExcludePenalty  float64
}

// Funnel runs the three tiers.
type Funnel struct {
	cfg        Config
	signals    []string
	exclude    []*regexp.Regexp
	classifier Classifier
	logger     *slog.Logger
}

// New compiles the exclusion patterns and returns a ready funnel.
func New(cfg Config, classifier Classifier, logger *slog.Logger) (*Funnel, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 30
	}
	if cfg.MaxDeep <= 0 {
		cfg.MaxDeep = 30
	}
	if cfg.MaxLight <= 0 {
		cfg.MaxLight = 20
	}
	if cfg.TitleMaxRunes <= 0 {
		cfg.TitleMaxRunes = 80
	}
	if cfg.SignalHitWeight == 0 {
		cfg.SignalHitWeight = 3
	}
	if cfg.ExcludePenalty == 0 {
		cfg.ExcludePenalty = 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &Funnel{cfg: cfg, classifier: classifier, logger: logger}
	for _, s := range cfg.PainSignals {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			f.signals = append(f.signals, s)
		}
	}
	for _, p := range cfg.ExcludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", p, err)
		}
		f.exclude = append(f.exclude, re)
	}
	return f, nil
}

// Scored is a record with its tier-one score attached.
type Scored struct {
	Record   store.Record
	Signal   float64
	Hits     int
	Excluded bool
	Class    Class
}

// Result is the funnel output: deep-analysis records, light-analysis
// records, and the rest.
type Result struct {
	Deep     []store.Record
	Light    []store.Record
	Rejected []store.Record
}

// ScoreLocal runs tier one: every record gets a signal score and the
// list is ordered best first. Nothing is dropped here.
func (f *Funnel) ScoreLocal(records []store.Record) []Scored {
	scored := make([]Scored, len(records))
	for i, r := range records {
		text := strings.ToLower(r.Title + " " + r.Body)
		hits := 0
		for _, sig := range f.signals {
			if strings.Contains(text, sig) {
				hits++
			}
		}
		s := Scored{Record: r, Hits: hits, Signal: float64(hits) * f.cfg.SignalHitWeight}
		for _, re := range f.exclude {
			if re.MatchString(r.Title) {
				s.Excluded = true
				s.Signal -= f.cfg.ExcludePenalty
				break
			}
		}
		scored[i] = s
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Signal > scored[j].Signal
	})
	return scored
}

// Classify runs tier two over already-scored records. A failed batch
// defaults every title in it to uncertain rather than dropping records.
func (f *Funnel) Classify(ctx context.Context, scored []Scored) []Scored {
	for start := 0; start < len(scored); start += f.cfg.BatchSize {
		end := start + f.cfg.BatchSize
		if end > len(scored) {
			end = len(scored)
		}
		batch := scored[start:end]

		titles := make([]string, len(batch))
		for i, s := range batch {
			titles[i] = truncateRunes(s.Record.Title, f.cfg.TitleMaxRunes)
		}

		classes, err := f.classifier.ClassifyBatch(ctx, titles)
		if err != nil {
			f.logger.Warn("classify batch failed, defaulting to uncertain",
				"batch_start", start, "size", len(batch), "error", err)
			for i := range batch {
				batch[i].Class = ClassUncertain
			}
			continue
		}

		for i := range batch {
			if i < len(classes) && validClass(classes[i]) {
				batch[i].Class = classes[i]
			} else {
				batch[i].Class = ClassUncertain
			}
		}
	}
	return scored
}

// Run executes all three tiers.
func (f *Funnel) Run(ctx context.Context, records []store.Record) (Result, error) {
	if len(records) == 0 {
		return Result{}, nil
	}
	if f.classifier == nil {
		return Result{}, fmt.Errorf("funnel: classifier required")
	}

	scored := f.Classify(ctx, f.ScoreLocal(records))

	var res Result
	for _, s := range scored {
		switch {
		case s.Class == ClassDefinite && len(res.Deep) < f.cfg.MaxDeep:
			res.Deep = append(res.Deep, s.Record)
		case s.Class == ClassDefinite:
			// Deep set full; definite overflow still gets light analysis.
			if len(res.Light) < f.cfg.MaxLight {
				res.Light = append(res.Light, s.Record)
			} else {
				res.Rejected = append(res.Rejected, s.Record)
			}
		case s.Class == ClassUncertain && !s.Excluded && len(res.Light) < f.cfg.MaxLight:
			res.Light = append(res.Light, s.Record)
		default:
			res.Rejected = append(res.Rejected, s.Record)
		}
	}

	f.logger.Info("funnel complete",
		"in", len(records), "deep", len(res.Deep),
		"light", len(res.Light), "rejected", len(res.Rejected))
	return res, nil
}

func validClass(c Class) bool {
	return c >= ClassIrrelevant && c <= ClassDefinite
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
