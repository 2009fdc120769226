package painrank_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cognicore/painrank/pkg/painrank"
	"github.com/cognicore/painrank/pkg/painrank/budget"
	"github.com/cognicore/painrank/pkg/painrank/funnel"
	"github.com/cognicore/painrank/pkg/painrank/internalerr"
	"github.com/cognicore/painrank/pkg/painrank/store"
	"github.com/cognicore/painrank/pkg/painrank/store/memstore"
	"github.com/cognicore/painrank/pkg/painrank/topic"
)

var roundTime = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

type stubClassifier struct {
	class funnel.Class
	calls int
}

func (s *stubClassifier) ClassifyBatch(ctx context.Context, titles []string) ([]funnel.Class, error) {
	s.calls++
	classes := make([]funnel.Class, len(titles))
	for i := range classes {
		classes[i] = s.class
	}
	return classes, nil
}

// stubExtractor emits one mention per record, labelled by title.
type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, records []store.Record, depth painrank.Depth) ([]topic.Mention, error) {
	mentions := make([]topic.Mention, len(records))
	for i, r := range records {
		mentions[i] = topic.Mention{
			Label:     r.Title,
			Category:  "散热",
			Sources:   []string{r.Source},
			Replies:   r.Replies,
			Likes:     r.Likes,
			FirstSeen: r.Timestamp,
			Count:     1,
		}
	}
	return mentions, nil
}

type stubInferrer struct{ calls int }

func (s *stubInferrer) InferNeed(ctx context.Context, t *topic.Aggregated) (*topic.InferredNeed, error) {
	s.calls++
	return &topic.InferredNeed{
		Need:           "quiet sustained cooling",
		ReasoningChain: []string{"users report throttling under load"},
		Confidence:     0.8,
	}, nil
}

type stubReviewer struct{ calls int }

func (s *stubReviewer) ReviewNeed(ctx context.Context, t *topic.Aggregated, need *topic.InferredNeed) (*topic.NeedReview, error) {
	s.calls++
	return &topic.NeedReview{Verdict: topic.VerdictStrong, Comment: "grounded"}, nil
}

type stubDowngrader struct{ calls int }

func (s *stubDowngrader) Downgrade() { s.calls++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, st store.Store, opts painrank.Options) *painrank.Engine {
	t.Helper()
	opts.Store = st
	if opts.Classifier == nil {
		opts.Classifier = &stubClassifier{class: funnel.ClassDefinite}
	}
	if opts.Extractor == nil {
		opts.Extractor = stubExtractor{}
	}
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return roundTime }
	}
	engine, err := painrank.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

func sampleRecords() []store.Record {
	ts := roundTime.Add(-24 * time.Hour)
	return []store.Record{
		{ID: "r1", Source: "reddit", Title: "显卡过热", Body: "满载 90 度降频", Replies: 12, Likes: 4, Timestamp: ts},
		{ID: "r2", Source: "zhihu", Title: "显卡过热", Body: "风扇起飞还是热", Replies: 3, Likes: 1, Timestamp: ts},
	}
}

func TestRunRoundProducesSnapshot(t *testing.T) {
	st := memstore.New()
	inferrer := &stubInferrer{}
	reviewer := &stubReviewer{}
	engine := newEngine(t, st, painrank.Options{Inferrer: inferrer, Reviewer: reviewer})

	report, err := engine.RunRound(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if report.RoundID == "" {
		t.Fatal("round id missing")
	}
	if report.RecordsNew != 2 {
		t.Errorf("records new = %d, want 2", report.RecordsNew)
	}
	if report.BudgetState != budget.StateNormal {
		t.Errorf("budget state = %s", report.BudgetState)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("entries = %d, want one merged topic", len(report.Entries))
	}

	e := report.Entries[0]
	if e.Mentions != 2 {
		t.Errorf("mentions = %d, want 2", e.Mentions)
	}
	if len(e.Sources) != 2 {
		t.Errorf("sources = %v, want both platforms", e.Sources)
	}
	if e.Trend != "new" {
		t.Errorf("trend = %s, want new", e.Trend)
	}
	if e.Tier != "gold" {
		t.Errorf("tier = %s, want gold for a strongly reviewed chained need", e.Tier)
	}
	if e.Score <= 0 {
		t.Errorf("score = %.1f, want positive", e.Score)
	}
	if inferrer.calls == 0 || reviewer.calls == 0 {
		t.Error("need inference and review should have run")
	}

	snap, ok, err := st.LatestSnapshot(context.Background())
	if err != nil || !ok {
		t.Fatalf("LatestSnapshot: ok=%v err=%v", ok, err)
	}
	if snap.RoundID != report.RoundID {
		t.Errorf("stored round %s, report round %s", snap.RoundID, report.RoundID)
	}
}

func TestRunRoundReplayIsStable(t *testing.T) {
	st := memstore.New()
	engine := newEngine(t, st, painrank.Options{})

	first, err := engine.RunRound(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("first round: %v", err)
	}
	second, err := engine.RunRound(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("second round: %v", err)
	}

	if second.RecordsNew != 0 {
		t.Errorf("replayed records should be filtered, got %d new", second.RecordsNew)
	}
	if len(second.Entries) != len(first.Entries) {
		t.Fatalf("entries %d vs %d", len(second.Entries), len(first.Entries))
	}
	if second.Entries[0].Mentions != first.Entries[0].Mentions {
		t.Errorf("replay inflated mentions: %d vs %d",
			second.Entries[0].Mentions, first.Entries[0].Mentions)
	}
	if second.Entries[0].Score != first.Entries[0].Score {
		t.Errorf("replay moved score: %.1f vs %.1f",
			second.Entries[0].Score, first.Entries[0].Score)
	}
	if second.Entries[0].Trend != "stable" {
		t.Errorf("trend = %s, want stable on an unchanged score", second.Entries[0].Trend)
	}
}

func TestRunRoundPauseSkipsOptionalStages(t *testing.T) {
	st := memstore.New()
	if err := st.AddSpend(context.Background(), store.SpendEntry{Time: roundTime, CostUSD: 96}); err != nil {
		t.Fatal(err)
	}
	inferrer := &stubInferrer{}
	downgrader := &stubDowngrader{}
	engine := newEngine(t, st, painrank.Options{Inferrer: inferrer, Downgrader: downgrader})

	report, err := engine.RunRound(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if report.BudgetState != budget.StatePause {
		t.Errorf("budget state = %s, want pause at 96%%", report.BudgetState)
	}
	if inferrer.calls != 0 {
		t.Error("need inference must be skipped while paused")
	}
	if downgrader.calls == 0 {
		t.Error("pause must force the cheap model tier")
	}
	if len(report.Entries) == 0 {
		t.Error("paused rounds still rank and snapshot")
	}
}

func TestRunRoundStopAborts(t *testing.T) {
	st := memstore.New()
	if err := st.AddSpend(context.Background(), store.SpendEntry{Time: roundTime, CostUSD: 101}); err != nil {
		t.Fatal(err)
	}
	classifier := &stubClassifier{class: funnel.ClassDefinite}
	engine := newEngine(t, st, painrank.Options{Classifier: classifier})

	report, err := engine.RunRound(context.Background(), sampleRecords())
	if !errors.Is(err, internalerr.ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
	if report.BudgetState != budget.StateStop {
		t.Errorf("budget state = %s, want stop", report.BudgetState)
	}
	if classifier.calls != 0 {
		t.Error("no oracle calls may run once stopped")
	}
	if _, ok, _ := st.LatestSnapshot(context.Background()); ok {
		t.Error("stopped rounds must not snapshot")
	}
}

// flakyStore fails selected persistence paths while delegating the
// rest to a real store.
type flakyStore struct {
	store.Store
	failSave    bool
	failFilter  bool
	failHistory bool
}

func (f *flakyStore) SaveRecords(ctx context.Context, records []store.Record) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.Store.SaveRecords(ctx, records)
}

func (f *flakyStore) FilterNewRecords(ctx context.Context, records []store.Record) ([]store.Record, error) {
	if f.failFilter {
		return nil, errors.New("disk full")
	}
	return f.Store.FilterNewRecords(ctx, records)
}

func (f *flakyStore) RecentSnapshots(ctx context.Context, n int) ([]store.Snapshot, error) {
	if f.failHistory {
		return nil, errors.New("disk full")
	}
	return f.Store.RecentSnapshots(ctx, n)
}

func TestRunRoundContinuesWhenRecordPersistenceFails(t *testing.T) {
	inner := memstore.New()
	st := &flakyStore{Store: inner, failSave: true, failFilter: true}
	engine := newEngine(t, st, painrank.Options{})

	report, err := engine.RunRound(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("round must survive record persistence failures: %v", err)
	}
	if report.RecordsNew != 2 {
		t.Errorf("records new = %d, want the in-memory batch of 2", report.RecordsNew)
	}
	if len(report.Entries) != 1 || report.Entries[0].Mentions != 2 {
		t.Errorf("entries = %+v, want one topic with 2 mentions", report.Entries)
	}
	if _, ok, _ := inner.LatestSnapshot(context.Background()); !ok {
		t.Error("snapshot must still be written")
	}
}

func TestRunRoundContinuesWithoutHistory(t *testing.T) {
	st := &flakyStore{Store: memstore.New(), failHistory: true}
	engine := newEngine(t, st, painrank.Options{})

	report, err := engine.RunRound(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("round must survive a history read failure: %v", err)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(report.Entries))
	}
	if report.Entries[0].Trend != "new" {
		t.Errorf("trend = %s, want new without history", report.Entries[0].Trend)
	}
}

func TestNewRequiresCoreDependencies(t *testing.T) {
	_, err := painrank.New(painrank.Options{})
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	_, err = painrank.New(painrank.Options{Store: memstore.New(), Extractor: stubExtractor{}})
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig for missing classifier", err)
	}
}
