package aggregate

import (
	"testing"
	"time"

	"github.com/cognicore/painrank/pkg/painrank/topic"
)

func testAggregator() *Aggregator {
	return New(Config{
		Synonyms: [][]string{
			{"过热", "overheating", "温度高"},
		},
		CategoryLabels: []string{"性能", "价格", "散热", "thermal", "performance"},
		FillerPhrases:  []string{"一言难尽", "懂的都懂", "lol"},
	}, nil, nil)
}

func TestAggregateSameKeySumsCounts(t *testing.T) {
	a := testAggregator()
	mentions := []topic.Mention{
		{Label: "显卡过热问题", Category: "散热", Sources: []string{"reddit"}},
		{Label: "过热", Category: "散热", Sources: []string{"zhihu"}},
		{Label: "过热问题", Category: "散热", Sources: []string{"reddit"}},
	}

	buckets := a.Aggregate(mentions)
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets, want 1", len(buckets))
	}
	b := buckets[0]
	if b.Count != 3 {
		t.Errorf("count = %d, want 3", b.Count)
	}
	if len(b.Sources) != 2 {
		t.Errorf("sources = %v, want 2 distinct", b.Sources)
	}
	if b.Name != "显卡过热问题" {
		t.Errorf("name = %q, want the longest label", b.Name)
	}
}

func TestAggregateSynonymGroups(t *testing.T) {
	a := testAggregator()
	mentions := []topic.Mention{
		{Label: "显卡过热", Category: "散热"},
		{Label: "GPU温度高", Category: "散热"},
	}
	buckets := a.Aggregate(mentions)
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets, want 1 via synonym group", len(buckets))
	}
	if buckets[0].Count != 2 {
		t.Errorf("count = %d, want 2", buckets[0].Count)
	}
}

func TestAggregateFuzzySubstring(t *testing.T) {
	a := testAggregator()
	mentions := []topic.Mention{
		{Label: "driver timeout crash", Category: "driver"},
		{Label: "driver timeout crash on boot", Category: "driver"},
	}
	buckets := a.Aggregate(mentions)
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets, want 1 via substring", len(buckets))
	}
}

func TestAggregateFuzzyTooShort(t *testing.T) {
	a := testAggregator()
	// "闪退" is contained in the longer key but far below the fuzzy floor.
	mentions := []topic.Mention{
		{Label: "闪退"},
		{Label: "游戏闪退黑屏死机"},
	}
	buckets := a.Aggregate(mentions)
	if len(buckets) != 2 {
		t.Fatalf("got %d buckets, want 2", len(buckets))
	}
}

func TestAggregateFuzzyCategoryGuard(t *testing.T) {
	a := testAggregator()
	mentions := []topic.Mention{
		{Label: "driver timeout crash", Category: "driver"},
		{Label: "driver timeout crash artifact", Category: "thermal"},
	}
	buckets := a.Aggregate(mentions)
	if len(buckets) != 2 {
		t.Fatalf("category mismatch must block the fuzzy merge, got %d buckets", len(buckets))
	}
}

func TestAggregateHistoricalAdoptsFreshAdds(t *testing.T) {
	a := testAggregator()
	first := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	mentions := []topic.Mention{
		{Label: "过热", Category: "散热", Count: 5, Replies: 40, Likes: 10,
			Historical: true, FirstSeen: first, Sources: []string{"reddit"}},
		{Label: "过热", Category: "散热", Replies: 3, Likes: 1,
			FirstSeen: first.AddDate(0, 0, 20), Sources: []string{"zhihu"}},
	}
	buckets := a.Aggregate(mentions)
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets, want 1", len(buckets))
	}
	b := buckets[0]
	if b.Count != 6 {
		t.Errorf("count = %d, want 5 adopted + 1 fresh", b.Count)
	}
	if b.Replies != 43 || b.Likes != 11 {
		t.Errorf("interactions = %d/%d, want 43/11", b.Replies, b.Likes)
	}
	if !b.FirstSeen.Equal(first) {
		t.Errorf("first seen = %v, want the historical date", b.FirstSeen)
	}
}

func TestAggregateReplayIdempotent(t *testing.T) {
	a := testAggregator()
	history := []topic.Mention{
		{Label: "过热", Category: "散热", Count: 7, Replies: 12, Likes: 4,
			Historical: true, Sources: []string{"reddit", "zhihu"},
			SourceURLs: []string{"https://r/1", "https://z/2"},
			FirstSeen:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		{Label: "驱动崩溃", Category: "驱动", Count: 3,
			Historical: true, Sources: []string{"tieba"},
			FirstSeen: time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)},
	}

	once := a.Aggregate(history)
	twice := testAggregator().Aggregate(history)

	if len(once) != len(twice) {
		t.Fatalf("bucket counts differ: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		x, y := once[i], twice[i]
		if x.Key != y.Key || x.Count != y.Count || x.Replies != y.Replies ||
			x.Likes != y.Likes || len(x.Sources) != len(y.Sources) ||
			len(x.URLs) != len(y.URLs) || !x.FirstSeen.Equal(y.FirstSeen) {
			t.Errorf("bucket %d differs between replays: %+v vs %+v", i, x, y)
		}
	}
	// Replaying history alone must reproduce the stored totals exactly.
	if once[0].Count != 7 || once[1].Count != 3 {
		t.Errorf("counts = %d/%d, want 7/3", once[0].Count, once[1].Count)
	}
}

func TestResolveNeedKeepsChain(t *testing.T) {
	chained := &topic.InferredNeed{
		Need:           "wants quiet cooling",
		ReasoningChain: []string{"complains at night"},
	}
	chainless := &topic.InferredNeed{Need: "wants something"}

	if got := resolveNeed(chained, chainless); got != chained {
		t.Error("chained need replaced by chainless one")
	}
	if got := resolveNeed(chainless, chained); !got.HasChain() {
		t.Error("chainless need should be upgraded to the chained one")
	}
	if got := resolveNeed(chained, nil); got != chained {
		t.Error("nil incoming should keep existing")
	}
	if got := resolveNeed(nil, chainless); got.Empty() {
		t.Error("empty existing should take incoming")
	}
}

func TestGuardNameCategoryLabel(t *testing.T) {
	a := testAggregator()
	buckets := a.Aggregate([]topic.Mention{
		{Label: "散热", Category: "散热", Evidence: "满载风扇起飞，噪音吵得没法睡觉"},
	})
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets", len(buckets))
	}
	b := buckets[0]
	if !b.NameFlagged {
		t.Error("bare category label should be flagged")
	}
	if b.Name != "满载风扇起飞" {
		t.Errorf("name = %q, want the evidence clause", b.Name)
	}
}

func TestGuardNameBareModel(t *testing.T) {
	a := testAggregator()
	if !a.badName("RTX 4090", "性能") {
		t.Error("bare model number should be a bad name")
	}
	if a.badName("RTX 4090 coil whine", "性能") {
		t.Error("model plus symptom is a fine name")
	}
}

func TestGuardNameFiller(t *testing.T) {
	a := testAggregator()
	if !a.badName("懂的都懂", "其他") {
		t.Error("filler phrase should be a bad name")
	}
}

func TestGuardNameKeptWhenNoEvidence(t *testing.T) {
	a := testAggregator()
	buckets := a.Aggregate([]topic.Mention{
		{Label: "性能", Category: "性能"},
	})
	b := buckets[0]
	if !b.NameFlagged {
		t.Error("should stay flagged without a usable evidence clause")
	}
	if b.Name != "性能" {
		t.Errorf("name = %q, want the original kept under protest", b.Name)
	}
}
