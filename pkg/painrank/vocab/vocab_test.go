package vocab

import (
	"testing"
	"time"

	"github.com/cognicore/painrank/pkg/painrank/config"
	"github.com/cognicore/painrank/pkg/painrank/topic"
)

func testDiscoverer() *Discoverer {
	return NewDiscoverer(config.VocabConfig{
		MinFrequency:    2,
		MaxChinese:      12,
		MaxEnglish:      8,
		DecayWindowDays: 14,
		MinDecayScore:   0.3,
		Stopwords:       []string{"显卡", "问题", "card", "with"},
	})
}

func TestDiscoverCountsAndFilters(t *testing.T) {
	d := testDiscoverer()
	topics := []*topic.Aggregated{
		{Name: "缩缸", Count: 3},
		{Name: "缩缸翻车", Count: 1},
		{Name: "coil whine noise", Count: 2},
		{Name: "显卡 问题", Count: 9}, // all stopwords
	}

	found := d.Discover(topics)

	zh := found["zh"]
	if len(zh) == 0 || zh[0].Word != "缩缸" {
		t.Fatalf("zh candidates = %+v, want 缩缸 first", zh)
	}
	if zh[0].Frequency != 3 {
		t.Errorf("缩缸 frequency = %d, want 3 (weighted by count)", zh[0].Frequency)
	}
	for _, c := range zh {
		if c.Word == "显卡" || c.Word == "问题" {
			t.Errorf("stopword %q leaked through", c.Word)
		}
	}

	for _, c := range found["en"] {
		if c.Word == "card" {
			t.Error("stopword card leaked through")
		}
		if c.Frequency < 2 {
			t.Errorf("%q below minimum frequency", c.Word)
		}
	}
}

func TestDiscoverDeterministic(t *testing.T) {
	d := testDiscoverer()
	topics := []*topic.Aggregated{
		{Name: "coil whine", Count: 2},
		{Name: "whine coil", Count: 2},
	}
	a := d.Discover(topics)
	b := d.Discover(topics)
	if len(a["en"]) != len(b["en"]) {
		t.Fatal("discovery not deterministic")
	}
	for i := range a["en"] {
		if a["en"][i] != b["en"][i] {
			t.Errorf("candidate %d differs: %+v vs %+v", i, a["en"][i], b["en"][i])
		}
	}
}

func TestApplyAddsAndRefreshes(t *testing.T) {
	d := testDiscoverer()
	today := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	v := config.DefaultVocabulary()
	found := map[string][]Candidate{
		"zh": {{Word: "缩缸", Frequency: 5}},
	}
	d.Apply(&v, found, today)

	hw := findWord(v.Discovered["zh"], "缩缸")
	if hw == nil {
		t.Fatal("缩缸 not added")
	}
	if hw.FirstSeen != "2026-08-28" || hw.TotalMentions != 5 {
		t.Errorf("new word bookkeeping wrong: %+v", hw)
	}
	if hw.DecayScore != 1 {
		t.Errorf("fresh decay = %v, want 1", hw.DecayScore)
	}

	// Seen again a week later: refreshed, mentions accumulate.
	later := today.AddDate(0, 0, 7)
	d.Apply(&v, map[string][]Candidate{"zh": {{Word: "缩缸", Frequency: 2}}}, later)
	hw = findWord(v.Discovered["zh"], "缩缸")
	if hw == nil {
		t.Fatal("缩缸 pruned on refresh")
	}
	if hw.LastSeen != "2026-09-04" || hw.TotalMentions != 7 {
		t.Errorf("refresh bookkeeping wrong: %+v", hw)
	}
}

func TestApplyDecaysAndPrunes(t *testing.T) {
	d := testDiscoverer()
	today := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	v := config.Vocabulary{
		Version: 1,
		Discovered: map[string][]config.HotWord{
			"zh": {
				{Word: "旧词", FirstSeen: "2026-07-01", LastSeen: "2026-07-01", TotalMentions: 3, DecayScore: 1},
				{Word: "热词", FirstSeen: "2026-08-27", LastSeen: "2026-08-27", TotalMentions: 10, DecayScore: 1},
			},
		},
	}
	d.Apply(&v, map[string][]Candidate{"zh": nil}, today)

	if findWord(v.Discovered["zh"], "旧词") != nil {
		t.Error("word last seen two months ago should be pruned")
	}
	hot := findWord(v.Discovered["zh"], "热词")
	if hot == nil {
		t.Fatal("recent word pruned")
	}
	if hot.DecayScore <= 0 || hot.DecayScore > 1 {
		t.Errorf("decay = %v, want in (0, 1]", hot.DecayScore)
	}
}

func TestApplySkipsSeededSignals(t *testing.T) {
	d := testDiscoverer()
	v := config.DefaultVocabulary()
	today := time.Now()

	d.Apply(&v, map[string][]Candidate{"zh": {{Word: "卡顿", Frequency: 9}}}, today)
	if findWord(v.Discovered["zh"], "卡顿") != nil {
		t.Error("seeded signal should not be re-discovered")
	}
}

func TestApplyEnforcesCaps(t *testing.T) {
	cfg := config.VocabConfig{MaxChinese: 2, MaxEnglish: 2, DecayWindowDays: 14, MinFrequency: 1}
	d := NewDiscoverer(cfg)
	v := config.Vocabulary{Version: 1}
	today := time.Now()

	d.Apply(&v, map[string][]Candidate{"zh": {
		{Word: "一词", Frequency: 5},
		{Word: "二词", Frequency: 4},
		{Word: "三词", Frequency: 3},
	}}, today)
	if got := len(v.Discovered["zh"]); got != 2 {
		t.Errorf("kept %d words, want cap of 2", got)
	}
}

func findWord(words []config.HotWord, w string) *config.HotWord {
	for i := range words {
		if words[i].Word == w {
			return &words[i]
		}
	}
	return nil
}
