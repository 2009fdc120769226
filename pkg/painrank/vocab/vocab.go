// Package vocab discovers recurring pain words from ranked topics and
// maintains them in the vocabulary with time decay, so the collection
// and funnel stages track how the community actually talks.
package vocab

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cognicore/painrank/pkg/painrank/config"
	"github.com/cognicore/painrank/pkg/painrank/topic"
)

var (
	hanSegment = regexp.MustCompile(`\p{Han}{2,6}`)
	asciiWord  = regexp.MustCompile(`[a-zA-Z]{4,15}`)
)

const dateLayout = "2006-01-02"

// Discoverer extracts hot-word candidates and applies them to the
// vocabulary.
type Discoverer struct {
	stopwords    map[string]struct{}
	minFrequency int
	maxPerLang   map[string]int
	windowDays   float64
	minDecay     float64
}

// NewDiscoverer builds a discoverer from config.
func NewDiscoverer(cfg config.VocabConfig) *Discoverer {
	d := &Discoverer{
		stopwords:    make(map[string]struct{}, len(cfg.Stopwords)),
		minFrequency: cfg.MinFrequency,
		maxPerLang: map[string]int{
			"zh": cfg.MaxChinese,
			"en": cfg.MaxEnglish,
		},
		windowDays: float64(cfg.DecayWindowDays),
		minDecay:   cfg.MinDecayScore,
	}
	if d.minFrequency <= 0 {
		d.minFrequency = 2
	}
	if d.maxPerLang["zh"] <= 0 {
		d.maxPerLang["zh"] = 12
	}
	if d.maxPerLang["en"] <= 0 {
		d.maxPerLang["en"] = 8
	}
	if d.windowDays <= 0 {
		d.windowDays = 14
	}
	for _, w := range cfg.Stopwords {
		d.stopwords[strings.ToLower(w)] = struct{}{}
	}
	return d
}

// Candidate is one discovered word with its weighted frequency.
type Candidate struct {
	Word      string
	Frequency int
}

// Discover extracts candidate hot words per language from topic names
// and inferred needs, weighted by mention counts. Results are ordered
// by frequency, then word, so discovery is reproducible.
func (d *Discoverer) Discover(topics []*topic.Aggregated) map[string][]Candidate {
	freq := map[string]map[string]int{"zh": {}, "en": {}}

	for _, t := range topics {
		weight := t.Count
		if weight <= 0 {
			weight = 1
		}
		text := t.Name
		if !t.Need.Empty() {
			text += " " + t.Need.Need
		}

		for _, seg := range hanSegment.FindAllString(text, -1) {
			if _, stop := d.stopwords[seg]; stop {
				continue
			}
			freq["zh"][seg] += weight
		}
		for _, w := range asciiWord.FindAllString(strings.ToLower(text), -1) {
			if _, stop := d.stopwords[w]; stop {
				continue
			}
			freq["en"][w] += weight
		}
	}

	out := make(map[string][]Candidate, 2)
	for lang, words := range freq {
		var cands []Candidate
		for w, n := range words {
			if n >= d.minFrequency {
				cands = append(cands, Candidate{Word: w, Frequency: n})
			}
		}
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].Frequency != cands[j].Frequency {
				return cands[i].Frequency > cands[j].Frequency
			}
			return cands[i].Word < cands[j].Word
		})
		if max := d.maxPerLang[lang]; len(cands) > max {
			cands = cands[:max]
		}
		out[lang] = cands
	}
	return out
}

// Apply folds discovered candidates into the vocabulary: known words
// refresh their last-seen date and mention totals, new words enter at
// full strength. All decay scores are then recomputed and dead words
// pruned, with per-language caps keeping the strongest words.
func (d *Discoverer) Apply(v *config.Vocabulary, found map[string][]Candidate, today time.Time) {
	if v.Discovered == nil {
		v.Discovered = make(map[string][]config.HotWord)
	}
	day := today.Format(dateLayout)

	seeded := make(map[string]struct{})
	for _, words := range v.Signals {
		for _, w := range words {
			seeded[strings.ToLower(w)] = struct{}{}
		}
	}

	for lang, cands := range found {
		existing := v.Discovered[lang]
		byWord := make(map[string]int, len(existing))
		for i, hw := range existing {
			byWord[hw.Word] = i
		}

		for _, c := range cands {
			if _, dup := seeded[strings.ToLower(c.Word)]; dup {
				continue
			}
			if i, ok := byWord[c.Word]; ok {
				existing[i].LastSeen = day
				existing[i].TotalMentions += c.Frequency
				continue
			}
			existing = append(existing, config.HotWord{
				Word:          c.Word,
				FirstSeen:     day,
				LastSeen:      day,
				TotalMentions: c.Frequency,
				DecayScore:    1,
			})
			byWord[c.Word] = len(existing) - 1
		}

		for i := range existing {
			existing[i].DecayScore = d.decay(existing[i], today)
		}

		var kept []config.HotWord
		for _, hw := range existing {
			if hw.DecayScore > 0.05 {
				kept = append(kept, hw)
			}
		}
		sort.SliceStable(kept, func(i, j int) bool {
			if kept[i].DecayScore != kept[j].DecayScore {
				return kept[i].DecayScore > kept[j].DecayScore
			}
			return kept[i].Word < kept[j].Word
		})
		if max := d.maxPerLang[lang]; len(kept) > max {
			kept = kept[:max]
		}
		v.Discovered[lang] = kept
	}
}

// decay computes a word's current strength: linear decay since last
// seen over the window, slowed for frequently mentioned words.
func (d *Discoverer) decay(hw config.HotWord, today time.Time) float64 {
	last, err := time.Parse(dateLayout, hw.LastSeen)
	if err != nil {
		return 0
	}
	days := today.Sub(last).Hours() / 24
	if days < 0 {
		days = 0
	}

	freshness := 1 - days/d.windowDays
	if freshness <= 0 {
		return 0
	}

	// Frequency resistance: log2 in total mentions, capped.
	resist := math.Log2(float64(hw.TotalMentions)+1) / 10
	if resist > 0.5 {
		resist = 0.5
	}

	score := freshness * (1 + resist)
	if score > 1 {
		score = 1
	}
	return score
}

// MinDecayScore exposes the floor below which a discovered word no
// longer contributes to pain-signal matching.
func (d *Discoverer) MinDecayScore() float64 {
	return d.minDecay
}
