// Package score computes the weighted popularity score of aggregated
// topics.
package score

import (
	"math"
	"sort"
	"time"

	"github.com/cognicore/painrank/pkg/painrank/topic"
)

// Scorer calculates popularity scores for topic buckets
type Scorer struct {
	weights      Weights
	trust        map[string]float64
	defaultTrust float64
	windowDays   float64
}

// Weights defines the scoring weights
type Weights struct {
	Frequency     float64 // mention volume
	SourceQuality float64 // platform trust
	Interaction   float64 // replies and likes
	CrossPlatform float64 // distinct source spread
	Freshness     float64 // recency decay
}

// DefaultWeights returns the standard five-component weighting.
func DefaultWeights() Weights {
	return Weights{
		Frequency:     0.30,
		SourceQuality: 0.20,
		Interaction:   0.15,
		CrossPlatform: 0.15,
		Freshness:     0.20,
	}
}

// NewScorer creates a new scorer with the given weights. Unknown
// sources fall back to defaultTrust; windowDays bounds the freshness
// component.
func NewScorer(w Weights, trust map[string]float64, defaultTrust, windowDays float64) *Scorer {
	if defaultTrust <= 0 {
		defaultTrust = 0.5
	}
	if windowDays <= 0 {
		windowDays = 7
	}
	return &Scorer{
		weights:      w,
		trust:        trust,
		defaultTrust: defaultTrust,
		windowDays:   windowDays,
	}
}

// Breakdown provides detailed scoring information
type Breakdown struct {
	Frequency     float64
	SourceQuality float64
	Interaction   float64
	CrossPlatform float64
	Freshness     float64
	Total         float64
}

// Score calculates the popularity score for a topic bucket
//
// score = w_f·frequency + w_q·source_quality + w_i·interaction +
//         w_x·cross_platform + w_r·freshness
//
// floored at zero and rounded to one decimal.
func (s *Scorer) Score(t *topic.Aggregated, now time.Time) float64 {
	return s.ScoreWithBreakdown(t, now).Total
}

// ScoreWithBreakdown calculates the score with per-component detail.
func (s *Scorer) ScoreWithBreakdown(t *topic.Aggregated, now time.Time) Breakdown {
	// Frequency: logarithmic in mention count
	frequency := math.Log2(float64(t.Count)+1) * 20

	// Source quality: mean trust over distinct sources
	quality := s.meanTrust(t.Sources) * 50

	// Interaction: logarithmic in total replies and likes
	interactions := t.Replies + t.Likes
	if interactions < 0 {
		interactions = 0
	}
	interaction := math.Log2(float64(interactions)+1) * 15

	// Cross-platform: distinct sources, saturating at four
	distinct := float64(t.DistinctSources())
	if distinct > 4 {
		distinct = 4
	}
	cross := distinct / 4 * 100

	// Freshness: linear decay over the window
	freshness := s.freshness(t.FirstSeen, now)

	b := Breakdown{
		Frequency:     s.weights.Frequency * frequency,
		SourceQuality: s.weights.SourceQuality * quality,
		Interaction:   s.weights.Interaction * interaction,
		CrossPlatform: s.weights.CrossPlatform * cross,
		Freshness:     s.weights.Freshness * freshness,
	}
	total := b.Frequency + b.SourceQuality + b.Interaction + b.CrossPlatform + b.Freshness
	if total < 0 {
		total = 0
	}
	b.Total = math.Round(total*10) / 10

	return b
}

func (s *Scorer) meanTrust(sources []string) float64 {
	if len(sources) == 0 {
		return s.defaultTrust
	}
	sum := 0.0
	for _, src := range sources {
		if trust, ok := s.trust[src]; ok {
			sum += trust
		} else {
			sum += s.defaultTrust
		}
	}
	return sum / float64(len(sources))
}

func (s *Scorer) freshness(firstSeen, now time.Time) float64 {
	if firstSeen.IsZero() {
		return 0
	}
	ageDays := now.Sub(firstSeen).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	fresh := (s.windowDays - ageDays) / s.windowDays * 100
	if fresh < 0 {
		fresh = 0
	}
	return fresh
}

// Rank assigns scores and sorts buckets best first. Ties break by
// mention count, then by key, so rankings are reproducible.
func (s *Scorer) Rank(topics []*topic.Aggregated, now time.Time) {
	for _, t := range topics {
		t.Score = s.Score(t, now)
	}
	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].Score != topics[j].Score {
			return topics[i].Score > topics[j].Score
		}
		if topics[i].Count != topics[j].Count {
			return topics[i].Count > topics[j].Count
		}
		return topics[i].Key < topics[j].Key
	})
}
