// Package topic defines the domain types shared across the pipeline:
// extracted mentions, inferred needs with their reviews, and the
// aggregated topic buckets produced by each round.
package topic

import (
	"strings"
	"time"
)

// TagSet groups free-form tag values by tag category
// (for example "model" -> ["RTX 4090", "RX 7900"]).
type TagSet map[string][]string

// Clone returns a deep copy.
func (t TagSet) Clone() TagSet {
	if t == nil {
		return nil
	}
	out := make(TagSet, len(t))
	for cat, vals := range t {
		out[cat] = append([]string(nil), vals...)
	}
	return out
}

// MergeFrom unions the values of other into t per tag category,
// preserving first-seen order and dropping duplicates.
func (t TagSet) MergeFrom(other TagSet) TagSet {
	if len(other) == 0 {
		return t
	}
	if t == nil {
		t = make(TagSet, len(other))
	}
	for cat, vals := range other {
		seen := make(map[string]struct{}, len(t[cat]))
		for _, v := range t[cat] {
			seen[v] = struct{}{}
		}
		for _, v := range vals {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			t[cat] = append(t[cat], v)
		}
	}
	return t
}

// Mention is a single pain-point observation, either freshly extracted
// from this round's records or rehydrated from a stored snapshot entry.
type Mention struct {
	Label    string
	Category string

	// Key pins the canonical key for rehydrated mentions whose display
	// name drifted from it. Empty means derive from Label.
	Key       string
	Intensity float64
	Evidence  string

	Sources    []string
	SourceURLs []string
	Tags       TagSet
	Replies    int
	Likes      int
	FirstSeen  time.Time

	// Count is the number of underlying observations this mention stands
	// for. Fresh extractions carry 1; snapshot rehydrations carry the
	// bucket total of the prior round.
	Count int

	// Historical marks rehydrated mentions. Their counts and interaction
	// totals are adopted via max instead of summed, so replaying the same
	// snapshot is a no-op.
	Historical bool

	Need *InferredNeed
}

// Observations returns the effective observation count for a mention.
func (m Mention) Observations() int {
	if m.Count > 0 {
		return m.Count
	}
	return 1
}

// Verdict is the reviewer's judgement of an inferred need.
type Verdict string

const (
	VerdictStrong   Verdict = "strong"
	VerdictModerate Verdict = "moderate"
	VerdictWeak     Verdict = "weak"
)

// ParseVerdict maps free-form reviewer output onto a Verdict,
// defaulting to weak for anything unrecognised.
func ParseVerdict(s string) Verdict {
	switch Verdict(strings.ToLower(strings.TrimSpace(s))) {
	case VerdictStrong:
		return VerdictStrong
	case VerdictModerate:
		return VerdictModerate
	default:
		return VerdictWeak
	}
}

// NeedReview is the outcome of the review stage for one inferred need.
type NeedReview struct {
	Verdict Verdict
	Comment string
}

// InferredNeed is the latent user need behind a pain point, with the
// reasoning chain that produced it.
type InferredNeed struct {
	Need           string
	ReasoningChain []string
	Confidence     float64
	Review         *NeedReview
}

// Empty reports whether the need carries no usable statement.
func (n *InferredNeed) Empty() bool {
	return n == nil || strings.TrimSpace(n.Need) == ""
}

// HasChain reports whether a non-empty reasoning chain is present.
func (n *InferredNeed) HasChain() bool {
	return n != nil && len(n.ReasoningChain) > 0
}

// Clone returns a deep copy, nil-safe.
func (n *InferredNeed) Clone() *InferredNeed {
	if n == nil {
		return nil
	}
	cp := *n
	cp.ReasoningChain = append([]string(nil), n.ReasoningChain...)
	if n.Review != nil {
		rv := *n.Review
		cp.Review = &rv
	}
	return &cp
}

// Aggregated is one topic bucket after aggregation: all mentions that
// resolved to the same canonical key, folded together.
type Aggregated struct {
	Key      string
	Name     string
	Category string
	Evidence string

	Count     int
	Sources   []string
	URLs      []string
	Tags      TagSet
	Replies   int
	Likes     int
	FirstSeen time.Time

	Need *InferredNeed

	// NameFlagged marks buckets whose display name failed the guard and
	// was substituted or kept under protest.
	NameFlagged bool

	// Derived per round.
	Score float64
	Tier  string
	Trend string
}

// DistinctSources returns the number of distinct source platforms.
func (a *Aggregated) DistinctSources() int {
	return len(a.Sources)
}

// Clone returns a deep copy.
func (a *Aggregated) Clone() *Aggregated {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Sources = append([]string(nil), a.Sources...)
	cp.URLs = append([]string(nil), a.URLs...)
	cp.Tags = a.Tags.Clone()
	cp.Need = a.Need.Clone()
	return &cp
}
