// Package aggregate folds pain-point mentions into canonical topic
// buckets. Resolution is three-stage: exact canonical key, configured
// synonym groups, then a conservative substring match. An optional
// oracle pass merges semantic duplicates the string stages miss.
package aggregate

import (
	"log/slog"
	"strings"

	"github.com/cognicore/painrank/pkg/painrank/normalize"
	"github.com/cognicore/painrank/pkg/painrank/topic"
)

// Config holds aggregation parameters.
type Config struct {
	// Synonyms are groups of canonical keys treated as the same topic.
	Synonyms [][]string

	// MinFuzzyRunes is the minimum length of the contained key for the
	// substring stage.
	MinFuzzyRunes int

	// MinNameOverlap is the rune-set Jaccard floor for oracle merges.
	MinNameOverlap float64

	// CategoryLabels and FillerPhrases feed the display-name guard.
	CategoryLabels []string
	FillerPhrases  []string
}

// Aggregator buckets mentions by canonical key.
type Aggregator struct {
	synGroup   map[string]int
	minFuzzy   int
	minOverlap float64
	catLabels  map[string]struct{}
	fillers    []string
	oracle     MergeOracle
	logger     *slog.Logger
}

// New builds an aggregator. The oracle may be nil, which disables the
// semantic merge pass.
func New(cfg Config, oracle MergeOracle, logger *slog.Logger) *Aggregator {
	if cfg.MinFuzzyRunes <= 0 {
		cfg.MinFuzzyRunes = 5
	}
	if cfg.MinNameOverlap <= 0 {
		cfg.MinNameOverlap = 0.2
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Aggregator{
		synGroup:   make(map[string]int),
		minFuzzy:   cfg.MinFuzzyRunes,
		minOverlap: cfg.MinNameOverlap,
		catLabels:  make(map[string]struct{}, len(cfg.CategoryLabels)),
		fillers:    cfg.FillerPhrases,
		oracle:     oracle,
		logger:     logger,
	}
	for gid, group := range cfg.Synonyms {
		for _, term := range group {
			key := normalize.Key(term)
			if key != "" {
				a.synGroup[key] = gid
			}
		}
	}
	for _, label := range cfg.CategoryLabels {
		a.catLabels[strings.ToLower(label)] = struct{}{}
	}
	return a
}

// Aggregate folds mentions into buckets. Input order decides bucket
// creation order, so the same mentions always produce the same result.
// Historical mentions adopt their prior totals via max; fresh mentions
// add to them. Replaying an unchanged history therefore changes
// nothing.
func (a *Aggregator) Aggregate(mentions []topic.Mention) []*topic.Aggregated {
	var buckets []*topic.Aggregated
	byKey := make(map[string]int)

	for _, m := range mentions {
		name := strings.TrimSpace(m.Label)
		key := m.Key
		if key == "" {
			key = normalize.Key(name)
		}
		if key == "" {
			continue
		}

		idx, found := byKey[key]
		if !found {
			idx, found = a.resolveSynonym(key, m.Category, buckets)
		}
		if !found {
			idx, found = a.resolveFuzzy(key, m.Category, buckets)
		}

		if !found {
			buckets = append(buckets, &topic.Aggregated{
				Key:      key,
				Name:     name,
				Category: m.Category,
			})
			idx = len(buckets) - 1
			byKey[key] = idx
		}
		mergeMention(buckets[idx], m, name)
	}

	for _, b := range buckets {
		a.guardName(b)
	}
	return buckets
}

// resolveSynonym finds the first bucket whose key shares a synonym
// group with key. Categories must not contradict.
func (a *Aggregator) resolveSynonym(key, category string, buckets []*topic.Aggregated) (int, bool) {
	gid, ok := a.synGroup[key]
	if !ok {
		return 0, false
	}
	for i, b := range buckets {
		other, ok := a.synGroup[b.Key]
		if !ok || other != gid {
			continue
		}
		if categoryMismatch(b.Category, category) {
			continue
		}
		return i, true
	}
	return 0, false
}

// resolveFuzzy matches when one key contains the other and the
// contained key is long enough to be meaningful on its own. A mismatch
// between non-empty categories always blocks the match.
func (a *Aggregator) resolveFuzzy(key, category string, buckets []*topic.Aggregated) (int, bool) {
	for i, b := range buckets {
		shorter, longer := key, b.Key
		if len([]rune(shorter)) > len([]rune(longer)) {
			shorter, longer = longer, shorter
		}
		if len([]rune(shorter)) < a.minFuzzy {
			continue
		}
		if !strings.Contains(longer, shorter) {
			continue
		}
		if categoryMismatch(b.Category, category) {
			continue
		}
		return i, true
	}
	return 0, false
}

func categoryMismatch(a, b string) bool {
	return a != "" && b != "" && !strings.EqualFold(a, b)
}

// mergeMention folds one mention into a bucket.
func mergeMention(b *topic.Aggregated, m topic.Mention, name string) {
	n := m.Observations()
	if m.Historical {
		if n > b.Count {
			b.Count = n
		}
		if m.Replies > b.Replies {
			b.Replies = m.Replies
		}
		if m.Likes > b.Likes {
			b.Likes = m.Likes
		}
	} else {
		b.Count += n
		b.Replies += m.Replies
		b.Likes += m.Likes
	}

	b.Sources = unionStrings(b.Sources, m.Sources)
	b.URLs = appendNew(b.URLs, m.SourceURLs)
	b.Tags = b.Tags.MergeFrom(m.Tags)

	if !m.FirstSeen.IsZero() && (b.FirstSeen.IsZero() || m.FirstSeen.Before(b.FirstSeen)) {
		b.FirstSeen = m.FirstSeen
	}
	if b.Category == "" {
		b.Category = m.Category
	}
	if b.Evidence == "" {
		b.Evidence = strings.TrimSpace(m.Evidence)
	}
	// The longer label usually carries more context; keep it as the
	// display name.
	if len([]rune(name)) > len([]rune(b.Name)) {
		b.Name = name
	}

	b.Need = resolveNeed(b.Need, m.Need)
}

// resolveNeed keeps the better-developed of two inferred needs. A need
// with a reasoning chain is never replaced by one without.
func resolveNeed(existing, incoming *topic.InferredNeed) *topic.InferredNeed {
	switch {
	case incoming.Empty():
		return existing
	case existing.Empty():
		return incoming.Clone()
	case incoming.HasChain() && !existing.HasChain():
		return incoming.Clone()
	default:
		return existing
	}
}

// unionStrings merges b into a, keeping order of first appearance.
func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		a = append(a, s)
	}
	return a
}

func appendNew(a, b []string) []string {
	return unionStrings(a, b)
}
