package aggregate

import (
	"context"
	"sort"

	"github.com/cognicore/painrank/pkg/painrank/normalize"
	"github.com/cognicore/painrank/pkg/painrank/topic"
)

// MergeGroup is one oracle-proposed merge: positions into the bucket
// list plus an optional canonical name for the merged topic.
type MergeGroup struct {
	Indices []int
	Name    string
}

// MergeOracle proposes semantic merges over bucket names that the
// string stages cannot see (translations, paraphrases).
type MergeOracle interface {
	MergeCandidates(ctx context.Context, names []string, categories []string) ([]MergeGroup, error)
}

// OracleMerge runs the semantic merge pass. Oracle failure degrades to
// no merging; a wrong answer must never corrupt the ranking, so every
// proposed member is re-checked against the category and character
// overlap guards before it is folded in.
func (a *Aggregator) OracleMerge(ctx context.Context, buckets []*topic.Aggregated) []*topic.Aggregated {
	if a.oracle == nil || len(buckets) < 2 {
		return buckets
	}

	names := make([]string, len(buckets))
	cats := make([]string, len(buckets))
	for i, b := range buckets {
		names[i] = b.Name
		cats[i] = b.Category
	}

	groups, err := a.oracle.MergeCandidates(ctx, names, cats)
	if err != nil {
		a.logger.Warn("merge oracle failed, keeping buckets as-is", "error", err)
		return buckets
	}

	merged := make(map[int]bool)
	for _, g := range groups {
		members := validMembers(g.Indices, len(buckets), merged)
		if len(members) < 2 {
			continue
		}

		base := members[0]
		accepted := []int{base}
		for _, idx := range members[1:] {
			if categoryMismatch(buckets[base].Category, buckets[idx].Category) {
				a.logger.Debug("oracle merge rejected on category",
					"base", buckets[base].Name, "member", buckets[idx].Name)
				continue
			}
			if normalize.Overlap(buckets[base].Name, buckets[idx].Name) < a.minOverlap &&
				normalize.Overlap(buckets[base].Key, buckets[idx].Key) < a.minOverlap {
				// Cross-language pairs share no characters; they pass
				// only when both sides agree on a category.
				if buckets[base].Category == "" || buckets[idx].Category == "" {
					a.logger.Debug("oracle merge rejected on overlap",
						"base", buckets[base].Name, "member", buckets[idx].Name)
					continue
				}
			}
			accepted = append(accepted, idx)
		}
		if len(accepted) < 2 {
			continue
		}

		dst := buckets[accepted[0]]
		for _, idx := range accepted[1:] {
			foldBucket(dst, buckets[idx])
			merged[idx] = true
		}
		if g.Name != "" && !a.badName(g.Name, dst.Category) {
			dst.Name = g.Name
		}
		a.guardName(dst)
	}

	if len(merged) == 0 {
		return buckets
	}
	out := buckets[:0]
	for i, b := range buckets {
		if !merged[i] {
			out = append(out, b)
		}
	}
	return out
}

// validMembers filters out-of-range, duplicate and already-merged
// indices and returns the rest in ascending order.
func validMembers(indices []int, n int, merged map[int]bool) []int {
	seen := make(map[int]bool, len(indices))
	var out []int
	for _, idx := range indices {
		if idx < 0 || idx >= n || seen[idx] || merged[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// foldBucket merges src into dst. Both are current-round buckets, so
// counts and interactions add.
func foldBucket(dst, src *topic.Aggregated) {
	dst.Count += src.Count
	dst.Replies += src.Replies
	dst.Likes += src.Likes
	dst.Sources = unionStrings(dst.Sources, src.Sources)
	dst.URLs = unionStrings(dst.URLs, src.URLs)
	dst.Tags = dst.Tags.MergeFrom(src.Tags)

	if !src.FirstSeen.IsZero() && (dst.FirstSeen.IsZero() || src.FirstSeen.Before(dst.FirstSeen)) {
		dst.FirstSeen = src.FirstSeen
	}
	if dst.Category == "" {
		dst.Category = src.Category
	}
	if dst.Evidence == "" {
		dst.Evidence = src.Evidence
	}
	if len([]rune(src.Name)) > len([]rune(dst.Name)) {
		dst.Name = src.Name
	}
	dst.Need = resolveNeed(dst.Need, src.Need)
}
