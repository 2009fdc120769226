// Package normalize canonicalizes topic labels into merge keys.
//
// Labels arrive in mixed Chinese and English with decorative noise
// ("显卡发热问题（4090）", "GPU overheating issue"). Key reduces them to a
// stable lowercase form so that aggregation can bucket by string equality.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var parenthetical = regexp.MustCompile(`[（(][^）)]*[）)]`)

// Generic domain prefixes stripped when enough of the label remains.
var prefixes = []string{
	"显卡",
	"graphics card",
	"video card",
	"gpu",
}

// Generic trailing words that add no identity to a topic.
var suffixes = []string{
	"问题",
	"不足",
	"困难",
	"现象",
	"problem",
	"problems",
	"issue",
	"issues",
	"difficulty",
}

// Key reduces a raw topic label to its canonical merge key.
// The empty string means the label had no usable content.
func Key(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = parenthetical.ReplaceAllString(s, " ")

	s = collapse(s)

	for _, p := range prefixes {
		if !strings.HasPrefix(s, p) {
			continue
		}
		rest := collapse(strings.TrimPrefix(s, p))
		// Keep the prefix when stripping would leave nothing meaningful,
		// e.g. a label that is just "显卡".
		if len([]rune(rest)) >= 2 {
			s = rest
		}
		break
	}

	for _, suf := range suffixes {
		if !strings.HasSuffix(s, suf) {
			continue
		}
		rest := collapse(strings.TrimSuffix(s, suf))
		if len([]rune(rest)) >= 2 {
			s = rest
		}
		break
	}

	return strings.Trim(collapse(s), "-_.,:;!?，。！？、")
}

// collapse squeezes runs of whitespace into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RuneSet returns the set of letter, digit and CJK runes in s,
// lowercased. Used for character-overlap comparisons between names.
func RuneSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{})
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			set[r] = struct{}{}
		}
	}
	return set
}

// Overlap computes Jaccard similarity between the rune sets of two names.
func Overlap(a, b string) float64 {
	as, bs := RuneSet(a), RuneSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 1.0
	}

	intersection := 0
	for r := range as {
		if _, ok := bs[r]; ok {
			intersection++
		}
	}

	union := len(as) + len(bs) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
