package aggregate

import (
	"regexp"
	"strings"

	"github.com/cognicore/painrank/pkg/painrank/normalize"
	"github.com/cognicore/painrank/pkg/painrank/topic"
)

// bareModel matches names that are just a GPU model number.
var bareModel = regexp.MustCompile(`^(?:rtx|gtx|rx|arc|radeon|geforce)?\s*\d{3,4}\s*(?:ti|xt|xtx|super)?$`)

var clauseSplit = regexp.MustCompile(`[，。！？、；,.!?;:：]+`)

// guardName checks a bucket's display name and, when it fails,
// substitutes a clause from the evidence snippet. Buckets that fail the
// guard stay flagged either way.
func (a *Aggregator) guardName(b *topic.Aggregated) {
	if !a.badName(b.Name, b.Category) {
		return
	}
	b.NameFlagged = true
	if clause := evidenceClause(b.Evidence); clause != "" && !a.badName(clause, b.Category) {
		b.Name = clause
	}
}

// badName reports whether a display name says nothing about the pain
// point: empty after normalization, a bare category label, a bare model
// number, or conversational filler.
func (a *Aggregator) badName(name, category string) bool {
	reduced := normalize.Key(name)
	if len([]rune(reduced)) < 2 {
		return true
	}
	if len(normalize.RuneSet(reduced)) == 0 {
		return true
	}
	if strings.EqualFold(reduced, category) {
		return true
	}
	if _, ok := a.catLabels[reduced]; ok {
		return true
	}
	if bareModel.MatchString(reduced) {
		return true
	}
	for _, filler := range a.fillers {
		if filler != "" && strings.Contains(reduced, strings.ToLower(filler)) {
			return true
		}
	}
	return false
}

// evidenceClause extracts the first reasonably sized clause from an
// evidence snippet for use as a fallback display name.
func evidenceClause(evidence string) string {
	for _, part := range clauseSplit.Split(evidence, -1) {
		part = strings.TrimSpace(part)
		n := len([]rune(part))
		if n >= 4 && n <= 40 {
			return part
		}
	}
	return ""
}
