// Package quality assigns confidence tiers to aggregated topics based
// on how far their inferred need made it through inference and review.
package quality

import "github.com/cognicore/painrank/pkg/painrank/topic"

// Tier is the confidence tier of a topic's inferred need.
type Tier string

const (
	TierGold   Tier = "gold"
	TierSilver Tier = "silver"
	TierBronze Tier = "bronze"
)

// Classify returns the tier for an inferred need.
//
// Gold needs a reasoning chain and a review that came back strong or
// moderate. Bronze means no usable need at all. Everything in between
// is silver.
func Classify(need *topic.InferredNeed) Tier {
	if need.Empty() {
		return TierBronze
	}
	if need.HasChain() && need.Review != nil {
		switch need.Review.Verdict {
		case topic.VerdictStrong, topic.VerdictModerate:
			return TierGold
		}
	}
	return TierSilver
}
