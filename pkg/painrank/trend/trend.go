// Package trend labels topics by comparing their score against prior
// rounds.
package trend

// Label is a trend classification for one topic.
type Label string

const (
	LabelNew     Label = "new"
	LabelRising  Label = "rising"
	LabelFalling Label = "falling"
	LabelStable  Label = "stable"
	LabelHot     Label = "hot"
)

// Detector holds trend thresholds.
type Detector struct {
	// RiseDelta and FallDelta bound the stable band around the prior
	// round's score.
	RiseDelta float64
	FallDelta float64

	// HotDelta is the minimum per-round increase, and HotStreak the
	// number of consecutive increases, required for the hot label.
	HotDelta  float64
	HotStreak int

	// MaxHistory caps how many prior rounds are considered.
	MaxHistory int
}

// NewDetector returns a detector with the standard thresholds.
func NewDetector() Detector {
	return Detector{RiseDelta: 3, FallDelta: -3, HotDelta: 2, HotStreak: 3, MaxHistory: 4}
}

// Detect labels a topic given its prior scores, oldest first, and its
// current score. Topics with no history are new. Hot requires at least
// HotStreak historical points whose deltas, current round included,
// each exceed HotDelta.
func (d Detector) Detect(history []float64, current float64) Label {
	if d.MaxHistory > 0 && len(history) > d.MaxHistory {
		history = history[len(history)-d.MaxHistory:]
	}
	if len(history) == 0 {
		return LabelNew
	}

	if d.HotStreak > 0 && len(history) >= d.HotStreak {
		seq := append(append([]float64(nil), history...), current)
		hot := true
		for i := len(seq) - d.HotStreak; i < len(seq); i++ {
			if seq[i]-seq[i-1] <= d.HotDelta {
				hot = false
				break
			}
		}
		if hot {
			return LabelHot
		}
	}

	delta := current - history[len(history)-1]
	switch {
	case delta > d.RiseDelta:
		return LabelRising
	case delta < d.FallDelta:
		return LabelFalling
	default:
		return LabelStable
	}
}
