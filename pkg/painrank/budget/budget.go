// Package budget implements the spend governor that throttles oracle
// usage as the monthly budget fills up.
package budget

// State is the governor's escalation level.
type State string

const (
	StateNormal    State = "normal"
	StateWarning   State = "warning"
	StateDowngrade State = "downgrade"
	StatePause     State = "pause"
	StateStop      State = "stop"
)

// Thresholds are spend ratios at which each state engages.
type Thresholds struct {
	Warning   float64
	Downgrade float64
	Pause     float64
	Stop      float64
}

// DefaultThresholds returns the standard escalation ladder.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 0.8, Downgrade: 0.9, Pause: 0.95, Stop: 1.0}
}

// Governor evaluates spend against a monthly budget.
type Governor struct {
	BudgetUSD  float64
	Thresholds Thresholds
}

// NewGovernor creates a governor; zero thresholds get the defaults.
func NewGovernor(budgetUSD float64, t Thresholds) Governor {
	if t == (Thresholds{}) {
		t = DefaultThresholds()
	}
	return Governor{BudgetUSD: budgetUSD, Thresholds: t}
}

// Ratio returns spent/budget; a non-positive budget reads as zero.
func (g Governor) Ratio(spentUSD float64) float64 {
	if g.BudgetUSD <= 0 {
		return 0
	}
	return spentUSD / g.BudgetUSD
}

// Evaluate maps the current spend onto a state. A non-positive budget
// disables the governor.
func (g Governor) Evaluate(spentUSD float64) State {
	r := g.Ratio(spentUSD)
	switch {
	case g.BudgetUSD <= 0:
		return StateNormal
	case r >= g.Thresholds.Stop:
		return StateStop
	case r >= g.Thresholds.Pause:
		return StatePause
	case r >= g.Thresholds.Downgrade:
		return StateDowngrade
	case r >= g.Thresholds.Warning:
		return StateWarning
	default:
		return StateNormal
	}
}

// AllowsRound reports whether any oracle work may run at all.
func (s State) AllowsRound() bool {
	return s != StateStop
}

// SkipsOptional reports whether optional oracle stages (need inference,
// review, semantic merge) are skipped this round.
func (s State) SkipsOptional() bool {
	return s == StatePause || s == StateStop
}

// ForcesCheapModel reports whether oracle calls must use the cheap
// model tier.
func (s State) ForcesCheapModel() bool {
	return s == StateDowngrade || s == StatePause
}
