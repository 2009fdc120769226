package trend

import "testing"

func TestDetectNew(t *testing.T) {
	if got := NewDetector().Detect(nil, 42); got != LabelNew {
		t.Errorf("label = %s, want new", got)
	}
}

func TestDetectRisingFallingStable(t *testing.T) {
	d := NewDetector()
	cases := []struct {
		prior   float64
		current float64
		want    Label
	}{
		{50, 54, LabelRising},
		{50, 46, LabelFalling},
		{50, 53, LabelStable}, // exactly at the threshold stays stable
		{50, 47, LabelStable},
		{50, 50, LabelStable},
	}
	for _, c := range cases {
		if got := d.Detect([]float64{c.prior}, c.current); got != c.want {
			t.Errorf("Detect([%v], %v) = %s, want %s", c.prior, c.current, got, c.want)
		}
	}
}

func TestDetectHotStreak(t *testing.T) {
	d := NewDetector()
	if got := d.Detect([]float64{10, 20, 31}, 45); got != LabelHot {
		t.Errorf("label = %s, want hot", got)
	}
}

func TestDetectHotNeedsFullStreak(t *testing.T) {
	d := NewDetector()

	// One flat step inside the streak breaks it.
	if got := d.Detect([]float64{10, 20, 21}, 45); got == LabelHot {
		t.Error("broken streak should not be hot")
	}

	// Not enough history for a streak, however steep.
	if got := d.Detect([]float64{10, 30}, 60); got != LabelRising {
		t.Errorf("short history label = %s, want rising", got)
	}
}

func TestDetectHotUsesRecentWindow(t *testing.T) {
	d := NewDetector()
	// An old collapse outside MaxHistory is ignored.
	history := []float64{90, 10, 20, 31, 45}
	if got := d.Detect(history, 60); got != LabelHot {
		t.Errorf("label = %s, want hot", got)
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := NewDetector()
	history := []float64{12, 15, 19}
	a := d.Detect(history, 23)
	b := d.Detect(history, 23)
	if a != b {
		t.Errorf("not deterministic: %s vs %s", a, b)
	}
	// Detect must not mutate its input.
	if history[0] != 12 || history[2] != 19 {
		t.Errorf("history mutated: %v", history)
	}
}
