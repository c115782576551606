package assessment

import (
	"time"

	"github.com/clinovate/bpadvisor/internal/domain/patient"
)

// TrendLabel characterizes the direction of a reading history.
type TrendLabel string

const (
	TrendInsufficient TrendLabel = "insufficient"
	TrendImproving    TrendLabel = "improving"
	TrendStable       TrendLabel = "stable"
	TrendWorsening    TrendLabel = "worsening"
)

// TrendConfig controls the analysis window.
type TrendConfig struct {
	// Window is the number of most-recent readings compared. Default 5.
	Window int
	// MaxGap flags stale monitoring when consecutive readings are further
	// apart than this. Zero disables the check.
	MaxGap time.Duration
}

// DefaultTrendConfig returns the standard window settings.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{Window: 5, MaxGap: 14 * 24 * time.Hour}
}

// Trend is the outcome of trend analysis.
type Trend struct {
	Label TrendLabel `json:"label"`
	// GapDetected is set when monitoring went quiet for longer than MaxGap
	// between two consecutive readings in the window.
	GapDetected bool `json:"gap_detected"`
}

// AnalyzeTrend compares the earliest and latest grades within the window of
// the last K valid measured readings. Synthetic quick-default readings are
// excluded: they record a button press, not blood pressure. A history with
// fewer than two usable readings yields Insufficient with no error.
func AnalyzeTrend(h patient.History, cfg TrendConfig) Trend {
	if cfg.Window <= 0 {
		cfg.Window = DefaultTrendConfig().Window
	}

	graded := make([]Grade, 0, cfg.Window)
	times := make([]time.Time, 0, cfg.Window)
	for _, r := range h.Measured() {
		g, err := Classify(r)
		if err != nil {
			continue
		}
		graded = append(graded, g)
		times = append(times, r.TakenAt)
	}

	if len(graded) > cfg.Window {
		graded = graded[len(graded)-cfg.Window:]
		times = times[len(times)-cfg.Window:]
	}

	if len(graded) < 2 {
		return Trend{Label: TrendInsufficient}
	}

	t := Trend{}
	if cfg.MaxGap > 0 {
		for i := 1; i < len(times); i++ {
			if times[i].Sub(times[i-1]) > cfg.MaxGap {
				t.GapDetected = true
				break
			}
		}
	}

	first, last := graded[0], graded[len(graded)-1]
	switch {
	case last > first:
		t.Label = TrendWorsening
	case last < first:
		t.Label = TrendImproving
	default:
		t.Label = TrendStable
	}
	return t
}
