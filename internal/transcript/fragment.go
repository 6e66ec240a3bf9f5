package transcript

import (
	"math"
	"strings"
	"time"
)

const (
	InitialThreshold = 0.8
	MinThreshold     = 0.6
	ThresholdStep    = 0.1

	// DecayInterval is how long the buffer waits without an accepted final
	// fragment before lowering the threshold by one step.
	DecayInterval = 5 * time.Second

	// DisplayWindow bounds how long a display entry stays renderable.
	DisplayWindow = 2 * time.Second
)

// Alternative is one candidate transcription of a recognition result.
type Alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Fragment is one incremental recognition result, interim or final.
// Alternatives keep the recognizer's rank order.
type Fragment struct {
	Alternatives []Alternative `json:"alternatives"`
	Final        bool          `json:"final"`
	CapturedAt   time.Time     `json:"captured_at"`
}

// Best returns the alternative with the highest confidence. Ties go to the
// higher-ranked alternative.
func (f Fragment) Best() (Alternative, bool) {
	if len(f.Alternatives) == 0 {
		return Alternative{}, false
	}
	best := f.Alternatives[0]
	for _, alt := range f.Alternatives[1:] {
		if alt.Confidence > best.Confidence {
			best = alt
		}
	}
	return best, true
}

// View is the reconstruction of an utterance at a point in time.
type View struct {
	// StableText is every accepted final fragment, each followed by a space.
	StableText string `json:"stable_text"`
	// LiveText is the latest interim fragment not yet superseded by a final one.
	LiveText string `json:"live_text"`
	// Display is what a live caption should render right now.
	Display string `json:"display"`
	// Threshold is the acceptance threshold that applies at the view time.
	Threshold float64 `json:"threshold"`
}

// Committed returns StableText without the trailing separator.
func (v View) Committed() string {
	return strings.TrimSpace(v.StableText)
}

// ThresholdAt returns the confidence a final fragment captured at `at` must
// exceed, given the time of the last acceptance (or utterance start).
func ThresholdAt(lastAccepted, at time.Time) float64 {
	elapsed := at.Sub(lastAccepted)
	if elapsed <= DecayInterval {
		return InitialThreshold
	}
	steps := int((elapsed - 1) / DecayInterval)
	threshold := InitialThreshold - float64(steps)*ThresholdStep
	threshold = math.Round(threshold*100) / 100
	if threshold < MinThreshold {
		return MinThreshold
	}
	return threshold
}

// Compute rebuilds the view of an utterance from its fragments in arrival
// order. It has no side effects: the same inputs always give the same view.
func Compute(startedAt time.Time, fragments []Fragment, now time.Time) View {
	var stable strings.Builder
	lastAccepted := startedAt
	live := ""

	latest := ""
	var latestAt time.Time
	hasLatest := false

	for _, f := range fragments {
		best, ok := f.Best()
		if !ok {
			continue
		}
		text := strings.TrimSpace(best.Text)

		if f.Final {
			if text != "" && best.Confidence > ThresholdAt(lastAccepted, f.CapturedAt) {
				stable.WriteString(text)
				stable.WriteString(" ")
				lastAccepted = f.CapturedAt
			}
			live = ""
		} else {
			live = text
		}

		latest = strings.TrimSpace(strings.TrimSpace(stable.String()) + " " + live)
		latestAt = f.CapturedAt
		hasLatest = true
	}

	view := View{
		StableText: stable.String(),
		LiveText:   live,
		Threshold:  ThresholdAt(lastAccepted, now),
	}

	if hasLatest && now.Sub(latestAt) < DisplayWindow {
		view.Display = latest
	} else {
		view.Display = view.Committed()
	}

	return view
}
