// Package progress estimates how far along a remote generation job probably
// is. The remote endpoint reports nothing until it finishes, so progress is
// simulated from elapsed time and held below 100 until real completion.
package progress

import "time"

const (
	DefaultTotal = 120 * time.Second
	DefaultCap   = 90

	// CompletionLabel is shown once the real response has arrived.
	CompletionLabel = "Processing complete!"
)

// Phase is a human-readable label that applies from Threshold percent upward.
type Phase struct {
	Threshold int
	Label     string
}

var DefaultPhases = []Phase{
	{Threshold: 0, Label: "Preparing images..."},
	{Threshold: 15, Label: "Analyzing image features..."},
	{Threshold: 30, Label: "Building 3D mesh..."},
	{Threshold: 45, Label: "Applying textures..."},
	{Threshold: 60, Label: "Optimizing geometry..."},
	{Threshold: 75, Label: "Converting to AR format..."},
	{Threshold: 85, Label: "Finalizing model..."},
}

type Estimate struct {
	Percent int
	Phase   string
}

// Estimator maps elapsed time onto a percentage that climbs linearly to Cap
// over Total and stays there.
type Estimator struct {
	Total  time.Duration
	Cap    int
	Phases []Phase
}

func DefaultEstimator() Estimator {
	return Estimator{
		Total:  DefaultTotal,
		Cap:    DefaultCap,
		Phases: DefaultPhases,
	}
}

func (e Estimator) Estimate(elapsed time.Duration) Estimate {
	percent := e.percentAt(elapsed)
	return Estimate{
		Percent: percent,
		Phase:   e.PhaseFor(percent),
	}
}

func (e Estimator) percentAt(elapsed time.Duration) int {
	if e.Cap <= 0 {
		return 0
	}
	if e.Total <= 0 {
		return e.Cap
	}
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= e.Total {
		return e.Cap
	}
	// elapsed < Total here, so the product fits int64 for any window under
	// about a thousand days.
	p := int64(e.Cap) * int64(elapsed) / int64(e.Total)
	if p > int64(e.Cap) {
		return e.Cap
	}
	return int(p)
}

// PhaseFor returns the label of the highest threshold not above percent. When
// no threshold qualifies the threshold-0 label wins, or failing that the label
// with the lowest threshold. The phase table is only read.
func (e Estimator) PhaseFor(percent int) string {
	if len(e.Phases) == 0 {
		return ""
	}

	best, lowest, zero := -1, 0, -1
	for i, p := range e.Phases {
		if p.Threshold <= percent && (best < 0 || p.Threshold > e.Phases[best].Threshold) {
			best = i
		}
		if p.Threshold < e.Phases[lowest].Threshold {
			lowest = i
		}
		if p.Threshold == 0 && zero < 0 {
			zero = i
		}
	}

	switch {
	case best >= 0:
		return e.Phases[best].Label
	case zero >= 0:
		return e.Phases[zero].Label
	default:
		return e.Phases[lowest].Label
	}
}
