package progress

import "math"

// Map converts a phase-native completion fraction into the job-level
// percentage for the phase's window. The result never reaches the window
// end: the phase-complete boundary value is written by the orchestrator
// at the transition, not through the mapper. Out-of-range fractions are
// clamped to [0,1]; a zero-width window always maps to its start.
func Map(w Window, fraction float64) int {
	if w.Width() == 0 {
		return w.Start
	}
	if fraction < 0 || math.IsNaN(fraction) {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}

	percent := w.Start + int(math.Floor(fraction*float64(w.Width())))
	if percent >= w.End {
		percent = w.End - 1
	}
	if percent < w.Start {
		percent = w.Start
	}
	return percent
}

// EnsembleFraction combines an outer sub-unit index with the inner
// fraction of the current sub-unit. Each of the n sub-units contributes
// an equal 1/n share of the phase regardless of its own duration.
func EnsembleFraction(index int, inner float64, count int) float64 {
	if count <= 0 {
		return 0
	}
	if index < 0 {
		index = 0
	}
	if index >= count {
		return 1
	}
	if inner < 0 || math.IsNaN(inner) {
		inner = 0
	} else if inner > 1 {
		inner = 1
	}
	return (float64(index) + inner) / float64(count)
}

// Fraction is a safe done/total division for count-shaped signals.
// Unknown totals report zero.
func Fraction(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	if done >= total {
		return 1
	}
	if done < 0 {
		return 0
	}
	return float64(done) / float64(total)
}
