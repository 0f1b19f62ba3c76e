package stats

import "time"

// Capability rating buckets, keyed by Cpk.
const (
	RatingExcellent = "Excellent"
	RatingGood      = "Good"
	RatingMarginal  = "Marginal"
	RatingPoor      = "Poor - process improvement needed"
)

// Capability holds process capability and performance indices for one
// parameter. Available is false until the window holds the minimum sample
// size and has nonzero spread; index fields are meaningless in that case.
type Capability struct {
	ParameterID string
	Available   bool
	Cp          float64
	Cpu         float64
	Cpl         float64
	Cpk         float64
	Pp          float64
	Ppk         float64
	Mean        float64
	StdDev      float64
	SampleSize  int
	Rating      string
	ComputedAt  time.Time
}

// ControlLimits returns the statistically derived limits mean ± sigmaLevel*s.
// These are process limits, distinct from externally configured
// specification limits, and the two must never be conflated.
func ControlLimits(mean, stdDev, sigmaLevel float64) (ucl, lcl float64) {
	return mean + sigmaLevel*stdDev, mean - sigmaLevel*stdDev
}

// SpecLimits derives acceptance bounds from an external target and
// tolerances.
func SpecLimits(target, tolerancePlus, toleranceMinus float64) (usl, lsl float64) {
	return target + tolerancePlus, target - toleranceMinus
}

// ComputeCapability derives Cp/Cpk/Pp/Ppk against the given specification
// limits. Pp/Ppk use the same sample as Cp/Cpk: the upstream system computes
// both over the identical window, and that behavior is preserved rather than
// inventing a separate long-term horizon.
func ComputeCapability(parameterID string, w *Window, usl, lsl float64, minSamples int, now time.Time) *Capability {
	cap := &Capability{
		ParameterID: parameterID,
		SampleSize:  w.Len(),
		ComputedAt:  now,
	}

	if w.Len() < minSamples {
		return cap
	}
	stdDev := w.StdDev()
	if stdDev <= 0 {
		return cap
	}

	mean := w.XBar()
	cap.Available = true
	cap.Mean = mean
	cap.StdDev = stdDev
	cap.Cp = (usl - lsl) / (6 * stdDev)
	cap.Cpu = (usl - mean) / (3 * stdDev)
	cap.Cpl = (mean - lsl) / (3 * stdDev)
	cap.Cpk = minFloat(cap.Cpu, cap.Cpl)
	cap.Pp = cap.Cp
	cap.Ppk = cap.Cpk
	cap.Rating = InterpretCpk(cap.Cpk)

	return cap
}

// InterpretCpk maps a Cpk value to its qualitative rating.
func InterpretCpk(cpk float64) string {
	switch {
	case cpk >= 1.33:
		return RatingExcellent
	case cpk >= 1.0:
		return RatingGood
	case cpk >= 0.67:
		return RatingMarginal
	default:
		return RatingPoor
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
