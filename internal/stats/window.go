package stats

import (
	"math"
	"time"
)

// Window is a bounded, insertion-ordered history of valid values for one
// parameter. It is not safe for concurrent use; the ingestion engine
// serializes all access per parameter.
type Window struct {
	capacity int
	subgroup int
	values   []float64
}

// Baseline is the derived statistical state of a parameter's window.
type Baseline struct {
	ParameterID string
	XBar        float64
	Range       float64 // max-min over the most recent subgroup, 0 until enough samples
	MovingRange float64 // |newest - second newest|, only the latest diff is retained
	StdDev      float64 // sample standard deviation over the full window
	SampleSize  int
	LastUpdated time.Time
}

// NewWindow creates a window holding at most capacity values, with subgroup
// values used for the range calculation.
func NewWindow(capacity, subgroup int) *Window {
	return &Window{
		capacity: capacity,
		subgroup: subgroup,
		values:   make([]float64, 0, capacity),
	}
}

// Append adds a value, evicting the oldest once the window is full.
func (w *Window) Append(value float64) {
	if len(w.values) == w.capacity {
		copy(w.values, w.values[1:])
		w.values[len(w.values)-1] = value
		return
	}
	w.values = append(w.values, value)
}

// Len returns the current number of values in the window.
func (w *Window) Len() int {
	return len(w.values)
}

// Values returns a copy of the window contents, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

// XBar returns the arithmetic mean of the full window.
func (w *Window) XBar() float64 {
	if len(w.values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}

// SubgroupRange returns max-min over the most recent subgroup values. It is
// zero until the window holds at least a full subgroup.
func (w *Window) SubgroupRange() float64 {
	if len(w.values) < w.subgroup {
		return 0
	}
	sub := w.values[len(w.values)-w.subgroup:]
	min, max := sub[0], sub[0]
	for _, v := range sub[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return max - min
}

// MovingRange returns the absolute difference between the two newest values.
// Only this single latest adjacent difference is kept, matching the I-MR
// chart point for the current reading; the full difference series is not
// retained.
func (w *Window) MovingRange() float64 {
	n := len(w.values)
	if n < 2 {
		return 0
	}
	return math.Abs(w.values[n-1] - w.values[n-2])
}

// StdDev returns the sample standard deviation (n-1 denominator) over the
// full window. This is the value capability indices are computed from.
func (w *Window) StdDev() float64 {
	n := len(w.values)
	if n < 2 {
		return 0
	}
	mean := w.XBar()
	sum := 0.0
	for _, v := range w.values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}

// PopulationVariance is a cheaper n-denominator variance used only for
// per-reading quality flags. It intentionally differs from StdDev's n-1 form
// and must never feed capability calculations.
func (w *Window) PopulationVariance() float64 {
	n := len(w.values)
	if n == 0 {
		return 0
	}
	mean := w.XBar()
	sum := 0.0
	for _, v := range w.values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(n)
}

// Baseline derives the full baseline snapshot for a parameter.
func (w *Window) Baseline(parameterID string, updatedAt time.Time) *Baseline {
	return &Baseline{
		ParameterID: parameterID,
		XBar:        w.XBar(),
		Range:       w.SubgroupRange(),
		MovingRange: w.MovingRange(),
		StdDev:      w.StdDev(),
		SampleSize:  len(w.values),
		LastUpdated: updatedAt,
	}
}
