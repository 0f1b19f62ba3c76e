package threshold

import "math"

// ControlState is the per-parameter process-control state. There is no
// terminal state; every reading is re-evaluated.
type ControlState string

const (
	StateNormal  ControlState = "Normal"
	StateWarning ControlState = "Warning"
	StateAlarm   ControlState = "Alarm"
)

// SpecStatus is the independent specification-compliance verdict. It is
// computed alongside the control state but never merged with it.
type SpecStatus string

const (
	SpecPass         SpecStatus = "Pass"
	SpecFail         SpecStatus = "Fail"
	SpecNotEvaluated SpecStatus = "NotEvaluated"
)

// Evaluate returns the control state for a (scaled) value. Alarm bounds are
// checked before warning bounds; the first breach wins.
func (c *Config) Evaluate(value float64) ControlState {
	if c.UpperAlarm != nil && value >= *c.UpperAlarm {
		return StateAlarm
	}
	if c.LowerAlarm != nil && value <= *c.LowerAlarm {
		return StateAlarm
	}
	if c.UpperWarning != nil && value >= *c.UpperWarning {
		return StateWarning
	}
	if c.LowerWarning != nil && value <= *c.LowerWarning {
		return StateWarning
	}
	return StateNormal
}

// EvaluateSpec checks a value against specification limits. Either limit may
// be absent; with neither configured the reading is not evaluated.
func EvaluateSpec(value float64, usl, lsl *float64) SpecStatus {
	if usl == nil && lsl == nil {
		return SpecNotEvaluated
	}
	if usl != nil && value > *usl {
		return SpecFail
	}
	if lsl != nil && value < *lsl {
		return SpecFail
	}
	return SpecPass
}

// DeviationPercent is a reporting-only quality indicator: distance from the
// spec-band center as a percentage of the half-band when in spec, or the
// percentage overshoot beyond the violated limit when out of spec. Requires
// both limits; returns 0 otherwise.
func DeviationPercent(value float64, usl, lsl *float64) float64 {
	if usl == nil || lsl == nil || *usl <= *lsl {
		return 0
	}
	if value > *usl {
		if *usl == 0 {
			return 0
		}
		return (value - *usl) / *usl * 100
	}
	if value < *lsl {
		if *lsl == 0 {
			return 0
		}
		return (*lsl - value) / *lsl * 100
	}
	center := (*usl + *lsl) / 2
	halfBand := (*usl - *lsl) / 2
	return math.Abs(value-center) / halfBand * 100
}
