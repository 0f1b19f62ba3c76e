package threshold

import "fmt"

// Config error kinds.
const (
	KindThresholdOrderingViolation = "ThresholdOrderingViolation"
	KindInvalidScalingFactor       = "InvalidScalingFactor"
	KindInvalidSpecTolerance       = "InvalidSpecTolerance"
	KindInvalidChartSetting        = "InvalidChartSetting"
)

// ConfigError rejects a configuration write. Bad configs are never
// auto-corrected or reordered.
type ConfigError struct {
	Kind string
	msg  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func newConfigError(kind, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Config holds the alarm/warning bounds and raw-value scaling for one
// parameter. Any bound may be nil (not configured).
type Config struct {
	ParameterID  string
	UpperAlarm   *float64
	UpperWarning *float64
	LowerWarning *float64
	LowerAlarm   *float64

	// Raw sensor values are transformed as value*ScalingFactor + Offset
	// before evaluation.
	ScalingFactor float64
	Offset        float64
}

// Validate checks the ordering invariant upper_alarm > upper_warning >
// lower_warning > lower_alarm for every pair that is configured.
func (c *Config) Validate() error {
	if c.ScalingFactor == 0 {
		return newConfigError(KindInvalidScalingFactor, "scaling factor cannot be zero")
	}

	ordered := []struct {
		hi, lo   *float64
		hiN, loN string
	}{
		{c.UpperAlarm, c.UpperWarning, "upper_alarm", "upper_warning"},
		{c.UpperWarning, c.LowerWarning, "upper_warning", "lower_warning"},
		{c.LowerWarning, c.LowerAlarm, "lower_warning", "lower_alarm"},
		{c.UpperAlarm, c.LowerAlarm, "upper_alarm", "lower_alarm"},
		{c.UpperAlarm, c.LowerWarning, "upper_alarm", "lower_warning"},
		{c.UpperWarning, c.LowerAlarm, "upper_warning", "lower_alarm"},
	}
	for _, p := range ordered {
		if p.hi != nil && p.lo != nil && *p.hi <= *p.lo {
			return newConfigError(KindThresholdOrderingViolation,
				"%s (%.4f) must be greater than %s (%.4f)", p.hiN, *p.hi, p.loN, *p.lo)
		}
	}
	return nil
}

// Scale applies the configured scaling factor and offset to a raw value.
func (c *Config) Scale(raw float64) float64 {
	return raw*c.ScalingFactor + c.Offset
}

// SpecConfig is an externally supplied acceptance specification:
// target ± tolerance.
type SpecConfig struct {
	ParameterID    string
	Target         float64
	TolerancePlus  float64
	ToleranceMinus float64
}

// Validate rejects non-positive tolerances.
func (s *SpecConfig) Validate() error {
	if s.TolerancePlus <= 0 || s.ToleranceMinus <= 0 {
		return newConfigError(KindInvalidSpecTolerance,
			"tolerance values must be positive, got +%.4f/-%.4f", s.TolerancePlus, s.ToleranceMinus)
	}
	return nil
}

// Limits returns the derived USL/LSL pair.
func (s *SpecConfig) Limits() (usl, lsl float64) {
	return s.Target + s.TolerancePlus, s.Target - s.ToleranceMinus
}

// ChartConfig holds control-chart display settings.
type ChartConfig struct {
	ParameterID     string
	SigmaLevel      float64
	SampleSize      int
	DataPoints      int
	RefreshInterval int // seconds
}

// Validate checks display settings at write time.
func (c *ChartConfig) Validate() error {
	if c.SampleSize <= 0 {
		return newConfigError(KindInvalidChartSetting, "sample size must be greater than 0")
	}
	if c.SigmaLevel <= 0 || c.SigmaLevel > 6 {
		return newConfigError(KindInvalidChartSetting, "sigma level must be between 0 and 6, got %.2f", c.SigmaLevel)
	}
	if c.DataPoints <= 0 {
		return newConfigError(KindInvalidChartSetting, "data points to display must be greater than 0")
	}
	if c.RefreshInterval <= 0 {
		return newConfigError(KindInvalidChartSetting, "refresh interval must be greater than 0")
	}
	return nil
}
