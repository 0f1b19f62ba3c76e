package threshold

import (
	"testing"
)

func fp(v float64) *float64 { return &v }

func TestConfig_ValidateOrdering(t *testing.T) {
	cfg := &Config{
		ParameterID:   "PARAM-1",
		UpperAlarm:    fp(100),
		UpperWarning:  fp(90),
		LowerWarning:  fp(10),
		LowerAlarm:    fp(0),
		ScalingFactor: 1,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}
}

func TestConfig_ValidateOrderingViolation(t *testing.T) {
	cfg := &Config{
		ParameterID:   "PARAM-1",
		UpperAlarm:    fp(90),
		UpperWarning:  fp(100), // inverted
		ScalingFactor: 1,
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected ordering violation")
	}
	cfgErr, ok := err.(*ConfigError)
	if !ok {
		t.Fatalf("Expected *ConfigError, got %T", err)
	}
	if cfgErr.Kind != KindThresholdOrderingViolation {
		t.Errorf("Expected kind %s, got %s", KindThresholdOrderingViolation, cfgErr.Kind)
	}
}

func TestConfig_ValidateEqualBoundsRejected(t *testing.T) {
	cfg := &Config{
		ParameterID:   "PARAM-1",
		UpperWarning:  fp(50),
		LowerWarning:  fp(50),
		ScalingFactor: 1,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Expected equal warning bounds to be rejected")
	}
}

func TestConfig_ValidatePartialBounds(t *testing.T) {
	// Only an upper alarm configured; nothing to violate
	cfg := &Config{
		ParameterID:   "PARAM-1",
		UpperAlarm:    fp(100),
		ScalingFactor: 1,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected partial config to pass, got %v", err)
	}
}

func TestConfig_ValidateZeroScalingFactor(t *testing.T) {
	cfg := &Config{ParameterID: "PARAM-1", ScalingFactor: 0}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected zero scaling factor to be rejected")
	}
	cfgErr, ok := err.(*ConfigError)
	if !ok || cfgErr.Kind != KindInvalidScalingFactor {
		t.Errorf("Expected InvalidScalingFactor, got %v", err)
	}
}

func TestConfig_Scale(t *testing.T) {
	cfg := &Config{ScalingFactor: 10, Offset: -4}
	if got := cfg.Scale(2.5); got != 21 {
		t.Errorf("Expected scaled value 21, got %v", got)
	}
}

func TestSpecConfig_Validate(t *testing.T) {
	spec := &SpecConfig{ParameterID: "PARAM-1", Target: 25, TolerancePlus: 0.2, ToleranceMinus: 0.2}
	if err := spec.Validate(); err != nil {
		t.Fatalf("Expected valid spec config, got %v", err)
	}

	bad := &SpecConfig{ParameterID: "PARAM-1", Target: 25, TolerancePlus: 0, ToleranceMinus: 0.2}
	err := bad.Validate()
	if err == nil {
		t.Fatal("Expected zero tolerance to be rejected")
	}
	cfgErr, ok := err.(*ConfigError)
	if !ok || cfgErr.Kind != KindInvalidSpecTolerance {
		t.Errorf("Expected InvalidSpecTolerance, got %v", err)
	}
}

func TestSpecConfig_Limits(t *testing.T) {
	spec := &SpecConfig{Target: 25, TolerancePlus: 0.2, ToleranceMinus: 0.3}
	usl, lsl := spec.Limits()
	if usl != 25.2 {
		t.Errorf("Expected USL 25.2, got %v", usl)
	}
	if lsl != 24.7 {
		t.Errorf("Expected LSL 24.7, got %v", lsl)
	}
}

func TestChartConfig_Validate(t *testing.T) {
	good := &ChartConfig{ParameterID: "PARAM-1", SigmaLevel: 3, SampleSize: 5, DataPoints: 50, RefreshInterval: 30}
	if err := good.Validate(); err != nil {
		t.Fatalf("Expected valid chart config, got %v", err)
	}

	tests := []struct {
		name string
		cfg  ChartConfig
	}{
		{"zero sample size", ChartConfig{SigmaLevel: 3, SampleSize: 0, DataPoints: 50, RefreshInterval: 30}},
		{"sigma too high", ChartConfig{SigmaLevel: 7, SampleSize: 5, DataPoints: 50, RefreshInterval: 30}},
		{"zero data points", ChartConfig{SigmaLevel: 3, SampleSize: 5, DataPoints: 0, RefreshInterval: 30}},
		{"zero refresh", ChartConfig{SigmaLevel: 3, SampleSize: 5, DataPoints: 50, RefreshInterval: 0}},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected validation failure", tt.name)
			continue
		}
		cfgErr, ok := err.(*ConfigError)
		if !ok || cfgErr.Kind != KindInvalidChartSetting {
			t.Errorf("%s: expected InvalidChartSetting, got %v", tt.name, err)
		}
	}
}
