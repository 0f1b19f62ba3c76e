package protocol

import (
	"fmt"
	"math"
	"time"
)

// ReadingStatus is the validation status carried by a reading.
type ReadingStatus string

const (
	ReadingValid   ReadingStatus = "Valid"
	ReadingInvalid ReadingStatus = "Invalid"
	ReadingPending ReadingStatus = "Pending"
)

// Reading is one validated measurement. All fields except Status are
// immutable after validation; Status may be downgraded later by the
// threshold evaluation.
type Reading struct {
	ParameterID string
	StationID   string
	SensorID    string
	Value       float64
	Timestamp   time.Time
	Unit        string

	// Optional per-reading limits. Control limits are statistical,
	// specification limits are acceptance bounds; they are independent pairs.
	UpperControlLimit *float64
	LowerControlLimit *float64
	UpperSpecLimit    *float64
	LowerSpecLimit    *float64

	// Production context, attached for downstream reporting only.
	WorkOrder string
	Item      string
	BatchNo   string

	Status ReadingStatus
}

// Validation error kinds.
const (
	KindMissingField           = "MissingField"
	KindNonNumericValue        = "NonNumericValue"
	KindMalformedTimestamp     = "MalformedTimestamp"
	KindTimestampInFuture      = "TimestampInFuture"
	KindLimitOrderingViolation = "LimitOrderingViolation"
	KindOutOfOrderTimestamp    = "OutOfOrderTimestamp"
)

// ValidationError rejects a reading synchronously; no state is mutated.
type ValidationError struct {
	Kind  string
	Field string
	msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func newValidationError(kind, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, msg: fmt.Sprintf(format, args...)}
}

// NewOutOfOrderError rejects a reading that arrives behind one already
// applied for the same parameter.
func NewOutOfOrderError(msg string) *ValidationError {
	return &ValidationError{Kind: KindOutOfOrderTimestamp, Field: "timestamp", msg: msg}
}

// IsValidationError reports whether err is a *ValidationError, optionally of
// a specific kind (empty kind matches any).
func IsValidationError(err error, kind string) bool {
	ve, ok := err.(*ValidationError)
	if !ok {
		return false
	}
	return kind == "" || ve.Kind == kind
}

// ValidateReading normalizes a raw reading payload into a Reading. The raw
// value is a pointer so a missing field is distinguishable from zero.
func ValidateReading(data *ReadingData, stationID string, now time.Time, clockSkew time.Duration) (*Reading, error) {
	if stationID == "" {
		return nil, newValidationError(KindMissingField, "station_id", "station_id is required")
	}
	if data.ParameterID == "" {
		return nil, newValidationError(KindMissingField, "parameter_id", "parameter_id is required")
	}
	if data.SensorID == "" {
		return nil, newValidationError(KindMissingField, "sensor_id", "sensor_id is required")
	}
	if data.Timestamp == "" {
		return nil, newValidationError(KindMissingField, "timestamp", "timestamp is required")
	}
	if data.Value == nil {
		return nil, newValidationError(KindMissingField, "value", "value is required")
	}
	if math.IsNaN(*data.Value) || math.IsInf(*data.Value, 0) {
		return nil, newValidationError(KindNonNumericValue, "value", "value must be a finite number, got %v", *data.Value)
	}

	ts, err := time.Parse(time.RFC3339, data.Timestamp)
	if err != nil {
		return nil, newValidationError(KindMalformedTimestamp, "timestamp", "timestamp must be RFC3339: %v", err)
	}
	if ts.After(now.Add(clockSkew)) {
		return nil, newValidationError(KindTimestampInFuture, "timestamp",
			"timestamp %s is in the future", ts.Format(time.RFC3339))
	}

	if err := checkLimitPair(data.UpperControlLimit, data.LowerControlLimit, "control"); err != nil {
		return nil, err
	}
	if err := checkLimitPair(data.UpperSpecLimit, data.LowerSpecLimit, "spec"); err != nil {
		return nil, err
	}

	return &Reading{
		ParameterID:       data.ParameterID,
		StationID:         stationID,
		SensorID:          data.SensorID,
		Value:             *data.Value,
		Timestamp:         ts,
		Unit:              data.Unit,
		UpperControlLimit: data.UpperControlLimit,
		LowerControlLimit: data.LowerControlLimit,
		UpperSpecLimit:    data.UpperSpecLimit,
		LowerSpecLimit:    data.LowerSpecLimit,
		WorkOrder:         data.WorkOrder,
		Item:              data.Item,
		BatchNo:           data.BatchNo,
		Status:            ReadingValid,
	}, nil
}

func checkLimitPair(upper, lower *float64, name string) error {
	if upper == nil || lower == nil {
		return nil
	}
	if *upper <= *lower {
		return newValidationError(KindLimitOrderingViolation, name+"_limits",
			"upper %s limit %.4f must be greater than lower %s limit %.4f", name, *upper, name, *lower)
	}
	return nil
}
