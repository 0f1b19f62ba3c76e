package alerting

import (
	"fmt"
	"time"
)

// Alert lifecycle statuses. Resolved is terminal for an alert instance.
const (
	StatusOpen         = "Open"
	StatusAcknowledged = "Acknowledged"
	StatusResolved     = "Resolved"
)

// Alert severities.
const (
	SeverityMedium = "Medium"
	SeverityHigh   = "High"
)

// Alert types mirror the threshold states that raise them.
const (
	TypeWarning = "Warning"
	TypeAlarm   = "Alarm"
)

// Alert is one threshold-violation alert instance.
type Alert struct {
	ID          string
	AlertType   string
	Severity    string
	Status      string
	StationID   string
	SensorID    string
	ParameterID string
	Message     string
	Value       float64
	OpenedAt    time.Time
	LastUpdated time.Time
	Escalated   bool

	AcknowledgedBy  string
	ResolvedBy      string
	ResolutionNotes string
}

// DedupKey identifies the condition an alert covers. At most one Open alert
// may exist per key.
func DedupKey(stationID, sensorID, alertType string) string {
	return fmt.Sprintf("%s:%s:%s", stationID, sensorID, alertType)
}

// SeverityFor maps an alert type to its severity.
func SeverityFor(alertType string) string {
	if alertType == TypeAlarm {
		return SeverityHigh
	}
	return SeverityMedium
}

// AlertError is a lifecycle error (unknown alert, invalid transition).
type AlertError struct {
	msg string
}

func (e *AlertError) Error() string { return e.msg }

var (
	ErrAlertNotFound     = &AlertError{"alert not found"}
	ErrInvalidTransition = &AlertError{"invalid alert status transition"}
)

// DispatchError marks a transient persistence or notification failure.
// Callers log it and keep the already-committed reading; it never unwinds
// ingestion.
type DispatchError struct {
	Op  string
	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("alert dispatch %s failed: %v", e.Op, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
