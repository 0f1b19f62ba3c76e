package protocol

import (
	"encoding/json"
	"time"
)

// ReadingEvent is the internal message format published to Kafka for every
// committed reading, carrying the statistics derived at ingest time.
type ReadingEvent struct {
	ParameterID string    `json:"parameter_id"`
	StationID   string    `json:"station_id"`
	SensorID    string    `json:"sensor_id"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	ReceivedAt  time.Time `json:"received_at"`

	XBar          float64 `json:"x_bar"`
	Range         float64 `json:"range"`
	MovingRange   float64 `json:"moving_range"`
	StdDev        float64 `json:"std_dev"`
	ControlStatus string  `json:"control_status"`
	SpecStatus    string  `json:"spec_status"`
	DeviationPct  float64 `json:"deviation_pct"`

	WorkOrder string `json:"work_order,omitempty"`
	Item      string `json:"item,omitempty"`
	BatchNo   string `json:"batch_no,omitempty"`
}

// Alert event types carried on the alerts topic.
const (
	AlertEventTriggered = "ALERT_TRIGGERED"
	AlertEventUpdated   = "ALERT_UPDATED"
	AlertEventEscalated = "ALERT_ESCALATED"
	AlertEventResolved  = "ALERT_RESOLVED"
)

// AlertNotification is the message format for alert events.
type AlertNotification struct {
	EventType   string    `json:"event_type"`
	AlertID     string    `json:"alert_id"`
	AlertType   string    `json:"alert_type"`
	Severity    string    `json:"severity"`
	StationID   string    `json:"station_id"`
	SensorID    string    `json:"sensor_id"`
	ParameterID string    `json:"parameter_id"`
	Message     string    `json:"message"`
	Value       float64   `json:"value"`
	OpenedAt    time.Time `json:"opened_at"`
	OccurredAt  time.Time `json:"occurred_at"`
	Actor       string    `json:"actor,omitempty"`
}

// EncodeReadingEvent encodes a ReadingEvent to JSON
func EncodeReadingEvent(ev *ReadingEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeReadingEvent decodes JSON to ReadingEvent
func DecodeReadingEvent(data []byte) (*ReadingEvent, error) {
	var ev ReadingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// EncodeAlertNotification encodes an AlertNotification to JSON
func EncodeAlertNotification(alert *AlertNotification) ([]byte, error) {
	return json.Marshal(alert)
}

// DecodeAlertNotification decodes JSON to AlertNotification
func DecodeAlertNotification(data []byte) (*AlertNotification, error) {
	var alert AlertNotification
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}
