package protocol

import (
	"testing"
)

func TestParseMessage_Identify(t *testing.T) {
	line := `{"type":"identify","station_id":"STATION-01","station_name":"Line 1 CMM"}`

	msg, err := ParseMessage([]byte(line))
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}

	identify, ok := msg.(*IdentifyMessage)
	if !ok {
		t.Fatalf("Expected *IdentifyMessage, got %T", msg)
	}
	if identify.StationID != "STATION-01" {
		t.Errorf("Expected station STATION-01, got %s", identify.StationID)
	}
}

func TestParseMessage_IdentifyRequiresStation(t *testing.T) {
	line := `{"type":"identify","station_name":"Line 1 CMM"}`

	if _, err := ParseMessage([]byte(line)); err == nil {
		t.Error("Expected identify without station_id to fail")
	}
}

func TestParseMessage_Reading(t *testing.T) {
	line := `{"type":"reading","data":{"parameter_id":"PARAM-1","sensor_id":"SENSOR-1","value":25.01,"timestamp":"2026-08-31T12:00:00Z","unit":"mm"}}`

	msg, err := ParseMessage([]byte(line))
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}

	reading, ok := msg.(*ReadingMessage)
	if !ok {
		t.Fatalf("Expected *ReadingMessage, got %T", msg)
	}
	if reading.Data.ParameterID != "PARAM-1" {
		t.Errorf("Expected parameter PARAM-1, got %s", reading.Data.ParameterID)
	}
	if reading.Data.Value == nil || *reading.Data.Value != 25.01 {
		t.Errorf("Expected value 25.01, got %v", reading.Data.Value)
	}
}

func TestParseMessage_ReadingMissingValue(t *testing.T) {
	line := `{"type":"reading","data":{"parameter_id":"PARAM-1","sensor_id":"SENSOR-1","timestamp":"2026-08-31T12:00:00Z"}}`

	msg, err := ParseMessage([]byte(line))
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}

	// A missing value parses as nil so validation can reject it explicitly
	reading := msg.(*ReadingMessage)
	if reading.Data.Value != nil {
		t.Errorf("Expected nil value for missing field, got %v", *reading.Data.Value)
	}
}

func TestParseMessage_Keepalive(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"keepalive"}`))
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if _, ok := msg.(*KeepaliveMessage); !ok {
		t.Errorf("Expected *KeepaliveMessage, got %T", msg)
	}
}

func TestParseMessage_UnknownType(t *testing.T) {
	if _, err := ParseMessage([]byte(`{"type":"metrics"}`)); err == nil {
		t.Error("Expected unknown message type to fail")
	}
}

func TestParseMessage_InvalidJSON(t *testing.T) {
	if _, err := ParseMessage([]byte(`{not json`)); err == nil {
		t.Error("Expected invalid JSON to fail")
	}
}

func TestEncodeDecodeAlertNotification(t *testing.T) {
	n := &AlertNotification{
		EventType:   AlertEventTriggered,
		AlertID:     "alert-1",
		AlertType:   "Alarm",
		Severity:    "High",
		StationID:   "STATION-01",
		SensorID:    "SENSOR-1",
		ParameterID: "PARAM-1",
		Message:     "breach",
		Value:       101.5,
	}

	data, err := EncodeAlertNotification(n)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeAlertNotification(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.AlertID != "alert-1" || decoded.EventType != AlertEventTriggered {
		t.Errorf("Round trip mismatch: %+v", decoded)
	}
}
