package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType represents the type of message
type MessageType string

const (
	// Station to Server
	MsgTypeIdentify  MessageType = "identify"
	MsgTypeReading   MessageType = "reading"
	MsgTypeKeepalive MessageType = "keepalive"

	// Server to Station
	MsgTypeAck MessageType = "ack"
)

// BaseMessage is the common structure for all messages
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// IdentifyMessage is sent by the station on connection
type IdentifyMessage struct {
	Type        MessageType `json:"type"`
	StationID   string      `json:"station_id"`
	StationName string      `json:"station_name"`
}

// ReadingData carries one raw measurement. Value is a pointer so a missing
// field can be rejected instead of defaulting to zero.
type ReadingData struct {
	ParameterID string   `json:"parameter_id"`
	SensorID    string   `json:"sensor_id"`
	Value       *float64 `json:"value"`
	Timestamp   string   `json:"timestamp"`
	Unit        string   `json:"unit,omitempty"`

	UpperControlLimit *float64 `json:"upper_control_limit,omitempty"`
	LowerControlLimit *float64 `json:"lower_control_limit,omitempty"`
	UpperSpecLimit    *float64 `json:"upper_spec_limit,omitempty"`
	LowerSpecLimit    *float64 `json:"lower_spec_limit,omitempty"`

	WorkOrder string `json:"work_order,omitempty"`
	Item      string `json:"item,omitempty"`
	BatchNo   string `json:"batch_no,omitempty"`
}

// ReadingMessage is sent by the station for each measurement
type ReadingMessage struct {
	Type MessageType `json:"type"`
	Data ReadingData `json:"data"`
}

// KeepaliveMessage is sent by the station periodically while idle
type KeepaliveMessage struct {
	Type MessageType `json:"type"`
}

// AckMessage is sent by the server in response to messages
type AckMessage struct {
	Type   MessageType `json:"type"`
	Status string      `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// AckStatus constants
const (
	AckStatusIdentified = "identified"
	AckStatusAccepted   = "accepted"
	AckStatusRejected   = "rejected"
	AckStatusAlive      = "alive"
	AckStatusError      = "error"
)

// ParseMessage parses a JSON line into the appropriate message type
func ParseMessage(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch base.Type {
	case MsgTypeIdentify:
		var msg IdentifyMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid identify message: %w", err)
		}
		if msg.StationID == "" {
			return nil, fmt.Errorf("station_id is required")
		}
		return &msg, nil

	case MsgTypeReading:
		var msg ReadingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid reading message: %w", err)
		}
		return &msg, nil

	case MsgTypeKeepalive:
		var msg KeepaliveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid keepalive message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unknown message type: %s", base.Type)
	}
}

// EncodeMessage encodes a message to JSON
func EncodeMessage(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}

// NewAckMessage creates a new acknowledgment message
func NewAckMessage(status, detail string) *AckMessage {
	return &AckMessage{
		Type:   MsgTypeAck,
		Status: status,
		Detail: detail,
	}
}
