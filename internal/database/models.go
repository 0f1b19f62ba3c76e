package database

import (
	"time"
)

// ReadingRow is one persisted measurement with its derived statistics.
type ReadingRow struct {
	ID            int64
	ParameterID   string
	StationID     string
	SensorID      string
	Value         float64
	Unit          string
	Timestamp     time.Time
	ReceivedAt    time.Time
	Status        string
	ControlStatus string
	SpecStatus    string
	DeviationPct  float64
	AlertID       *string

	UpperControlLimit *float64
	LowerControlLimit *float64
	UpperSpecLimit    *float64
	LowerSpecLimit    *float64

	WorkOrder *string
	Item      *string
	BatchNo   *string
}

// BaselineRow is the persisted rolling-statistics snapshot per parameter.
type BaselineRow struct {
	ParameterID string
	XBar        float64
	RangeValue  float64
	MovingRange float64
	StdDev      float64
	SampleSize  int
	LastUpdated time.Time
}
