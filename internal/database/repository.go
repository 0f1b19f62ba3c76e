package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ambworks/spc-server/internal/alerting"
	"github.com/ambworks/spc-server/internal/engine"
	"github.com/ambworks/spc-server/internal/protocol"
	"github.com/ambworks/spc-server/internal/stats"
	"github.com/ambworks/spc-server/internal/threshold"
)

// Repository adapts the Postgres store to the engine's repository contract.
// Reading appends go through the batching writer; everything else hits the
// database directly.
type Repository struct {
	db       *DB
	readings *ReadingWriter
}

// NewRepository creates the engine repository over a connected database.
func NewRepository(db *DB, readings *ReadingWriter) *Repository {
	return &Repository{db: db, readings: readings}
}

// AppendReading queues a committed reading for batched persistence.
func (r *Repository) AppendReading(ctx context.Context, reading *protocol.Reading, result *engine.Result) error {
	if r.readings == nil {
		return fmt.Errorf("reading writer not configured")
	}
	row := &ReadingRow{
		ParameterID:       reading.ParameterID,
		StationID:         reading.StationID,
		SensorID:          reading.SensorID,
		Value:             reading.Value,
		Unit:              reading.Unit,
		Timestamp:         reading.Timestamp,
		ReceivedAt:        time.Now(),
		Status:            string(result.Status),
		ControlStatus:     string(result.ControlStatus),
		SpecStatus:        string(result.SpecStatus),
		DeviationPct:      result.DeviationPct,
		UpperControlLimit: reading.UpperControlLimit,
		LowerControlLimit: reading.LowerControlLimit,
		UpperSpecLimit:    reading.UpperSpecLimit,
		LowerSpecLimit:    reading.LowerSpecLimit,
	}
	if result.AlertID != "" {
		row.AlertID = &result.AlertID
	}
	if reading.WorkOrder != "" {
		row.WorkOrder = &reading.WorkOrder
	}
	if reading.Item != "" {
		row.Item = &reading.Item
	}
	if reading.BatchNo != "" {
		row.BatchNo = &reading.BatchNo
	}
	return r.readings.Enqueue(row)
}

// UpsertBaseline persists the rolling-statistics snapshot.
func (r *Repository) UpsertBaseline(ctx context.Context, b *stats.Baseline) error {
	return r.db.UpsertBaseline(ctx, &BaselineRow{
		ParameterID: b.ParameterID,
		XBar:        b.XBar,
		RangeValue:  b.Range,
		MovingRange: b.MovingRange,
		StdDev:      b.StdDev,
		SampleSize:  b.SampleSize,
		LastUpdated: b.LastUpdated,
	})
}

// GetThresholdConfig reads a parameter's threshold configuration.
func (r *Repository) GetThresholdConfig(ctx context.Context, parameterID string) (*threshold.Config, error) {
	return r.db.GetThresholdConfig(ctx, parameterID)
}

// GetSpecConfig reads a parameter's specification.
func (r *Repository) GetSpecConfig(ctx context.Context, parameterID string) (*threshold.SpecConfig, error) {
	return r.db.GetSpecConfig(ctx, parameterID)
}

// GetTrend returns a parameter's reading history for charting.
func (r *Repository) GetTrend(ctx context.Context, parameterID string, from, to time.Time) ([]engine.TrendPoint, error) {
	rows, err := r.db.GetTrendRows(ctx, parameterID, from, to)
	if err != nil {
		return nil, err
	}
	points := make([]engine.TrendPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, engine.TrendPoint{
			Timestamp:     row.Timestamp,
			Value:         row.Value,
			ControlStatus: row.ControlStatus,
			SpecStatus:    row.SpecStatus,
		})
	}
	return points, nil
}

// ListActiveAlerts returns non-Resolved alerts matching the filter.
func (r *Repository) ListActiveAlerts(ctx context.Context, filter engine.AlertFilter) ([]*alerting.Alert, error) {
	return r.db.ListActiveAlerts(ctx, filter.StationID, filter.SensorID, filter.ParameterID, filter.Severity)
}
