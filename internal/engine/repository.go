package engine

import (
	"context"
	"time"

	"github.com/ambworks/spc-server/internal/alerting"
	"github.com/ambworks/spc-server/internal/protocol"
	"github.com/ambworks/spc-server/internal/stats"
	"github.com/ambworks/spc-server/internal/threshold"
)

// TrendPoint is one point of a parameter's history for charting.
type TrendPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Value         float64   `json:"value"`
	ControlStatus string    `json:"control_status"`
	SpecStatus    string    `json:"spec_status"`
}

// AlertFilter narrows an active-alerts query. Empty fields match everything.
type AlertFilter struct {
	StationID   string
	SensorID    string
	ParameterID string
	Severity    string
}

// Repository is the storage collaborator for the ingestion engine. The
// engine is storage-agnostic; internal/database provides the Postgres
// implementation.
type Repository interface {
	AppendReading(ctx context.Context, reading *protocol.Reading, result *Result) error
	UpsertBaseline(ctx context.Context, baseline *stats.Baseline) error
	GetThresholdConfig(ctx context.Context, parameterID string) (*threshold.Config, error)
	GetSpecConfig(ctx context.Context, parameterID string) (*threshold.SpecConfig, error)
	GetTrend(ctx context.Context, parameterID string, from, to time.Time) ([]TrendPoint, error)
	ListActiveAlerts(ctx context.Context, filter AlertFilter) ([]*alerting.Alert, error)
}

// Publisher is the outbound event collaborator for committed readings.
type Publisher interface {
	PublishReading(ctx context.Context, event *protocol.ReadingEvent) error
}

// AlertEvaluator is satisfied by *alerting.Manager.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, in alerting.EvalInput) (alerting.AlertAction, error)
}
