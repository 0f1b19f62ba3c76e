package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ambworks/spc-server/internal/alerting"
	"github.com/ambworks/spc-server/internal/protocol"
	"github.com/ambworks/spc-server/internal/stats"
	"github.com/ambworks/spc-server/internal/threshold"
	"github.com/ambworks/spc-server/pkg/config"
)

// Result is returned for every accepted reading.
type Result struct {
	Status        protocol.ReadingStatus
	XBar          float64
	Range         float64
	MovingRange   float64
	StdDev        float64
	ControlStatus threshold.ControlState
	SpecStatus    threshold.SpecStatus
	DeviationPct  float64

	// Quality is the lightweight per-reading dispersion flag: Pending until
	// the window reaches the minimum sample size, Invalid when the value sits
	// more than sigmaLevel population standard deviations from the window
	// mean, Valid otherwise.
	Quality protocol.ReadingStatus

	AlertID string
}

// paramSlot owns all mutable state for one parameter. Its mutex serializes
// window and ordering updates for that parameter only; distinct parameters
// proceed in parallel.
type paramSlot struct {
	mu     sync.Mutex
	window *stats.Window
	lastTS time.Time
}

type cachedThreshold struct {
	cfg      *threshold.Config
	spec     *threshold.SpecConfig
	loadedAt time.Time
}

// Engine is the ingestion gateway. It orchestrates validation, rolling
// statistics, threshold evaluation and alerting for each reading, and
// answers snapshot queries.
type Engine struct {
	cfg       config.SPCConfig
	repo      Repository
	alerts    AlertEvaluator
	publisher Publisher

	slots sync.Map // parameterID -> *paramSlot

	cacheMu sync.Mutex
	cache   map[string]*cachedThreshold
}

// New creates an ingestion engine. alerts and publisher may be nil.
func New(cfg config.SPCConfig, repo Repository, alerts AlertEvaluator, publisher Publisher) *Engine {
	return &Engine{
		cfg:       cfg,
		repo:      repo,
		alerts:    alerts,
		publisher: publisher,
		cache:     make(map[string]*cachedThreshold),
	}
}

// Submit processes one raw reading: validate, update the rolling window,
// evaluate control and specification state, raise alerts, persist and
// publish. Validation failures return before any mutation. Persistence,
// alert dispatch and publish failures after the in-memory commit are logged
// and do not fail the call.
func (e *Engine) Submit(ctx context.Context, data *protocol.ReadingData, stationID string) (*Result, error) {
	reading, err := protocol.ValidateReading(data, stationID, time.Now(), e.cfg.ClockSkew)
	if err != nil {
		return nil, err
	}

	thrCfg, specCfg := e.thresholdConfig(ctx, reading.ParameterID)

	// Scaling is part of normalization: the window, thresholds and spec
	// checks all see the engineering value.
	if thrCfg != nil {
		reading.Value = thrCfg.Scale(reading.Value)
	}

	usl, lsl := effectiveSpecLimits(reading, specCfg)

	slot := e.slot(reading.ParameterID)

	slot.mu.Lock()
	if e.cfg.RejectOutOfOrder && !slot.lastTS.IsZero() && reading.Timestamp.Before(slot.lastTS) {
		slot.mu.Unlock()
		return nil, outOfOrderError(reading, slot.lastTS)
	}

	result := &Result{
		SpecStatus:   threshold.EvaluateSpec(reading.Value, usl, lsl),
		DeviationPct: threshold.DeviationPercent(reading.Value, usl, lsl),
	}
	if thrCfg != nil {
		result.ControlStatus = thrCfg.Evaluate(reading.Value)
	} else {
		result.ControlStatus = threshold.StateNormal
	}

	reading.Status = readingStatus(reading, result.SpecStatus)
	result.Status = reading.Status

	// Only valid readings enter the baseline; an invalid reading reports
	// the pre-existing statistics.
	var baseline *stats.Baseline
	if reading.Status == protocol.ReadingValid {
		slot.window.Append(reading.Value)
		baseline = slot.window.Baseline(reading.ParameterID, reading.Timestamp)
	} else {
		baseline = slot.window.Baseline(reading.ParameterID, slot.lastTS)
	}
	result.Quality = qualityFlag(reading.Value, slot.window, e.cfg)
	slot.lastTS = reading.Timestamp
	slot.mu.Unlock()

	result.XBar = baseline.XBar
	result.Range = baseline.Range
	result.MovingRange = baseline.MovingRange
	result.StdDev = baseline.StdDev

	// All I/O happens outside the parameter critical section.
	if e.alerts != nil && result.ControlStatus != threshold.StateNormal {
		action, alertErr := e.alerts.Evaluate(ctx, alerting.EvalInput{
			ParameterID: reading.ParameterID,
			StationID:   reading.StationID,
			SensorID:    reading.SensorID,
			State:       result.ControlStatus,
			Value:       reading.Value,
			Message:     alertMessage(reading, result.ControlStatus),
			At:          time.Now(),
		})
		if alertErr != nil {
			log.Printf("Alert dispatch for parameter %s: %v", reading.ParameterID, alertErr)
		}
		result.AlertID = action.AlertID
	}

	if err := e.repo.AppendReading(ctx, reading, result); err != nil {
		log.Printf("Failed to persist reading for parameter %s: %v", reading.ParameterID, err)
	}
	if reading.Status == protocol.ReadingValid {
		if err := e.repo.UpsertBaseline(ctx, baseline); err != nil {
			log.Printf("Failed to persist baseline for parameter %s: %v", reading.ParameterID, err)
		}
	}
	e.publishBestEffort(ctx, reading, result)

	return result, nil
}

// GetBaseline returns the current baseline snapshot for a parameter, or
// false when the engine has not seen it.
func (e *Engine) GetBaseline(parameterID string) (*stats.Baseline, bool) {
	v, ok := e.slots.Load(parameterID)
	if !ok {
		return nil, false
	}
	slot := v.(*paramSlot)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.window.Len() == 0 {
		return nil, false
	}
	return slot.window.Baseline(parameterID, slot.lastTS), true
}

// GetCapability computes the capability snapshot for a parameter against its
// configured specification. The result is soft-unavailable (never an error)
// below the minimum sample size or without a specification.
func (e *Engine) GetCapability(ctx context.Context, parameterID string) *stats.Capability {
	now := time.Now()
	v, ok := e.slots.Load(parameterID)
	if !ok {
		return &stats.Capability{ParameterID: parameterID, ComputedAt: now}
	}
	_, specCfg := e.thresholdConfig(ctx, parameterID)
	if specCfg == nil {
		return &stats.Capability{ParameterID: parameterID, ComputedAt: now}
	}
	usl, lsl := specCfg.Limits()

	slot := v.(*paramSlot)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return stats.ComputeCapability(parameterID, slot.window, usl, lsl, e.cfg.MinSamples, now)
}

// GetTrend returns a parameter's reading history in a time range.
func (e *Engine) GetTrend(ctx context.Context, parameterID string, from, to time.Time) ([]TrendPoint, error) {
	return e.repo.GetTrend(ctx, parameterID, from, to)
}

// ListActiveAlerts returns non-Resolved alerts matching the filter.
func (e *Engine) ListActiveAlerts(ctx context.Context, filter AlertFilter) ([]*alerting.Alert, error) {
	return e.repo.ListActiveAlerts(ctx, filter)
}

func (e *Engine) slot(parameterID string) *paramSlot {
	if v, ok := e.slots.Load(parameterID); ok {
		return v.(*paramSlot)
	}
	v, _ := e.slots.LoadOrStore(parameterID, &paramSlot{
		window: stats.NewWindow(e.cfg.WindowSize, e.cfg.SubgroupSize),
	})
	return v.(*paramSlot)
}

// thresholdConfig returns the cached threshold and spec configuration for a
// parameter, reloading after the cache TTL. Lookup failures are logged and
// treated as no configuration.
func (e *Engine) thresholdConfig(ctx context.Context, parameterID string) (*threshold.Config, *threshold.SpecConfig) {
	e.cacheMu.Lock()
	entry, ok := e.cache[parameterID]
	if ok && time.Since(entry.loadedAt) < e.cfg.ThresholdCacheTTL {
		e.cacheMu.Unlock()
		return entry.cfg, entry.spec
	}
	e.cacheMu.Unlock()

	cfg, err := e.repo.GetThresholdConfig(ctx, parameterID)
	if err != nil {
		log.Printf("Failed to load threshold config for %s: %v", parameterID, err)
		cfg = nil
	}
	spec, err := e.repo.GetSpecConfig(ctx, parameterID)
	if err != nil {
		log.Printf("Failed to load spec config for %s: %v", parameterID, err)
		spec = nil
	}

	e.cacheMu.Lock()
	e.cache[parameterID] = &cachedThreshold{cfg: cfg, spec: spec, loadedAt: time.Now()}
	e.cacheMu.Unlock()
	return cfg, spec
}

// InvalidateConfig drops a parameter's cached configuration, forcing a
// reload on the next reading (used after configuration writes).
func (e *Engine) InvalidateConfig(parameterID string) {
	e.cacheMu.Lock()
	delete(e.cache, parameterID)
	e.cacheMu.Unlock()
}

func (e *Engine) publishBestEffort(ctx context.Context, reading *protocol.Reading, result *Result) {
	if e.publisher == nil {
		return
	}
	event := &protocol.ReadingEvent{
		ParameterID:   reading.ParameterID,
		StationID:     reading.StationID,
		SensorID:      reading.SensorID,
		Value:         reading.Value,
		Unit:          reading.Unit,
		Timestamp:     reading.Timestamp,
		ReceivedAt:    time.Now(),
		XBar:          result.XBar,
		Range:         result.Range,
		MovingRange:   result.MovingRange,
		StdDev:        result.StdDev,
		ControlStatus: string(result.ControlStatus),
		SpecStatus:    string(result.SpecStatus),
		DeviationPct:  result.DeviationPct,
		WorkOrder:     reading.WorkOrder,
		Item:          reading.Item,
		BatchNo:       reading.BatchNo,
	}
	if err := e.publisher.PublishReading(ctx, event); err != nil {
		log.Printf("Failed to publish reading event for parameter %s: %v", reading.ParameterID, err)
	}
}

// effectiveSpecLimits prefers limits carried on the reading, falling back to
// the parameter's configured specification.
func effectiveSpecLimits(reading *protocol.Reading, spec *threshold.SpecConfig) (usl, lsl *float64) {
	usl = reading.UpperSpecLimit
	lsl = reading.LowerSpecLimit
	if usl == nil && lsl == nil && spec != nil {
		u, l := spec.Limits()
		usl, lsl = &u, &l
	}
	return usl, lsl
}

// readingStatus downgrades a reading that falls outside its carried control
// limits or fails specification. Invalid readings are persisted but excluded
// from the baseline window.
func readingStatus(reading *protocol.Reading, spec threshold.SpecStatus) protocol.ReadingStatus {
	if spec == threshold.SpecFail {
		return protocol.ReadingInvalid
	}
	if reading.UpperControlLimit != nil && reading.Value > *reading.UpperControlLimit {
		return protocol.ReadingInvalid
	}
	if reading.LowerControlLimit != nil && reading.Value < *reading.LowerControlLimit {
		return protocol.ReadingInvalid
	}
	return protocol.ReadingValid
}

// qualityFlag is the cheap per-reading dispersion check. It uses the
// population-variance form, which is kept separate from the sample standard
// deviation that feeds capability.
func qualityFlag(value float64, w *stats.Window, cfg config.SPCConfig) protocol.ReadingStatus {
	if w.Len() < cfg.MinSamples {
		return protocol.ReadingPending
	}
	pv := w.PopulationVariance()
	if pv == 0 {
		return protocol.ReadingValid
	}
	d := value - w.XBar()
	if d*d > cfg.SigmaLevel*cfg.SigmaLevel*pv {
		return protocol.ReadingInvalid
	}
	return protocol.ReadingValid
}

func alertMessage(reading *protocol.Reading, state threshold.ControlState) string {
	unit := reading.Unit
	if unit != "" {
		unit = " " + unit
	}
	return fmt.Sprintf("%s %s: %.4f%s at %s",
		reading.ParameterID, state, reading.Value, unit, reading.Timestamp.Format(time.RFC3339))
}

func outOfOrderError(reading *protocol.Reading, lastTS time.Time) error {
	data := fmt.Sprintf("reading at %s arrived after %s was already applied",
		reading.Timestamp.Format(time.RFC3339), lastTS.Format(time.RFC3339))
	return protocol.NewOutOfOrderError(data)
}
