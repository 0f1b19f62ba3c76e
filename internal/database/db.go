package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/ambworks/spc-server/internal/alerting"
	"github.com/ambworks/spc-server/internal/threshold"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		fmt.Printf("Running migration: %s\n", filename)

		filePath := filepath.Join(migrationsDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	fmt.Println("All migrations completed successfully")
	return nil
}

// InsertReadingBatch inserts a batch of readings in one transaction.
func (db *DB) InsertReadingBatch(ctx context.Context, rows []*ReadingRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (
			parameter_id, station_id, sensor_id, value, unit, timestamp,
			received_at, status, control_status, spec_status, deviation_pct,
			alert_id, upper_control_limit, lower_control_limit,
			upper_spec_limit, lower_spec_limit, work_order, item, batch_no
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.ParameterID, r.StationID, r.SensorID, r.Value, r.Unit, r.Timestamp,
			r.ReceivedAt, r.Status, r.ControlStatus, r.SpecStatus, r.DeviationPct,
			r.AlertID, r.UpperControlLimit, r.LowerControlLimit,
			r.UpperSpecLimit, r.LowerSpecLimit, r.WorkOrder, r.Item, r.BatchNo,
		); err != nil {
			return fmt.Errorf("failed to insert reading: %w", err)
		}
	}

	return tx.Commit()
}

// UpsertBaseline writes the rolling-statistics snapshot for a parameter.
func (db *DB) UpsertBaseline(ctx context.Context, b *BaselineRow) error {
	query := `
		INSERT INTO baselines (
			parameter_id, x_bar, range_value, moving_range, std_dev,
			sample_size, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (parameter_id) DO UPDATE
		SET x_bar = EXCLUDED.x_bar,
		    range_value = EXCLUDED.range_value,
		    moving_range = EXCLUDED.moving_range,
		    std_dev = EXCLUDED.std_dev,
		    sample_size = EXCLUDED.sample_size,
		    last_updated = EXCLUDED.last_updated
	`
	_, err := db.ExecContext(ctx, query,
		b.ParameterID, b.XBar, b.RangeValue, b.MovingRange, b.StdDev,
		b.SampleSize, b.LastUpdated)
	return err
}

// GetBaseline reads the persisted baseline for a parameter.
func (db *DB) GetBaseline(ctx context.Context, parameterID string) (*BaselineRow, error) {
	query := `
		SELECT parameter_id, x_bar, range_value, moving_range, std_dev,
		       sample_size, last_updated
		FROM baselines
		WHERE parameter_id = $1
	`
	var b BaselineRow
	err := db.QueryRowContext(ctx, query, parameterID).Scan(
		&b.ParameterID, &b.XBar, &b.RangeValue, &b.MovingRange, &b.StdDev,
		&b.SampleSize, &b.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpsertThresholdConfig validates then writes a threshold configuration.
// Ordering violations surface as *threshold.ConfigError and nothing is
// written.
func (db *DB) UpsertThresholdConfig(ctx context.Context, cfg *threshold.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO threshold_configs (
			parameter_id, upper_alarm, upper_warning, lower_warning,
			lower_alarm, scaling_factor, offset_value, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
		ON CONFLICT (parameter_id) DO UPDATE
		SET upper_alarm = EXCLUDED.upper_alarm,
		    upper_warning = EXCLUDED.upper_warning,
		    lower_warning = EXCLUDED.lower_warning,
		    lower_alarm = EXCLUDED.lower_alarm,
		    scaling_factor = EXCLUDED.scaling_factor,
		    offset_value = EXCLUDED.offset_value,
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err := db.ExecContext(ctx, query,
		cfg.ParameterID, cfg.UpperAlarm, cfg.UpperWarning, cfg.LowerWarning,
		cfg.LowerAlarm, cfg.ScalingFactor, cfg.Offset)
	return err
}

// GetThresholdConfig reads the threshold configuration for a parameter, or
// nil when none is configured.
func (db *DB) GetThresholdConfig(ctx context.Context, parameterID string) (*threshold.Config, error) {
	query := `
		SELECT parameter_id, upper_alarm, upper_warning, lower_warning,
		       lower_alarm, scaling_factor, offset_value
		FROM threshold_configs
		WHERE parameter_id = $1
	`
	cfg := &threshold.Config{}
	err := db.QueryRowContext(ctx, query, parameterID).Scan(
		&cfg.ParameterID, &cfg.UpperAlarm, &cfg.UpperWarning, &cfg.LowerWarning,
		&cfg.LowerAlarm, &cfg.ScalingFactor, &cfg.Offset)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpsertSpecConfig validates then writes a specification configuration.
func (db *DB) UpsertSpecConfig(ctx context.Context, spec *threshold.SpecConfig) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO spec_configs (
			parameter_id, target_value, tolerance_plus, tolerance_minus, updated_at
		) VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (parameter_id) DO UPDATE
		SET target_value = EXCLUDED.target_value,
		    tolerance_plus = EXCLUDED.tolerance_plus,
		    tolerance_minus = EXCLUDED.tolerance_minus,
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err := db.ExecContext(ctx, query,
		spec.ParameterID, spec.Target, spec.TolerancePlus, spec.ToleranceMinus)
	return err
}

// GetSpecConfig reads the specification for a parameter, or nil when none is
// configured.
func (db *DB) GetSpecConfig(ctx context.Context, parameterID string) (*threshold.SpecConfig, error) {
	query := `
		SELECT parameter_id, target_value, tolerance_plus, tolerance_minus
		FROM spec_configs
		WHERE parameter_id = $1
	`
	spec := &threshold.SpecConfig{}
	err := db.QueryRowContext(ctx, query, parameterID).Scan(
		&spec.ParameterID, &spec.Target, &spec.TolerancePlus, &spec.ToleranceMinus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// UpsertChartConfig validates then writes control-chart display settings.
func (db *DB) UpsertChartConfig(ctx context.Context, chart *threshold.ChartConfig) error {
	if err := chart.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO chart_configs (
			parameter_id, sigma_level, sample_size, data_points,
			refresh_interval, updated_at
		) VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		ON CONFLICT (parameter_id) DO UPDATE
		SET sigma_level = EXCLUDED.sigma_level,
		    sample_size = EXCLUDED.sample_size,
		    data_points = EXCLUDED.data_points,
		    refresh_interval = EXCLUDED.refresh_interval,
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err := db.ExecContext(ctx, query,
		chart.ParameterID, chart.SigmaLevel, chart.SampleSize,
		chart.DataPoints, chart.RefreshInterval)
	return err
}

// InsertAlert inserts a new alert row.
func (db *DB) InsertAlert(ctx context.Context, alert *alerting.Alert) error {
	query := `
		INSERT INTO alerts (
			id, alert_type, severity, status, station_id, sensor_id,
			parameter_id, message, value, opened_at, last_updated, escalated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := db.ExecContext(ctx, query,
		alert.ID, alert.AlertType, alert.Severity, alert.Status,
		alert.StationID, alert.SensorID, alert.ParameterID, alert.Message,
		alert.Value, alert.OpenedAt, alert.LastUpdated, alert.Escalated)
	return err
}

// GetAlert reads one alert by ID, or nil when it does not exist.
func (db *DB) GetAlert(ctx context.Context, alertID string) (*alerting.Alert, error) {
	query := `
		SELECT id, alert_type, severity, status, station_id, sensor_id,
		       parameter_id, message, value, opened_at, last_updated,
		       escalated, COALESCE(acknowledged_by, ''),
		       COALESCE(resolved_by, ''), COALESCE(resolution_notes, '')
		FROM alerts
		WHERE id = $1
	`
	var a alerting.Alert
	err := db.QueryRowContext(ctx, query, alertID).Scan(
		&a.ID, &a.AlertType, &a.Severity, &a.Status, &a.StationID, &a.SensorID,
		&a.ParameterID, &a.Message, &a.Value, &a.OpenedAt, &a.LastUpdated,
		&a.Escalated, &a.AcknowledgedBy, &a.ResolvedBy, &a.ResolutionNotes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAlertActivity refreshes an Open alert with the latest breach.
func (db *DB) UpdateAlertActivity(ctx context.Context, alertID, message string, value float64, at time.Time) error {
	query := `
		UPDATE alerts
		SET message = $1, value = $2, last_updated = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, message, value, at, alertID)
	return err
}

// SetAlertStatus applies a lifecycle transition with the acting user.
func (db *DB) SetAlertStatus(ctx context.Context, alertID, status, actor, notes string, at time.Time) error {
	var query string
	switch status {
	case alerting.StatusAcknowledged:
		query = `
			UPDATE alerts
			SET status = $1, acknowledged_by = $2, last_updated = $3
			WHERE id = $4
		`
	case alerting.StatusResolved:
		query = `
			UPDATE alerts
			SET status = $1, resolved_by = $2, resolution_notes = $3, last_updated = $4
			WHERE id = $5
		`
	default:
		return fmt.Errorf("unsupported alert status %q", status)
	}

	if status == alerting.StatusAcknowledged {
		_, err := db.ExecContext(ctx, query, status, actor, at, alertID)
		return err
	}
	_, err := db.ExecContext(ctx, query, status, actor, notes, at, alertID)
	return err
}

// MarkAlertEscalated flags an Open alert as escalated.
func (db *DB) MarkAlertEscalated(ctx context.Context, alertID string, at time.Time) error {
	query := `
		UPDATE alerts
		SET escalated = true, last_updated = $1
		WHERE id = $2
	`
	_, err := db.ExecContext(ctx, query, at, alertID)
	return err
}

// ListOpenAlertsBefore returns Open alerts opened at or before the cutoff.
func (db *DB) ListOpenAlertsBefore(ctx context.Context, cutoff time.Time) ([]*alerting.Alert, error) {
	query := `
		SELECT id, alert_type, severity, status, station_id, sensor_id,
		       parameter_id, message, value, opened_at, last_updated,
		       escalated, COALESCE(acknowledged_by, ''),
		       COALESCE(resolved_by, ''), COALESCE(resolution_notes, '')
		FROM alerts
		WHERE status = $1 AND opened_at <= $2
		ORDER BY opened_at
	`
	return db.scanAlerts(ctx, query, alerting.StatusOpen, cutoff)
}

// ListActiveAlerts returns non-Resolved alerts matching the filter fields
// that are set.
func (db *DB) ListActiveAlerts(ctx context.Context, stationID, sensorID, parameterID, severity string) ([]*alerting.Alert, error) {
	query := `
		SELECT id, alert_type, severity, status, station_id, sensor_id,
		       parameter_id, message, value, opened_at, last_updated,
		       escalated, COALESCE(acknowledged_by, ''),
		       COALESCE(resolved_by, ''), COALESCE(resolution_notes, '')
		FROM alerts
		WHERE status != $1
		  AND ($2 = '' OR station_id = $2)
		  AND ($3 = '' OR sensor_id = $3)
		  AND ($4 = '' OR parameter_id = $4)
		  AND ($5 = '' OR severity = $5)
		ORDER BY opened_at DESC
	`
	return db.scanAlerts(ctx, query, alerting.StatusResolved, stationID, sensorID, parameterID, severity)
}

func (db *DB) scanAlerts(ctx context.Context, query string, args ...interface{}) ([]*alerting.Alert, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*alerting.Alert
	for rows.Next() {
		var a alerting.Alert
		if err := rows.Scan(
			&a.ID, &a.AlertType, &a.Severity, &a.Status, &a.StationID,
			&a.SensorID, &a.ParameterID, &a.Message, &a.Value, &a.OpenedAt,
			&a.LastUpdated, &a.Escalated, &a.AcknowledgedBy, &a.ResolvedBy,
			&a.ResolutionNotes,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// GetTrendRows returns readings for one parameter in a time range, oldest
// first.
func (db *DB) GetTrendRows(ctx context.Context, parameterID string, from, to time.Time) ([]*ReadingRow, error) {
	query := `
		SELECT timestamp, value, control_status, spec_status
		FROM readings
		WHERE parameter_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC
	`
	rows, err := db.QueryContext(ctx, query, parameterID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ReadingRow
	for rows.Next() {
		r := &ReadingRow{ParameterID: parameterID}
		if err := rows.Scan(&r.Timestamp, &r.Value, &r.ControlStatus, &r.SpecStatus); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
