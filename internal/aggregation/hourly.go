package aggregation

import (
	"fmt"
	"time"

	"github.com/ambworks/spc-server/internal/database"
)

// HourlyAggregator rolls raw readings up into per-parameter hourly summary
// rows (average/min/max, sample count, within-spec yield).
type HourlyAggregator struct {
	db *database.DB
}

// NewHourlyAggregator creates a new hourly aggregator
func NewHourlyAggregator(db *database.DB) *HourlyAggregator {
	return &HourlyAggregator{db: db}
}

// Aggregate performs hourly aggregation for the specified hour
func (h *HourlyAggregator) Aggregate(targetHour time.Time) error {
	startTime := targetHour.Truncate(time.Hour)
	endTime := startTime.Add(time.Hour)

	fmt.Printf("Running hourly aggregation for %s\n", startTime.Format("2006-01-02 15:04:05"))

	query := `
		INSERT INTO hourly_summaries (
			parameter_id, hour_timestamp, avg_value, min_value, max_value,
			sample_count, within_spec_count, yield_pct
		)
		SELECT
			parameter_id,
			$1 AS hour_timestamp,
			AVG(value) AS avg_value,
			MIN(value) AS min_value,
			MAX(value) AS max_value,
			COUNT(*) AS sample_count,
			SUM(CASE WHEN spec_status = 'Pass' THEN 1 ELSE 0 END) AS within_spec_count,
			CASE WHEN COUNT(*) > 0
			     THEN SUM(CASE WHEN spec_status = 'Pass' THEN 1 ELSE 0 END) * 100.0 / COUNT(*)
			     ELSE 0
			END AS yield_pct
		FROM
			readings
		WHERE
			timestamp >= $1 AND timestamp < $2
		GROUP BY
			parameter_id
		ON CONFLICT (parameter_id, hour_timestamp) DO UPDATE
		SET
			avg_value = EXCLUDED.avg_value,
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value,
			sample_count = EXCLUDED.sample_count,
			within_spec_count = EXCLUDED.within_spec_count,
			yield_pct = EXCLUDED.yield_pct
	`

	result, err := h.db.Exec(query, startTime, endTime)
	if err != nil {
		return fmt.Errorf("failed to aggregate hourly data: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	fmt.Printf("Hourly aggregation completed: %d parameters processed\n", rowsAffected)

	return nil
}

// AggregatePreviousHour aggregates the previous full hour
func (h *HourlyAggregator) AggregatePreviousHour() error {
	now := time.Now()
	previousHour := now.Add(-1 * time.Hour).Truncate(time.Hour)
	return h.Aggregate(previousHour)
}

// CalculateNextRunTime calculates when the hourly aggregation should next
// run: delay past each hour boundary.
func (h *HourlyAggregator) CalculateNextRunTime(delay time.Duration) time.Time {
	now := time.Now()

	nextHour := now.Truncate(time.Hour).Add(time.Hour)
	nextRun := nextHour.Add(delay)

	if now.After(nextRun) {
		nextRun = nextRun.Add(time.Hour)
	}

	return nextRun
}
