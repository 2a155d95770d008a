package store

import (
	"context"
	"fmt"
	"time"
)

// InsertPerformanceMetric appends one metric observation. The caller
// supplies the context version that was active at recording time.
func (s *Store) InsertPerformanceMetric(ctx context.Context, m *PerformanceMetric) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO context_performance
			(client_id, capability, context_version, metric_name, metric_value, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ClientID, m.Capability, m.ContextVersion, m.MetricName, m.MetricValue,
		formatTime(m.RecordedAt))
	if err != nil {
		return fmt.Errorf("%w: inserting performance metric: %w", ErrUnavailable, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		m.ID = id
	}
	return nil
}

// LatestPerformanceMetrics returns the most recent value per metric name
// for (clientID, capability).
func (s *Store) LatestPerformanceMetrics(ctx context.Context, clientID, capability string) (map[string]float64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT metric_name, metric_value
		FROM context_performance
		WHERE client_id = ? AND capability = ?
		  AND id IN (
			SELECT MAX(id) FROM context_performance
			WHERE client_id = ? AND capability = ?
			GROUP BY metric_name
		  )`,
		clientID, capability, clientID, capability)
	if err != nil {
		return nil, fmt.Errorf("%w: querying performance metrics: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	metrics := map[string]float64{}
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("%w: scanning performance metric: %w", ErrUnavailable, err)
		}
		metrics[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating performance metrics: %w", ErrUnavailable, err)
	}
	return metrics, nil
}
