package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/internal/domain"
)

const upsertMetricSQL = `
	INSERT INTO health_metrics (
		timestamp, metric_type, value, unit, source, raw_payload, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	ON CONFLICT (timestamp, metric_type)
	DO UPDATE SET value = EXCLUDED.value,
	              unit = EXCLUDED.unit,
	              source = EXCLUDED.source,
	              raw_payload = EXCLUDED.raw_payload,
	              updated_at = NOW()`

// PostgresMetricsRepository MetricsRepository backed by PostgreSQL
type PostgresMetricsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresMetricsRepository creates a metrics repository
func NewPostgresMetricsRepository(db *sql.DB, logger *zap.Logger) *PostgresMetricsRepository {
	return &PostgresMetricsRepository{db: db, logger: logger}
}

var _ MetricsRepository = (*PostgresMetricsRepository)(nil)

func (r *PostgresMetricsRepository) Upsert(ctx context.Context, sample *domain.MetricSample) error {
	if err := ValidateSample(sample); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, upsertMetricSQL, upsertArgs(sample)...)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", sample.MetricType, err)
	}
	return nil
}

func (r *PostgresMetricsRepository) UpsertBatch(ctx context.Context, samples []domain.MetricSample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	// 先整体校验，避免事务中途失败
	for i := range samples {
		if err := ValidateSample(&samples[i]); err != nil {
			return 0, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertMetricSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range samples {
		if _, err := stmt.ExecContext(ctx, upsertArgs(&samples[i])...); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Rollback failed", zap.Error(rbErr))
			}
			return 0, fmt.Errorf("failed to upsert %s at %s: %w",
				samples[i].MetricType, samples[i].Timestamp.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}

	r.logger.Debug("Upserted metric batch", zap.Int("rows", len(samples)))
	return len(samples), nil
}

func (r *PostgresMetricsRepository) QueryRange(ctx context.Context, metricTypes []string, since, until time.Time) ([]domain.MetricSample, error) {
	if len(metricTypes) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, timestamp, metric_type, value,
		       COALESCE(unit, ''), COALESCE(source, ''), raw_payload
		FROM health_metrics
		WHERE metric_type = ANY($1)
		  AND timestamp >= $2
		  AND timestamp < $3
		ORDER BY timestamp ASC`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(metricTypes), since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query health_metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.MetricSample
	for rows.Next() {
		var s domain.MetricSample
		var raw []byte
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.MetricType, &s.Value, &s.Unit, &s.Source, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan health_metrics: %w", err)
		}
		if len(raw) > 0 {
			s.RawPayload = raw
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate health_metrics: %w", err)
	}
	return out, nil
}

func upsertArgs(s *domain.MetricSample) []interface{} {
	source := s.Source
	if source == "" {
		source = domain.DefaultSource
	}
	var raw interface{}
	if len(s.RawPayload) > 0 {
		raw = []byte(s.RawPayload)
	}
	return []interface{}{s.Timestamp, s.MetricType, s.Value, s.Unit, source, raw}
}
