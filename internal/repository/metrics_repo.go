package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/soenlit/health-buddy/internal/domain"
)

// ErrInvalidSample is returned when a sample cannot be stored as-is
// (non-finite value, missing metric type or timestamp).
var ErrInvalidSample = errors.New("invalid metric sample")

// MetricsRepository health_metrics 表的读写接口
type MetricsRepository interface {
	// Upsert inserts one sample, replacing the row with the same (timestamp, metric_type).
	Upsert(ctx context.Context, sample *domain.MetricSample) error

	// UpsertBatch writes all samples in a single transaction and returns the
	// number of rows written. On any error nothing is committed and 0 is returned.
	UpsertBatch(ctx context.Context, samples []domain.MetricSample) (int, error)

	// QueryRange returns samples of the given types with since <= timestamp < until,
	// ordered by timestamp.
	QueryRange(ctx context.Context, metricTypes []string, since, until time.Time) ([]domain.MetricSample, error)
}

// ValidateSample rejects samples the store cannot key or compare.
func ValidateSample(s *domain.MetricSample) error {
	if s.MetricType == "" {
		return fmt.Errorf("%w: empty metric type", ErrInvalidSample)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: %s has no timestamp", ErrInvalidSample, s.MetricType)
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return fmt.Errorf("%w: %s at %s has non-finite value", ErrInvalidSample, s.MetricType, s.Timestamp.Format(time.RFC3339))
	}
	return nil
}
