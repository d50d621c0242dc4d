package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/internal/domain"
)

// BatchWriter the part of the metrics repository the worker needs
type BatchWriter interface {
	UpsertBatch(ctx context.Context, samples []domain.MetricSample) (int, error)
}

// Processor turns queued jobs into stored samples
type Processor struct {
	store    BatchWriter
	location *time.Location
	source   string
	logger   *zap.Logger
}

// NewProcessor creates a processor. loc is used for dates without a zone.
func NewProcessor(store BatchWriter, loc *time.Location, source string, logger *zap.Logger) *Processor {
	if loc == nil {
		loc = time.Local
	}
	return &Processor{store: store, location: loc, source: source, logger: logger}
}

// Handle is a JobHandler.
func (p *Processor) Handle(ctx context.Context, job Job) error {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	res := Flatten(&payload, p.location, p.source)
	if res.SkippedMetrics > 0 || res.Skipped > 0 {
		p.logger.Warn("Skipped malformed samples",
			zap.String("job_id", job.ID),
			zap.Int("skipped_samples", res.Skipped),
			zap.Int("skipped_metrics", res.SkippedMetrics),
		)
	}

	rows, err := p.store.UpsertBatch(ctx, res.Samples)
	if err != nil {
		return fmt.Errorf("failed to store %d samples: %w", len(res.Samples), err)
	}

	p.logger.Info("Ingested webhook payload",
		zap.String("job_id", job.ID),
		zap.Int("metrics", len(payload.Data.Metrics)),
		zap.Int("rows", rows),
		zap.Duration("queue_latency", time.Since(job.ReceivedAt)),
	)
	return nil
}
