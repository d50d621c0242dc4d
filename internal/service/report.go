package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/internal/aggregator"
	"github.com/soenlit/health-buddy/internal/insight"
	"github.com/soenlit/health-buddy/internal/notifier"
)

// StatsComputer aggregation step
type StatsComputer interface {
	ComputeStats(ctx context.Context, now time.Time, windowDays int) (*aggregator.Stats, error)
}

// InsightGenerator insight step
type InsightGenerator interface {
	Generate(ctx context.Context, st *aggregator.Stats) insight.Result
}

// ReportRun 一次报告运行的结果
type ReportRun struct {
	Stats      *aggregator.Stats
	Insight    insight.Result
	Deliveries []notifier.Delivery
	DryRun     bool
}

// ReportService aggregates, generates and delivers one report per run
type ReportService struct {
	stats      StatsComputer
	generator  InsightGenerator
	notifiers  notifier.Multi
	windowDays int
	logger     *zap.Logger
	now        func() time.Time
}

func NewReportService(
	stats StatsComputer,
	generator InsightGenerator,
	notifiers notifier.Multi,
	windowDays int,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		stats:      stats,
		generator:  generator,
		notifiers:  notifiers,
		windowDays: windowDays,
		logger:     logger,
		now:        time.Now,
	}
}

// RunOnce runs the pipeline. The only error is a failed stats read; model and
// delivery failures are reported inside the returned run.
func (s *ReportService) RunOnce(ctx context.Context, dryRun bool) (*ReportRun, error) {
	s.logger.Info("Starting health report", zap.Int("window_days", s.windowDays), zap.Bool("dry_run", dryRun))

	st, err := s.stats.ComputeStats(ctx, s.now(), s.windowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	res := s.generator.Generate(ctx, st)
	run := &ReportRun{Stats: st, Insight: res, DryRun: dryRun}

	if dryRun {
		s.logger.Info("Dry run, skipping delivery", zap.String("outcome", string(res.Outcome)))
		return run, nil
	}

	run.Deliveries = s.notifiers.DeliverAll(ctx, res.Text)
	for _, d := range run.Deliveries {
		fields := []zap.Field{
			zap.String("channel", d.Channel),
			zap.String("status", string(d.Status)),
		}
		if d.Err != nil {
			fields = append(fields, zap.Error(d.Err))
		}
		s.logger.Info("Report delivery", fields...)
	}

	s.logger.Info("Health report finished", zap.String("outcome", string(res.Outcome)))
	return run, nil
}
