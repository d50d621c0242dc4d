package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/internal/config"
)

// ReportScheduler runs the report pipeline on a cron schedule, one run at a time
type ReportScheduler struct {
	sched   *cron.Cron
	report  *ReportService
	logger  *zap.Logger
	running sync.Mutex
}

func NewReportScheduler(report *ReportService, spec string, loc *time.Location, logger *zap.Logger) (*ReportScheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &ReportScheduler{
		sched:  cron.New(cron.WithLocation(loc), cron.WithParser(config.ScheduleParser)),
		report: report,
		logger: logger,
	}
	if _, err := s.sched.AddFunc(spec, s.runJob); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *ReportScheduler) runJob() {
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("Report job panicked", zap.Any("panic", err))
		}
	}()

	// 上一次还没结束则跳过
	if !s.running.TryLock() {
		s.logger.Warn("Previous report still running, skipping")
		return
	}
	defer s.running.Unlock()

	if _, err := s.report.RunOnce(context.Background(), false); err != nil {
		s.logger.Error("Scheduled report failed", zap.Error(err))
	}
}

// Start runs jobs in the background.
func (s *ReportScheduler) Start() {
	s.sched.Start()
	for _, e := range s.sched.Entries() {
		s.logger.Info("Report scheduled", zap.Time("next_run", e.Next))
	}
}

// Stop waits for a running job to finish or ctx to expire.
func (s *ReportScheduler) Stop(ctx context.Context) error {
	done := s.sched.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
