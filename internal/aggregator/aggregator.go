package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/internal/domain"
)

// DefaultWindowDays window used when the caller passes <= 0
const DefaultWindowDays = 7

// SampleReader read side of the metrics repository
type SampleReader interface {
	QueryRange(ctx context.Context, metricTypes []string, since, until time.Time) ([]domain.MetricSample, error)
}

// Aggregator 健康数据聚合器
type Aggregator struct {
	reader   SampleReader
	location *time.Location
	logger   *zap.Logger
}

// NewAggregator creates an aggregator. Day buckets use loc's calendar.
func NewAggregator(reader SampleReader, loc *time.Location, logger *zap.Logger) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{reader: reader, location: loc, logger: logger}
}

// ComputeStats summarises [now - windowDays*24h, now).
func (a *Aggregator) ComputeStats(ctx context.Context, now time.Time, windowDays int) (*Stats, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	until := now
	since := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	samples, err := a.reader.QueryRange(ctx, AllMetrics(), since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	byType := make(map[string][]domain.MetricSample)
	for _, s := range samples {
		byType[s.MetricType] = append(byType[s.MetricType], s)
	}

	result := NewStats(since, until)
	for _, name := range SummableMetrics {
		if group := byType[name]; len(group) > 0 {
			result.Activity[name] = a.summarizeSummable(group)
		}
	}
	for _, name := range AveragedMetrics {
		if group := byType[name]; len(group) > 0 {
			result.Vitals[name] = summarizeAveraged(group)
		}
	}
	for _, name := range SleepMetrics {
		if group := byType[name]; len(group) > 0 {
			result.Sleep[name] = a.summarizeSleep(group)
		}
	}

	a.logger.Info("Computed stats",
		zap.Time("since", since),
		zap.Time("until", until),
		zap.Int("samples", len(samples)),
		zap.Int("activity", len(result.Activity)),
		zap.Int("vitals", len(result.Vitals)),
		zap.Int("sleep", len(result.Sleep)),
	)
	return result, nil
}

func (a *Aggregator) summarizeSummable(group []domain.MetricSample) SummableStats {
	daily := a.dailySums(group)
	sum, _ := stats.Sum(daily)
	mean, _ := stats.Mean(daily)
	maxDay, _ := stats.Max(daily)

	return SummableStats{
		DailyAvg:    round2(mean),
		WeeklyTotal: round2(sum),
		MaxDay:      round2(maxDay),
		Days:        len(daily),
		Unit:        lastUnit(group),
	}
}

func summarizeAveraged(group []domain.MetricSample) AveragedStats {
	values := make(stats.Float64Data, 0, len(group))
	for _, s := range group {
		values = append(values, s.Value)
	}
	mean, _ := values.Mean()
	lo, _ := values.Min()
	hi, _ := values.Max()

	return AveragedStats{
		Avg:     round2(mean),
		Min:     round2(lo),
		Max:     round2(hi),
		Samples: len(values),
		Unit:    lastUnit(group),
	}
}

func (a *Aggregator) summarizeSleep(group []domain.MetricSample) SleepStats {
	daily := a.dailySums(group)
	mean, _ := stats.Mean(daily)
	shortest, _ := stats.Min(daily)

	return SleepStats{
		AvgHours: round2(SleepHours(mean)),
		MinHours: round2(SleepHours(shortest)),
		Nights:   len(daily),
	}
}

// SleepHours converts a daily sleep total to hours. Values strictly above
// SleepMinutesThreshold are minutes.
func SleepHours(v float64) float64 {
	if v > SleepMinutesThreshold {
		return v / 60
	}
	return v
}

// dailySums returns one sum per calendar day (in a.location), oldest day first.
func (a *Aggregator) dailySums(group []domain.MetricSample) stats.Float64Data {
	sums := make(map[string]float64)
	for _, s := range group {
		sums[s.Timestamp.In(a.location).Format("2006-01-02")] += s.Value
	}

	days := make([]string, 0, len(sums))
	for d := range sums {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make(stats.Float64Data, 0, len(days))
	for _, d := range days {
		out = append(out, sums[d])
	}
	return out
}

func lastUnit(group []domain.MetricSample) string {
	for i := len(group) - 1; i >= 0; i-- {
		if group[i].Unit != "" {
			return group[i].Unit
		}
	}
	return ""
}

func round2(v float64) float64 {
	r, err := stats.Round(v, 2)
	if err != nil {
		return v
	}
	return r
}
