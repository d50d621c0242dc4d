package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"

	"github.com/soenlit/health-buddy/internal/domain"
)

// Payload Health Auto Export webhook body
type Payload struct {
	Data PayloadData `json:"data"`
}

// PayloadData data 字段
type PayloadData struct {
	Metrics []Metric `json:"metrics"`
}

// Metric 一个指标及其样本
type Metric struct {
	Name  string            `json:"name"`
	Units string            `json:"units"`
	Data  []json.RawMessage `json:"data"`
}

// FlattenResult 扁平化结果
type FlattenResult struct {
	Samples        []domain.MetricSample
	Skipped        int // malformed samples
	SkippedMetrics int // metrics without a name
}

// 导出工具常见的时间格式，按顺序尝试
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05-07:00",
}

// ParseTimestamp parses an exporter date string. Strings without a zone are
// interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, loc); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q: %w", s, err)
	}
	return t, nil
}

// Flatten turns the nested payload into rows. Malformed samples are skipped
// and counted; they never fail the batch.
func Flatten(p *Payload, loc *time.Location, source string) FlattenResult {
	var res FlattenResult
	if source == "" {
		source = domain.DefaultSource
	}

	for _, metric := range p.Data.Metrics {
		if metric.Name == "" {
			res.SkippedMetrics++
			continue
		}
		for _, raw := range metric.Data {
			sample, ok := flattenSample(metric, raw, loc, source)
			if !ok {
				res.Skipped++
				continue
			}
			res.Samples = append(res.Samples, sample)
		}
	}
	return res
}

func flattenSample(metric Metric, raw json.RawMessage, loc *time.Location, source string) (domain.MetricSample, bool) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.MetricSample{}, false
	}

	date, ok := fields["date"].(string)
	if !ok {
		return domain.MetricSample{}, false
	}
	ts, err := ParseTimestamp(date, loc)
	if err != nil {
		return domain.MetricSample{}, false
	}

	qtyRaw, ok := fields["qty"]
	if !ok || qtyRaw == nil {
		return domain.MetricSample{}, false
	}
	if _, isBool := qtyRaw.(bool); isBool {
		return domain.MetricSample{}, false
	}
	qty, err := cast.ToFloat64E(qtyRaw)
	if err != nil || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return domain.MetricSample{}, false
	}

	return domain.MetricSample{
		Timestamp:  ts,
		MetricType: metric.Name,
		Value:      qty,
		Unit:       metric.Units,
		Source:     source,
		RawPayload: append(json.RawMessage(nil), raw...),
	}, true
}
