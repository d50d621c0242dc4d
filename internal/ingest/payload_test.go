package ingest_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soenlit/health-buddy/internal/domain"
	"github.com/soenlit/health-buddy/internal/ingest"
)

func TestParseTimestamp(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	want := time.Date(2024, 3, 20, 20, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339 utc", "2024-03-20T20:00:00Z", want},
		{"rfc3339 offset", "2024-03-20T12:00:00-08:00", want},
		{"rfc3339 fraction", "2024-03-20T20:00:00.000Z", want},
		{"exporter format", "2024-03-20 12:00:00 -0800", want},
		{"compact offset", "2024-03-20T12:00:00-0800", want},
		{"naive uses location", "2024-03-21 04:00:00", want},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ingest.ParseTimestamp(tc.in, shanghai)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	_, err := ingest.ParseTimestamp("", time.UTC)
	assert.Error(t, err)

	_, err = ingest.ParseTimestamp("not a date", time.UTC)
	assert.Error(t, err)
}

func TestFlatten_SkipsMalformedSamples(t *testing.T) {
	body := `{
		"data": {
			"metrics": [
				{
					"name": "step_count",
					"units": "count",
					"data": [
						{"date": "2024-03-20 12:00:00 -0800", "qty": 100},
						{"date": "2024-03-20 13:00:00 -0800", "qty": "250.5"},
						{"date": "2024-03-20 14:00:00 -0800"},
						{"date": "garbage", "qty": 10},
						{"qty": 10},
						{"date": "2024-03-20 15:00:00 -0800", "qty": "many"},
						{"date": "2024-03-20 16:00:00 -0800", "qty": true},
						{"date": "2024-03-20 17:00:00 -0800", "qty": "NaN"}
					]
				},
				{
					"name": "heart_rate",
					"units": "count/min",
					"data": [{"date": "2024-03-20T12:00:00Z", "qty": 61, "source": "Watch"}]
				},
				{
					"units": "count",
					"data": [{"date": "2024-03-20T12:00:00Z", "qty": 1}]
				}
			]
		}
	}`

	var p ingest.Payload
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	res := ingest.Flatten(&p, time.UTC, "")

	require.Len(t, res.Samples, 3)
	assert.Equal(t, 6, res.Skipped)
	assert.Equal(t, 1, res.SkippedMetrics)

	assert.Equal(t, "step_count", res.Samples[0].MetricType)
	assert.Equal(t, 100.0, res.Samples[0].Value)
	assert.Equal(t, "count", res.Samples[0].Unit)
	assert.Equal(t, domain.DefaultSource, res.Samples[0].Source)
	assert.Equal(t, 250.5, res.Samples[1].Value)

	hr := res.Samples[2]
	assert.Equal(t, "heart_rate", hr.MetricType)
	assert.Equal(t, "count/min", hr.Unit)
	assert.JSONEq(t, `{"date": "2024-03-20T12:00:00Z", "qty": 61, "source": "Watch"}`, string(hr.RawPayload))
}

func TestFlatten_EmptyPayload(t *testing.T) {
	res := ingest.Flatten(&ingest.Payload{}, time.UTC, "apple_health")

	assert.Empty(t, res.Samples)
	assert.Zero(t, res.Skipped)
}
