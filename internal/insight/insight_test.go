package insight_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/internal/aggregator"
	"github.com/soenlit/health-buddy/internal/insight"
)

// countingModel 记录调用次数的假模型
type countingModel struct {
	calls      int
	lastPrompt string
	text       string
	err        error
}

func (m *countingModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.calls++
	m.lastPrompt = prompt
	return m.text, m.err
}

func sampleStats() *aggregator.Stats {
	until := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	st := aggregator.NewStats(until.AddDate(0, 0, -7), until)
	st.Activity["step_count"] = aggregator.SummableStats{DailyAvg: 2000, WeeklyTotal: 6000, MaxDay: 3000, Days: 3, Unit: "count"}
	st.Sleep["sleep_analysis"] = aggregator.SleepStats{AvgHours: 9.17, MinHours: 8.33, Nights: 3}
	return st
}

func TestGenerator_EmptyStatsSkipsModel(t *testing.T) {
	model := &countingModel{text: "unused"}
	g := insight.NewGenerator(model, zap.NewNop())

	st := aggregator.NewStats(time.Now().AddDate(0, 0, -7), time.Now())
	res := g.Generate(context.Background(), st)

	assert.Equal(t, insight.InsufficientDataMessage, res.Text)
	assert.Equal(t, insight.OutcomeInsufficientData, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, 0, model.calls)
}

func TestGenerator_Generated(t *testing.T) {
	model := &countingModel{text: "步数还行，睡得像猫。"}
	g := insight.NewGenerator(model, zap.NewNop())

	res := g.Generate(context.Background(), sampleStats())

	assert.Equal(t, insight.OutcomeGenerated, res.Outcome)
	assert.Equal(t, "步数还行，睡得像猫。", res.Text)
	assert.Equal(t, 1, model.calls)
	assert.Contains(t, model.lastPrompt, `"weekly_total": 6000`)
	assert.Contains(t, model.lastPrompt, "Bobo")
}

func TestGenerator_FallbackOnModelError(t *testing.T) {
	model := &countingModel{err: errors.New("quota exceeded")}
	g := insight.NewGenerator(model, zap.NewNop())

	res := g.Generate(context.Background(), sampleStats())

	assert.Equal(t, insight.OutcomeFallback, res.Outcome)
	assert.Contains(t, res.Text, "quota exceeded")
	assert.EqualError(t, res.Err, "quota exceeded")
}

func TestRenderPrompt_Deterministic(t *testing.T) {
	first, err := insight.RenderPrompt(sampleStats())
	require.NoError(t, err)
	second, err := insight.RenderPrompt(sampleStats())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "最近 7 天")
	assert.Contains(t, first, "2024-03-13")
	assert.Contains(t, first, `"avg_hours": 9.17`)
}

func TestGeminiClient_GenerateText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "contents")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"第一段"},{"text":"第二段"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	client := insight.NewGeminiClient(insight.GeminiOptions{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, zap.NewNop())

	text, err := client.GenerateText(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, "第一段\n第二段", text)
}

func TestGeminiClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	client := insight.NewGeminiClient(insight.GeminiOptions{APIKey: "bad", BaseURL: server.URL}, zap.NewNop())

	_, err := client.GenerateText(context.Background(), "hi")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGeminiClient_EmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := insight.NewGeminiClient(insight.GeminiOptions{APIKey: "k", BaseURL: server.URL}, zap.NewNop())

	_, err := client.GenerateText(context.Background(), "hi")
	assert.Error(t, err)
}

func TestGeminiClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := insight.NewGeminiClient(insight.GeminiOptions{
		APIKey:  "k",
		BaseURL: server.URL,
		Timeout: 20 * time.Millisecond,
	}, zap.NewNop())

	_, err := client.GenerateText(context.Background(), "hi")
	assert.Error(t, err)
}

func TestGeminiClient_MissingKeyFallsBack(t *testing.T) {
	client := insight.NewGeminiClient(insight.GeminiOptions{}, zap.NewNop())
	g := insight.NewGenerator(client, zap.NewNop())

	res := g.Generate(context.Background(), sampleStats())

	assert.Equal(t, insight.OutcomeFallback, res.Outcome)
	assert.ErrorIs(t, res.Err, insight.ErrMissingAPIKey)
	assert.Contains(t, res.Text, "GEMINI_API_KEY")
}
