package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDiscordNotifier_PostsEmbed(t *testing.T) {
	var got discordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewDiscordNotifier(server.URL, time.Second, zap.NewNop())
	n.now = func() time.Time { return time.Date(2024, 3, 20, 9, 0, 0, 0, time.FixedZone("CST", 8*3600)) }

	d := n.Deliver(context.Background(), "睡太少了")

	assert.True(t, d.OK())
	assert.Equal(t, http.StatusNoContent, d.StatusCode)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, ReportTitle, got.Embeds[0].Title)
	assert.Equal(t, "睡太少了", got.Embeds[0].Description)
	assert.Equal(t, 0x00ff00, got.Embeds[0].Color)
	assert.Equal(t, "2024-03-20T01:00:00Z", got.Embeds[0].Timestamp)
}

func TestDiscordNotifier_NoURLSkips(t *testing.T) {
	n := NewDiscordNotifier("", time.Second, zap.NewNop())

	d := n.Deliver(context.Background(), "text")

	assert.Equal(t, StatusSkipped, d.Status)
	assert.NoError(t, d.Err)
}

func TestDiscordNotifier_Non2xxIsReported(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	n := NewDiscordNotifier(server.URL, time.Second, zap.NewNop())
	d := n.Deliver(context.Background(), "text")

	assert.Equal(t, StatusFailed, d.Status)
	assert.Equal(t, http.StatusTooManyRequests, d.StatusCode)
	assert.Error(t, d.Err)
	assert.Equal(t, 1, calls, "no retries")
}

func TestDiscordNotifier_NetworkErrorIsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	n := NewDiscordNotifier(url, time.Second, zap.NewNop())
	d := n.Deliver(context.Background(), "text")

	assert.Equal(t, StatusFailed, d.Status)
	assert.Error(t, d.Err)
}

func TestDiscordNotifier_TruncatesDescription(t *testing.T) {
	var got discordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	n := NewDiscordNotifier(server.URL, time.Second, zap.NewNop())
	d := n.Deliver(context.Background(), strings.Repeat("步", MaxEmbedDescription+10))

	require.True(t, d.OK())
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, MaxEmbedDescription, utf8.RuneCountInString(got.Embeds[0].Description))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 3))
	assert.Equal(t, "ab…", truncateRunes("abcd", 3))
}

type fakePublisher struct {
	topic    string
	retained bool
	payload  []byte
	err      error
}

func (f *fakePublisher) Publish(topic string, retained bool, payload []byte) error {
	f.topic = topic
	f.retained = retained
	f.payload = payload
	return f.err
}

func TestMQTTNotifier_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewMQTTNotifier(pub, "health/report", zap.NewNop())

	d := n.Deliver(context.Background(), "多走两步")

	assert.True(t, d.OK())
	assert.Equal(t, "health/report", pub.topic)
	assert.True(t, pub.retained)

	var msg mqttReport
	require.NoError(t, json.Unmarshal(pub.payload, &msg))
	assert.Equal(t, ReportTitle, msg.Title)
	assert.Equal(t, "多走两步", msg.Body)
}

func TestMQTTNotifier_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	n := NewMQTTNotifier(pub, "health/report", zap.NewNop())

	d := n.Deliver(context.Background(), "x")

	assert.Equal(t, StatusFailed, d.Status)
	assert.EqualError(t, d.Err, "not connected")
}

func TestMulti_DeliversToAll(t *testing.T) {
	first := &fakePublisher{err: errors.New("down")}
	second := &fakePublisher{}
	m := Multi{
		NewMQTTNotifier(first, "a", zap.NewNop()),
		NewMQTTNotifier(second, "b", zap.NewNop()),
	}

	results := m.DeliverAll(context.Background(), "x")

	require.Len(t, results, 2)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, StatusDelivered, results[1].Status)
	assert.Equal(t, StatusFailed, m.Deliver(context.Background(), "x").Status)
	assert.Equal(t, StatusSkipped, Multi{}.Deliver(context.Background(), "x").Status)
}
