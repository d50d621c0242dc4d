package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	mqttcommon "github.com/soenlit/health-buddy/common/mqtt"
	rediscommon "github.com/soenlit/health-buddy/common/redis"
	"github.com/soenlit/health-buddy/internal/aggregator"
	"github.com/soenlit/health-buddy/internal/config"
	"github.com/soenlit/health-buddy/internal/ingest"
	"github.com/soenlit/health-buddy/internal/insight"
	"github.com/soenlit/health-buddy/internal/notifier"
	"github.com/soenlit/health-buddy/internal/repository"
)

// NewIngestQueue builds the configured queue. The returned cleanup releases
// the backing connection and is safe to call when nothing was opened.
func NewIngestQueue(cfg *config.Config, logger *zap.Logger) (ingest.Queue, func(), error) {
	switch cfg.Ingest.Queue {
	case config.QueueRedis:
		client, err := rediscommon.Connect(context.Background(), &cfg.Redis)
		if err != nil {
			return nil, func() {}, err
		}
		q := ingest.NewRedisStreamQueue(client, ingest.RedisStreamOptions{
			Stream:         cfg.Ingest.Stream,
			Group:          cfg.Ingest.ConsumerGroup,
			Consumer:       cfg.Ingest.ConsumerName,
			MaxLen:         cfg.Ingest.StreamMaxLen,
			EnqueueTimeout: cfg.Ingest.EnqueueTimeout,
		}, logger)
		logger.Info("Using Redis Streams ingest queue",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("stream", cfg.Ingest.Stream),
		)
		return q, func() { _ = rediscommon.Close(client) }, nil
	case config.QueueMemory:
		logger.Info("Using in-memory ingest queue", zap.Int("size", cfg.Ingest.QueueSize))
		return ingest.NewMemoryQueue(cfg.Ingest.QueueSize, cfg.Ingest.EnqueueTimeout, logger), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown ingest queue %q", cfg.Ingest.Queue)
	}
}

// NewNotifiers builds Discord plus, when enabled, the MQTT sink. An MQTT
// connection failure disables the sink instead of failing the run.
func NewNotifiers(cfg *config.Config, logger *zap.Logger) (notifier.Multi, func()) {
	notifiers := notifier.Multi{
		notifier.NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.Discord.Timeout, logger),
	}
	cleanup := func() {}

	if cfg.MQTT.Enabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT.Broker, cfg.MQTT.Timeout)
		if err != nil {
			logger.Warn("MQTT sink disabled", zap.String("broker", cfg.MQTT.Broker.Broker), zap.Error(err))
		} else {
			notifiers = append(notifiers, notifier.NewMQTTNotifier(client, cfg.MQTT.Topic, logger))
			cleanup = client.Disconnect
		}
	}
	return notifiers, cleanup
}

// NewReportServiceFromConfig wires aggregator, Gemini and notifiers over db.
func NewReportServiceFromConfig(cfg *config.Config, db *sql.DB, logger *zap.Logger) (*ReportService, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, func() {}, err
	}

	repo := repository.NewPostgresMetricsRepository(db, logger)
	agg := aggregator.NewAggregator(repo, loc, logger)

	model := insight.NewGeminiClient(insight.GeminiOptions{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.Gemini.Timeout,
	}, logger)
	gen := insight.NewGenerator(model, logger)

	notifiers, cleanup := NewNotifiers(cfg, logger)
	return NewReportService(agg, gen, notifiers, cfg.Report.WindowDays, logger), cleanup, nil
}
