package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	rediscommon "github.com/soenlit/health-buddy/common/redis"
)

// RedisStreamOptions Redis Streams 队列配置
type RedisStreamOptions struct {
	Stream         string
	Group          string
	Consumer       string
	MaxLen         int64
	EnqueueTimeout time.Duration
	BatchSize      int64
	Block          time.Duration
}

// RedisStreamQueue persists jobs in a Redis stream so that jobs accepted before
// a restart are still written afterwards.
type RedisStreamQueue struct {
	client *rediscommon.Client
	opts   RedisStreamOptions
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewRedisStreamQueue creates a stream-backed queue
func NewRedisStreamQueue(client *rediscommon.Client, opts RedisStreamOptions, logger *zap.Logger) *RedisStreamQueue {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	return &RedisStreamQueue{
		client: client,
		opts:   opts,
		logger: logger,
		done:   make(chan struct{}),
	}
}

var _ Queue = (*RedisStreamQueue)(nil)

func (q *RedisStreamQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, q.opts.EnqueueTimeout)
	defer cancel()

	_, err := rediscommon.Publish(ctx, q.client, q.opts.Stream, q.opts.MaxLen, map[string]interface{}{
		"job_id":      job.ID,
		"received_at": job.ReceivedAt.Format(time.RFC3339Nano),
		"payload":     string(job.Payload),
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrQueueFull, err)
		}
		return fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisStreamQueue) Run(ctx context.Context, handle JobHandler) error {
	if err := rediscommon.EnsureGroup(ctx, q.client, q.opts.Stream, q.opts.Group); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", q.opts.Stream, err)
	}

	if err := q.recoverPending(ctx, handle); err != nil {
		// 不阻塞新消息消费，下次启动再处理
		q.logger.Warn("Failed to recover pending ingest jobs", zap.Error(err))
	}

	q.logger.Info("Ingest stream consumer started",
		zap.String("stream", q.opts.Stream),
		zap.String("consumer_group", q.opts.Group),
		zap.String("consumer_name", q.opts.Consumer),
	)

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			// 未读消息留在 stream 中，下次启动继续消费
			return nil
		default:
		}

		if err := q.consume(ctx, handle); err != nil {
			q.logger.Error("Failed to consume ingest stream",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.done:
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Second
	}
}

func (q *RedisStreamQueue) consume(ctx context.Context, handle JobHandler) error {
	messages, err := rediscommon.ReadGroup(ctx, q.client, q.opts.Stream, q.opts.Group, q.opts.Consumer, q.opts.BatchSize, q.opts.Block)
	if err != nil {
		return fmt.Errorf("failed to read from stream %s: %w", q.opts.Stream, err)
	}

	q.handleMessages(ctx, handle, messages)
	return nil
}

// recoverPending handles jobs this consumer read but never acked, e.g. before a crash.
func (q *RedisStreamQueue) recoverPending(ctx context.Context, handle JobHandler) error {
	after := "0"
	recovered := 0
	for {
		messages, err := rediscommon.ReadPending(ctx, q.client, q.opts.Stream, q.opts.Group, q.opts.Consumer, after, q.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to read pending entries of %s: %w", q.opts.Stream, err)
		}
		if len(messages) == 0 {
			break
		}
		q.handleMessages(ctx, handle, messages)
		recovered += len(messages)
		after = messages[len(messages)-1].ID
	}
	if recovered > 0 {
		q.logger.Info("Recovered pending ingest jobs", zap.Int("jobs", recovered))
	}
	return nil
}

func (q *RedisStreamQueue) handleMessages(ctx context.Context, handle JobHandler, messages []rediscommon.StreamMessage) {
	for _, msg := range messages {
		job := jobFromMessage(msg)
		if err := handle(ctx, job); err != nil {
			q.logger.Error("Failed to process ingest job",
				zap.String("job_id", job.ID),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
		// 失败的任务不重试，同样确认
		if err := rediscommon.Ack(ctx, q.client, q.opts.Stream, q.opts.Group, msg.ID); err != nil {
			q.logger.Warn("Failed to ack message", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
}

func (q *RedisStreamQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func jobFromMessage(msg rediscommon.StreamMessage) Job {
	job := Job{
		ID:      msg.Field("job_id"),
		Payload: []byte(msg.Field("payload")),
	}
	if job.ID == "" {
		job.ID = msg.ID
	}
	if ts, err := time.Parse(time.RFC3339Nano, msg.Field("received_at")); err == nil {
		job.ReceivedAt = ts
	}
	return job
}
