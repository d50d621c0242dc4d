//go:build integration
// +build integration

package ingest_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/common/config"
	rediscommon "github.com/soenlit/health-buddy/common/redis"
	"github.com/soenlit/health-buddy/internal/ingest"
)

func TestRedisStreamQueue_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping integration test: TEST_REDIS_ADDR not set")
	}

	client := rediscommon.NewRedisClient(&config.RedisConfig{Addr: addr})
	defer rediscommon.Close(client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rediscommon.Ping(ctx, client); err != nil {
		t.Skipf("Skipping integration test: cannot ping redis: %v", err)
	}

	stream := fmt.Sprintf("health:ingest:test:%d", time.Now().UnixNano())
	defer client.Del(context.Background(), stream)

	q := ingest.NewRedisStreamQueue(client, ingest.RedisStreamOptions{
		Stream:         stream,
		Group:          "test-group",
		Consumer:       "test-consumer",
		EnqueueTimeout: time.Second,
		Block:          100 * time.Millisecond,
	}, zap.NewNop())

	sent := ingest.NewJob([]byte(`{"data":{"metrics":[]}}`))
	if err := q.Enqueue(ctx, sent); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	received := make(chan ingest.Job, 1)
	go q.Run(ctx, func(ctx context.Context, job ingest.Job) error {
		received <- job
		return nil
	})

	select {
	case job := <-received:
		if job.ID != sent.ID {
			t.Errorf("Expected job id %s, got %s", sent.ID, job.ID)
		}
		if string(job.Payload) != string(sent.Payload) {
			t.Errorf("Expected payload %s, got %s", sent.Payload, job.Payload)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for job")
	}

	q.Close()
	if err := q.Enqueue(ctx, sent); err != ingest.ErrQueueClosed {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
}
