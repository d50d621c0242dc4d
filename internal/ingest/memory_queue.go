package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryQueue buffered channel queue. Jobs still buffered at shutdown are
// drained by Run before it returns.
type MemoryQueue struct {
	jobs           chan Job
	enqueueTimeout time.Duration
	logger         *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a queue holding at most size jobs.
func NewMemoryQueue(size int, enqueueTimeout time.Duration, logger *zap.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{
		jobs:           make(chan Job, size),
		enqueueTimeout: enqueueTimeout,
		logger:         logger,
	}
}

var _ Queue = (*MemoryQueue)(nil)

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	// 持有读锁直到发送结束，Close 不会在发送中途关闭 channel
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
	}

	timer := time.NewTimer(q.enqueueTimeout)
	defer timer.Stop()
	select {
	case q.jobs <- job:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Run(ctx context.Context, handle JobHandler) error {
	for {
		select {
		case <-ctx.Done():
			q.logger.Warn("Ingest worker stopped before queue drained", zap.Int("pending", len(q.jobs)))
			return ctx.Err()
		case job, ok := <-q.jobs:
			if !ok {
				q.logger.Info("Ingest queue drained")
				return nil
			}
			if err := handle(ctx, job); err != nil {
				q.logger.Error("Failed to process ingest job",
					zap.String("job_id", job.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.jobs)
	return nil
}

// Len number of buffered jobs
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}
