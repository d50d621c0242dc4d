package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("ingest queue closed")
	// ErrQueueFull is returned when the job could not be queued within the enqueue timeout.
	ErrQueueFull = errors.New("ingest queue full")
)

// Job one accepted webhook body waiting to be written
type Job struct {
	ID         string
	ReceivedAt time.Time
	Payload    json.RawMessage
}

// NewJob wraps a request body in a job with a fresh id.
func NewJob(payload []byte) Job {
	return Job{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// JobHandler processes one job. Errors are logged by the queue, never retried.
type JobHandler func(ctx context.Context, job Job) error

// Queue hands jobs from the HTTP handler to the single ingest worker.
type Queue interface {
	// Enqueue must not block longer than the configured enqueue timeout.
	Enqueue(ctx context.Context, job Job) error
	// Run consumes jobs until the queue is closed and drained, or ctx is done.
	Run(ctx context.Context, handle JobHandler) error
	// Close stops accepting new jobs.
	Close() error
}
