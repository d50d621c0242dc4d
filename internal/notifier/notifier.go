package notifier

import (
	"context"
	"time"
)

// ReportTitle embed / message title
const ReportTitle = "🤖 Bobo 的健康毒舌报告"

// Status delivery outcome
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Delivery result of one delivery attempt. Failures are reported here, never
// returned as errors or retried.
type Delivery struct {
	Channel    string
	Status     Status
	StatusCode int
	Err        error
	At         time.Time
}

// OK reports whether the message reached the channel.
func (d Delivery) OK() bool {
	return d.Status == StatusDelivered
}

// Notifier delivers report text to one channel
type Notifier interface {
	Deliver(ctx context.Context, text string) Delivery
}

// Multi delivers to several notifiers in order
type Multi []Notifier

// Deliver returns the first channel's delivery; every channel is attempted.
func (m Multi) Deliver(ctx context.Context, text string) Delivery {
	results := m.DeliverAll(ctx, text)
	if len(results) == 0 {
		return Delivery{Channel: "none", Status: StatusSkipped, At: time.Now().UTC()}
	}
	return results[0]
}

// DeliverAll delivers to every notifier and returns all results
func (m Multi) DeliverAll(ctx context.Context, text string) []Delivery {
	out := make([]Delivery, 0, len(m))
	for _, n := range m {
		out = append(out, n.Deliver(ctx, text))
	}
	return out
}
