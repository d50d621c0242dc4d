package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Publisher publish side of common/mqtt.Client
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

type mqttReport struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// MQTTNotifier publishes the report as JSON to an MQTT topic, best effort
type MQTTNotifier struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewMQTTNotifier creates an MQTT sink
func NewMQTTNotifier(publisher Publisher, topic string, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{publisher: publisher, topic: topic, logger: logger}
}

var _ Notifier = (*MQTTNotifier)(nil)

func (n *MQTTNotifier) Deliver(ctx context.Context, text string) Delivery {
	at := time.Now().UTC()
	d := Delivery{Channel: "mqtt", At: at}

	if n.publisher == nil || n.topic == "" {
		d.Status = StatusSkipped
		return d
	}

	payload, err := json.Marshal(mqttReport{
		Title:     ReportTitle,
		Body:      text,
		Timestamp: at.Format(time.RFC3339),
	})
	if err != nil {
		d.Status = StatusFailed
		d.Err = fmt.Errorf("failed to marshal report: %w", err)
		return d
	}

	if err := n.publisher.Publish(n.topic, true, payload); err != nil {
		n.logger.Error("Failed to publish report", zap.String("topic", n.topic), zap.Error(err))
		d.Status = StatusFailed
		d.Err = err
		return d
	}

	n.logger.Info("Report published to MQTT", zap.String("topic", n.topic))
	d.Status = StatusDelivered
	return d
}
