package domain

import (
	"encoding/json"
	"time"
)

// DefaultSource is the origin tag used when a sample carries none.
const DefaultSource = "apple_health"

// MetricSample one timestamped health measurement (health_metrics table).
// (timestamp, metric_type) is unique; a second write for the same pair replaces the first.
type MetricSample struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp  time.Time       `gorm:"column:timestamp;type:timestamptz;not null;index;uniqueIndex:uq_health_metrics_timestamp_type,priority:1" json:"timestamp"`
	MetricType string          `gorm:"column:metric_type;size:128;not null;index;uniqueIndex:uq_health_metrics_timestamp_type,priority:2" json:"metric_type"`
	Value      float64         `gorm:"column:value;type:double precision;not null" json:"value"`
	Unit       string          `gorm:"column:unit;size:64" json:"unit"`
	Source     string          `gorm:"column:source;size:64;default:apple_health" json:"source"`
	RawPayload json.RawMessage `gorm:"column:raw_payload;type:jsonb" json:"raw_payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName Specify table name
func (MetricSample) TableName() string {
	return "health_metrics"
}

// Tables lists every model handled by schema migration.
var Tables = []interface{}{
	&MetricSample{},
}
