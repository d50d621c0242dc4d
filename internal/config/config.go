package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/soenlit/health-buddy/common/config"
)

const (
	DefaultDatabaseURL  = "postgres://health_user:health_pass@db:5432/health_db?sslmode=disable"
	DefaultWebhookToken = "super-secret-token"

	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config health-buddy 配置, built once in main and passed to constructors
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Database   config.DatabaseConfig `yaml:"database"`
	IsLocalDev bool                  `yaml:"is_local_dev"` // rewrite host "db" to localhost

	Webhook struct {
		Token        string `yaml:"token"`
		MaxBodyBytes int64  `yaml:"max_body_bytes"`
	} `yaml:"webhook"`

	// 后台写入队列
	Ingest struct {
		Queue          string        `yaml:"queue"` // "memory" 或 "redis"
		QueueSize      int           `yaml:"queue_size"`
		EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
		Stream         string        `yaml:"stream"`
		StreamMaxLen   int64         `yaml:"stream_max_len"`
		ConsumerGroup  string        `yaml:"consumer_group"`
		ConsumerName   string        `yaml:"consumer_name"`
	} `yaml:"ingest"`

	Redis config.RedisConfig `yaml:"redis"`

	Metrics struct {
		Source   string `yaml:"source"`
		Timezone string `yaml:"timezone"` // IANA name, "Local" for the host zone
	} `yaml:"metrics"`

	Gemini struct {
		APIKey  string        `yaml:"api_key"`
		Model   string        `yaml:"model"`
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"gemini"`

	Discord struct {
		WebhookURL string        `yaml:"webhook_url"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"discord"`

	MQTT struct {
		Enabled bool              `yaml:"enabled"`
		Broker  config.MQTTConfig `yaml:"broker"`
		Topic   string            `yaml:"topic"`
		Timeout time.Duration     `yaml:"timeout"`
	} `yaml:"mqtt"`

	Report struct {
		WindowDays int    `yaml:"window_days"`
		Schedule   string `yaml:"schedule"` // cron expression, empty = run once
	} `yaml:"report"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
}

// Load 加载配置: defaults, then CONFIG_FILE (yaml), then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if cfg.Database.URL == "" && cfg.Database.Host == "" {
		cfg.Database.URL = DefaultDatabaseURL
	}
	if cfg.IsLocalDev {
		cfg.Database.UseLocalHost()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8000"

	cfg.Webhook.Token = DefaultWebhookToken
	cfg.Webhook.MaxBodyBytes = 32 << 20 // 32 MiB

	cfg.Ingest.Queue = QueueMemory
	cfg.Ingest.QueueSize = 256
	cfg.Ingest.EnqueueTimeout = 2 * time.Second
	cfg.Ingest.Stream = "health:ingest"
	cfg.Ingest.StreamMaxLen = 10000
	cfg.Ingest.ConsumerGroup = "health-ingest-group"
	cfg.Ingest.ConsumerName = "health-ingest-1"

	cfg.Redis.Addr = "localhost:6379"

	cfg.Metrics.Source = "apple_health"
	cfg.Metrics.Timezone = "Local"

	cfg.Gemini.Model = "gemini-1.5-flash"
	cfg.Gemini.BaseURL = "https://generativelanguage.googleapis.com"
	cfg.Gemini.Timeout = 30 * time.Second

	cfg.Discord.Timeout = 30 * time.Second

	cfg.MQTT.Broker.Broker = "tcp://localhost:1883"
	cfg.MQTT.Broker.ClientID = "health-buddy"
	cfg.MQTT.Topic = "health-buddy/report"
	cfg.MQTT.Timeout = 10 * time.Second

	cfg.Report.WindowDays = 7

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.LoadFromEnv("DB")

	// 记录第一个解析失败的变量
	var err error
	set := func(e error) {
		if err == nil {
			err = e
		}
	}

	c.IsLocalDev = envBool("IS_LOCAL_DEV", c.IsLocalDev, set)

	c.Webhook.Token = getEnv("WEBHOOK_TOKEN", c.Webhook.Token)
	c.Webhook.MaxBodyBytes = int64(envInt("WEBHOOK_MAX_BODY_BYTES", int(c.Webhook.MaxBodyBytes), set))

	c.Ingest.Queue = getEnv("INGEST_QUEUE", c.Ingest.Queue)
	c.Ingest.QueueSize = envInt("INGEST_QUEUE_SIZE", c.Ingest.QueueSize, set)
	c.Ingest.EnqueueTimeout = envDuration("INGEST_ENQUEUE_TIMEOUT", c.Ingest.EnqueueTimeout, set)
	c.Ingest.Stream = getEnv("INGEST_STREAM", c.Ingest.Stream)
	c.Ingest.ConsumerGroup = getEnv("INGEST_CONSUMER_GROUP", c.Ingest.ConsumerGroup)
	c.Ingest.ConsumerName = getEnv("INGEST_CONSUMER_NAME", c.Ingest.ConsumerName)

	c.Redis.LoadFromEnv("REDIS")

	c.Metrics.Source = getEnv("METRIC_SOURCE", c.Metrics.Source)
	c.Metrics.Timezone = getEnv("TIMEZONE", c.Metrics.Timezone)

	c.Gemini.APIKey = getEnv("GEMINI_API_KEY", c.Gemini.APIKey)
	c.Gemini.Model = getEnv("GEMINI_MODEL", c.Gemini.Model)
	c.Gemini.BaseURL = getEnv("GEMINI_BASE_URL", c.Gemini.BaseURL)
	c.Gemini.Timeout = envDuration("GEMINI_TIMEOUT", c.Gemini.Timeout, set)

	c.Discord.WebhookURL = getEnv("DISCORD_WEBHOOK_URL", c.Discord.WebhookURL)
	c.Discord.Timeout = envDuration("DISCORD_TIMEOUT", c.Discord.Timeout, set)

	c.MQTT.Enabled = envBool("MQTT_ENABLED", c.MQTT.Enabled, set)
	c.MQTT.Broker.LoadFromEnv("MQTT")
	c.MQTT.Topic = getEnv("MQTT_TOPIC", c.MQTT.Topic)

	c.Report.WindowDays = envInt("REPORT_WINDOW_DAYS", c.Report.WindowDays, set)
	c.Report.Schedule = getEnv("REPORT_SCHEDULE", c.Report.Schedule)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	return err
}

// ScheduleParser accepts 5 or 6 field cron expressions and descriptors ("@daily", "@every 1h").
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule checks a cron expression ("0 9 * * *", "@daily", ...).
func ValidateSchedule(spec string) error {
	if _, err := ScheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Report.WindowDays <= 0 {
		return fmt.Errorf("REPORT_WINDOW_DAYS must be positive, got %d", c.Report.WindowDays)
	}
	switch c.Ingest.Queue {
	case QueueMemory, QueueRedis:
	default:
		return fmt.Errorf("unknown INGEST_QUEUE %q (want %q or %q)", c.Ingest.Queue, QueueMemory, QueueRedis)
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("INGEST_QUEUE_SIZE must be positive, got %d", c.Ingest.QueueSize)
	}
	if c.Ingest.EnqueueTimeout <= 0 {
		return fmt.Errorf("INGEST_ENQUEUE_TIMEOUT must be positive, got %s", c.Ingest.EnqueueTimeout)
	}
	if c.Webhook.Token == "" {
		return fmt.Errorf("WEBHOOK_TOKEN must not be empty")
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		return fmt.Errorf("WEBHOOK_MAX_BODY_BYTES must be positive, got %d", c.Webhook.MaxBodyBytes)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.MQTT.Enabled && (c.MQTT.Broker.Broker == "" || c.MQTT.Topic == "") {
		return fmt.Errorf("MQTT_ENABLED requires MQTT_BROKER and MQTT_TOPIC")
	}
	if c.Report.Schedule != "" {
		if err := ValidateSchedule(c.Report.Schedule); err != nil {
			return fmt.Errorf("REPORT_SCHEDULE: %w", err)
		}
	}
	return nil
}

// Location timezone used for naive timestamps and day buckets
func (c *Config) Location() (*time.Location, error) {
	if c.Metrics.Timezone == "" || c.Metrics.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Metrics.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Metrics.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int, report func(error)) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := cast.ToIntE(value)
	if err != nil {
		report(fmt.Errorf("invalid %s %q: %w", key, value, err))
		return defaultValue
	}
	return n
}

func envDuration(key string, defaultValue time.Duration, report func(error)) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := cast.ToDurationE(value)
	if err != nil {
		report(fmt.Errorf("invalid %s %q: %w", key, value, err))
		return defaultValue
	}
	return d
}

func envBool(key string, defaultValue bool, report func(error)) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := cast.ToBoolE(value)
	if err != nil {
		report(fmt.Errorf("invalid %s %q: %w", key, value, err))
		return defaultValue
	}
	return b
}
