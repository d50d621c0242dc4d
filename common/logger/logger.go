package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
// Level: "debug", "info", "warn", "error" (default "info")
// Format: "json" or "console" (default "json")
// File: optional path; when set, JSON logs are also written there with rotation.
type Options struct {
	Level       string
	Format      string
	ServiceName string
	File        string
}

// New 创建新的Logger实例
func New(opts Options) (*zap.Logger, error) {
	zapLevel := ParseLevel(opts.Level)

	var base *zap.Logger
	if opts.File != "" {
		base = newRotating(opts, zapLevel)
	} else {
		var cfg zap.Config
		if opts.Format == "console" {
			cfg = zap.NewDevelopmentConfig()
		} else {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "timestamp"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			cfg.OutputPaths = []string{"stdout"}
			cfg.ErrorOutputPaths = []string{"stderr"}
		}
		cfg.Level = zap.NewAtomicLevelAt(zapLevel)

		var err error
		base, err = cfg.Build()
		if err != nil {
			return nil, err
		}
	}

	if opts.ServiceName != "" {
		base = base.With(zap.String("service_name", opts.ServiceName))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		base = base.With(zap.String("hostname", hostname))
	}
	return base, nil
}

// newRotating tees a rotating JSON file core with a stdout core.
func newRotating(opts Options, level zapcore.Level) *zap.Logger {
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    64,
		MaxBackups: 7,
		MaxAge:     7,
	}

	fileEnc := zap.NewProductionEncoderConfig()
	fileEnc.TimeKey = "timestamp"
	fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder

	var stdoutEnc zapcore.Encoder
	if opts.Format == "console" {
		stdoutEnc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		stdoutEnc = zapcore.NewJSONEncoder(fileEnc)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(rotator), level),
		zapcore.NewCore(stdoutEnc, zapcore.AddSync(os.Stdout), level),
	)
	return zap.New(core, zap.AddCaller())
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
