package core

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ComponentAwareLogger is a Logger that can derive a child logger tagged
// with a component name (e.g. "extraction/dependency", "telemetry/redis").
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// ProductionLogger is the default Logger implementation, backed by zap.
//
// Output format follows the environment:
//   - JSON when running in Kubernetes or when Format is "json"
//   - Console (human readable) otherwise
//
// Error logs are rate limited so a failing exporter cannot flood the output.
type ProductionLogger struct {
	zl           *zap.Logger
	level        zapcore.Level
	serviceName  string
	component    string
	format       string
	errorLimiter *RateLimiter
}

// NewProductionLogger builds a zap-backed logger from LoggingConfig.
// Unknown levels fall back to info, unknown outputs fall back to stdout.
func NewProductionLogger(cfg LoggingConfig, serviceName string) Logger {
	level := parseLevel(cfg.Level)

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "text"
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			format = "json"
		}
	}

	var encoder zapcore.Encoder
	if format == "json" {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.MessageKey = "message"
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	zc := zapcore.NewCore(encoder, outputSyncer(cfg.Output), level)
	return newProductionLogger(zap.New(zc), level, serviceName, format)
}

// NewProductionLoggerWithCore wraps an existing zapcore.Core. Tests use it
// with zaptest/observer to assert on emitted entries.
func NewProductionLoggerWithCore(zc zapcore.Core, serviceName string) *ProductionLogger {
	return newProductionLogger(zap.New(zc), zapcore.DebugLevel, serviceName, "json")
}

func newProductionLogger(zl *zap.Logger, level zapcore.Level, serviceName, format string) *ProductionLogger {
	return &ProductionLogger{
		zl:           zl.With(zap.String("service", serviceName)),
		level:        level,
		serviceName:  serviceName,
		format:       format,
		errorLimiter: NewRateLimiter(1 * time.Second),
	}
}

// WithComponent returns a child logger whose entries carry the given component.
func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		zl:           l.zl.With(zap.String("component", component)),
		level:        l.level,
		serviceName:  l.serviceName,
		component:    component,
		format:       l.format,
		errorLimiter: NewRateLimiter(1 * time.Second),
	}
}

// Info logs informational messages
func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.zl.Info(msg, toZapFields(fields)...)
}

// Warn logs warning messages
func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.zl.Warn(msg, toZapFields(fields)...)
}

// Error logs error messages with rate limiting
func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.zl.Error(msg, toZapFields(fields)...)
}

// Debug logs debug messages
func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.zl.Debug(msg, toZapFields(fields)...)
}

// Sync flushes buffered entries.
func (l *ProductionLogger) Sync() error {
	return l.zl.Sync()
}

// toZapFields converts the map-based field set into zap fields in key order
// so console output is stable.
func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		case fmt.Stringer:
			out = append(out, zap.Stringer(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func outputSyncer(output string) zapcore.WriteSyncer {
	switch output {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	default:
		ws, _, err := zap.Open(output)
		if err != nil {
			return zapcore.Lock(os.Stdout)
		}
		return ws
	}
}
