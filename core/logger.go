package core

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceExtractor pulls trace identifiers out of a context for log
// correlation. The telemetry package registers the real implementation at
// startup; core stays decoupled from the tracing SDK.
type TraceExtractor func(ctx context.Context) (traceID, spanID string)

var (
	traceExtractor   TraceExtractor
	traceExtractorMu sync.RWMutex
)

// SetTraceExtractor registers the trace extractor used by loggers for
// context correlation. Called once by the telemetry package.
func SetTraceExtractor(fn TraceExtractor) {
	traceExtractorMu.Lock()
	defer traceExtractorMu.Unlock()
	traceExtractor = fn
}

func extractTrace(ctx context.Context) (string, string) {
	traceExtractorMu.RLock()
	fn := traceExtractor
	traceExtractorMu.RUnlock()
	if fn == nil || ctx == nil {
		return "", ""
	}
	return fn(ctx)
}

// ProductionLogger implements Logger and ComponentAwareLogger on top of a
// zap core. JSON output for production log aggregation, console output for
// local development.
type ProductionLogger struct {
	zl        *zap.Logger
	component string
}

// NewProductionLogger creates a logger from LoggingConfig.
func NewProductionLogger(logging LoggingConfig, serviceName string) *ProductionLogger {
	level := zapcore.InfoLevel
	switch strings.ToLower(logging.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var output zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if logging.Output == "stderr" {
		output = zapcore.Lock(os.Stderr)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder

	var enc zapcore.Encoder
	if logging.Format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	zl := zap.New(zapcore.NewCore(enc, output, level)).
		With(zap.String("service", serviceName))

	return &ProductionLogger{zl: zl}
}

// WithComponent returns a logger that stamps every entry with the given
// component name.
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		zl:        p.zl.With(zap.String("component", component)),
		component: component,
	}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.zl.Info(msg, mapToZapFields(fields)...)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.zl.Error(msg, mapToZapFields(fields)...)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.zl.Warn(msg, mapToZapFields(fields)...)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.zl.Debug(msg, mapToZapFields(fields)...)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.zl.Info(msg, contextZapFields(ctx, fields)...)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.zl.Error(msg, contextZapFields(ctx, fields)...)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.zl.Warn(msg, contextZapFields(ctx, fields)...)
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.zl.Debug(msg, contextZapFields(ctx, fields)...)
}

// Sync flushes buffered log entries. Call on shutdown.
func (p *ProductionLogger) Sync() error {
	return p.zl.Sync()
}

func mapToZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}

func contextZapFields(ctx context.Context, fields map[string]interface{}) []zap.Field {
	zf := mapToZapFields(fields)
	if traceID, spanID := extractTrace(ctx); traceID != "" {
		zf = append(zf, zap.String("trace_id", traceID), zap.String("span_id", spanID))
	}
	return zf
}
