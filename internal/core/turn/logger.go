package turn

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// LogLevel represents the severity of a log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogField is a key-value pair attached to a structured log entry.
type LogField struct {
	Key   string
	Value any
}

// Field builds a LogField.
func Field(key string, value any) LogField {
	return LogField{Key: key, Value: value}
}

// Logger is the structured logging contract the coordinator and backend
// client write to. Hosts inject their own implementation; the default is
// NoOpLogger so library use stays quiet.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...LogField)
	Info(ctx context.Context, msg string, fields ...LogField)
	Warn(ctx context.Context, msg string, fields ...LogField)
	Error(ctx context.Context, msg string, err error, fields ...LogField)
	WithFields(fields ...LogField) Logger
}

// NoOpLogger discards every entry.
type NoOpLogger struct{}

func (NoOpLogger) Debug(context.Context, string, ...LogField)        {}
func (NoOpLogger) Info(context.Context, string, ...LogField)         {}
func (NoOpLogger) Warn(context.Context, string, ...LogField)         {}
func (NoOpLogger) Error(context.Context, string, error, ...LogField) {}
func (n NoOpLogger) WithFields(...LogField) Logger                   { return n }

// StdLogger writes line-oriented structured entries to a writer, including
// the session trace ID when the context carries one.
type StdLogger struct {
	fields   []LogField
	minLevel LogLevel
	logger   *log.Logger
}

// NewStdLogger creates a logger filtering below minLevel. A nil writer
// discards everything.
func NewStdLogger(minLevel LogLevel, writer io.Writer) *StdLogger {
	if writer == nil {
		writer = io.Discard
	}
	return &StdLogger{
		minLevel: minLevel,
		logger:   log.New(writer, "", 0),
	}
}

func levelRank(level LogLevel) int {
	switch level {
	case LogLevelDebug:
		return 0
	case LogLevelInfo:
		return 1
	case LogLevelWarn:
		return 2
	default:
		return 3
	}
}

func (s *StdLogger) write(ctx context.Context, level LogLevel, msg string, err error, fields []LogField) {
	if levelRank(level) < levelRank(s.minLevel) {
		return
	}

	all := append(append([]LogField(nil), s.fields...), fields...)
	if id := traceIDFrom(ctx); id != "" {
		all = append(all, Field("trace_id", id))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s]", time.Now().Format(time.RFC3339), level)
	if err != nil {
		fmt.Fprintf(&b, " [error=%q]", err.Error())
	}
	b.WriteString(" ")
	b.WriteString(msg)
	if len(all) > 0 {
		b.WriteString(" fields=[")
		for i, f := range all {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", f.Key, f.Value)
		}
		b.WriteString("]")
	}
	s.logger.Println(b.String())
}

func (s *StdLogger) Debug(ctx context.Context, msg string, fields ...LogField) {
	s.write(ctx, LogLevelDebug, msg, nil, fields)
}

func (s *StdLogger) Info(ctx context.Context, msg string, fields ...LogField) {
	s.write(ctx, LogLevelInfo, msg, nil, fields)
}

func (s *StdLogger) Warn(ctx context.Context, msg string, fields ...LogField) {
	s.write(ctx, LogLevelWarn, msg, nil, fields)
}

func (s *StdLogger) Error(ctx context.Context, msg string, err error, fields ...LogField) {
	s.write(ctx, LogLevelError, msg, err, fields)
}

func (s *StdLogger) WithFields(fields ...LogField) Logger {
	return &StdLogger{
		fields:   append(append([]LogField(nil), s.fields...), fields...),
		minLevel: s.minLevel,
		logger:   s.logger,
	}
}

type traceIDKey struct{}

// WithTraceID stamps a session trace ID onto the context for log correlation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}
