package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a new logger instance
func New() *Logger {
	// Get log level from environment
	level := getLogLevel(os.Getenv("LOG_LEVEL"))

	// Create handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Create handler based on environment
	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		// Use text handler for development (more readable)
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		// Use JSON handler for production (structured)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSON creates a JSON logger writing to w. Tests use it to assert on
// emitted records.
func NewJSON(w io.Writer, level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})),
	}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewJSON(io.Discard, slog.LevelError+1)
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTrace adds the active span's trace id, if any
func (l *Logger) WithTrace(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return l
	}
	return &Logger{
		Logger: l.Logger.With(slog.String("trace_id", sc.TraceID().String())),
	}
}

// HTTP logging methods

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.String("user_agent", c.Request.UserAgent()),
		slog.Int("size", c.Writer.Size()),
	)
}

// LogHTTPError logs an HTTP error
func (l *Logger) LogHTTPError(c *gin.Context, err error, statusCode int) {
	l.Logger.ErrorContext(c.Request.Context(),
		"HTTP Error",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
		slog.String("ip", c.ClientIP()),
	)
}

// Saga logging methods

// LogCancellation logs an accepted cancellation request
func (l *Logger) LogCancellation(ctx context.Context, bookingID, userID, tier, amount, refundID string) {
	l.WithTrace(ctx).InfoContext(ctx,
		"Booking Cancelled",
		slog.String("booking_id", bookingID),
		slog.String("user_id", userID),
		slog.String("refund_tier", tier),
		slog.String("refund_amount", amount),
		slog.String("refund_id", refundID),
	)
}

// LogRefundRequested logs a refund request handed to the event channel
func (l *Logger) LogRefundRequested(ctx context.Context, refundID, bookingID, amount, currency string) {
	l.WithTrace(ctx).InfoContext(ctx,
		"Refund Requested",
		slog.String("refund_id", refundID),
		slog.String("booking_id", bookingID),
		slog.String("amount", amount),
		slog.String("currency", currency),
	)
}

// LogRefundOutcome logs a refund reaching, or being reconciled to, an outcome
func (l *Logger) LogRefundOutcome(ctx context.Context, refundID, bookingID, outcome, detail string) {
	l.WithTrace(ctx).InfoContext(ctx,
		"Refund Outcome",
		slog.String("refund_id", refundID),
		slog.String("booking_id", bookingID),
		slog.String("outcome", outcome),
		slog.String("detail", detail),
	)
}

// LogStaleEvent logs a duplicate or out-of-date delivery that was dropped
func (l *Logger) LogStaleEvent(ctx context.Context, kind, refundID, bookingID, reason string) {
	l.WithTrace(ctx).WarnContext(ctx,
		"Stale Saga Event Dropped",
		slog.String("kind", kind),
		slog.String("refund_id", refundID),
		slog.String("booking_id", bookingID),
		slog.String("reason", reason),
	)
}

// LogProviderCall logs one payment provider round trip
func (l *Logger) LogProviderCall(ctx context.Context, provider, refundID string, duration time.Duration, err error) {
	if err != nil {
		l.WithTrace(ctx).WarnContext(ctx,
			"Payment Provider Error",
			slog.String("provider", provider),
			slog.String("refund_id", refundID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return
	}
	l.WithTrace(ctx).DebugContext(ctx,
		"Payment Provider Call",
		slog.String("provider", provider),
		slog.String("refund_id", refundID),
		slog.Duration("duration", duration),
	)
}

// LogOperationalAlert logs a failure that needs a human, tagged for alert routing
func (l *Logger) LogOperationalAlert(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2+4)
	args = append(args, slog.Bool("alert", true))
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.WithTrace(ctx).ErrorContext(ctx, msg, args...)
}

// Security logging methods

// LogAuthFailure logs failed authentication
func (l *Logger) LogAuthFailure(ctx context.Context, reason, ip string) {
	l.Logger.WarnContext(ctx,
		"Authentication Failure",
		slog.String("reason", reason),
		slog.String("ip", ip),
	)
}

// LogRateLimitExceeded logs rate limit exceeded
func (l *Logger) LogRateLimitExceeded(ctx context.Context, ip, endpoint string) {
	l.Logger.WarnContext(ctx,
		"Rate Limit Exceeded",
		slog.String("ip", ip),
		slog.String("endpoint", endpoint),
	)
}

// Helper methods for common patterns

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.WithTrace(ctx).InfoContext(ctx, msg, args...)
}

// WarnWithContext logs a warning with context
func (l *Logger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.WithTrace(ctx).WarnContext(ctx, msg, args...)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2+2)
	args = append(args, slog.String("error", err.Error()))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.WithTrace(ctx).ErrorContext(ctx, msg, args...)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.WithTrace(ctx).DebugContext(ctx, msg, args...)
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}
