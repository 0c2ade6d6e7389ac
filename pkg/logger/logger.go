package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with academy specific helpers
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stdout. Text output in gin debug mode, JSON otherwise.
func New() *Logger {
	return NewWithWriter(os.Stdout, os.Getenv("LOG_LEVEL"), gin.Mode() != gin.DebugMode)
}

// NewWithWriter creates a logger on an arbitrary writer
func NewWithWriter(w io.Writer, levelStr string, json bool) *Logger {
	level := getLogLevel(levelStr)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID adds request ID to logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("request_id", requestID))}
}

// WithSession scopes the logger to a session
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("session_id", sessionID))}
}

// WithComponent tags log lines with the emitting component
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", name))}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error()))}
}

// WithFields adds multiple fields to logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return &Logger{Logger: l.Logger.With(args...)}
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

// Waitlist logging methods

// LogEntrantConfirmed logs a direct confirmation at join time or an accepted offer
func (l *Logger) LogEntrantConfirmed(ctx context.Context, sessionID, entrantID string, confirmedCount int) {
	l.Logger.InfoContext(ctx,
		"Entrant Confirmed",
		slog.String("session_id", sessionID),
		slog.String("entrant_id", entrantID),
		slog.Int("confirmed_count", confirmedCount),
	)
}

// LogEntrantJoined logs a new waiting entry
func (l *Logger) LogEntrantJoined(ctx context.Context, sessionID, entrantID string, position int) {
	l.Logger.InfoContext(ctx,
		"Entrant Joined Waitlist",
		slog.String("session_id", sessionID),
		slog.String("entrant_id", entrantID),
		slog.Int("position", position),
	)
}

// LogEntrantNotified logs the waiting -> notified transition
func (l *Logger) LogEntrantNotified(ctx context.Context, sessionID, entrantID string, deadline time.Time) {
	l.Logger.InfoContext(ctx,
		"Entrant Notified",
		slog.String("session_id", sessionID),
		slog.String("entrant_id", entrantID),
		slog.Time("response_deadline", deadline),
	)
}

// LogEntrantResolved logs a terminal transition
func (l *Logger) LogEntrantResolved(ctx context.Context, sessionID, entrantID, status string) {
	l.Logger.InfoContext(ctx,
		"Entrant Resolved",
		slog.String("session_id", sessionID),
		slog.String("entrant_id", entrantID),
		slog.String("status", status),
	)
}

// LogNotificationFailed logs a delivery that did not go through
func (l *Logger) LogNotificationFailed(ctx context.Context, channel, address string, err error) {
	l.Logger.ErrorContext(ctx,
		"Notification Failed",
		slog.String("channel", channel),
		slog.String("address", address),
		slog.String("error", err.Error()),
	)
}

// LogSweep logs the outcome of an expiry sweep
func (l *Logger) LogSweep(ctx context.Context, expired int, duration time.Duration) {
	l.Logger.InfoContext(ctx,
		"Expiry Sweep Completed",
		slog.Int("expired", expired),
		slog.Duration("duration", duration),
	)
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

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2+2)
	args = append(args, slog.String("error", err.Error()))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.ErrorContext(ctx, msg, args...)
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
