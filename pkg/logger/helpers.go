package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// OrDefault returns l, or the global logger when l is nil
func OrDefault(l Logger) Logger {
	if l == nil {
		return GetLogger()
	}
	return l
}

// Component returns a child of l tagged with the component name
func Component(l Logger, name string) Logger {
	return OrDefault(l).WithField("component", name)
}

// LogRequest logs one HTTP exchange at a level matching its status
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	l = OrDefault(l)
	switch {
	case statusCode >= 500:
		l.WarnWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogOutcome logs a per-item download outcome
func LogOutcome(l Logger, itemID, status, path string, err error) {
	entry := OrDefault(l).WithFields(map[string]interface{}{
		"item_id": itemID,
		"status":  status,
		"path":    path,
	})

	switch status {
	case "failed":
		entry.WithError(err).Warn("Download failed")
	case "skipped":
		entry.Debug("Download skipped, file exists")
	default:
		entry.Info("Download completed")
	}
}

// LogBackoff logs a retry pause
func LogBackoff(l Logger, url string, attempt int, delay time.Duration, reason string) {
	OrDefault(l).WarnWithFields("Retrying request", map[string]interface{}{
		"url":     url,
		"attempt": attempt,
		"delay":   delay,
		"reason":  reason,
	})
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
