package logger

import "time"

// LogRequest logs an HTTP exchange at a level matching its outcome
func LogRequest(l Logger, method, url string, statusCode int, elapsed time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": elapsed.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogPage logs one page of the post feed
func LogPage(l Logger, userID string, offset, received, kept int) {
	l.DebugWithFields("Fetched post page", map[string]interface{}{
		"user_id":  userID,
		"offset":   offset,
		"received": received,
		"kept":     kept,
	})
}

// LogDownload logs the outcome of one file
func LogDownload(l Logger, path, outcome string, bytes int64, err error) {
	entry := l.WithFields(map[string]interface{}{
		"path":    path,
		"outcome": outcome,
		"bytes":   bytes,
	})

	if err != nil {
		entry.WithError(err).Error("Download failed")
		return
	}
	entry.Info("Download finished")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string)                                     {}
func (nopLogger) Info(string)                                      {}
func (nopLogger) Warn(string)                                      {}
func (nopLogger) Error(string)                                     {}
func (n nopLogger) WithField(string, interface{}) Logger           { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger       { return n }
func (n nopLogger) WithError(error) Logger                         { return n }
func (nopLogger) DebugWithFields(string, map[string]interface{})   {}
func (nopLogger) InfoWithFields(string, map[string]interface{})    {}
func (nopLogger) WarnWithFields(string, map[string]interface{})    {}
func (nopLogger) ErrorWithFields(string, map[string]interface{})   {}
