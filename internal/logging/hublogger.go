package logging

import "log/slog"

// HubLogger adapts slog.Logger to the small keysAndValues logger interface
// the interception hub takes.
type HubLogger struct {
	logger *slog.Logger
}

// NewHubLogger creates a new HubLogger wrapping an slog.Logger.
func NewHubLogger(logger *slog.Logger) *HubLogger {
	return &HubLogger{logger: logger}
}

// Debug logs a debug message with optional key-value pairs.
func (l *HubLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

// Info logs an info message with optional key-value pairs.
func (l *HubLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

// Error logs an error message with optional key-value pairs.
func (l *HubLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, keysAndValues...)
}
