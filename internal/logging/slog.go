package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Indirections for tests that capture console output.
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger
	multi  *MultiHandler

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider

	// Extra sinks, e.g. a graylog writer.
	sinks []io.Writer

	// GetFrameID and GetSurfaceTag, when set, stamp every record with the
	// current frame and bound surface so log lines can be lined up against
	// the paint timeline. They may be assigned after Setup, once the
	// engine exists.
	GetFrameID    func() int64
	GetSurfaceTag func() string
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// AddSink registers an additional log output before Setup is called.
func (m *SlogManager) AddSink(w io.Writer) {
	if w != nil {
		m.sinks = append(m.sinks, w)
	}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. Records go to the file when one is
// given, otherwise to the console, plus any registered sinks and the OTel
// provider when non-nil.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	lvl := parseLevel(level)
	m.logProvider = provider

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler

	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}

	for _, sink := range m.sinks {
		handlers = append(handlers, slog.NewJSONHandler(sink, handlerOpts))
	}

	if provider != nil {
		otelHandler := otelslog.NewHandler("tile-overlay", otelslog.WithLoggerProvider(provider))
		handlers = append(handlers, otelHandler)
	}

	m.multi = NewMultiHandler(handlers...)
	m.logger = slog.New(NewContextHandler(m.multi, m.stateAttrs))
	m.logger.Info("Logging initialized", "level", level)
}

// stateAttrs reads the engine-state getters at record time. Getters are
// optional and may be wired after Setup.
func (m *SlogManager) stateAttrs() []slog.Attr {
	var attrs []slog.Attr
	if m.GetFrameID != nil {
		attrs = append(attrs, slog.Int64("frame", m.GetFrameID()))
	}
	if m.GetSurfaceTag != nil {
		if tag := m.GetSurfaceTag(); tag != "" {
			attrs = append(attrs, slog.String("surface", tag))
		}
	}
	return attrs
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Channel returns a logger named for one engine component, so the render
// interception, viewport and reconciler paths are distinguishable in
// shared sinks.
func Channel(l *slog.Logger, name string) *slog.Logger {
	return l.With("channel", name)
}

// Flush forces a flush of OTel logs if available. Any sink write failures
// accumulated since setup are summarized first.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.multi != nil {
		if n := m.multi.Dropped(); n > 0 {
			m.logger.Warn("log records lost to failing sinks", "dropped", n)
		}
	}
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// WriteLog writes a log entry attributed to a named host callback. Used at
// the host boundary where the caller reports its own function name rather
// than going through a structured logger.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}

	lvl := parseLevel(level)

	switch lvl {
	case slog.LevelDebug:
		m.logger.Debug(data, "function", functionName)
	case slog.LevelInfo:
		m.logger.Info(data, "function", functionName)
	case slog.LevelWarn:
		m.logger.Warn(data, "function", functionName)
	case slog.LevelError:
		m.logger.Error(data, "function", functionName)
	default:
		m.logger.Info(data, "function", functionName)
	}
}
