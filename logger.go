package synet

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with synet-specific context helpers, keeping
// field names consistent across the subsystem.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler falls
// back to a text handler on stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that writes JSON records to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NoopLogger creates a Logger that discards everything.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithRank tags the logger with this process's rank.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{Logger: l.Logger.With("rank", rank)}
}

// WithRule tags the logger with a connection rule name.
func (l *Logger) WithRule(rule string) *Logger {
	return &Logger{Logger: l.Logger.With("rule", rule)}
}

// WithModel tags the logger with a synapse model name.
func (l *Logger) WithModel(model string) *Logger {
	return &Logger{Logger: l.Logger.With("model", model)}
}

// LogConnect logs one bulk connect request.
func (l *Logger) LogConnect(rule, model string, sources, targets, created int, err error) {
	if err != nil {
		l.Error("connect failed",
			"rule", rule,
			"model", model,
			"sources", sources,
			"targets", targets,
			"error", err,
		)
		return
	}
	l.Debug("connect completed",
		"rule", rule,
		"model", model,
		"sources", sources,
		"targets", targets,
		"created", created,
	)
}

// LogPlasticityStep logs one structural plasticity update.
func (l *Logger) LogPlasticityStep(created int, err error) {
	if err != nil {
		l.Error("plasticity step failed", "error", err)
		return
	}
	l.Debug("plasticity step completed", "created", created)
}
