package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const loggerName = "library_circulation"

// NewLogger installs the process default logger: JSON lines on stdout, mirrored
// to the global OpenTelemetry LoggerProvider so records carry the active trace.
func NewLogger(level slog.Level) *slog.Logger {
	l := slog.New(newTeeHandler(level,
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
		otelslog.NewHandler(loggerName),
	))
	slog.SetDefault(l)
	return l
}

// NewLoggerTo is NewLogger without the process-wide side effect, for tests.
func NewLoggerTo(w io.Writer, level slog.Level, extra ...slog.Handler) *slog.Logger {
	hs := append([]slog.Handler{slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})}, extra...)
	return slog.New(newTeeHandler(level, hs...))
}

// teeHandler 把同一条记录交给多个 handler；level 以最外层为准。
type teeHandler struct {
	level    slog.Leveler
	handlers []slog.Handler
}

func newTeeHandler(level slog.Leveler, hs ...slog.Handler) *teeHandler {
	return &teeHandler{level: level, handlers: hs}
}

func (t *teeHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= t.level.Level()
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return newTeeHandler(t.level, hs...)
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithGroup(name)
	}
	return newTeeHandler(t.level, hs...)
}
