package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

var level atomic.Int32

func init() {
	level.Store(int32(log.InfoLevel))
}

// SetLevel changes the level used by loggers created afterwards.
//
// Supported levels: debug, info, warn, error.
func SetLevel(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		level.Store(int32(log.InfoLevel))
	case "debug":
		level.Store(int32(log.DebugLevel))
	case "warn", "warning":
		level.Store(int32(log.WarnLevel))
	case "error":
		level.Store(int32(log.ErrorLevel))
	default:
		return fmt.Errorf("invalid log level %q", name)
	}
	return nil
}

func NewHandler(name string) slog.Handler {
	return newHandler(os.Stderr, name)
}

func newHandler(w io.Writer, name string) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          name,
		Level:           log.Level(level.Load()),
	})
}

func New(name string) *slog.Logger {
	return slog.New(NewHandler(name))
}

// Discard returns a logger that drops everything, for tests and
// components that were not given one.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func NewContext(ctx context.Context, name string) context.Context {
	return IntoContext(ctx, New(name))
}

type ctxKey struct{}

// IntoContext adds a logger to a context. Use FromContext to
// pull the logger out.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns a logger from a context.Context;
// if the passed context is nil, we return the default slog
// logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}

	return slog.Default()
}

// SubLogger derives a new logger from an existing one by appending a suffix
// to its prefix, e.g. "nfviz" becomes "nfviz/poll".
func SubLogger(base *slog.Logger, suffix string) *slog.Logger {
	if cl, ok := base.Handler().(*log.Logger); ok {
		prefix := cl.GetPrefix()
		if prefix != "" {
			prefix = prefix + "/" + suffix
		} else {
			prefix = suffix
		}
		return slog.New(NewHandler(prefix))
	}

	return base.With("component", suffix)
}
