package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once

	// level is the minimum level shared by every handler created here.
	level = new(slog.LevelVar)
)

// Init installs the ledger log handler as the slog default.
// Only the first call has an effect; use SetLevel to change verbosity later.
func Init() {
	once.Do(func() {
		handler := NewHandler(os.Stdout)
		defaultLogger = slog.New(handler)
		slog.SetDefault(defaultLogger)
	})
}

// SetLevel sets the minimum level from its config name
// ("debug", "info", "warn", "error"). Unknown names fall back to info.
func SetLevel(name string) {
	level.Set(ParseLevel(name))
}

// ParseLevel converts a config level name to a slog level.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// Handler writes one line per record with millisecond timestamps.
type Handler struct {
	out   io.Writer
	mu    *sync.Mutex
	attrs []slog.Attr // attrs are prepended by With
	group string      // group prefixes attribute keys
}

// NewHandler creates a new handler writing to the given writer.
func NewHandler(out io.Writer) *Handler {
	return &Handler{out: out, mu: &sync.Mutex{}}
}

// Enabled reports whether the level passes the configured minimum.
func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= level.Level()
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	// Format: 2024-01-15 14:30:45.123 [INF] message key=value
	ts := r.Time.Format("2006-01-02 15:04:05.000")

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", ts, levelString(r.Level), r.Message)

	for _, a := range h.attrs {
		h.writeAttr(&b, a)
	}

	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&b, a)
		return true
	})

	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := io.WriteString(h.out, b.String())

	return err
}

// writeAttr appends " key=value", qualified by the handler group.
func (h *Handler) writeAttr(b *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}

	fmt.Fprintf(b, " %s=%v", key, a.Value.Resolve())
}

// WithAttrs returns a handler that also writes the given attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)

	return &Handler{out: h.out, mu: h.mu, attrs: merged, group: h.group}
}

// WithGroup returns a handler that prefixes new attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	group := name
	if h.group != "" {
		group = h.group + "." + name
	}

	return &Handler{out: h.out, mu: h.mu, attrs: h.attrs, group: group}
}

// levelString returns a short string for the log level.
func levelString(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "DBG"
	case slog.LevelInfo:
		return "INF"
	case slog.LevelWarn:
		return "WRN"
	case slog.LevelError:
		return "ERR"
	default:
		return "???"
	}
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}

// Timed returns elapsed time since start for logging duration.
func Timed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
