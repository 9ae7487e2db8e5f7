package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aidotmarket/vectoraiz-sub002/internal/correlation"
)

// Config controls how NewLogger builds the logger and its destinations.
type Config struct {
	Level          string // debug|info|warn|error
	Format         string // json|text
	Service        string
	Version        string
	LogDir         string // empty disables the rotating file destination
	RingCapacity   int
}

// NewLogger builds the structured logger described in the design: records
// are delivered to stderr (always), a size-rotated file when LogDir is
// writable, and the ring buffer, simultaneously. If the file destination
// cannot be opened the logger degrades to stderr only and logs one warning.
func NewLogger(cfg Config) (*slog.Logger, *RingBuffer) {
	ring := NewRingBuffer(cfg.RingCapacity)

	var dest io.Writer = os.Stderr
	var fileWarning string

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			fileWarning = "log directory not writable, falling back to stderr only: " + err.Error()
		} else {
			rotator := &lumberjack.Logger{
				Filename:   filepath.Join(cfg.LogDir, cfg.Service+".log"),
				MaxSize:    100, // megabytes
				MaxBackups: 5,
				MaxAge:     28, // days
				Compress:   true,
			}
			dest = io.MultiWriter(os.Stderr, rotator)
		}
	}

	level := parseLevel(cfg.Level)
	inner := slog.NewJSONHandler(dest, &slog.HandlerOptions{Level: level})

	h := &Handler{
		inner:   inner,
		ring:    ring,
		service: cfg.Service,
		version: cfg.Version,
		name:    "vectoraiz",
	}
	logger := slog.New(h)

	if fileWarning != "" {
		logger.Warn(fileWarning)
	}
	return logger, ring
}

// EnsureStderrFallback is a startup assertion: NewLogger always wires
// os.Stderr into the destination writer, so this exists only to document
// the invariant at the wiring call site and to give it a name to call out
// in logs if that ever stops being true.
func EnsureStderrFallback(logger *slog.Logger) {
	_ = logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler is a slog.Handler that fans every record out to the encoded
// destination (stderr/file) and to the in-process ring buffer.
type Handler struct {
	inner   slog.Handler
	ring    *RingBuffer
	service string
	version string
	name    string
	attrs   []slog.Attr
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	record := Record{
		"ts":      r.Time.UTC().Format(time.RFC3339Nano),
		"level":   r.Level.String(),
		"service": h.service,
		"version": h.version,
		"logger":  h.name,
		"msg":     r.Message,
	}
	if reqID := correlation.RequestID(ctx); reqID != "" {
		record["request_id"] = reqID
	}
	if corrID := correlation.CorrelationID(ctx); corrID != "" {
		record["correlation_id"] = corrID
	}
	if sessID := correlation.SessionID(ctx); sessID != "" {
		record["session_id"] = sessID
	}
	for _, a := range h.attrs {
		record[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		record[a.Key] = a.Value.Any()
		return true
	})
	h.ring.Add(record)

	return h.inner.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &Handler{
		inner:   h.inner.WithAttrs(attrs),
		ring:    h.ring,
		service: h.service,
		version: h.version,
		name:    h.name,
		attrs:   combined,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:   h.inner.WithGroup(name),
		ring:    h.ring,
		service: h.service,
		version: h.version,
		name:    h.name,
		attrs:   h.attrs,
	}
}

// PinNoisyLoggers lowers the default level for known-noisy third-party
// loggers (HTTP clients, file watchers) to WARN or above, per the design's
// ambient logging policy. Callers that construct their own *slog.Logger for
// such a dependency should pass it through this helper.
func PinNoisyLoggers(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
