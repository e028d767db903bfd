// Package logging wires log/slog for the capture runtime and CLI.
//
// Package-level loggers are created with L(component) at init time and pick up
// whatever handler Init installs later.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Key constants for structured log fields.
const (
	KeyComponent = "component"
	KeySession   = "session"
	KeyMode      = "mode"
	KeyState     = "state"
	KeyError     = "error"
)

type contextKey struct{}

// handlerBox keeps the stored type fixed while the handler inside changes.
type handlerBox struct {
	h slog.Handler
}

type handlerRef struct {
	current atomic.Pointer[handlerBox]
}

// switchingHandler defers every call to the handler currently stored in ref,
// replaying attrs and groups collected through WithAttrs/WithGroup.
type switchingHandler struct {
	ref    *handlerRef
	attrs  []slog.Attr
	groups []string
}

func (h *switchingHandler) resolve() slog.Handler {
	handler := h.ref.current.Load().h
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	return handler
}

func (h *switchingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.resolve().Enabled(ctx, level)
}

func (h *switchingHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.resolve().Handle(ctx, record)
}

func (h *switchingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &switchingHandler{ref: h.ref, attrs: merged, groups: append([]string(nil), h.groups...)}
}

func (h *switchingHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &switchingHandler{ref: h.ref, attrs: append([]slog.Attr(nil), h.attrs...), groups: groups}
}

var (
	root = newRoot(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	base = slog.New(root)
)

func newRoot(h slog.Handler) *switchingHandler {
	ref := &handlerRef{}
	ref.current.Store(&handlerBox{h: h})
	return &switchingHandler{ref: ref}
}

func init() {
	slog.SetDefault(base)
}

// Init installs the global handler. format is "json" or "text"; level is one of
// debug, info, warn, error. A nil output logs to stderr.
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	root.ref.current.Store(&handlerBox{h: handler})
	slog.SetDefault(base)
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// L returns a logger tagged with the given component.
func L(component string) *slog.Logger {
	return base.With(KeyComponent, component)
}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return base
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
