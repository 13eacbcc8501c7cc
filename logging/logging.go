// Package logging builds the daemon's slog logger. Record timestamps can be
// shifted to the network time once the modem reported it, so that log lines
// of a device without a battery backed clock carry a usable time.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ParseLevel maps a level name to a slog level. Unknown names yield Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// New returns a logger writing JSON, or text when format is "text", to w.
// The returned handler is the logger's clock sink.
func New(format string, level slog.Level, w io.Writer) (*slog.Logger, *OffsetHandler) {
	opts := &slog.HandlerOptions{Level: level}

	var next slog.Handler
	if format == "text" {
		next = slog.NewTextHandler(w, opts)
	} else {
		next = slog.NewJSONHandler(w, opts)
	}

	h := NewOffsetHandler(next)
	return slog.New(h), h
}

// OffsetHandler shifts record timestamps by the difference between the last
// reported network time and the local clock.
type OffsetHandler struct {
	next   slog.Handler
	offset *atomic.Int64
}

func NewOffsetHandler(next slog.Handler) *OffsetHandler {
	return &OffsetHandler{next: next, offset: new(atomic.Int64)}
}

// SetTime records t as the current time.
func (h *OffsetHandler) SetTime(t time.Time) error {
	h.offset.Store(int64(time.Until(t)))
	return nil
}

// Offset returns the current shift.
func (h *OffsetHandler) Offset() time.Duration {
	return time.Duration(h.offset.Load())
}

func (h *OffsetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *OffsetHandler) Handle(ctx context.Context, r slog.Record) error {
	if offset := h.Offset(); offset != 0 && !r.Time.IsZero() {
		r.Time = r.Time.Add(offset)
	}
	return h.next.Handle(ctx, r)
}

func (h *OffsetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &OffsetHandler{next: h.next.WithAttrs(attrs), offset: h.offset}
}

func (h *OffsetHandler) WithGroup(name string) slog.Handler {
	return &OffsetHandler{next: h.next.WithGroup(name), offset: h.offset}
}
