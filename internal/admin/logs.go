package admin

import (
	"context"
	"log/slog"
	"time"
)

// logEvent is the JSON shape pushed to /ws/logs subscribers.
type logEvent struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// broadcastLogHandler is an slog.Handler that forwards every record to a
// hub's subscribers instead of writing to a sink itself. It is reached only
// through Server.LogHandler; main does not add it to the process logger, so
// records logged elsewhere in the service are not forwarded.
type broadcastLogHandler struct {
	hub *hub
}

func (h *broadcastLogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *broadcastLogHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Resolve().Any()
		return true
	})
	h.hub.broadcast(logEvent{
		Time:    r.Time.UTC(),
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

func (h *broadcastLogHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *broadcastLogHandler) WithGroup(string) slog.Handler      { return h }
