package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mikeboe/luma/pkg/database"
	"github.com/mikeboe/luma/pkg/router"
)

// LogSink stores request-scoped log records.
type LogSink interface {
	InsertRequestLog(ctx context.Context, entry database.RequestLog) error
}

// DBLogHandler is a slog.Handler that forwards every record to Next and also
// writes records carrying a request id to Sink.
type DBLogHandler struct {
	Next  slog.Handler
	Sink  LogSink
	attrs []slog.Attr
}

func NewDBLogHandler(next slog.Handler, sink LogSink) *DBLogHandler {
	return &DBLogHandler{Next: next, Sink: sink}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.Next.Enabled(ctx, level)
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.Next.Handle(ctx, r)

	requestID := router.RequestID(ctx)
	if requestID == "" || h.Sink == nil {
		return err
	}

	// Extract attributes to JSON
	attrs := make(map[string]interface{})
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	for k, v := range attrs {
		if e, ok := v.(error); ok {
			attrs[k] = e.Error()
		}
	}

	metaJSON, mErr := json.Marshal(attrs)
	if mErr != nil {
		metaJSON = []byte("{}")
	}

	// Background context so the insert survives a finished request.
	if sErr := h.Sink.InsertRequestLog(context.Background(), database.RequestLog{
		RequestID: requestID,
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Metadata:  metaJSON,
	}); sErr != nil && err == nil {
		err = sErr
	}
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &DBLogHandler{Next: h.Next.WithAttrs(attrs), Sink: h.Sink, attrs: merged}
}

// WithGroup only groups the forwarded output; stored metadata stays flat.
func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	return &DBLogHandler{Next: h.Next.WithGroup(name), Sink: h.Sink, attrs: h.attrs}
}
