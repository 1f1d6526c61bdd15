package logger

import (
	"context"
	"io"
	"log/slog"
)

// ColorTextHandler wraps slog.TextHandler and prefixes each record's message
// with an ANSI-colored level tag. Used for the interactive console sink only;
// the file sink stays plain text.
type ColorTextHandler struct {
	*slog.TextHandler
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *ColorTextHandler {
	return &ColorTextHandler{TextHandler: slog.NewTextHandler(w, opts)}
}

func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	var color string
	switch r.Level {
	case slog.LevelDebug:
		color = "\033[36m" // cyan
	case slog.LevelInfo:
		color = "\033[32m" // green
	case slog.LevelWarn:
		color = "\033[33m" // yellow
	case slog.LevelError:
		color = "\033[31m" // red
	default:
		color = "\033[0m"
	}
	r.Message = color + r.Level.String() + "\033[0m  " + r.Message
	return h.TextHandler.Handle(ctx, r)
}
