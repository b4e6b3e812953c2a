package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gatepass/pkg/requestcontext"
)

// New returns a JSON slog logger at the level named by LOG_LEVEL.
func New() *slog.Logger {
	return NewWithWriter(os.Stdout, os.Getenv("LOG_LEVEL"))
}

func NewWithWriter(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return slog.New(&contextHandler{Handler: slog.NewJSONHandler(w, opts)})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// contextHandler stamps every record with the actor's estate from context.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if estateID := requestcontext.EstateID(ctx); !estateID.IsNil() {
		r.AddAttrs(slog.String("actor_estate_id", estateID.String()))
	}
	if userID := requestcontext.UserID(ctx); !userID.IsNil() {
		r.AddAttrs(slog.String("actor_id", userID.String()))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}
