package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/reyadatime/reyadatime/internal/config"
)

type traceIDKey struct{}

// redactedKeys never reach a log sink with their value.
var redactedKeys = map[string]bool{
	"password":      true,
	"password_hash": true,
	"access_token":  true,
	"authorization": true,
	"token":         true,
}

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:       cfg.Observability.LogLevel,
		ReplaceAttr: redact,
	}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func redact(_ []string, attr slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(attr.Key)] {
		return slog.String(attr.Key, "[redacted]")
	}
	return attr
}

// WithComponent scopes logger to one subsystem, falling back to the default logger.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", component))
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(traceIDKey{}).(string)
	return value
}
