package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type ctxKey struct{}

type requestFieldsKey struct{}

type requestFields struct {
	mu    sync.Mutex
	attrs []any
}

func Init(service, bankPrefix, level, appEnv string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if appEnv == "development" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service, "bank_prefix", bankPrefix)
	slog.SetDefault(logger)
	return logger
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// WithRequestFields starts collecting attributes for a request's summary line.
func WithRequestFields(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestFieldsKey{}, &requestFields{})
}

// AddRequestFields appends key/value pairs to the summary line of the request that
// owns ctx. Outside a request it does nothing.
func AddRequestFields(ctx context.Context, attrs ...any) {
	f, ok := ctx.Value(requestFieldsKey{}).(*requestFields)
	if !ok {
		return
	}
	f.mu.Lock()
	f.attrs = append(f.attrs, attrs...)
	f.mu.Unlock()
}

func RequestFields(ctx context.Context) []any {
	f, ok := ctx.Value(requestFieldsKey{}).(*requestFields)
	if !ok {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.attrs...)
}

// WithTransfer scopes the context logger to a single transfer.
func WithTransfer(ctx context.Context, base *slog.Logger, transferID uuid.UUID, accountTo string) (context.Context, *slog.Logger) {
	l := base.With("transfer_id", transferID, "account_to", accountTo)
	return WithLogger(ctx, l), l
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
