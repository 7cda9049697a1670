package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithFlowID attaches a flow correlation ID to the contextual logger so every
// request made on behalf of one flow instance can be tied together.
func WithFlowID(ctx context.Context, flowID string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("flow_id", flowID))
}
