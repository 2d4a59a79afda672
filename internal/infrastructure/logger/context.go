package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	actorKey     contextKey = "actor"
)

// ActorFields identifies the authenticated partner in log lines
type ActorFields struct {
	ID       string
	Type     string
	Username string
}

// WithContext attaches a logger to ctx
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the attached logger or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID stores the request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the stored request id, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithActor stores the acting partner
func WithActor(ctx context.Context, actor ActorFields) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Actor returns the stored actor, if any
func Actor(ctx context.Context) (ActorFields, bool) {
	a, ok := ctx.Value(actorKey).(ActorFields)
	return a, ok
}

// L returns the context logger with trace_id, span_id, request_id and the
// actor fields added.
//
//	logger.L(ctx).Info("Transfer settled", zap.String("transfer_id", id))
func L(ctx context.Context) *zap.Logger {
	return Enrich(ctx, FromContext(ctx))
}

// Enrich adds the correlation fields found in ctx to l
func Enrich(ctx context.Context, l *zap.Logger) *zap.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	fields := make([]zap.Field, 0, 5)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()))
	}
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if a, ok := Actor(ctx); ok {
		fields = append(fields, zap.String("actor_id", a.ID), zap.String("actor_type", a.Type))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
