package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"

	domain "github.com/autox/api/internal/domain"
)

type (
	loggerKey struct{}
	traceKey  struct{}
	actorKey  struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo is the Cloud Trace metadata of the current request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the request-scoped logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request-scoped logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger is the shared logger returned when none is stored.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores trace metadata.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace returns the stored trace metadata.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID returns the stored trace id or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// actorSlot is filled in by authentication, which runs inside route groups after the outer
// middlewares have already built their contexts.
type actorSlot struct {
	mu    sync.RWMutex
	actor domain.Actor
	set   bool
}

// WithActorSlot reserves a slot for the authenticated actor. Calling it again on a context that already
// carries a slot returns ctx unchanged so every middleware shares one slot.
func WithActorSlot(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Value(actorKey{}).(*actorSlot); ok {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, &actorSlot{})
}

// SetActor records the actor in the slot reserved by WithActorSlot. It reports false when ctx has no slot.
func SetActor(ctx context.Context, actor domain.Actor) bool {
	if ctx == nil {
		return false
	}
	slot, ok := ctx.Value(actorKey{}).(*actorSlot)
	if !ok {
		return false
	}
	slot.mu.Lock()
	slot.actor = actor
	slot.set = true
	slot.mu.Unlock()
	return true
}

// Actor returns the actor recorded for the request.
func Actor(ctx context.Context) (domain.Actor, bool) {
	if ctx == nil {
		return domain.Actor{}, false
	}
	slot, ok := ctx.Value(actorKey{}).(*actorSlot)
	if !ok {
		return domain.Actor{}, false
	}
	slot.mu.RLock()
	defer slot.mu.RUnlock()
	return slot.actor, slot.set
}
