// Package logging bridges the event bus to a structured logger, so hosts get
// request and patch logs without the engine holding a logger of its own.
package logging

import (
	"context"

	"github.com/jensneuse/abstractlogger"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/patchql/internal/eventbus"
	events "github.com/hanpama/patchql/internal/events"
	reqid "github.com/hanpama/patchql/internal/reqid"
)

// Attach subscribes log handlers for HTTP, GraphQL, and patch events on the
// global bus. The returned function detaches them.
func Attach(log abstractlogger.Logger) (detach func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			log.Debug("http.request",
				abstractlogger.Any("request_id", requestID(ctx)),
				abstractlogger.String("method", e.Request.Method),
				abstractlogger.String("path", e.Request.URL.Path),
				abstractlogger.Int("status", e.Status),
				abstractlogger.Int("duration_ms", int(e.Duration.Milliseconds())),
			)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			fields := []abstractlogger.Field{
				abstractlogger.Any("request_id", requestID(ctx)),
				abstractlogger.String("operation", e.OperationName),
				abstractlogger.String("type", e.OperationType),
				abstractlogger.Bool("incremental", e.Incremental),
				abstractlogger.Int("errors", len(e.Errors)),
				abstractlogger.Int("duration_ms", int(e.Duration.Milliseconds())),
			}
			if len(e.Errors) > 0 {
				log.Error("graphql.execute", fields...)
				return
			}
			log.Debug("graphql.execute", fields...)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.PatchEmit) {
			log.Debug("graphql.patch",
				abstractlogger.Any("request_id", requestID(ctx)),
				abstractlogger.String("label", e.Label),
				abstractlogger.String("path", e.Path),
				abstractlogger.Int("errors", e.ErrorCount),
			)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.PatchesFinish) {
			log.Debug("graphql.patches",
				abstractlogger.Any("request_id", requestID(ctx)),
				abstractlogger.Int("count", e.Count),
				abstractlogger.Int("duration_ms", int(e.Duration.Milliseconds())),
			)
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// NewZap wraps a zap logger for Attach.
func NewZap(l *zap.Logger, level abstractlogger.Level) abstractlogger.Logger {
	return abstractlogger.NewZapLogger(l, level)
}

func requestID(ctx context.Context) int64 {
	id, _ := reqid.FromContext(ctx)
	return id
}
