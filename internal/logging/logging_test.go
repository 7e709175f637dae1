package logging

import (
	"context"
	"testing"
	"time"

	"github.com/jensneuse/abstractlogger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	eventbus "github.com/hanpama/patchql/internal/eventbus"
	events "github.com/hanpama/patchql/internal/events"
)

func TestAttachLogsGraphQLEvents(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)

	core, observed := observer.New(zapcore.DebugLevel)
	detach := Attach(abstractlogger.NewZapLogger(zap.New(core), abstractlogger.DebugLevel))
	defer detach()

	ctx := context.Background()
	eventbus.Publish(ctx, events.GraphQLFinish{
		OperationName: "Hero",
		OperationType: "query",
		Incremental:   true,
		Duration:      5 * time.Millisecond,
	})
	eventbus.Publish(ctx, events.PatchEmit{Label: "NameFragment", Path: "hero"})
	eventbus.Publish(ctx, events.PatchesFinish{Count: 1})

	entries := observed.All()
	require.Len(t, entries, 3)
	require.Equal(t, "graphql.execute", entries[0].Message)
	require.Equal(t, "graphql.patch", entries[1].Message)
	require.Equal(t, "graphql.patches", entries[2].Message)
}

func TestAttachErrorLevelOnFailedOperation(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)

	core, observed := observer.New(zapcore.DebugLevel)
	detach := Attach(abstractlogger.NewZapLogger(zap.New(core), abstractlogger.DebugLevel))
	defer detach()

	eventbus.Publish(context.Background(), events.GraphQLFinish{
		OperationName: "Hero",
		Errors:        []error{context.Canceled},
	})

	entries := observed.All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestDetachStopsLogging(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)

	core, observed := observer.New(zapcore.DebugLevel)
	detach := Attach(abstractlogger.NewZapLogger(zap.New(core), abstractlogger.DebugLevel))
	detach()

	eventbus.Publish(context.Background(), events.PatchEmit{Label: "x"})
	require.Empty(t, observed.All())
}
