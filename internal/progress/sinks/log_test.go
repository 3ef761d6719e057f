package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSinkMapsLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), runEvents(uuid.New(), time.Now())))

	entries := logs.AllUntimed()
	require.Len(t, entries, 6)
	require.Equal(t, "run state changed", entries[0].Message)
	require.Equal(t, zapcore.InfoLevel, entries[2].Level)
	require.Equal(t, "navigated", entries[2].Message)
	require.Equal(t, "source progress", entries[3].Message)
	require.Equal(t, zapcore.WarnLevel, entries[4].Level)
	require.Equal(t, "status 500", entries[4].ContextMap()["details"])
	require.Equal(t, "run complete", entries[5].Message)
	require.EqualValues(t, 5, entries[5].ContextMap()["downloaded"])
}
