package api

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/orchestrator"
)

func TestManagerSingleActiveRun(t *testing.T) {
	t.Parallel()

	runner := newBlockingRunner()
	mgr := NewManager(runner, &sequenceIDs{}, zap.NewNop())

	id, err := mgr.Start(orchestrator.Job{Query: "cats"})
	require.NoError(t, err)
	require.True(t, runner.waitStarted(time.Second))
	assert.Equal(t, id, runner.lastJob().ID)

	active, ok := mgr.Active()
	require.True(t, ok)
	assert.Equal(t, id, active)

	_, err = mgr.Start(orchestrator.Job{Query: "dogs"})
	require.ErrorIs(t, err, ErrRunActive)

	close(runner.release)
	require.True(t, mgr.Wait(time.Second))

	second, err := mgr.Start(orchestrator.Job{Query: "dogs"})
	require.NoError(t, err)
	assert.NotEqual(t, id, second)
	require.True(t, runner.waitStarted(time.Second))
	require.True(t, mgr.Wait(time.Second))
}

func TestManagerWait(t *testing.T) {
	t.Parallel()

	runner := newBlockingRunner()
	mgr := NewManager(runner, &sequenceIDs{}, nil)
	require.True(t, mgr.Wait(0), "an idle manager returns at once")

	_, err := mgr.Start(orchestrator.Job{Query: "cats"})
	require.NoError(t, err)
	require.True(t, runner.waitStarted(time.Second))
	require.False(t, mgr.Wait(20*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(runner.release)
	}()
	require.True(t, mgr.Wait(time.Second))
	_, busy := mgr.Active()
	require.False(t, busy)
}

func TestManagerCancel(t *testing.T) {
	t.Parallel()

	runner := newBlockingRunner()
	mgr := NewManager(runner, &sequenceIDs{}, nil)

	id, err := mgr.Start(orchestrator.Job{Query: "cats"})
	require.NoError(t, err)
	require.True(t, runner.waitStarted(time.Second))

	require.ErrorIs(t, mgr.Cancel(uuid.New()), ErrRunNotActive)
	require.NoError(t, mgr.Cancel(id))
	require.True(t, mgr.Wait(time.Second))
	require.ErrorIs(t, mgr.Cancel(id), ErrRunNotActive)
}

func TestManagerShutdown(t *testing.T) {
	t.Parallel()

	runner := newBlockingRunner()
	mgr := NewManager(runner, &sequenceIDs{}, nil)

	_, err := mgr.Start(orchestrator.Job{Query: "cats"})
	require.NoError(t, err)
	require.True(t, runner.waitStarted(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(ctx))

	_, err = mgr.Start(orchestrator.Job{Query: "late"})
	require.ErrorIs(t, err, context.Canceled)
}
