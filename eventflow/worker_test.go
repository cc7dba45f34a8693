//go:build unit

package eventflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newWorkerFixture(t *testing.T, cfg Config, handler Handler) (*Worker, *fakeStore, *DatabaseRegistry) {
	t.Helper()

	store := newFakeStore()
	registry := newTestRegistry(t, store, cfg)

	if handler != nil {
		require.NoError(t, registry.Register("order.created", "reg-a", handler))
	}

	worker, err := NewWorker(registry, WithWorkerInterval(5*time.Millisecond), WithWorkerConcurrency(2))
	require.NoError(t, err)

	return worker, store, registry
}

func seedEntries(t *testing.T, store *fakeStore, count int) {
	t.Helper()

	for i := range count {
		event := testEvent(t, "evt-"+string(rune('a'+i)), "order.created")

		_, err := store.CreateEventWithEntry(context.Background(), event)
		require.NoError(t, err)
	}
}

func TestNewWorkerRequiresRegistry(t *testing.T) {
	t.Parallel()

	_, err := NewWorker(nil)
	require.ErrorIs(t, err, ErrRegistryRequired)
}

func TestWorkerRunOnceProcessesClaimedEntries(t *testing.T) {
	t.Parallel()

	var calls int32

	worker, store, _ := newWorkerFixture(t, DefaultConfig(), func(context.Context, WorkflowEvent) error {
		atomic.AddInt32(&calls, 1)

		return nil
	})

	seedEntries(t, store, 3)

	result := worker.RunOnce(context.Background())

	require.Equal(t, 3, result.Claimed)
	require.Equal(t, 3, result.Processed)
	require.Equal(t, 0, result.Failed)
	require.EqualValues(t, 3, calls)

	for id := int64(1); id <= 3; id++ {
		require.Equal(t, OutboxProcessed, store.entry(t, id).Status)
	}
}

func TestWorkerRunOnceCountsFailures(t *testing.T) {
	t.Parallel()

	worker, store, _ := newWorkerFixture(t, DefaultConfig(), func(context.Context, WorkflowEvent) error {
		return errors.New("always fails")
	})

	seedEntries(t, store, 2)

	result := worker.RunOnce(context.Background())

	require.Equal(t, 2, result.Claimed)
	require.Equal(t, 0, result.Processed)
	require.Equal(t, 2, result.Failed)
}

func TestWorkerRunOnceEmptyBatch(t *testing.T) {
	t.Parallel()

	worker, _, _ := newWorkerFixture(t, DefaultConfig(), nil)

	result := worker.RunOnce(context.Background())
	require.Zero(t, result.Claimed)
	require.Zero(t, result.Processed)
	require.Zero(t, result.Failed)
}

func TestWorkerRunStopShutdown(t *testing.T) {
	t.Parallel()

	var calls int32

	worker, store, _ := newWorkerFixture(t, DefaultConfig(), func(context.Context, WorkflowEvent) error {
		atomic.AddInt32(&calls, 1)

		return nil
	})

	seedEntries(t, store, 1)

	done := make(chan error, 1)

	go func() {
		done <- worker.Run()
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, worker.Shutdown(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerSecondRunFails(t *testing.T) {
	t.Parallel()

	worker, _, _ := newWorkerFixture(t, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- worker.RunContext(ctx)
	}()

	require.Eventually(t, func() bool {
		worker.runStateMu.Lock()
		defer worker.runStateMu.Unlock()

		return worker.running
	}, time.Second, time.Millisecond)

	require.ErrorIs(t, worker.RunContext(context.Background()), ErrWorkerRunning)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorkerCycleSurvivesClaimError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.claimErr = errors.New("database unavailable")

	registry := newTestRegistry(t, store, DefaultConfig())

	worker, err := NewWorker(registry)
	require.NoError(t, err)

	result := worker.RunOnce(context.Background())
	require.Zero(t, result.Claimed)
}
