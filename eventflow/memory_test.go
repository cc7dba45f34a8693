//go:build unit

package eventflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishDeduplicates(t *testing.T) {
	t.Parallel()

	registry := NewInMemoryRegistry()

	var calls int32

	require.NoError(t, registry.Register("order.created", "reg-a", func(context.Context, WorkflowEvent) error {
		atomic.AddInt32(&calls, 1)

		return nil
	}))

	event := testEvent(t, "evt-1", "order.created")

	handled, err := registry.Publish(context.Background(), event)
	require.NoError(t, err)
	require.True(t, handled)

	handled, err = registry.Publish(context.Background(), event)
	require.NoError(t, err)
	require.False(t, handled)

	require.EqualValues(t, 1, calls)
}

func TestInMemoryPublishValidatesEvent(t *testing.T) {
	t.Parallel()

	registry := NewInMemoryRegistry()

	_, err := registry.Publish(context.Background(), WorkflowEvent{EventType: "order.created"})
	require.ErrorIs(t, err, ErrEventIDRequired)
}

func TestInMemoryPublishSyncBypassesDedup(t *testing.T) {
	t.Parallel()

	registry := NewInMemoryRegistry()

	var calls int32

	require.NoError(t, registry.Register("order.created", "reg-a", func(context.Context, WorkflowEvent) error {
		atomic.AddInt32(&calls, 1)

		return nil
	}))

	event := testEvent(t, "evt-2", "order.created")

	for range 3 {
		handled, err := registry.PublishSync(context.Background(), event)
		require.NoError(t, err)
		require.True(t, handled)
	}

	require.EqualValues(t, 3, calls)
}

func TestInMemoryPublishConcurrentDedup(t *testing.T) {
	t.Parallel()

	registry := NewInMemoryRegistry()

	var calls int32

	require.NoError(t, registry.Register("order.created", "reg-a", func(context.Context, WorkflowEvent) error {
		atomic.AddInt32(&calls, 1)

		return nil
	}))

	event := testEvent(t, "evt-3", "order.created")

	var (
		wg      sync.WaitGroup
		handled int32
	)

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ok, err := registry.Publish(context.Background(), event)
			require.NoError(t, err)

			if ok {
				atomic.AddInt32(&handled, 1)
			}
		}()
	}

	wg.Wait()

	require.EqualValues(t, 1, calls)
	require.EqualValues(t, 1, handled)
}

func TestInMemoryDeadLetterFallbackOption(t *testing.T) {
	t.Parallel()

	var fallbackCalls int32

	registry := NewInMemoryRegistry(
		WithInMemoryDeadLetterFallback(func(context.Context, WorkflowEvent, error) {
			atomic.AddInt32(&fallbackCalls, 1)
		}),
		WithInMemoryRetryWait(time.Millisecond),
	)

	require.NoError(t, registry.Register("order.created", "reg-a", func(context.Context, WorkflowEvent) error {
		return errors.New("always fails")
	}))

	handled, err := registry.Publish(context.Background(), testEvent(t, "evt-4", "order.created"))
	require.NoError(t, err)
	require.False(t, handled)
	require.EqualValues(t, 1, fallbackCalls)
}
