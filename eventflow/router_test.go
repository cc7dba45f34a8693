//go:build unit

package eventflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent(t *testing.T, id, eventType string, opts ...EventOption) WorkflowEvent {
	t.Helper()

	event, err := NewWorkflowEvent(id, eventType, opts...)
	require.NoError(t, err)

	return event
}

func newTestRouter() *router {
	return newRouter(zap.NewNop(), nil, time.Millisecond)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	handler := func(context.Context, WorkflowEvent) error { return nil }

	require.ErrorIs(t, r.Register("", "reg-a", handler), ErrEventKeyRequired)
	require.ErrorIs(t, r.Register("order.created", "", handler), ErrRegistrationIDRequired)
	require.ErrorIs(t, r.Register("order.created", "reg-a", nil), ErrHandlerRequired)
	require.ErrorIs(t, r.Register("order.created", "reg-a", handler, WithRetries(-1)), ErrRetriesNegative)
}

func TestRegisterRejectsDuplicateRegistrationID(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	handler := func(context.Context, WorkflowEvent) error { return nil }

	require.NoError(t, r.Register("order.created", "reg-a", handler))
	require.ErrorIs(t, r.Register("order.updated", "reg-a", handler), ErrRegistrationIDTaken)
}

func TestRouteMatchesByTypeAndName(t *testing.T) {
	t.Parallel()

	r := newTestRouter()

	var order []string

	require.NoError(t, r.Register("order.created", "by-type", func(context.Context, WorkflowEvent) error {
		order = append(order, "by-type")

		return nil
	}))
	require.NoError(t, r.Register("order_created_v2", "by-name", func(context.Context, WorkflowEvent) error {
		order = append(order, "by-name")

		return nil
	}))
	require.NoError(t, r.Register("invoice.sent", "other", func(context.Context, WorkflowEvent) error {
		order = append(order, "other")

		return nil
	}))

	event := testEvent(t, "evt-1", "order.created", WithEventName("order_created_v2"))

	require.True(t, r.route(context.Background(), event))
	require.Equal(t, []string{"by-type", "by-name"}, order)
}

func TestRouteNoMatches(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	event := testEvent(t, "evt-1", "order.created")

	require.False(t, r.route(context.Background(), event))
	require.False(t, r.hasMatches(event))
}

func TestRouteValidatorFailureDeadLettersWithoutRetry(t *testing.T) {
	t.Parallel()

	r := newTestRouter()

	var (
		handlerCalls    int32
		deadLetterCalls int32
		deadLetterCause error
	)

	require.NoError(t, r.Register(
		"order.created",
		"reg-a",
		func(context.Context, WorkflowEvent) error {
			atomic.AddInt32(&handlerCalls, 1)

			return nil
		},
		WithRetries(3),
		WithValidator(func(context.Context, WorkflowEvent) error {
			return errors.New("payload malformed")
		}),
		WithDeadLetterHandler(func(_ context.Context, _ WorkflowEvent, cause error) {
			atomic.AddInt32(&deadLetterCalls, 1)

			deadLetterCause = cause
		}),
	))

	handled := r.route(context.Background(), testEvent(t, "evt-3", "order.created"))

	require.False(t, handled)
	require.EqualValues(t, 0, handlerCalls)
	require.EqualValues(t, 1, deadLetterCalls)
	require.ErrorContains(t, deadLetterCause, "validation failed")
}

func TestRouteWhenFalseSkipsSilently(t *testing.T) {
	t.Parallel()

	r := newTestRouter()

	var handlerCalls, deadLetterCalls int32

	require.NoError(t, r.Register(
		"order.created",
		"reg-a",
		func(context.Context, WorkflowEvent) error {
			atomic.AddInt32(&handlerCalls, 1)

			return nil
		},
		WithWhen(func(WorkflowEvent) bool { return false }),
		WithDeadLetterHandler(func(context.Context, WorkflowEvent, error) {
			atomic.AddInt32(&deadLetterCalls, 1)
		}),
	))

	require.False(t, r.route(context.Background(), testEvent(t, "evt-4", "order.created")))
	require.EqualValues(t, 0, handlerCalls)
	require.EqualValues(t, 0, deadLetterCalls)
}

func TestRouteRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	r := newTestRouter()

	var attempts int32

	require.NoError(t, r.Register(
		"order.created",
		"reg-a",
		func(context.Context, WorkflowEvent) error {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return errors.New("transient")
			}

			return nil
		},
		WithRetries(2),
	))

	require.True(t, r.route(context.Background(), testEvent(t, "evt-5", "order.created")))
	require.EqualValues(t, 3, attempts)
}

func TestRouteExhaustedRetriesDeadLetter(t *testing.T) {
	t.Parallel()

	r := newTestRouter()

	var attempts, deadLetterCalls int32

	require.NoError(t, r.Register(
		"order.created",
		"reg-a",
		func(context.Context, WorkflowEvent) error {
			atomic.AddInt32(&attempts, 1)

			return errors.New("always fails")
		},
		WithRetries(2),
		WithDeadLetterHandler(func(context.Context, WorkflowEvent, error) {
			atomic.AddInt32(&deadLetterCalls, 1)
		}),
	))

	require.False(t, r.route(context.Background(), testEvent(t, "evt-6", "order.created")))
	require.EqualValues(t, 3, attempts)
	require.EqualValues(t, 1, deadLetterCalls)
}

func TestRouteRetryOnStopsNonRetryableErrors(t *testing.T) {
	t.Parallel()

	r := newTestRouter()

	permanent := errors.New("permanent")

	var attempts int32

	require.NoError(t, r.Register(
		"order.created",
		"reg-a",
		func(context.Context, WorkflowEvent) error {
			atomic.AddInt32(&attempts, 1)

			return permanent
		},
		WithRetries(5),
		WithRetryOn(func(err error) bool { return !errors.Is(err, permanent) }),
	))

	require.False(t, r.route(context.Background(), testEvent(t, "evt-7", "order.created")))
	require.EqualValues(t, 1, attempts)
}

func TestRoutePanicDegradesToHandlerError(t *testing.T) {
	t.Parallel()

	r := newTestRouter()

	var deadLetterCause error

	require.NoError(t, r.Register(
		"order.created",
		"reg-a",
		func(context.Context, WorkflowEvent) error {
			panic("boom")
		},
		WithDeadLetterHandler(func(_ context.Context, _ WorkflowEvent, cause error) {
			deadLetterCause = cause
		}),
	))

	require.False(t, r.route(context.Background(), testEvent(t, "evt-8", "order.created")))
	require.ErrorContains(t, deadLetterCause, "handler panic")
}

func TestRouteFallbackDeadLetterUsedWithoutRegistrationHandler(t *testing.T) {
	t.Parallel()

	var fallbackCalls int32

	r := newRouter(zap.NewNop(), func(context.Context, WorkflowEvent, error) {
		atomic.AddInt32(&fallbackCalls, 1)
	}, time.Millisecond)

	require.NoError(t, r.Register("order.created", "reg-a", func(context.Context, WorkflowEvent) error {
		return errors.New("always fails")
	}))

	require.False(t, r.route(context.Background(), testEvent(t, "evt-9", "order.created")))
	require.EqualValues(t, 1, fallbackCalls)
}

func TestRoutePartialSuccessStillHandled(t *testing.T) {
	t.Parallel()

	r := newTestRouter()

	require.NoError(t, r.Register("order.created", "fails", func(context.Context, WorkflowEvent) error {
		return errors.New("nope")
	}))
	require.NoError(t, r.Register("order.created", "succeeds", func(context.Context, WorkflowEvent) error {
		return nil
	}))

	require.True(t, r.route(context.Background(), testEvent(t, "evt-10", "order.created")))
}
