package eventflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LerianStudio/lib-eventflow/eventflow/backoff"
)

const defaultRetryWait = 50 * time.Millisecond

// invokeFunc runs one handler attempt. The database registry substitutes an
// attempt-recording implementation; everything else about routing is shared.
type invokeFunc func(ctx context.Context, reg *HandlerRegistration, event WorkflowEvent, attempt int) error

// router matches events to registrations and drives the per-registration
// retry loop with dead-letter fallback. It is embedded by both registries.
type router struct {
	mu     sync.RWMutex
	byType map[string][]*HandlerRegistration
	byName map[string][]*HandlerRegistration
	ids    map[string]struct{}
	seq    int

	deadLetterFallback DeadLetterHandler
	retryWait          time.Duration
	logger             *zap.Logger
}

func newRouter(logger *zap.Logger, fallback DeadLetterHandler, retryWait time.Duration) *router {
	if logger == nil {
		logger = zap.NewNop()
	}

	if retryWait <= 0 {
		retryWait = defaultRetryWait
	}

	return &router{
		byType:             make(map[string][]*HandlerRegistration),
		byName:             make(map[string][]*HandlerRegistration),
		ids:                make(map[string]struct{}),
		deadLetterFallback: fallback,
		retryWait:          retryWait,
		logger:             logger,
	}
}

// Register appends a handler registration. Registrations are append-only and
// registration ids must be unique: reusing an id would collide delivery
// attempt idempotency keys.
func (r *router) Register(
	eventKey, registrationID string,
	handler Handler,
	opts ...RegistrationOption,
) error {
	reg, err := newRegistration(eventKey, registrationID, handler, opts...)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[reg.RegistrationID]; exists {
		return fmt.Errorf("%w: %s", ErrRegistrationIDTaken, reg.RegistrationID)
	}

	r.seq++
	reg.seq = r.seq
	r.ids[reg.RegistrationID] = struct{}{}

	if reg.matchesType() {
		r.byType[reg.EventKey] = append(r.byType[reg.EventKey], reg)
	} else {
		r.byName[reg.EventKey] = append(r.byName[reg.EventKey], reg)
	}

	return nil
}

// matches returns the union of type and name subscriptions for the event in
// registration order.
func (r *router) matches(event WorkflowEvent) []*HandlerRegistration {
	r.mu.RLock()
	typed := r.byType[event.EventType]

	var named []*HandlerRegistration
	if event.EventName != "" {
		named = r.byName[event.EventName]
	}

	matched := make([]*HandlerRegistration, 0, len(typed)+len(named))
	matched = append(matched, typed...)
	matched = append(matched, named...)
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq < matched[j].seq
	})

	return matched
}

func (r *router) hasMatches(event WorkflowEvent) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.byType[event.EventType]) > 0 {
		return true
	}

	return event.EventName != "" && len(r.byName[event.EventName]) > 0
}

// route runs all matched registrations with direct handler invocation and
// reports whether at least one completed successfully.
func (r *router) route(ctx context.Context, event WorkflowEvent) bool {
	return r.routeWith(ctx, event, directInvoke)
}

// routeWith runs the shared routing algorithm with a custom attempt invoker.
func (r *router) routeWith(ctx context.Context, event WorkflowEvent, invoke invokeFunc) bool {
	handled := false

	for _, reg := range r.matches(event) {
		if reg.Validator != nil {
			if err := callValidator(ctx, reg.Validator, event); err != nil {
				r.deadLetterEvent(ctx, reg, event, fmt.Errorf("validation failed: %w", err))

				continue
			}
		}

		if reg.When != nil && !reg.When(event) {
			continue
		}

		if r.runWithRetry(ctx, reg, event, invoke) {
			handled = true
		}
	}

	return handled
}

// runWithRetry attempts the registration up to Retries+1 times, waiting a
// jittered exponential delay between attempts, and dead-letters on
// exhaustion or a non-retryable error.
func (r *router) runWithRetry(
	ctx context.Context,
	reg *HandlerRegistration,
	event WorkflowEvent,
	invoke invokeFunc,
) bool {
	maxAttempts := reg.Retries + 1

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := invoke(ctx, reg, event, attempt)
		if err == nil {
			return true
		}

		lastErr = err

		if !r.shouldRetry(reg, err) || attempt == maxAttempts {
			break
		}

		r.logger.Debug("handler attempt failed, retrying",
			zap.String("event_id", event.EventID),
			zap.String("registration_id", reg.RegistrationID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		delay := backoff.ExponentialWithJitter(r.retryWait, attempt-1)
		if waitErr := backoff.WaitContext(ctx, delay); waitErr != nil {
			lastErr = fmt.Errorf("retry wait interrupted: %w", waitErr)

			break
		}
	}

	r.deadLetterEvent(ctx, reg, event, lastErr)

	return false
}

func (r *router) shouldRetry(reg *HandlerRegistration, err error) bool {
	if reg.RetryOn == nil {
		return true
	}

	return reg.RetryOn(err)
}

// deadLetterEvent routes a failure to the registration handler, then the
// registry fallback, then the log.
func (r *router) deadLetterEvent(
	ctx context.Context,
	reg *HandlerRegistration,
	event WorkflowEvent,
	cause error,
) {
	if reg.DeadLetter != nil {
		callDeadLetter(ctx, r.logger, reg.DeadLetter, event, cause)

		return
	}

	if r.deadLetterFallback != nil {
		callDeadLetter(ctx, r.logger, r.deadLetterFallback, event, cause)

		return
	}

	r.logger.Warn("event dead-lettered without a dead-letter handler",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("registration_id", reg.RegistrationID),
		zap.Error(cause),
	)
}

// directInvoke calls the handler with panic recovery so a panicking handler
// degrades to a handler error.
func directInvoke(ctx context.Context, reg *HandlerRegistration, event WorkflowEvent, _ int) error {
	return callHandler(ctx, reg.Handler, event)
}

func callHandler(ctx context.Context, handler Handler, event WorkflowEvent) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panic: %v", recovered)
		}
	}()

	return handler(ctx, event)
}

func callValidator(ctx context.Context, validator Validator, event WorkflowEvent) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("validator panic: %v", recovered)
		}
	}()

	return validator(ctx, event)
}

func callDeadLetter(
	ctx context.Context,
	logger *zap.Logger,
	deadLetter DeadLetterHandler,
	event WorkflowEvent,
	cause error,
) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("dead-letter handler panicked",
				zap.String("event_id", event.EventID),
				zap.Any("panic", recovered),
			)
		}
	}()

	deadLetter(ctx, event, cause)
}
