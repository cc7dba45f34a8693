package eventflow

import (
	"context"
	"strings"
)

// Handler executes one workflow event.
type Handler func(ctx context.Context, event WorkflowEvent) error

// Validator checks an event before its handler runs. A validation error
// routes the event straight to dead-letter handling without consuming a
// retry attempt.
type Validator func(ctx context.Context, event WorkflowEvent) error

// Predicate gates handler execution. Returning false skips the registration
// silently.
type Predicate func(event WorkflowEvent) bool

// RetryPredicate decides whether a handler error is retryable. A nil
// predicate retries every error.
type RetryPredicate func(err error) bool

// DeadLetterHandler receives events that exhausted their retry policy or
// failed validation.
type DeadLetterHandler func(ctx context.Context, event WorkflowEvent, cause error)

// HandlerRegistration binds a handler to an event key.
//
// EventKey containing "." subscribes to an event type; a bare key subscribes
// to an exact event name. RegistrationID is a caller-supplied stable identity:
// it seeds delivery-attempt idempotency keys and therefore must be
// reproducible across process restarts for the same logical handler.
type HandlerRegistration struct {
	EventKey       string
	RegistrationID string
	Handler        Handler
	Validator      Validator
	When           Predicate
	Retries        int
	RetryOn        RetryPredicate
	DeadLetter     DeadLetterHandler

	seq int
}

// RegistrationOption customizes a handler registration.
type RegistrationOption func(*HandlerRegistration)

// WithValidator attaches a pre-execution validator.
func WithValidator(validator Validator) RegistrationOption {
	return func(reg *HandlerRegistration) {
		reg.Validator = validator
	}
}

// WithWhen attaches a predicate that must hold for the handler to run.
func WithWhen(when Predicate) RegistrationOption {
	return func(reg *HandlerRegistration) {
		reg.When = when
	}
}

// WithRetries sets how many times a failing handler is retried after its
// first attempt.
func WithRetries(retries int) RegistrationOption {
	return func(reg *HandlerRegistration) {
		reg.Retries = retries
	}
}

// WithRetryOn restricts which handler errors are retried.
func WithRetryOn(retryOn RetryPredicate) RegistrationOption {
	return func(reg *HandlerRegistration) {
		reg.RetryOn = retryOn
	}
}

// WithDeadLetterHandler attaches a registration-specific dead-letter handler.
func WithDeadLetterHandler(deadLetter DeadLetterHandler) RegistrationOption {
	return func(reg *HandlerRegistration) {
		reg.DeadLetter = deadLetter
	}
}

func newRegistration(
	eventKey, registrationID string,
	handler Handler,
	opts ...RegistrationOption,
) (*HandlerRegistration, error) {
	reg := &HandlerRegistration{
		EventKey:       strings.TrimSpace(eventKey),
		RegistrationID: strings.TrimSpace(registrationID),
		Handler:        handler,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}

	if reg.EventKey == "" {
		return nil, ErrEventKeyRequired
	}

	if reg.RegistrationID == "" {
		return nil, ErrRegistrationIDRequired
	}

	if reg.Handler == nil {
		return nil, ErrHandlerRequired
	}

	if reg.Retries < 0 {
		return nil, ErrRetriesNegative
	}

	return reg, nil
}

// matchesType reports whether the event key subscribes by dotted event type.
func (reg *HandlerRegistration) matchesType() bool {
	return strings.Contains(reg.EventKey, ".")
}
