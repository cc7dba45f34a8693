package eventflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InMemoryRegistry routes events synchronously on the publishing goroutine
// with deduplication by event id. It offers no durability and no
// cross-process dedup; it exists for development and tests.
type InMemoryRegistry struct {
	*router

	mu     sync.Mutex
	seen   map[string]struct{}
	logger *zap.Logger
}

// InMemoryOption customizes the in-memory registry.
type InMemoryOption func(*InMemoryRegistry)

// WithInMemoryLogger sets the registry logger.
func WithInMemoryLogger(logger *zap.Logger) InMemoryOption {
	return func(registry *InMemoryRegistry) {
		if logger != nil {
			registry.logger = logger
		}
	}
}

// WithInMemoryDeadLetterFallback sets the registry-level dead-letter handler.
func WithInMemoryDeadLetterFallback(fallback DeadLetterHandler) InMemoryOption {
	return func(registry *InMemoryRegistry) {
		registry.router.deadLetterFallback = fallback
	}
}

// WithInMemoryRetryWait sets the base delay between in-process retry attempts.
func WithInMemoryRetryWait(wait time.Duration) InMemoryOption {
	return func(registry *InMemoryRegistry) {
		if wait > 0 {
			registry.router.retryWait = wait
		}
	}
}

// NewInMemoryRegistry creates a single-process synchronous registry.
func NewInMemoryRegistry(opts ...InMemoryOption) *InMemoryRegistry {
	registry := &InMemoryRegistry{
		seen:   make(map[string]struct{}),
		logger: zap.NewNop(),
	}

	registry.router = newRouter(registry.logger, nil, 0)

	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}

	registry.router.logger = registry.logger

	return registry
}

// Publish routes the event to matching handlers unless its id was already
// seen. Routing happens outside the dedup lock so a slow handler never
// blocks publication of other events.
func (registry *InMemoryRegistry) Publish(ctx context.Context, event WorkflowEvent) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, err
	}

	registry.mu.Lock()
	if _, duplicate := registry.seen[event.EventID]; duplicate {
		registry.mu.Unlock()

		registry.logger.Debug("duplicate event ignored", zap.String("event_id", event.EventID))

		return false, nil
	}

	registry.seen[event.EventID] = struct{}{}
	registry.mu.Unlock()

	return registry.route(ctx, event), nil
}

// PublishSync routes the event synchronously, bypassing deduplication.
func (registry *InMemoryRegistry) PublishSync(ctx context.Context, event WorkflowEvent) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, err
	}

	return registry.route(ctx, event), nil
}
