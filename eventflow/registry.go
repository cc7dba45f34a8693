package eventflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/LerianStudio/lib-eventflow/eventflow/internal/nilcheck"
)

// Registry is the surface shared by the in-memory and database-backed
// implementations. Handlers are registered once at startup; Publish and
// PublishSync may be called from any goroutine afterwards.
type Registry interface {
	Register(eventKey, registrationID string, handler Handler, opts ...RegistrationOption) error
	Publish(ctx context.Context, event WorkflowEvent) (bool, error)
	PublishSync(ctx context.Context, event WorkflowEvent) (bool, error)
}

// Dependencies carries the collaborators a resolved registry may need.
// Only Store is mandatory, and only for the database registry.
type Dependencies struct {
	Store              Store
	TaskQueue          TaskQueue
	Logger             *zap.Logger
	Tracer             trace.Tracer
	MeterProvider      metric.MeterProvider
	DeadLetterFallback DeadLetterHandler
	RetryWait          time.Duration

	// Factory, when set, takes over construction entirely. It exists so
	// applications can swap in a custom registry without forking the
	// resolution logic.
	Factory func(cfg Config, deps Dependencies) (Registry, error)
}

// Resolve builds the registry implied by cfg.Mode: in-memory for
// development, database-backed for production. A Factory on deps wins over
// both.
func Resolve(cfg Config, deps Dependencies) (Registry, error) {
	if deps.Factory != nil {
		registry, err := deps.Factory(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("resolving registry via factory: %w", err)
		}

		if nilcheck.Interface(registry) {
			return nil, ErrRegistryRequired
		}

		return registry, nil
	}

	switch cfg.Mode {
	case ModeDevelopment, "":
		opts := []InMemoryOption{
			WithInMemoryLogger(deps.Logger),
			WithInMemoryDeadLetterFallback(deps.DeadLetterFallback),
		}
		if deps.RetryWait > 0 {
			opts = append(opts, WithInMemoryRetryWait(deps.RetryWait))
		}

		return NewInMemoryRegistry(opts...), nil
	case ModeProduction:
		opts := []DatabaseOption{
			WithDatabaseLogger(deps.Logger),
			WithDatabaseTracer(deps.Tracer),
			WithDatabaseTaskQueue(deps.TaskQueue),
			WithDatabaseDeadLetterFallback(deps.DeadLetterFallback),
			WithDatabaseMeterProvider(deps.MeterProvider),
		}
		if deps.RetryWait > 0 {
			opts = append(opts, WithDatabaseRetryWait(deps.RetryWait))
		}

		return NewDatabaseRegistry(deps.Store, cfg, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// Provider holds the process-wide registry behind a read lock so hot paths
// can publish without contending with the rare Replace (tests, config
// reload).
type Provider struct {
	mu       sync.RWMutex
	registry Registry
}

// NewProvider creates a provider for an already-resolved registry.
func NewProvider(registry Registry) (*Provider, error) {
	if nilcheck.Interface(registry) {
		return nil, ErrRegistryRequired
	}

	return &Provider{registry: registry}, nil
}

// Current returns the active registry.
func (p *Provider) Current() (Registry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.registry == nil {
		return nil, ErrProviderEmpty
	}

	return p.registry, nil
}

// Replace swaps the active registry and returns the previous one.
// In-flight publishes on the old registry are unaffected.
func (p *Provider) Replace(registry Registry) (Registry, error) {
	if nilcheck.Interface(registry) {
		return nil, ErrRegistryRequired
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	previous := p.registry
	p.registry = registry

	return previous, nil
}
