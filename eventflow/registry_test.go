//go:build unit

package eventflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDevelopmentMode(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = ModeDevelopment

	registry, err := Resolve(cfg, Dependencies{})
	require.NoError(t, err)
	require.IsType(t, &InMemoryRegistry{}, registry)
}

func TestResolveEmptyModeDefaultsToInMemory(t *testing.T) {
	t.Parallel()

	registry, err := Resolve(Config{}, Dependencies{})
	require.NoError(t, err)
	require.IsType(t, &InMemoryRegistry{}, registry)
}

func TestResolveProductionMode(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = ModeProduction

	registry, err := Resolve(cfg, Dependencies{Store: newFakeStore()})
	require.NoError(t, err)
	require.IsType(t, &DatabaseRegistry{}, registry)
}

func TestResolveProductionModeRequiresStore(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = ModeProduction

	_, err := Resolve(cfg, Dependencies{})
	require.ErrorIs(t, err, ErrStoreRequired)
}

func TestResolveUnknownMode(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = "staging"

	_, err := Resolve(cfg, Dependencies{})
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestResolveFactoryWins(t *testing.T) {
	t.Parallel()

	custom := NewInMemoryRegistry()

	cfg := DefaultConfig()
	cfg.Mode = ModeProduction

	registry, err := Resolve(cfg, Dependencies{
		Factory: func(Config, Dependencies) (Registry, error) {
			return custom, nil
		},
	})
	require.NoError(t, err)
	require.Same(t, custom, registry)
}

func TestResolveFactoryErrorPropagates(t *testing.T) {
	t.Parallel()

	factoryErr := errors.New("factory broken")

	_, err := Resolve(DefaultConfig(), Dependencies{
		Factory: func(Config, Dependencies) (Registry, error) {
			return nil, factoryErr
		},
	})
	require.ErrorIs(t, err, factoryErr)
}

func TestResolveFactoryNilRegistryRejected(t *testing.T) {
	t.Parallel()

	_, err := Resolve(DefaultConfig(), Dependencies{
		Factory: func(Config, Dependencies) (Registry, error) {
			return nil, nil
		},
	})
	require.ErrorIs(t, err, ErrRegistryRequired)
}

func TestProviderLifecycle(t *testing.T) {
	t.Parallel()

	first := NewInMemoryRegistry()
	second := NewInMemoryRegistry()

	provider, err := NewProvider(first)
	require.NoError(t, err)

	current, err := provider.Current()
	require.NoError(t, err)
	require.Same(t, first, current)

	previous, err := provider.Replace(second)
	require.NoError(t, err)
	require.Same(t, first, previous)

	current, err = provider.Current()
	require.NoError(t, err)
	require.Same(t, second, current)
}

func TestProviderRejectsNilRegistry(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(nil)
	require.ErrorIs(t, err, ErrRegistryRequired)

	var typedNil *InMemoryRegistry

	_, err = NewProvider(typedNil)
	require.ErrorIs(t, err, ErrRegistryRequired)

	provider, err := NewProvider(NewInMemoryRegistry())
	require.NoError(t, err)

	_, err = provider.Replace(nil)
	require.ErrorIs(t, err, ErrRegistryRequired)
}

func TestResolvedRegistriesShareSurface(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = ModeProduction

	registries := map[string]Registry{}

	inMemory, err := Resolve(DefaultConfig(), Dependencies{})
	require.NoError(t, err)

	database, err := Resolve(cfg, Dependencies{Store: newFakeStore()})
	require.NoError(t, err)

	registries["in-memory"] = inMemory
	registries["database"] = database

	for name, registry := range registries {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, registry.Register("order.created", "reg-"+name, func(context.Context, WorkflowEvent) error {
				return nil
			}))

			handled, err := registry.Publish(context.Background(), testEvent(t, "evt-"+name, "order.created"))
			require.NoError(t, err)
			require.True(t, handled)
		})
	}
}
