//go:build unit

package eventflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	require.Equal(t, ModeDevelopment, cfg.Mode)
	require.False(t, cfg.AsyncEnabled)
	require.True(t, cfg.DeadLetterEnabled)
	require.Equal(t, 50, cfg.OutboxBatchSize)
	require.Equal(t, 5*time.Minute, cfg.ClaimTTL)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, 30*time.Second, cfg.RetryBackoff)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("EVENTFLOW_MODE", "production")
	t.Setenv("EVENTFLOW_ASYNC_ENABLED", "true")
	t.Setenv("EVENTFLOW_DEAD_LETTER_ENABLED", "false")
	t.Setenv("EVENTFLOW_OUTBOX_BATCH_SIZE", "25")
	t.Setenv("EVENTFLOW_OUTBOX_CLAIM_TTL", "90s")
	t.Setenv("EVENTFLOW_MAX_RETRIES", "5")
	t.Setenv("EVENTFLOW_RETRY_BACKOFF", "10s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, ModeProduction, cfg.Mode)
	require.True(t, cfg.AsyncEnabled)
	require.False(t, cfg.DeadLetterEnabled)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.Equal(t, 90*time.Second, cfg.ClaimTTL)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, 10*time.Second, cfg.RetryBackoff)
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	t.Setenv("EVENTFLOW_MODE", "staging")

	_, err := LoadConfig()
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestNormalizeFillsInvalidValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Mode:            ModeProduction,
		OutboxBatchSize: -1,
		ClaimTTL:        0,
		MaxRetries:      -3,
		RetryBackoff:    -time.Second,
	}

	cfg.normalize()

	require.Equal(t, ModeProduction, cfg.Mode)
	require.Equal(t, 50, cfg.OutboxBatchSize)
	require.Equal(t, 5*time.Minute, cfg.ClaimTTL)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, 30*time.Second, cfg.RetryBackoff)
}
