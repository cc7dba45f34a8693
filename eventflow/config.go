package eventflow

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Mode selects the default registry implementation.
type Mode string

const (
	// ModeDevelopment resolves to the in-memory registry.
	ModeDevelopment Mode = "dev"
	// ModeProduction resolves to the database-backed outbox registry.
	ModeProduction Mode = "production"
)

const (
	defaultOutboxBatchSize = 50
	defaultClaimTTL        = 5 * time.Minute
	defaultMaxRetries      = 3
	defaultRetryBackoff    = 30 * time.Second
)

// Config controls registry resolution and outbox retry behavior.
type Config struct {
	// Mode selects the registry implementation: dev or production.
	Mode Mode `env:"EVENTFLOW_MODE" envDefault:"dev"`
	// AsyncEnabled defers outbox processing to the external task queue
	// instead of processing inline after publish.
	AsyncEnabled bool `env:"EVENTFLOW_ASYNC_ENABLED" envDefault:"false"`
	// DeadLetterEnabled moves exhausted entries to dead_letter; when false
	// they stay failed and remain claim-eligible indefinitely.
	DeadLetterEnabled bool `env:"EVENTFLOW_DEAD_LETTER_ENABLED" envDefault:"true"`
	// OutboxBatchSize is the default claim batch size.
	OutboxBatchSize int `env:"EVENTFLOW_OUTBOX_BATCH_SIZE" envDefault:"50"`
	// ClaimTTL is the window after which an unfinished claim is presumed
	// abandoned and becomes reclaimable.
	ClaimTTL time.Duration `env:"EVENTFLOW_OUTBOX_CLAIM_TTL" envDefault:"5m"`
	// MaxRetries bounds outbox-level attempts before dead-lettering.
	MaxRetries int `env:"EVENTFLOW_MAX_RETRIES" envDefault:"3"`
	// RetryBackoff is the linear backoff base gating claim eligibility:
	// availableAt = now + RetryBackoff * attempts.
	RetryBackoff time.Duration `env:"EVENTFLOW_RETRY_BACKOFF" envDefault:"30s"`
}

// DefaultConfig returns the baseline registry configuration.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeDevelopment,
		AsyncEnabled:      false,
		DeadLetterEnabled: true,
		OutboxBatchSize:   defaultOutboxBatchSize,
		ClaimTTL:          defaultClaimTTL,
		MaxRetries:        defaultMaxRetries,
		RetryBackoff:      defaultRetryBackoff,
	}
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse eventflow config: %w", err)
	}

	if cfg.Mode != ModeDevelopment && cfg.Mode != ModeProduction {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}

	cfg.normalize()

	return cfg, nil
}

func (cfg *Config) normalize() {
	defaults := DefaultConfig()

	if cfg.Mode == "" {
		cfg.Mode = defaults.Mode
	}

	if cfg.OutboxBatchSize <= 0 {
		cfg.OutboxBatchSize = defaults.OutboxBatchSize
	}

	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = defaults.ClaimTTL
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}

	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
}
