package eventflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/LerianStudio/lib-eventflow/eventflow/backoff"
	"github.com/LerianStudio/lib-eventflow/eventflow/internal/nilcheck"
)

// DatabaseRegistry is the production registry: events and outbox entries are
// persisted transactionally, work is claimed with row locking by external
// workers, and per-handler delivery attempts keep handler side effects
// at-most-once despite outbox retries and claim reclaims.
type DatabaseRegistry struct {
	*router

	store   Store
	queue   TaskQueue
	cfg     Config
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics registryMetrics

	// construction staging, consumed by NewDatabaseRegistry
	dlFallback    DeadLetterHandler
	baseRetryWait time.Duration
	meterProvider metric.MeterProvider
}

// DatabaseOption customizes the database registry.
type DatabaseOption func(*DatabaseRegistry)

// WithDatabaseLogger sets the registry logger.
func WithDatabaseLogger(logger *zap.Logger) DatabaseOption {
	return func(registry *DatabaseRegistry) {
		if logger != nil {
			registry.logger = logger
		}
	}
}

// WithDatabaseTracer sets the tracer used for registry spans.
func WithDatabaseTracer(tracer trace.Tracer) DatabaseOption {
	return func(registry *DatabaseRegistry) {
		if !nilcheck.Interface(tracer) {
			registry.tracer = tracer
		}
	}
}

// WithDatabaseTaskQueue sets the task queue used when async publishing is
// enabled.
func WithDatabaseTaskQueue(queue TaskQueue) DatabaseOption {
	return func(registry *DatabaseRegistry) {
		if !nilcheck.Interface(queue) {
			registry.queue = queue
		}
	}
}

// WithDatabaseDeadLetterFallback sets the registry-level dead-letter handler.
func WithDatabaseDeadLetterFallback(fallback DeadLetterHandler) DatabaseOption {
	return func(registry *DatabaseRegistry) {
		registry.dlFallback = fallback
	}
}

// WithDatabaseRetryWait sets the base delay between in-process handler retry
// attempts.
func WithDatabaseRetryWait(wait time.Duration) DatabaseOption {
	return func(registry *DatabaseRegistry) {
		if wait > 0 {
			registry.baseRetryWait = wait
		}
	}
}

// WithDatabaseMeterProvider injects a custom meter provider for registry
// metrics. Passing nil keeps the global OpenTelemetry meter provider.
func WithDatabaseMeterProvider(provider metric.MeterProvider) DatabaseOption {
	return func(registry *DatabaseRegistry) {
		registry.meterProvider = provider
	}
}

// NewDatabaseRegistry creates the outbox-backed registry.
func NewDatabaseRegistry(store Store, cfg Config, opts ...DatabaseOption) (*DatabaseRegistry, error) {
	if nilcheck.Interface(store) {
		return nil, ErrStoreRequired
	}

	cfg.normalize()

	registry := &DatabaseRegistry{
		store:  store,
		cfg:    cfg,
		logger: zap.NewNop(),
		tracer: noop.NewTracerProvider().Tracer("eventflow.noop"),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}

	if cfg.AsyncEnabled && registry.queue == nil {
		return nil, ErrTaskQueueRequired
	}

	registry.router = newRouter(registry.logger, registry.dlFallback, registry.baseRetryWait)

	metrics, err := newRegistryMetrics(registry.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("init registry metrics: %w", err)
	}

	registry.metrics = metrics

	return registry, nil
}

// Publish persists the event and a pending outbox entry in one transaction.
//
// A duplicate event id is swallowed and returns false. With async enabled the
// entry is left for the task-queue worker and Publish returns false; callers
// must not assume synchronous handling. Otherwise the entry is processed
// inline and its result returned. Downstream handler failures never surface
// as errors here: they are captured as persisted row state.
func (registry *DatabaseRegistry) Publish(ctx context.Context, event WorkflowEvent) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, err
	}

	ctx, span := registry.tracer.Start(ctx, "eventflow.publish")
	defer span.End()

	entry, err := registry.store.CreateEventWithEntry(ctx, event)
	if err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			registry.metrics.eventsDuplicate.Add(ctx, 1)
			registry.logger.Debug("duplicate event ignored", zap.String("event_id", event.EventID))

			return false, nil
		}

		recordSpanError(span, "failed to persist event", err)

		return false, fmt.Errorf("publishing event: %w", err)
	}

	registry.metrics.eventsPublished.Add(ctx, 1)

	if registry.cfg.AsyncEnabled {
		registry.enqueueBatch(ctx)

		return false, nil
	}

	handled, err := registry.ProcessOutboxEntry(ctx, entry.ID)
	if err != nil {
		// The event is durable; the worker loop retries the entry later.
		registry.logger.Error("inline outbox processing failed",
			zap.Int64("outbox_id", entry.ID),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)

		return false, nil
	}

	return handled, nil
}

// PublishTx persists the event inside the caller's transaction and registers
// the follow-up dispatch on hooks, which the caller drains after a
// successful commit. It always returns false: handling is deferred.
func (registry *DatabaseRegistry) PublishTx(
	ctx context.Context,
	tx Tx,
	event WorkflowEvent,
	hooks *PostCommitHooks,
) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, err
	}

	entry, err := registry.store.CreateEventWithEntryTx(ctx, tx, event)
	if err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			registry.metrics.eventsDuplicate.Add(ctx, 1)

			return false, nil
		}

		return false, fmt.Errorf("publishing event in transaction: %w", err)
	}

	registry.metrics.eventsPublished.Add(ctx, 1)

	if hooks != nil {
		outboxID := entry.ID
		hooks.Add(func(hookCtx context.Context) {
			if registry.cfg.AsyncEnabled {
				registry.enqueueBatch(hookCtx)

				return
			}

			if _, processErr := registry.ProcessOutboxEntry(hookCtx, outboxID); processErr != nil {
				registry.logger.Error("post-commit outbox processing failed",
					zap.Int64("outbox_id", outboxID),
					zap.Error(processErr),
				)
			}
		})
	}

	return false, nil
}

// PublishSync routes the event synchronously, bypassing persistence and
// deferral entirely.
func (registry *DatabaseRegistry) PublishSync(ctx context.Context, event WorkflowEvent) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, err
	}

	ctx, span := registry.tracer.Start(ctx, "eventflow.publish_sync")
	defer span.End()

	return registry.route(ctx, event), nil
}

// ClaimOutboxBatch claims up to batchSize ready entries for this caller and
// returns their ids. batchSize <= 0 falls back to the configured default.
// Any number of workers may claim concurrently; row locking guarantees no
// entry is handed to two callers.
func (registry *DatabaseRegistry) ClaimOutboxBatch(ctx context.Context, batchSize int) ([]int64, error) {
	if batchSize <= 0 {
		batchSize = registry.cfg.OutboxBatchSize
	}

	ctx, span := registry.tracer.Start(ctx, "eventflow.claim_outbox_batch")
	defer span.End()

	claimed, err := registry.store.ClaimBatch(ctx, batchSize, time.Now().UTC(), registry.cfg.ClaimTTL)
	if err != nil {
		recordSpanError(span, "failed to claim outbox batch", err)

		return nil, fmt.Errorf("claiming outbox batch: %w", err)
	}

	registry.metrics.claimBatchSize.Record(ctx, int64(len(claimed)))

	ids := make([]int64, 0, len(claimed))
	for _, entry := range claimed {
		ids = append(ids, entry.ID)

		if entry.Reclaimed {
			registry.logger.Warn("reclaimed stale outbox claim",
				zap.Int64("outbox_id", entry.ID),
				zap.Int("attempts", entry.Attempts),
			)
		}
	}

	return ids, nil
}

// ProcessOutboxEntry routes one outbox entry through the registered handlers
// and drives its status transition. Missing and already-processed entries are
// idempotent no-ops returning false.
func (registry *DatabaseRegistry) ProcessOutboxEntry(ctx context.Context, outboxID int64) (bool, error) {
	start := time.Now()

	ctx, span := registry.tracer.Start(ctx, "eventflow.process_outbox_entry")
	defer span.End()

	entry, event, err := registry.store.GetEntry(ctx, outboxID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return false, nil
		}

		recordSpanError(span, "failed to load outbox entry", err)

		return false, fmt.Errorf("loading outbox entry: %w", err)
	}

	if entry.Status.IsTerminal() {
		return false, nil
	}

	// Distinguishes "no subscribers" (not an error) from "handlers present
	// but none completed" before routing can mutate attempt state.
	hasHandlers := registry.hasMatches(*event)

	attempts := entry.Attempts
	if entry.Status != OutboxClaimed {
		// Inline path: no claim incremented the counter for this pass.
		attempts, err = registry.store.IncrementAttempts(ctx, outboxID)
		if err != nil {
			recordSpanError(span, "failed to increment attempts", err)

			return false, fmt.Errorf("incrementing outbox attempts: %w", err)
		}
	}

	handled := registry.routeWith(ctx, *event, registry.recordedInvoke)

	if handled || !hasHandlers {
		if err := registry.store.MarkEntryProcessed(ctx, outboxID, entry.ClaimToken); err != nil {
			if errors.Is(err, ErrClaimConflict) {
				registry.logger.Warn("outbox entry was reclaimed before finalization",
					zap.Int64("outbox_id", outboxID),
				)

				return false, nil
			}

			recordSpanError(span, "failed to mark entry processed", err)

			return false, fmt.Errorf("marking outbox entry processed: %w", err)
		}

		registry.metrics.entriesProcessed.Add(ctx, 1)
		registry.metrics.processingLatency.Record(ctx, time.Since(start).Seconds())

		return true, nil
	}

	registry.failEntry(ctx, entry, attempts, ErrHandlerIncomplete)
	registry.metrics.processingLatency.Record(ctx, time.Since(start).Seconds())

	return false, nil
}

// failEntry records a processing failure: dead-letter once the retry budget
// is exhausted and dead-lettering is enabled, otherwise failed with a linear
// backoff gate on the next claim.
func (registry *DatabaseRegistry) failEntry(ctx context.Context, entry *OutboxEntry, attempts int, cause error) {
	lastError := sanitizeErrorForStorage(cause)

	// MaxRetries counts retries after the first attempt, so dead-lettering
	// kicks in once attempts exceeds it.
	if attempts > registry.cfg.MaxRetries && registry.cfg.DeadLetterEnabled {
		if err := registry.store.MarkEntryDeadLettered(ctx, entry.ID, entry.ClaimToken, lastError); err != nil {
			registry.logFinalizeError(ctx, entry.ID, "dead_letter", err)

			return
		}

		registry.metrics.entriesDeadLetter.Add(ctx, 1)
		registry.logger.Warn("outbox entry dead-lettered",
			zap.Int64("outbox_id", entry.ID),
			zap.String("event_id", entry.EventID),
			zap.Int("attempts", attempts),
		)

		return
	}

	availableAt := time.Now().UTC().Add(backoff.Linear(registry.cfg.RetryBackoff, attempts))

	if err := registry.store.MarkEntryFailed(ctx, entry.ID, entry.ClaimToken, lastError, availableAt); err != nil {
		registry.logFinalizeError(ctx, entry.ID, "failed", err)

		return
	}

	registry.metrics.entriesFailed.Add(ctx, 1)
}

func (registry *DatabaseRegistry) logFinalizeError(ctx context.Context, outboxID int64, target string, err error) {
	if errors.Is(err, ErrClaimConflict) {
		registry.logger.Warn("outbox entry was reclaimed before finalization",
			zap.Int64("outbox_id", outboxID),
			zap.String("target_status", target),
		)

		return
	}

	registry.logger.Error("failed to finalize outbox entry",
		zap.Int64("outbox_id", outboxID),
		zap.String("target_status", target),
		zap.Error(err),
	)
}

// recordedInvoke is the attempt-recording invoker used during outbox
// routing. A delivery attempt that already completed short-circuits to
// success without invoking the handler.
func (registry *DatabaseRegistry) recordedInvoke(
	ctx context.Context,
	reg *HandlerRegistration,
	event WorkflowEvent,
	attempt int,
) error {
	key := IdempotencyKey(event.EventID, reg.RegistrationID)

	existing, err := registry.store.GetOrCreateAttempt(ctx, key, event.EventID, reg.RegistrationID)
	if err != nil {
		return fmt.Errorf("loading delivery attempt: %w", err)
	}

	if existing.Status == AttemptCompleted {
		registry.logger.Debug("skipping completed delivery attempt",
			zap.String("idempotency_key", key),
		)

		return nil
	}

	if _, err := registry.store.MarkAttemptRunning(ctx, key); err != nil {
		return fmt.Errorf("marking delivery attempt running: %w", err)
	}

	if handlerErr := callHandler(ctx, reg.Handler, event); handlerErr != nil {
		status := AttemptFailed
		if attempt > reg.Retries && registry.cfg.DeadLetterEnabled {
			status = AttemptDeadLetter
		}

		traceback := string(debug.Stack())
		if markErr := registry.store.MarkAttemptFailed(
			ctx, key, status, sanitizeErrorForStorage(handlerErr), traceback,
		); markErr != nil {
			registry.logger.Error("failed to record delivery attempt failure",
				zap.String("idempotency_key", key),
				zap.Error(markErr),
			)
		}

		return handlerErr
	}

	if err := registry.store.MarkAttemptCompleted(ctx, key); err != nil {
		// The handler succeeded. Losing the completed marker downgrades this
		// key to at-least-once on a later retry, which beats failing a
		// successful execution.
		registry.logger.Error("handler succeeded but completed state was not persisted",
			zap.String("idempotency_key", key),
			zap.Error(err),
		)
	}

	return nil
}

// ListFailed returns failed entries for operator inspection.
func (registry *DatabaseRegistry) ListFailed(ctx context.Context, limit int) ([]*OutboxEntry, error) {
	if limit <= 0 {
		limit = registry.cfg.OutboxBatchSize
	}

	return registry.store.ListFailed(ctx, limit)
}

// ListDeadLettered returns dead-lettered entries for operator inspection.
func (registry *DatabaseRegistry) ListDeadLettered(ctx context.Context, limit int) ([]*OutboxEntry, error) {
	if limit <= 0 {
		limit = registry.cfg.OutboxBatchSize
	}

	return registry.store.ListDeadLettered(ctx, limit)
}

// Replay resets failed or dead-lettered entries to pending, re-enabling
// processing. Recovering a dead-lettered entry is an explicit operator
// action.
func (registry *DatabaseRegistry) Replay(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	moved, err := registry.store.Replay(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("replaying outbox entries: %w", err)
	}

	registry.logger.Info("outbox entries replayed",
		zap.Int("requested", len(ids)),
		zap.Int("moved", moved),
	)

	return moved, nil
}

func (registry *DatabaseRegistry) enqueueBatch(ctx context.Context) {
	job := BatchJob{
		BatchSize:  registry.cfg.OutboxBatchSize,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := registry.queue.EnqueueBatch(ctx, job); err != nil {
		// The entry stays pending; the polling worker is the safety net.
		registry.logger.Error("failed to enqueue outbox batch job", zap.Error(err))
	}
}

func recordSpanError(span trace.Span, message string, err error) {
	if err == nil {
		return
	}

	span.SetStatus(codes.Error, message)
	span.RecordError(err)
}
