package eventflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/LerianStudio/lib-eventflow/eventflow/internal/nilcheck"
)

const (
	defaultPollInterval      = 5 * time.Second
	defaultWorkerConcurrency = 4
)

// Worker polls the outbox through a DatabaseRegistry: claim a batch, process
// each claimed entry, repeat. It is the safety net behind the task queue and
// the only driver when async enqueueing is disabled.
type Worker struct {
	registry    *DatabaseRegistry
	logger      *zap.Logger
	tracer      trace.Tracer
	interval    time.Duration
	batchSize   int
	concurrency int

	stop       chan struct{}
	stopOnce   sync.Once
	runStateMu sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
	cycleWg    sync.WaitGroup
}

// CycleResult captures one poll cycle outcome.
type CycleResult struct {
	Claimed   int
	Processed int
	Failed    int
}

// WorkerOption customizes the worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(logger *zap.Logger) WorkerOption {
	return func(worker *Worker) {
		if logger != nil {
			worker.logger = logger
		}
	}
}

// WithWorkerTracer sets the tracer used for cycle spans.
func WithWorkerTracer(tracer trace.Tracer) WorkerOption {
	return func(worker *Worker) {
		if !nilcheck.Interface(tracer) {
			worker.tracer = tracer
		}
	}
}

// WithWorkerInterval sets the delay between poll cycles.
func WithWorkerInterval(interval time.Duration) WorkerOption {
	return func(worker *Worker) {
		if interval > 0 {
			worker.interval = interval
		}
	}
}

// WithWorkerBatchSize overrides the claim batch size for this worker.
func WithWorkerBatchSize(size int) WorkerOption {
	return func(worker *Worker) {
		if size > 0 {
			worker.batchSize = size
		}
	}
}

// WithWorkerConcurrency bounds how many claimed entries are processed in
// parallel within a cycle.
func WithWorkerConcurrency(concurrency int) WorkerOption {
	return func(worker *Worker) {
		if concurrency > 0 {
			worker.concurrency = concurrency
		}
	}
}

// NewWorker creates a polling worker bound to one registry.
func NewWorker(registry *DatabaseRegistry, opts ...WorkerOption) (*Worker, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	worker := &Worker{
		registry:    registry,
		logger:      zap.NewNop(),
		tracer:      noop.NewTracerProvider().Tracer("eventflow.noop"),
		interval:    defaultPollInterval,
		concurrency: defaultWorkerConcurrency,
		stop:        make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(worker)
		}
	}

	return worker, nil
}

// Run starts the poll loop until Stop is called.
func (worker *Worker) Run() error {
	return worker.RunContext(context.Background())
}

// RunContext starts the poll loop until Stop is called or ctx is cancelled.
// A second concurrent call fails with ErrWorkerRunning.
func (worker *Worker) RunContext(parentCtx context.Context) error {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	ctx, cancel := context.WithCancel(parentCtx)
	if !worker.registerRun(cancel) {
		cancel()

		return ErrWorkerRunning
	}

	defer worker.clearRun()

	worker.logger.Info("outbox worker started", zap.Duration("interval", worker.interval))
	defer worker.logger.Info("outbox worker stopped")

	ticker := time.NewTicker(worker.interval)
	defer ticker.Stop()

	worker.cycle(ctx)

	for {
		select {
		case <-worker.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			select {
			case <-worker.stop:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}

			worker.cycle(ctx)
		}
	}
}

// Stop signals the poll loop to stop.
func (worker *Worker) Stop() {
	worker.stopOnce.Do(func() {
		worker.runStateMu.Lock()
		cancel := worker.cancelFunc
		worker.runStateMu.Unlock()

		if cancel != nil {
			cancel()
		}

		close(worker.stop)
	})
}

// Shutdown stops the loop and waits for the in-flight cycle to complete.
func (worker *Worker) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	worker.Stop()

	done := make(chan struct{})

	go func() {
		worker.cycleWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker shutdown: %w", ctx.Err())
	}
}

func (worker *Worker) cycle(ctx context.Context) {
	worker.cycleWg.Add(1)
	defer worker.cycleWg.Done()

	cycleCtx, span := worker.tracer.Start(ctx, "eventflow.worker.cycle")
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			worker.logger.Error("outbox worker cycle panicked", zap.Any("panic", recovered))
		}
	}()

	result := worker.RunOnce(cycleCtx)
	if result.Claimed > 0 {
		worker.logger.Debug("outbox cycle finished",
			zap.Int("claimed", result.Claimed),
			zap.Int("processed", result.Processed),
			zap.Int("failed", result.Failed),
		)
	}
}

// RunOnce claims one batch and processes it, returning per-cycle counters.
// Safe to call directly from tests and one-shot jobs.
func (worker *Worker) RunOnce(ctx context.Context) CycleResult {
	if ctx == nil {
		ctx = context.Background()
	}

	ids, err := worker.registry.ClaimOutboxBatch(ctx, worker.batchSize)
	if err != nil {
		worker.logger.Error("failed to claim outbox batch", zap.Error(err))

		return CycleResult{}
	}

	if len(ids) == 0 {
		return CycleResult{}
	}

	result := CycleResult{Claimed: len(ids)}

	var (
		resultMu sync.Mutex
		entryWg  sync.WaitGroup
	)

	semaphore := make(chan struct{}, worker.concurrency)

	for _, outboxID := range ids {
		if ctx.Err() != nil {
			break
		}

		entryWg.Add(1)
		semaphore <- struct{}{}

		go func(id int64) {
			defer entryWg.Done()
			defer func() { <-semaphore }()

			handled, processErr := worker.registry.ProcessOutboxEntry(ctx, id)

			resultMu.Lock()
			defer resultMu.Unlock()

			switch {
			case processErr != nil:
				result.Failed++

				worker.logger.Error("failed to process outbox entry",
					zap.Int64("outbox_id", id),
					zap.Error(processErr),
				)
			case handled:
				result.Processed++
			default:
				result.Failed++
			}
		}(outboxID)
	}

	entryWg.Wait()

	return result
}

func (worker *Worker) registerRun(cancel context.CancelFunc) bool {
	worker.runStateMu.Lock()
	defer worker.runStateMu.Unlock()

	if worker.running {
		return false
	}

	worker.running = true
	worker.cancelFunc = cancel

	return true
}

func (worker *Worker) clearRun() {
	worker.runStateMu.Lock()
	defer worker.runStateMu.Unlock()

	worker.running = false
	worker.cancelFunc = nil
}
