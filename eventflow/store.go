package eventflow

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Tx is the transactional handle accepted by CreateEventWithEntryTx.
//
// It intentionally aliases *sql.Tx so the store contract composes with
// database/sql transaction orchestration in the caller's write path without a
// hidden adapter layer.
type Tx = *sql.Tx

// Store persists events, outbox entries, and delivery attempts for the
// database registry. Implementations must make ClaimBatch safe under
// concurrent callers (row locking or equivalent compare-and-swap claiming)
// and must apply attempt counter increments database-side, never
// read-modify-write.
type Store interface {
	// CreateEventWithEntry inserts the event and a pending outbox entry in
	// one transaction. A uniqueness conflict on the event id returns
	// ErrDuplicateEvent.
	CreateEventWithEntry(ctx context.Context, event WorkflowEvent) (*OutboxEntry, error)

	// CreateEventWithEntryTx is CreateEventWithEntry inside the caller's
	// transaction, for producers that persist business state and the event
	// atomically.
	CreateEventWithEntryTx(ctx context.Context, tx Tx, event WorkflowEvent) (*OutboxEntry, error)

	// GetEntry loads an outbox entry and its stored event. A missing entry
	// returns ErrEntryNotFound.
	GetEntry(ctx context.Context, id int64) (*OutboxEntry, *WorkflowEvent, error)

	// ClaimBatch atomically claims up to limit entries that are ready
	// (pending or failed with availableAt due) or whose claim went stale
	// (claimed longer than claimTTL ago), oldest availableAt first. Claimed
	// rows get a fresh claim token and a database-side attempts increment.
	ClaimBatch(ctx context.Context, limit int, now time.Time, claimTTL time.Duration) ([]ClaimedEntry, error)

	// IncrementAttempts bumps the attempt counter database-side and returns
	// the new value. Used on the inline processing path where no claim
	// performed the increment.
	IncrementAttempts(ctx context.Context, id int64) (int, error)

	// MarkEntryProcessed finalizes an entry, clearing error and claim fields.
	// claimToken must match the row's current token ("" matches an unclaimed
	// row); a mismatch returns ErrClaimConflict.
	MarkEntryProcessed(ctx context.Context, id int64, claimToken string) error

	// MarkEntryFailed records a retryable failure and gates the next claim
	// via availableAt. Token semantics follow MarkEntryProcessed.
	MarkEntryFailed(ctx context.Context, id int64, claimToken, lastError string, availableAt time.Time) error

	// MarkEntryDeadLettered finalizes an entry whose retry policy is
	// exhausted. Token semantics follow MarkEntryProcessed.
	MarkEntryDeadLettered(ctx context.Context, id int64, claimToken, lastError string) error

	// ListFailed returns failed entries for operator inspection.
	ListFailed(ctx context.Context, limit int) ([]*OutboxEntry, error)

	// ListDeadLettered returns dead-lettered entries for operator inspection.
	ListDeadLettered(ctx context.Context, limit int) ([]*OutboxEntry, error)

	// Replay resets failed or dead-lettered entries to pending with a zero
	// attempt counter, re-enabling processing. Returns how many rows moved.
	Replay(ctx context.Context, ids []int64) (int, error)

	// GetOrCreateAttempt returns the delivery attempt for the key, creating
	// it as pending when absent.
	GetOrCreateAttempt(ctx context.Context, key, eventID, registrationID string) (*DeliveryAttempt, error)

	// MarkAttemptRunning transitions the attempt to running with a
	// database-side attempts increment and returns the updated row.
	MarkAttemptRunning(ctx context.Context, key string) (*DeliveryAttempt, error)

	// MarkAttemptCompleted transitions the attempt to completed and clears
	// error fields.
	MarkAttemptCompleted(ctx context.Context, key string) error

	// MarkAttemptFailed records a handler failure with its stack trace.
	// status must be AttemptFailed or AttemptDeadLetter.
	MarkAttemptFailed(ctx context.Context, key string, status AttemptStatus, lastError, traceback string) error
}

// BatchJob describes one scheduled outbox processing pass for the external
// task-queue runtime.
type BatchJob struct {
	BatchSize  int       `json:"batch_size"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// TaskQueue schedules outbox batch processing on an external async runtime.
// The registry only enqueues work; executing it is out of scope.
type TaskQueue interface {
	EnqueueBatch(ctx context.Context, job BatchJob) error
}

// PostCommitHooks is an explicit transaction-scoped callback list. Producers
// publishing inside their own transaction register hooks during the
// transaction and drain them once after a successful commit; hooks must never
// run when the transaction rolls back.
type PostCommitHooks struct {
	mu    sync.Mutex
	hooks []func(ctx context.Context)
}

// Add appends a callback to run after commit.
func (h *PostCommitHooks) Add(hook func(ctx context.Context)) {
	if hook == nil {
		return
	}

	h.mu.Lock()
	h.hooks = append(h.hooks, hook)
	h.mu.Unlock()
}

// Drain runs and clears all registered callbacks in registration order.
func (h *PostCommitHooks) Drain(ctx context.Context) {
	h.mu.Lock()
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx)
	}
}

// Len reports how many callbacks are pending.
func (h *PostCommitHooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.hooks)
}
