package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/LerianStudio/lib-eventflow/eventflow"
)

const maxSQLIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	outboxColumns  = "id, event_id, status, attempts, last_error, available_at, claim_token, claimed_at, updated_at"
	attemptColumns = "idempotency_key, event_id, handler_registration_id, status, attempts, last_error, last_traceback, updated_at"
)

// Option customizes the repository.
type Option func(*Repository)

// WithLogger sets the repository logger.
func WithLogger(logger *zap.Logger) Option {
	return func(repo *Repository) {
		if logger != nil {
			repo.logger = logger
		}
	}
}

// WithEventsTable overrides the events table name.
func WithEventsTable(name string) Option {
	return func(repo *Repository) {
		repo.eventsTable = name
	}
}

// WithOutboxTable overrides the outbox table name.
func WithOutboxTable(name string) Option {
	return func(repo *Repository) {
		repo.outboxTable = name
	}
}

// WithAttemptsTable overrides the delivery attempts table name.
func WithAttemptsTable(name string) Option {
	return func(repo *Repository) {
		repo.attemptsTable = name
	}
}

// Repository persists events, outbox entries, and delivery attempts in
// PostgreSQL. It implements eventflow.Store.
type Repository struct {
	conn          *Connection
	logger        *zap.Logger
	eventsTable   string
	outboxTable   string
	attemptsTable string
}

var _ eventflow.Store = (*Repository)(nil)

// NewRepository creates a PostgreSQL event store repository.
func NewRepository(conn *Connection, opts ...Option) (*Repository, error) {
	if conn == nil {
		return nil, ErrConnectionRequired
	}

	repo := &Repository{
		conn:          conn,
		logger:        zap.NewNop(),
		eventsTable:   "workflow_events",
		outboxTable:   "workflow_outbox",
		attemptsTable: "workflow_delivery_attempts",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}

	for _, table := range []string{repo.eventsTable, repo.outboxTable, repo.attemptsTable} {
		if err := validateIdentifier(table); err != nil {
			return nil, fmt.Errorf("table %q: %w", table, err)
		}
	}

	return repo, nil
}

// CreateEventWithEntry inserts the event and a pending outbox entry in one
// transaction. A duplicate event id returns eventflow.ErrDuplicateEvent.
func (repo *Repository) CreateEventWithEntry(
	ctx context.Context,
	event eventflow.WorkflowEvent,
) (*eventflow.OutboxEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning event transaction: %w", err)
	}

	entry, err := repo.createInTx(ctx, tx, event)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			repo.logger.Warn("failed to roll back event transaction", zap.Error(rollbackErr))
		}

		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing event transaction: %w", err)
	}

	return entry, nil
}

// CreateEventWithEntryTx inserts the event and entry inside the caller's
// transaction.
func (repo *Repository) CreateEventWithEntryTx(
	ctx context.Context,
	tx eventflow.Tx,
	event eventflow.WorkflowEvent,
) (*eventflow.OutboxEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if tx == nil {
		return nil, fmt.Errorf("creating event with entry: transaction is required")
	}

	return repo.createInTx(ctx, tx, event)
}

func (repo *Repository) createInTx(
	ctx context.Context,
	tx *sql.Tx,
	event eventflow.WorkflowEvent,
) (*eventflow.OutboxEntry, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding event payload: %w", err)
	}

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding event metadata: %w", err)
	}

	now := time.Now().UTC()

	eventsTable := quoteIdentifier(repo.eventsTable)
	insertEvent := "INSERT INTO " + eventsTable +
		" (event_id, event_type, event_name, source, occurred_at, payload, metadata, created_at)" +
		" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)"

	if _, err := tx.ExecContext(
		ctx,
		insertEvent,
		event.EventID,
		event.EventType,
		nullIfEmpty(event.EventName),
		nullIfEmpty(event.Source),
		event.OccurredAt.UTC(),
		payload,
		metadata,
		now,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, eventflow.ErrDuplicateEvent
		}

		return nil, fmt.Errorf("inserting event: %w", err)
	}

	outboxTable := quoteIdentifier(repo.outboxTable)
	insertEntry := "INSERT INTO " + outboxTable +
		" (event_id, status, attempts, available_at, updated_at)" +
		" VALUES ($1, $2, 0, $3, $3) RETURNING " + outboxColumns

	row := tx.QueryRowContext(ctx, insertEntry, event.EventID, eventflow.OutboxPending, now)

	entry, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("inserting outbox entry: %w", err)
	}

	return entry, nil
}

// GetEntry loads an outbox entry together with its stored event.
func (repo *Repository) GetEntry(
	ctx context.Context,
	id int64,
) (*eventflow.OutboxEntry, *eventflow.WorkflowEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return nil, nil, err
	}

	query := "SELECT o.id, o.event_id, o.status, o.attempts, o.last_error, o.available_at," +
		" o.claim_token, o.claimed_at, o.updated_at," +
		" e.event_type, e.event_name, e.source, e.occurred_at, e.payload, e.metadata" +
		" FROM " + quoteIdentifier(repo.outboxTable) + " o" +
		" JOIN " + quoteIdentifier(repo.eventsTable) + " e ON e.event_id = o.event_id" +
		" WHERE o.id = $1"

	var (
		entry      eventflow.OutboxEntry
		status     string
		lastError  sql.NullString
		claimToken sql.NullString
		claimedAt  sql.NullTime
		eventType  string
		eventName  sql.NullString
		source     sql.NullString
		occurredAt time.Time
		payload    []byte
		metadata   []byte
	)

	err = db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID,
		&entry.EventID,
		&status,
		&entry.Attempts,
		&lastError,
		&entry.AvailableAt,
		&claimToken,
		&claimedAt,
		&entry.UpdatedAt,
		&eventType,
		&eventName,
		&source,
		&occurredAt,
		&payload,
		&metadata,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, eventflow.ErrEntryNotFound
		}

		return nil, nil, fmt.Errorf("loading outbox entry: %w", err)
	}

	parsedStatus, err := eventflow.ParseOutboxStatus(status)
	if err != nil {
		return nil, nil, fmt.Errorf("loading outbox entry: %w", err)
	}

	entry.Status = parsedStatus
	entry.LastError = lastError.String
	entry.ClaimToken = claimToken.String

	if claimedAt.Valid {
		claimed := claimedAt.Time
		entry.ClaimedAt = &claimed
	}

	event := eventflow.WorkflowEvent{
		EventID:    entry.EventID,
		EventType:  eventType,
		EventName:  eventName.String,
		Source:     source.String,
		OccurredAt: occurredAt,
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return nil, nil, fmt.Errorf("decoding event payload: %w", err)
		}
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, nil, fmt.Errorf("decoding event metadata: %w", err)
		}
	}

	return &entry, &event, nil
}

// ClaimBatch claims up to limit ready or stale-claimed entries in one
// transaction. Row locking with SKIP LOCKED keeps concurrent claimers from
// ever receiving the same row.
func (repo *Repository) ClaimBatch(
	ctx context.Context,
	limit int,
	now time.Time,
	claimTTL time.Duration,
) ([]eventflow.ClaimedEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if limit <= 0 {
		return nil, eventflow.ErrBatchSizeInvalid
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	claimed, err := repo.claimInTx(ctx, tx, limit, now.UTC(), claimTTL)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			repo.logger.Warn("failed to roll back claim transaction", zap.Error(rollbackErr))
		}

		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim transaction: %w", err)
	}

	return claimed, nil
}

func (repo *Repository) claimInTx(
	ctx context.Context,
	tx *sql.Tx,
	limit int,
	now time.Time,
	claimTTL time.Duration,
) ([]eventflow.ClaimedEntry, error) {
	staleBefore := now.Add(-claimTTL)
	outboxTable := quoteIdentifier(repo.outboxTable)

	selectQuery := "SELECT id, status FROM " + outboxTable +
		" WHERE ((status = $1 OR status = $2) AND available_at <= $3)" +
		" OR (status = $4 AND claimed_at IS NOT NULL AND claimed_at <= $5)" +
		" ORDER BY available_at ASC LIMIT $6 FOR UPDATE SKIP LOCKED"

	rows, err := tx.QueryContext(
		ctx,
		selectQuery,
		eventflow.OutboxPending,
		eventflow.OutboxFailed,
		now,
		eventflow.OutboxClaimed,
		staleBefore,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting claimable entries: %w", err)
	}

	defer rows.Close()

	ids := make([]int64, 0, limit)
	reclaimed := make(map[int64]bool, limit)

	for rows.Next() {
		var (
			id     int64
			status string
		)

		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scanning claimable entry: %w", err)
		}

		ids = append(ids, id)
		reclaimed[id] = eventflow.OutboxStatus(status) == eventflow.OutboxClaimed
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimable entries: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	token := uuid.NewString()

	updateQuery := "UPDATE " + outboxTable +
		" SET status = $1, claim_token = $2, claimed_at = $3, attempts = attempts + 1, updated_at = $3" +
		" WHERE id = ANY($4::bigint[]) RETURNING id, attempts"

	updated, err := tx.QueryContext(ctx, updateQuery, eventflow.OutboxClaimed, token, now, ids)
	if err != nil {
		return nil, fmt.Errorf("marking entries claimed: %w", err)
	}

	defer updated.Close()

	claimed := make([]eventflow.ClaimedEntry, 0, len(ids))

	for updated.Next() {
		entry := eventflow.ClaimedEntry{ClaimToken: token}

		if err := updated.Scan(&entry.ID, &entry.Attempts); err != nil {
			return nil, fmt.Errorf("scanning claimed entry: %w", err)
		}

		entry.Reclaimed = reclaimed[entry.ID]
		claimed = append(claimed, entry)
	}

	if err := updated.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimed entries: %w", err)
	}

	if len(claimed) != len(ids) {
		return nil, fmt.Errorf("claiming entries: expected %d rows, claimed %d", len(ids), len(claimed))
	}

	return claimed, nil
}

// IncrementAttempts bumps the attempt counter database-side.
func (repo *Repository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return 0, err
	}

	query := "UPDATE " + quoteIdentifier(repo.outboxTable) +
		" SET attempts = attempts + 1, updated_at = $2 WHERE id = $1 RETURNING attempts"

	var attempts int
	if err := db.QueryRowContext(ctx, query, id, time.Now().UTC()).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, eventflow.ErrEntryNotFound
		}

		return 0, fmt.Errorf("incrementing outbox attempts: %w", err)
	}

	return attempts, nil
}

// MarkEntryProcessed finalizes an entry, clearing error and claim fields.
func (repo *Repository) MarkEntryProcessed(ctx context.Context, id int64, claimToken string) error {
	query := "UPDATE " + quoteIdentifier(repo.outboxTable) +
		" SET status = $1, last_error = NULL, claim_token = NULL, claimed_at = NULL, updated_at = $2" +
		" WHERE id = $3 AND claim_token IS NOT DISTINCT FROM NULLIF($4, '')"

	return repo.guardedUpdate(ctx, query, eventflow.OutboxProcessed, time.Now().UTC(), id, claimToken)
}

// MarkEntryFailed records a retryable failure and gates the next claim via
// availableAt.
func (repo *Repository) MarkEntryFailed(
	ctx context.Context,
	id int64,
	claimToken, lastError string,
	availableAt time.Time,
) error {
	query := "UPDATE " + quoteIdentifier(repo.outboxTable) +
		" SET status = $1, last_error = $5, available_at = $6, claim_token = NULL, claimed_at = NULL, updated_at = $2" +
		" WHERE id = $3 AND claim_token IS NOT DISTINCT FROM NULLIF($4, '')"

	return repo.guardedUpdate(
		ctx, query,
		eventflow.OutboxFailed, time.Now().UTC(), id, claimToken, lastError, availableAt.UTC(),
	)
}

// MarkEntryDeadLettered finalizes an entry whose retry policy is exhausted.
func (repo *Repository) MarkEntryDeadLettered(ctx context.Context, id int64, claimToken, lastError string) error {
	query := "UPDATE " + quoteIdentifier(repo.outboxTable) +
		" SET status = $1, last_error = $5, claim_token = NULL, claimed_at = NULL, updated_at = $2" +
		" WHERE id = $3 AND claim_token IS NOT DISTINCT FROM NULLIF($4, '')"

	return repo.guardedUpdate(ctx, query, eventflow.OutboxDeadLetter, time.Now().UTC(), id, claimToken, lastError)
}

// guardedUpdate runs a claim-token-guarded terminal update. Zero affected
// rows means another worker reclaimed the entry and owns its outcome.
func (repo *Repository) guardedUpdate(ctx context.Context, query string, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating outbox entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating outbox entry: %w", err)
	}

	if affected == 0 {
		return eventflow.ErrClaimConflict
	}

	return nil
}

// ListFailed returns failed entries, oldest update first.
func (repo *Repository) ListFailed(ctx context.Context, limit int) ([]*eventflow.OutboxEntry, error) {
	return repo.listByStatus(ctx, eventflow.OutboxFailed, limit)
}

// ListDeadLettered returns dead-lettered entries, oldest update first.
func (repo *Repository) ListDeadLettered(ctx context.Context, limit int) ([]*eventflow.OutboxEntry, error) {
	return repo.listByStatus(ctx, eventflow.OutboxDeadLetter, limit)
}

func (repo *Repository) listByStatus(
	ctx context.Context,
	status eventflow.OutboxStatus,
	limit int,
) ([]*eventflow.OutboxEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if limit <= 0 {
		return nil, eventflow.ErrBatchSizeInvalid
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + outboxColumns + " FROM " + quoteIdentifier(repo.outboxTable) +
		" WHERE status = $1 ORDER BY updated_at ASC LIMIT $2"

	rows, err := db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing %s entries: %w", status, err)
	}

	defer rows.Close()

	entries := make([]*eventflow.OutboxEntry, 0, limit)

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("listing %s entries: %w", status, err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s entries: %w", status, err)
	}

	return entries, nil
}

// Replay resets failed or dead-lettered entries to pending with a zero
// attempt counter.
func (repo *Repository) Replay(ctx context.Context, ids []int64) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(ids) == 0 {
		return 0, nil
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()

	query := "UPDATE " + quoteIdentifier(repo.outboxTable) +
		" SET status = $1, attempts = 0, last_error = NULL, claim_token = NULL, claimed_at = NULL," +
		" available_at = $2, updated_at = $2" +
		" WHERE id = ANY($3::bigint[]) AND (status = $4 OR status = $5)"

	result, err := db.ExecContext(
		ctx,
		query,
		eventflow.OutboxPending,
		now,
		ids,
		eventflow.OutboxFailed,
		eventflow.OutboxDeadLetter,
	)
	if err != nil {
		return 0, fmt.Errorf("replaying outbox entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("replaying outbox entries: %w", err)
	}

	return int(affected), nil
}

// GetOrCreateAttempt returns the delivery attempt for the key, creating it as
// pending when absent.
func (repo *Repository) GetOrCreateAttempt(
	ctx context.Context,
	key, eventID, registrationID string,
) (*eventflow.DeliveryAttempt, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return nil, err
	}

	attemptsTable := quoteIdentifier(repo.attemptsTable)

	insert := "INSERT INTO " + attemptsTable +
		" (idempotency_key, event_id, handler_registration_id, status, attempts, updated_at)" +
		" VALUES ($1, $2, $3, $4, 0, $5)" +
		" ON CONFLICT (idempotency_key) DO NOTHING RETURNING " + attemptColumns

	row := db.QueryRowContext(ctx, insert, key, eventID, registrationID, eventflow.AttemptPending, time.Now().UTC())

	attempt, err := scanAttempt(row)
	if err == nil {
		return attempt, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("creating delivery attempt: %w", err)
	}

	// Conflict: the attempt already exists from an earlier pass.
	query := "SELECT " + attemptColumns + " FROM " + attemptsTable + " WHERE idempotency_key = $1"

	attempt, err = scanAttempt(db.QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, fmt.Errorf("loading delivery attempt: %w", err)
	}

	return attempt, nil
}

// MarkAttemptRunning transitions the attempt to running with a database-side
// attempts increment.
func (repo *Repository) MarkAttemptRunning(ctx context.Context, key string) (*eventflow.DeliveryAttempt, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return nil, err
	}

	query := "UPDATE " + quoteIdentifier(repo.attemptsTable) +
		" SET status = $2, attempts = attempts + 1, updated_at = $3" +
		" WHERE idempotency_key = $1 RETURNING " + attemptColumns

	attempt, err := scanAttempt(db.QueryRowContext(ctx, query, key, eventflow.AttemptRunning, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}

		return nil, fmt.Errorf("marking delivery attempt running: %w", err)
	}

	return attempt, nil
}

// MarkAttemptCompleted transitions the attempt to completed and clears error
// fields.
func (repo *Repository) MarkAttemptCompleted(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return err
	}

	query := "UPDATE " + quoteIdentifier(repo.attemptsTable) +
		" SET status = $2, last_error = NULL, last_traceback = NULL, updated_at = $3" +
		" WHERE idempotency_key = $1"

	result, err := db.ExecContext(ctx, query, key, eventflow.AttemptCompleted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("marking delivery attempt completed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking delivery attempt completed: %w", err)
	}

	if affected == 0 {
		return ErrAttemptNotFound
	}

	return nil
}

// MarkAttemptFailed records a handler failure with its stack trace.
func (repo *Repository) MarkAttemptFailed(
	ctx context.Context,
	key string,
	status eventflow.AttemptStatus,
	lastError, traceback string,
) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if status != eventflow.AttemptFailed && status != eventflow.AttemptDeadLetter {
		return fmt.Errorf("%w: %q", ErrAttemptStatusInvalid, status)
	}

	db, err := repo.conn.GetDB(ctx)
	if err != nil {
		return err
	}

	query := "UPDATE " + quoteIdentifier(repo.attemptsTable) +
		" SET status = $2, last_error = $3, last_traceback = $4, updated_at = $5" +
		" WHERE idempotency_key = $1"

	result, err := db.ExecContext(ctx, query, key, status, lastError, traceback, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("marking delivery attempt failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking delivery attempt failed: %w", err)
	}

	if affected == 0 {
		return ErrAttemptNotFound
	}

	return nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*eventflow.OutboxEntry, error) {
	var (
		entry      eventflow.OutboxEntry
		status     string
		lastError  sql.NullString
		claimToken sql.NullString
		claimedAt  sql.NullTime
	)

	err := scanner.Scan(
		&entry.ID,
		&entry.EventID,
		&status,
		&entry.Attempts,
		&lastError,
		&entry.AvailableAt,
		&claimToken,
		&claimedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedStatus, err := eventflow.ParseOutboxStatus(status)
	if err != nil {
		return nil, err
	}

	entry.Status = parsedStatus
	entry.LastError = lastError.String
	entry.ClaimToken = claimToken.String

	if claimedAt.Valid {
		claimed := claimedAt.Time
		entry.ClaimedAt = &claimed
	}

	return &entry, nil
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (*eventflow.DeliveryAttempt, error) {
	var (
		attempt   eventflow.DeliveryAttempt
		status    string
		lastError sql.NullString
		traceback sql.NullString
	)

	err := scanner.Scan(
		&attempt.IdempotencyKey,
		&attempt.EventID,
		&attempt.RegistrationID,
		&status,
		&attempt.Attempts,
		&lastError,
		&traceback,
		&attempt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedStatus, err := eventflow.ParseAttemptStatus(status)
	if err != nil {
		return nil, err
	}

	attempt.Status = parsedStatus
	attempt.LastError = lastError.String
	attempt.LastTraceback = traceback.String

	return &attempt, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	return value
}

func validateIdentifier(identifier string) error {
	if len(identifier) > maxSQLIdentifierLength {
		return ErrInvalidIdentifier
	}

	if !identifierPattern.MatchString(identifier) {
		return ErrInvalidIdentifier
	}

	return nil
}

func quoteIdentifier(identifier string) string {
	identifier = strings.ReplaceAll(identifier, "\x00", "")

	return "\"" + strings.ReplaceAll(identifier, "\"", "\"\"") + "\""
}
