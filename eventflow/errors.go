package eventflow

import "errors"

var (
	ErrEventIDRequired        = errors.New("event id is required")
	ErrEventTypeRequired      = errors.New("event type is required")
	ErrEventKeyRequired       = errors.New("event key is required")
	ErrHandlerRequired        = errors.New("event handler is required")
	ErrRegistrationIDRequired = errors.New("registration id is required")
	ErrRegistrationIDTaken    = errors.New("registration id already in use")
	ErrRetriesNegative        = errors.New("retries must not be negative")

	ErrDuplicateEvent = errors.New("event already published")
	ErrEntryNotFound  = errors.New("outbox entry not found")
	ErrClaimConflict  = errors.New("outbox entry claim token conflict")

	ErrStoreRequired     = errors.New("outbox store is required")
	ErrRegistryRequired  = errors.New("registry is required")
	ErrTaskQueueRequired = errors.New("task queue is required for async publishing")
	ErrUnknownMode       = errors.New("unknown registry mode")

	ErrWorkerRunning       = errors.New("outbox worker is already running")
	ErrBatchSizeInvalid    = errors.New("batch size must be greater than zero")
	ErrHandlerIncomplete   = errors.New("handler did not complete")
	ErrStatusInvalid       = errors.New("invalid status")
	ErrTransitionInvalid   = errors.New("invalid status transition")
	ErrOccurredAtZero      = errors.New("occurred at must be set")
	ErrProviderEmpty       = errors.New("provider has no active registry")
	ErrEventPayloadNotJSON = errors.New("event payload must be JSON-encodable")
)
