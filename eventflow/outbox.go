package eventflow

import "time"

// OutboxEntry is the durable to-be-delivered record written in the same
// transaction as its event.
type OutboxEntry struct {
	ID          int64
	EventID     string
	Status      OutboxStatus
	Attempts    int
	LastError   string
	AvailableAt time.Time
	ClaimToken  string
	ClaimedAt   *time.Time
	UpdatedAt   time.Time
}

// ClaimedEntry describes one row returned by a claim batch. Reclaimed marks
// entries taken over from a stale claim after the claim TTL elapsed.
type ClaimedEntry struct {
	ID         int64
	ClaimToken string
	Attempts   int
	Reclaimed  bool
}

// DeliveryAttempt is the per-(event, registration) execution record. Once its
// status reaches completed, the handler body is never invoked again for the
// same idempotency key.
type DeliveryAttempt struct {
	IdempotencyKey string
	EventID        string
	RegistrationID string
	Status         AttemptStatus
	Attempts       int
	LastError      string
	LastTraceback  string
	UpdatedAt      time.Time
}

// IdempotencyKey derives the delivery attempt key for an event and handler
// registration pair.
func IdempotencyKey(eventID, registrationID string) string {
	return eventID + ":" + registrationID
}
