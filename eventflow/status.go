package eventflow

import "fmt"

// OutboxStatus is the lifecycle state of an outbox entry.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxClaimed    OutboxStatus = "claimed"
	OutboxProcessed  OutboxStatus = "processed"
	OutboxFailed     OutboxStatus = "failed"
	OutboxDeadLetter OutboxStatus = "dead_letter"
)

// ParseOutboxStatus validates and converts a raw status string.
func ParseOutboxStatus(raw string) (OutboxStatus, error) {
	status := OutboxStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrStatusInvalid, raw)
	}

	return status, nil
}

// IsValid reports whether the status is part of the outbox lifecycle.
func (status OutboxStatus) IsValid() bool {
	switch status {
	case OutboxPending, OutboxClaimed, OutboxProcessed, OutboxFailed, OutboxDeadLetter:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed.
func (status OutboxStatus) IsTerminal() bool {
	return status == OutboxProcessed || status == OutboxDeadLetter
}

// CanTransitionTo reports whether a transition from status to next is allowed.
// Claimed entries may re-enter claimed when a stale claim is reclaimed, and
// replaying a failed or dead-lettered entry moves it back to pending.
func (status OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	switch status {
	case OutboxPending:
		return next == OutboxClaimed || next == OutboxProcessed || next == OutboxFailed || next == OutboxDeadLetter
	case OutboxClaimed:
		return next == OutboxClaimed || next == OutboxProcessed || next == OutboxFailed || next == OutboxDeadLetter
	case OutboxFailed:
		return next == OutboxClaimed || next == OutboxDeadLetter || next == OutboxPending
	case OutboxDeadLetter:
		return next == OutboxPending
	case OutboxProcessed:
		return false
	default:
		return false
	}
}

func (status OutboxStatus) String() string {
	return string(status)
}

// AttemptStatus is the lifecycle state of a per-handler delivery attempt.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptRunning    AttemptStatus = "running"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptFailed     AttemptStatus = "failed"
	AttemptDeadLetter AttemptStatus = "dead_letter"
)

// ParseAttemptStatus validates and converts a raw status string.
func ParseAttemptStatus(raw string) (AttemptStatus, error) {
	status := AttemptStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrStatusInvalid, raw)
	}

	return status, nil
}

// IsValid reports whether the status is part of the delivery attempt lifecycle.
func (status AttemptStatus) IsValid() bool {
	switch status {
	case AttemptPending, AttemptRunning, AttemptCompleted, AttemptFailed, AttemptDeadLetter:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from status to next is allowed.
// Completed is terminal: it is the guard that keeps handler side effects
// at-most-once across outbox retries and reclaims. Dead-lettered attempts may
// re-enter running when an operator replays the owning outbox entry.
func (status AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	switch status {
	case AttemptPending:
		return next == AttemptRunning
	case AttemptRunning:
		return next == AttemptCompleted || next == AttemptFailed || next == AttemptDeadLetter
	case AttemptFailed, AttemptDeadLetter:
		return next == AttemptRunning
	case AttemptCompleted:
		return false
	default:
		return false
	}
}

func (status AttemptStatus) String() string {
	return string(status)
}
