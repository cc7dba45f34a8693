//go:build unit

package eventflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOutboxStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseOutboxStatus("pending")
	require.NoError(t, err)
	require.Equal(t, OutboxPending, status)

	_, err = ParseOutboxStatus("published")
	require.ErrorIs(t, err, ErrStatusInvalid)
}

func TestOutboxStatusTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, OutboxProcessed.IsTerminal())
	require.True(t, OutboxDeadLetter.IsTerminal())
	require.False(t, OutboxPending.IsTerminal())
	require.False(t, OutboxClaimed.IsTerminal())
	require.False(t, OutboxFailed.IsTerminal())
}

func TestOutboxStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    OutboxStatus
		to      OutboxStatus
		allowed bool
	}{
		{OutboxPending, OutboxClaimed, true},
		{OutboxPending, OutboxProcessed, true},
		{OutboxClaimed, OutboxClaimed, true},
		{OutboxClaimed, OutboxProcessed, true},
		{OutboxClaimed, OutboxFailed, true},
		{OutboxClaimed, OutboxDeadLetter, true},
		{OutboxFailed, OutboxClaimed, true},
		{OutboxFailed, OutboxPending, true},
		{OutboxDeadLetter, OutboxPending, true},
		{OutboxProcessed, OutboxPending, false},
		{OutboxProcessed, OutboxClaimed, false},
		{OutboxDeadLetter, OutboxClaimed, false},
	}

	for _, tc := range tests {
		require.Equal(
			t,
			tc.allowed,
			tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to,
		)
	}
}

func TestParseAttemptStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseAttemptStatus("running")
	require.NoError(t, err)
	require.Equal(t, AttemptRunning, status)

	_, err = ParseAttemptStatus("done")
	require.ErrorIs(t, err, ErrStatusInvalid)
}

func TestAttemptStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    AttemptStatus
		to      AttemptStatus
		allowed bool
	}{
		{AttemptPending, AttemptRunning, true},
		{AttemptRunning, AttemptCompleted, true},
		{AttemptRunning, AttemptFailed, true},
		{AttemptRunning, AttemptDeadLetter, true},
		{AttemptFailed, AttemptRunning, true},
		{AttemptDeadLetter, AttemptRunning, true},
		{AttemptCompleted, AttemptRunning, false},
		{AttemptCompleted, AttemptFailed, false},
		{AttemptPending, AttemptCompleted, false},
	}

	for _, tc := range tests {
		require.Equal(
			t,
			tc.allowed,
			tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to,
		)
	}
}
