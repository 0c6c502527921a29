package appointment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusInProgress},
		{StatusConfirmed, StatusNoShow},
		{StatusConfirmed, StatusCancelled},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusCancelled},
	}
	for _, tt := range allowed {
		require.True(t, CanTransition(tt.from, tt.to), "%s -> %s should be allowed", tt.from, tt.to)
	}

	denied := []struct{ from, to Status }{
		{StatusPending, StatusInProgress},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusNoShow},
		{StatusConfirmed, StatusCompleted},
		{StatusConfirmed, StatusPending},
		{StatusInProgress, StatusConfirmed},
		{StatusInProgress, StatusNoShow},
		{StatusPending, StatusPending}, // no self-loops
	}
	for _, tt := range denied {
		require.False(t, CanTransition(tt.from, tt.to), "%s -> %s should be denied", tt.from, tt.to)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []Status{
		StatusPending, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow,
	}

	for _, terminal := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		require.True(t, terminal.Terminal())
		for _, to := range all {
			require.False(t, CanTransition(terminal, to), "%s -> %s must never be allowed", terminal, to)
		}
	}
}

func TestStatusValid(t *testing.T) {
	require.True(t, StatusPending.Valid())
	require.True(t, StatusNoShow.Valid())
	require.False(t, Status("archived").Valid())
	require.False(t, Status("").Valid())
}
