package bookings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusRefundPending, false},
		{StatusCancelled, StatusRefundPending, true},
		{StatusRefundPending, StatusRefunded, true},
		{StatusRefundPending, StatusRefundFailed, true},
		{StatusRefundFailed, StatusRefundPending, true},
		{StatusRefunded, StatusRefundFailed, false},
		{StatusRefunded, StatusRefundPending, false},
		{StatusRefundFailed, StatusRefunded, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s → %s", tc.from, tc.to)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusRefunded.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusRefundFailed.IsTerminal())

	assert.True(t, StatusConfirmed.CanBeCancelled())
	assert.False(t, StatusPending.CanBeCancelled())

	for _, s := range []Status{StatusCancelled, StatusRefundPending, StatusRefunded, StatusRefundFailed} {
		assert.True(t, s.IsCancelled(), s)
	}
	assert.False(t, StatusCompleted.IsCancelled())

	assert.True(t, StatusRefundFailed.IsValid())
	assert.False(t, Status("ARCHIVED").IsValid())
}
