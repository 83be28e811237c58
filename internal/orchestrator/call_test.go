package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_ForwardTransitions(t *testing.T) {
	c := &Call{Status: StatusPending}

	require.NoError(t, c.transition(StatusCalling))
	require.NoError(t, c.transition(StatusProcessing))
	require.NoError(t, c.transition(StatusCompleted))
	assert.True(t, c.Status.Terminal())
}

func TestCall_RejectsBackwardMoves(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
	}{
		{"completed to pending", StatusCompleted, StatusPending},
		{"completed to calling", StatusCompleted, StatusCalling},
		{"processing to calling", StatusProcessing, StatusCalling},
		{"calling to pending", StatusCalling, StatusPending},
		{"failed to completed", StatusFailed, StatusCompleted},
		{"pending to processing skips calling", StatusPending, StatusProcessing},
		{"pending to completed skips work", StatusPending, StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Call{Status: tt.from}
			err := c.transition(tt.to)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, c.Status)
		})
	}
}

func TestCall_Retry(t *testing.T) {
	c := &Call{}
	c.fail(errors.New("first attempt"))

	// maxRetries 3 allows two requeues: attempts 2 and 3. Each requeue
	// discards the failed attempt's error.
	require.NoError(t, c.retry(3))
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, 1, c.RetryCount)
	assert.NoError(t, c.Err)

	c.fail(errors.New("second attempt"))
	require.NoError(t, c.retry(3))
	assert.Equal(t, 2, c.RetryCount)
	assert.NoError(t, c.Err)

	c.fail(errors.New("third attempt"))
	err := c.retry(3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, StatusFailed, c.Status)
	assert.Equal(t, 2, c.RetryCount)
	// Exhaustion keeps the terminal error in place.
	assert.EqualError(t, c.Err, "third attempt")
}

func TestCall_RetryOnlyFromFailed(t *testing.T) {
	for _, from := range []Status{StatusPending, StatusCalling, StatusProcessing, StatusCompleted} {
		c := &Call{Status: from}
		err := c.retry(3)
		require.Error(t, err, "retry from %s", from)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}
