package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "capacity without hint",
			err:  NewValidationError("threadpool", "maxCapacity", 0, "must be positive"),
			want: "threadpool: invalid maxCapacity=0 (must be positive)",
		},
		{
			name: "interval with hint",
			err: NewValidationError("timer", "interval", "-1s", "must be positive").
				WithHint("use ScheduleAfter for a single run"),
			want: "timer: invalid interval=-1s (must be positive) - use ScheduleAfter for a single run",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, ErrInvalidConfiguration)
			assert.True(t, IsValidationError(fmt.Errorf("config: %w", tt.err)))
		})
	}
}

func TestOperationErrorMessage(t *testing.T) {
	closed := NewOperationError("dispatcher", "Start", ErrClosed).WithContext("dispatcher=io")
	assert.Equal(t, "dispatcher.Start failed: resource is closed (dispatcher=io)", closed.Error())
	assert.ErrorIs(t, closed, ErrClosed)
	assert.False(t, IsValidationError(closed))

	bare := NewOperationError("redisbridge", "Forward", errors.New("connection refused"))
	assert.Equal(t, "redisbridge.Forward failed: connection refused", bare.Error())
}

func TestRetryableConditions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"capacity", fmt.Errorf("%w: no thread available", ErrCapacityExceeded), true},
		{"join timeout", NewOperationError("thread", "Join", ErrTimeout), true},
		{"closed", NewOperationError("timer", "Schedule", ErrClosed), false},
		{"cancelled", ErrCancelled, false},
		{"invalid", NewValidationError("taskmanager", "progressInterval", -1, "must not be negative"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
			assert.Equal(t, tt.want, IsTemporary(tt.err))
		})
	}
}

func TestPanicError(t *testing.T) {
	perr := NewPanicError("boom")

	assert.Equal(t, "panic: boom", perr.Error())
	assert.True(t, strings.Contains(perr.Stack, "TestPanicError"), "stack should name the panicking frame")
	assert.Nil(t, perr.Unwrap())

	wrapped := fmt.Errorf("task failed: %w", NewPanicError(ErrTimeout))
	assert.True(t, IsPanic(wrapped))
	assert.ErrorIs(t, wrapped, ErrTimeout)
	assert.False(t, IsPanic(ErrTimeout))

	pe, ok := AsPanic(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrTimeout, pe.Value)

	_, ok = AsPanic(ErrClosed)
	assert.False(t, ok)
}
