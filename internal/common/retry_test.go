package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/categorizer/internal/service"
)

func fastRetryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return NewTransientError(errors.New("db locked"))
		}
		return nil
	}, fastRetryOptions())

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		return NewTransientError(errors.New("db locked"))
	}, fastRetryOptions())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		return NewValidationError("field", "cannot be empty")
	}, fastRetryOptions())

	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	opts := fastRetryOptions()
	opts.InitialDelay = time.Second

	errCh := make(chan error, 1)
	go func() {
		errCh <- WithRetry(ctx, func() error {
			return NewTransientError(errors.New("db locked"))
		}, opts)
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", NewTransientError(errors.New("boom")), true},
		{"deadline", context.DeadlineExceeded, true},
		{"retryable flagged", &RetryableError{Err: errors.New("boom"), Retryable: true}, true},
		{"retryable unflagged", &RetryableError{Err: errors.New("boom"), Retryable: false}, false},
		{"validation", NewValidationError("f", "r"), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("merchant", "cannot be empty")
	assert.EqualError(t, err, "validation failed for merchant: cannot be empty")
	assert.True(t, IsValidation(err))
	assert.False(t, IsValidation(errors.New("other")))

	// Wrapped validation errors are still recognized.
	wrapped := errors.Join(errors.New("outer"), err)
	assert.True(t, IsValidation(wrapped))
}
