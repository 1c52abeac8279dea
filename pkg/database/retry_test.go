package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("database is locked")

func TestIsBusyError(t *testing.T) {
	busy := []string{
		"database is locked",
		"database table is locked",
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"error (5): database busy",
		"error (6): database locked",
	}
	for _, msg := range busy {
		assert.True(t, isBusyError(errors.New(msg)), msg)
	}

	assert.False(t, isBusyError(nil))
	assert.False(t, isBusyError(errors.New("UNIQUE constraint failed")))
	assert.False(t, isBusyError(errors.New("no such table: titles")))
}

func TestWithRetry(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		// results are returned in turn; the last one repeats.
		results  []error
		attempts int
		wantErr  error
	}{
		{"first attempt succeeds", 5, []error{nil}, 1, nil},
		{"busy then success", 5, []error{errBusy, errBusy, nil}, 3, nil},
		{"other errors aren't retried", 5, []error{assert.AnError}, 1, assert.AnError},
		{"gives up after max retries", 2, []error{errBusy}, 3, errBusy},
		{"no retries", 0, []error{errBusy}, 1, errBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := WithRetry(context.Background(), tt.maxRetries, func() error {
				i := attempts
				if i >= len(tt.results) {
					i = len(tt.results) - 1
				}
				attempts++
				return tt.results[i]
			})
			assert.Equal(t, tt.attempts, attempts)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestWithRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	err := WithRetry(ctx, 100, func() error {
		attempts++
		return errBusy
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, attempts, 100)
}

func TestBackoff(t *testing.T) {
	assert.GreaterOrEqual(t, backoff(0), baseRetryDelay)
	assert.Less(t, backoff(0), 2*baseRetryDelay)
	assert.Greater(t, backoff(3), backoff(0))
	assert.Equal(t, maxRetryDelay, backoff(10))
}
