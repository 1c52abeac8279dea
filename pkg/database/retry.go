package database

import (
	"context"
	"database/sql"
	"math/rand"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const (
	baseRetryDelay = 50 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// isBusyError reports whether err is SQLite refusing a lock. Both cgo and
// pure-Go drivers only expose this through the message.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"database is locked",
		"database table is locked",
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"(5)",
		"(6)",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func backoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<attempt)
	delay += time.Duration(rand.Int63n(int64(delay/4) + 1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// WithRetry runs fn, running it again with exponential backoff while it fails
// because the database is busy. Other errors are returned straight away.
func WithRetry(ctx context.Context, maxRetries int, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isBusyError(err) || attempt >= maxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-time.After(backoff(attempt)):
		}
	}
}

// RunInTx runs fn in a transaction. A transaction that fails because the
// database is busy is rolled back and started over.
func RunInTx(ctx context.Context, db *bun.DB, maxRetries int, fn func(ctx context.Context, tx bun.Tx) error) error {
	return WithRetry(ctx, maxRetries, func() error {
		return db.RunInTx(ctx, &sql.TxOptions{}, fn)
	})
}
