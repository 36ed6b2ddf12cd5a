package htlc

import (
	"context"
	"time"

	apperrors "github.com/swapsage/resolver/pkg/app/errors"
)

// Retry runs fn up to attempts times with exponential backoff. Only network
// category errors are retried; on-chain outcomes are definitive and returned
// immediately.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !apperrors.Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(base << uint(i)):
		}
	}
	return err
}
