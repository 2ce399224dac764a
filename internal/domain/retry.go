package domain

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryRead runs op and retries it once when it fails with a transport error.
// Writes never go through here.
func retryRead[T any](ctx context.Context, delay time.Duration, op func() (T, error)) (T, error) {
	var result T
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), 1), ctx)
	err := backoff.Retry(func() error {
		value, err := op()
		if err == nil {
			result = value
			return nil
		}
		if errors.Is(err, ErrTransport) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
