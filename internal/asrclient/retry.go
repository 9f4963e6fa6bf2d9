package asrclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// maxRetries is the number of retries permitted on top of the initial
// attempt.
const maxRetries = 3

// newBackOff builds an exponential backoff with a 1-2s base interval and
// full jitter (RandomizationFactor=1 spreads each wait uniformly over
// [0, 2x the nominal interval], the standard full-jitter construction).
func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1500 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 1
	b.MaxInterval = 30 * time.Second
	return b
}

// withRetry runs op, retrying per the ASR client's retry-eligibility
// predicate (connect or read timeout, other I/O failure, 5xx, 429, 404) with
// exponential backoff and full jitter, up to maxRetries retries.
func withRetry(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		opErr := op()
		if opErr == nil {
			return struct{}{}, nil
		}

		var ce *ClientError
		if !errors.As(opErr, &ce) || !retryEligible(ce) {
			return struct{}{}, backoff.Permanent(opErr)
		}
		return struct{}{}, opErr
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(maxRetries+1))
	return err
}
