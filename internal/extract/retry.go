package extract

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy configures ExtractWithRetry.
type RetryPolicy struct {
	Attempts uint          // Total attempts including the first; 0 or 1 means no retry
	Delay    time.Duration // Base backoff delay; Default: 500ms
	MaxDelay time.Duration // Default: 10s
}

// ExtractWithRetry calls Extract until it succeeds, a non-retryable failure
// occurs, attempts run out or ctx ends. Each attempt is an independent Extract
// with its own deadline. A backend Retry-After hint overrides the backoff.
func ExtractWithRetry[T any](ctx context.Context, ex *Extractor, req *Request, policy RetryPolicy) (*Result[T], error) {
	if policy.Attempts <= 1 {
		return Extract[T](ctx, ex, req)
	}
	if policy.Delay <= 0 {
		policy.Delay = 500 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 10 * time.Second
	}

	var result *Result[T]
	err := retry.Do(
		func() error {
			r, err := Extract[T](ctx, ex, req)
			if err != nil {
				return err
			}
			result = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(policy.Attempts),
		retry.Delay(policy.Delay),
		retry.MaxDelay(policy.MaxDelay),
		retry.DelayType(retryAfterOrBackoff),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			ex.logger.Info("retrying extraction", "attempt", n+1, "backend", ex.backendName, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func retryAfterOrBackoff(n uint, err error, config *retry.Config) time.Duration {
	if f, ok := AsFailure(err); ok && f.RetryAfter > 0 {
		return f.RetryAfter
	}
	return retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)(n, err, config)
}
