package autobot

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy describes how broker-facing calls are retried. It is injected
// into every component performing such calls; there are no hardcoded retry
// parameters anywhere else.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

func (rp *RetryPolicy) normalized() RetryPolicy {
	policy := *rp

	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 1 * time.Second
	}

	if policy.Multiplier < 1 {
		policy.Multiplier = 2
	}

	return policy
}

// Retry runs fn up to the policy's attempt count, backing off exponentially
// between attempts. Only transient failures are retried: network failures
// use the backoff delay, rate limits use the platform-indicated delay when
// one is announced. All other errors return immediately.
func Retry(ctx context.Context, policy *RetryPolicy, fn func() error) error {
	return retry(ctx, policy, isTransientFailure, fn)
}

// RetryAuth behaves like Retry but additionally treats authentication
// failures as retryable. The login path uses it.
func RetryAuth(ctx context.Context, policy *RetryPolicy, fn func() error) error {
	return retry(
		ctx,
		policy,
		func(err error) bool {
			var authErr *AuthError
			return isTransientFailure(err) || errors.As(err, &authErr)
		},
		fn,
	)
}

func retry(
	ctx context.Context,
	policy *RetryPolicy,
	retryable func(error) bool,
	fn func() error,
) error {
	normalizedPolicy := policy.normalized()

	delay := normalizedPolicy.BaseDelay

	var err error
	for attempt := 1; attempt <= normalizedPolicy.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !retryable(err) {
			return err
		}

		if attempt == normalizedPolicy.MaxAttempts {
			break
		}

		wait := delay

		var rateLimitErr *RateLimitError
		if errors.As(err, &rateLimitErr) && rateLimitErr.RetryAfter > 0 {
			wait = rateLimitErr.RetryAfter
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * normalizedPolicy.Multiplier)
		if normalizedPolicy.MaxDelay > 0 && delay > normalizedPolicy.MaxDelay {
			delay = normalizedPolicy.MaxDelay
		}
	}

	return err
}

func isTransientFailure(err error) bool {
	var networkErr *NetworkError
	var rateLimitErr *RateLimitError

	return errors.As(err, &networkErr) || errors.As(err, &rateLimitErr)
}
