package generator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spboyer/codeloop/internal/models"
)

// RetryPolicy controls how temporary backend failures are retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy is used for any zero field of a RetryPolicy.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 2,
	BaseDelay:  time.Second,
	MaxDelay:   30 * time.Second,
}

type retryingGenerator struct {
	inner  Generator
	policy RetryPolicy
}

// WithRetry wraps g so that temporary UnavailableErrors are retried with
// exponential backoff. Other errors are returned at once. A policy with
// MaxRetries < 0 disables retries.
func WithRetry(g Generator, policy RetryPolicy) Generator {
	if policy.MaxRetries < 0 {
		return g
	}
	if policy.MaxRetries == 0 {
		policy.MaxRetries = DefaultRetryPolicy.MaxRetries
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return &retryingGenerator{inner: g, policy: policy}
}

func (r *retryingGenerator) backoff() retry.Backoff {
	b := retry.NewExponential(r.policy.BaseDelay)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithCappedDuration(r.policy.MaxDelay, b)
	return retry.WithMaxRetries(uint64(r.policy.MaxRetries), b)
}

func (r *retryingGenerator) Next(ctx context.Context, transcript []models.Message) (models.Message, error) {
	var reply models.Message
	attempt := 0

	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++

		msg, err := r.inner.Next(ctx, transcript)
		if err == nil {
			reply = msg
			return nil
		}

		var unavailable *UnavailableError
		if errors.As(err, &unavailable) && unavailable.Temporary {
			slog.Warn("Generator call failed, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil {
		return models.Message{}, err
	}
	return reply, nil
}
