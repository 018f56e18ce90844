package generator

import (
	"context"
	"time"

	"github.com/spboyer/codeloop/internal/models"
	"golang.org/x/time/rate"
)

type rateLimitedGenerator struct {
	inner   Generator
	limiter *rate.Limiter
}

// WithRateLimit wraps g so that at most requestsPerMinute calls start per
// minute. A non-positive limit returns g unchanged.
func WithRateLimit(g Generator, requestsPerMinute int) Generator {
	if requestsPerMinute <= 0 {
		return g
	}
	return WithLimiter(g, NewLimiter(requestsPerMinute))
}

// NewLimiter returns a limiter allowing requestsPerMinute calls per minute
// with a burst of one.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// WithLimiter wraps g with a limiter that may be shared between generators.
// A nil limiter returns g.
func WithLimiter(g Generator, limiter *rate.Limiter) Generator {
	if limiter == nil {
		return g
	}
	return &rateLimitedGenerator{inner: g, limiter: limiter}
}

func (r *rateLimitedGenerator) Next(ctx context.Context, transcript []models.Message) (models.Message, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Message{}, ctxErr
		}
		// the wait would outlast the context deadline
		return models.Message{}, &UnavailableError{Backend: "rate limiter", Temporary: true, Err: err}
	}
	return r.inner.Next(ctx, transcript)
}
