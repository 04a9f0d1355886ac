// Package retry wraps rate-limited platform calls: a retry combinator that only
// retries RateLimitError, and per-platform client-side token buckets.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"socialops/domain/model"
	"socialops/infrastructure/logger"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	// DefaultMaxDelay bounds computed backoff when the policy sets no cap.
	DefaultMaxDelay = 10 * time.Minute
)

// Policy configures WithRetry. Zero values fall back to the defaults.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// MaxDelay caps computed backoff (not platform hints). Zero means
	// DefaultMaxDelay.
	MaxDelay time.Duration
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	return p
}

// Delay is the wait before retry number attempt+1 (attempt is 0-based): the
// platform hint verbatim when present, otherwise BaseDelay * 2^attempt capped
// at MaxDelay.
func (p Policy) Delay(attempt int, rl *model.RateLimitError) time.Duration {
	if rl != nil && rl.RetryAfter != nil && *rl.RetryAfter >= 0 {
		return *rl.RetryAfter
	}
	limit := p.MaxDelay
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	d := p.BaseDelay
	if d <= 0 {
		d = DefaultBaseDelay
	}
	// Stop doubling at the cap.
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}

// WithRetry runs op, retrying only on RateLimitError for up to MaxRetries extra
// attempts. Any other error returns immediately. After exhaustion the last
// RateLimitError is returned.
func WithRetry[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p := policy.withDefaults()
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		var rl *model.RateLimitError
		if !errors.As(err, &rl) {
			return zero, err
		}
		if attempt >= p.MaxRetries {
			return zero, err
		}
		delay := p.Delay(attempt, rl)
		logger.GetLogger().
			WithField("platform", rl.Platform).
			WithField("attempt", attempt+1).
			WithField("delay", delay.String()).
			Warn("rate limited, backing off")
		if sErr := p.Sleep(ctx, delay); sErr != nil {
			return zero, fmt.Errorf("%w (aborted while backing off: %v)", err, sErr)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
