package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/acme/dialplan-sync/internal/config"
)

// Policy bounds retries of remote calls.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// FromConfig builds a policy from the retry configuration section.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
	}
}

// Classifier decides whether an error may be retried.
type Classifier func(error) bool

// DelayHinter is implemented by errors that carry a server supplied wait
// hint, such as a Retry-After header.
type DelayHinter interface {
	DelayHint() time.Duration
}

// Do runs op until it succeeds, fails with a non-retryable error, or all
// attempts are used up. The last error is returned in that case.
func Do(ctx context.Context, p Policy, rng *rand.Rand, retryable Classifier, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.nextDelay(attempt, rng)
		var hinter DelayHinter
		if errors.As(err, &hinter) {
			if hint := hinter.DelayHint(); hint > delay {
				delay = hint
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func (p Policy) nextDelay(attempt int, rng *rand.Rand) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Minute
	}

	exponent := math.Pow(2, float64(attempt-1))
	delay := time.Duration(exponent) * base
	if delay > maxDelay {
		delay = maxDelay
	}

	if p.Jitter > 0 && rng != nil {
		jitterFraction := rng.Float64()*p.Jitter - (p.Jitter / 2)
		jitter := time.Duration(float64(delay) * jitterFraction)
		delay += jitter
		if delay < base {
			delay = base
		}
	}

	return delay
}
