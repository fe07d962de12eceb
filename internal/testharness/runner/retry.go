package runner

import (
	"context"
	"errors"
	"time"
)

var errNoAttempts = errors.New("retryWithBackoff: MaxAttempts must be > 0")

// RetryConfig controls retryWithBackoff.
type RetryConfig struct {
	MaxAttempts int           // required, must be > 0
	BaseDelay   time.Duration // initial backoff delay
	MaxDelay    time.Duration // cap on delay (defaults to 10s if zero)
}

// retryWithBackoff calls fn up to cfg.MaxAttempts times with exponential
// backoff. It stops early when ctx ends or fn returns a ClassifiedError that
// is not an infrastructure error.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		return errNoAttempts
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 10 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var ce *ClassifiedError
		if errors.As(lastErr, &ce) && ce.Category != ErrCatInfrastructure {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := min(cfg.BaseDelay<<uint(attempt), cfg.MaxDelay)
		if err := contextSleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// contextSleep waits for d or until ctx is done.
func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
