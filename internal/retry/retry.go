package retry

import (
	"context"
	"time"
)

// Config controls a bounded retry loop.
type Config struct {
	Attempts  int
	BaseDelay time.Duration
}

// Do runs fn up to cfg.Attempts times, doubling the delay between attempts.
// It returns nil on the first success, the last error otherwise, and stops
// early when the context is cancelled.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	delay := cfg.BaseDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
