package comm

import (
	"context"
	"time"
)

// backoff produces exponentially growing waits between attempts.
type backoff struct {
	next time.Duration
	max  time.Duration
}

func newBackoff(cfg Config) *backoff {
	next := cfg.Backoff
	if next <= 0 {
		next = 500 * time.Millisecond
	}
	max := cfg.MaxBackoff
	if max < next {
		max = next
	}
	return &backoff{next: next, max: max}
}

// wait sleeps for the current delay, then doubles it up to the cap.
func (b *backoff) wait(ctx context.Context) error {
	timer := time.NewTimer(b.next)
	defer timer.Stop()

	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jobAttempts(cfg Config) int {
	if cfg.JobRetries < 1 {
		return 1
	}
	return cfg.JobRetries
}
