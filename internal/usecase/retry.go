package usecase

import (
	"context"
	"time"
)

// Clock abstracts time for the executor so retry/backoff behavior is
// testable with a fake clock.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func RealClock() Clock { return realClock{} }

// RetryPolicy is an explicit bounded-attempt policy: MaxAttempts total
// tries per call, exponential backoff between them. Passed into the
// executor rather than hidden in loop-and-sleep code.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      int
	MaxDelay    time.Duration
}

// Delay returns the pause before attempt n+1 (n is 1-based: Delay(1) is the
// pause after the first failure). Defaults give 2s, 8s, 32s.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 4
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= time.Duration(factor)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}
