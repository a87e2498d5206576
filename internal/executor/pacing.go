package executor

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacing holds the base delays between simulated clicks
type Pacing struct {
	Step    time.Duration // between steps of one action
	Item    time.Duration // after a successful action, before the next item
	Dismiss time.Duration // after closing a stray menu or dialog
}

// DefaultPacing matches what a patient human does on x.com
func DefaultPacing() Pacing {
	return Pacing{
		Step:    500 * time.Millisecond,
		Item:    800 * time.Millisecond,
		Dismiss: 200 * time.Millisecond,
	}
}

// Jitter returns d plus up to 50% uniform random extra, so pauses never repeat exactly
func Jitter(d time.Duration) time.Duration {
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(half))
}

// Sleep pauses for d or until ctx is done, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
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

// SleepJittered is Sleep with Jitter applied
func SleepJittered(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, Jitter(d))
}
