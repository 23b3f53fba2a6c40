package schedule

import (
	"context"
	"time"
)

// RunEvery calls execute at every multiple of interval, starting with the
// next one, until ctx is done. A slow execute delays the following call
// instead of overlapping it.
func RunEvery(ctx context.Context, interval time.Duration, execute func(ctx context.Context, now time.Time)) {
	for {
		next := time.Now().Truncate(interval).Add(interval)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case now := <-timer.C:
			execute(ctx, now)
		}
	}
}
