package engine

import (
	"context"
	"time"
)

// every runs fn after each interval until ctx is done. interval is read
// before each wait so reloaded settings take effect on the next cycle.
func every(ctx context.Context, interval func() time.Duration, fn func(context.Context)) error {
	for {
		t := time.NewTimer(interval())
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		fn(ctx)
	}
}
