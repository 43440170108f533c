package jobs

import (
	"context"
	"time"
)

// Pruner drops typing signals older than a cutoff.
type Pruner interface {
	Prune(cutoff time.Time) int
}

// StartTypingPrune bounds the memory of the in-process typing store. Reads
// never depend on it: expired signals are already ignored by age.
func StartTypingPrune(ctx context.Context, store Pruner, ttl time.Duration) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(ttl * 6)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				store.Prune(time.Now().UTC().Add(-2 * ttl))
			case <-ctx.Done():
				return
			}
		}
	}()
	return cancel
}
