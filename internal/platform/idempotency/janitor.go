package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunJanitor purges expired keys every interval until ctx is cancelled. Each
// pass keeps deleting batches of up to batch keys while full batches come back.
func RunJanitor(ctx context.Context, store Store, interval time.Duration, batch int, logger *zap.Logger) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			total, err := purgeAll(ctx, store, now, batch)
			if err != nil {
				logger.Warn("idempotency purge failed", zap.Error(err), zap.Int("removed", total))
				continue
			}
			if total > 0 {
				logger.Debug("idempotency keys purged", zap.Int("removed", total))
			}
		}
	}
}

func purgeAll(ctx context.Context, store Store, now time.Time, batch int) (int, error) {
	total := 0
	for {
		removed, err := store.Purge(ctx, now, batch)
		total += removed
		if err != nil || batch <= 0 || removed < batch {
			return total, err
		}
	}
}
