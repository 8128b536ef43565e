package cache

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/rate-the-washroom/internal/metrics"
)

// Invalidator drops derived read caches after a committed write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// InvalidateWithRetry retries a failed invalidation once. A second failure
// leaves cached ranges stale until their TTL expires. A nil inv is a no-op.
func InvalidateWithRetry(ctx context.Context, inv Invalidator, logger zerolog.Logger) {
	if inv == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := inv.Invalidate(ctx)
	if err == nil {
		return
	}
	logger.Warn().Err(err).Msg("range cache invalidation failed, retrying")
	if err := inv.Invalidate(ctx); err != nil {
		metrics.CacheInvalidationFailures.Inc()
		logger.Error().Err(err).Msg("range cache invalidation failed; cached ranges stay stale until TTL")
	}
}
