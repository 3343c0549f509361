package checkout

import (
	"context"
	"time"

	"checkout-be/internal/logger"

	"go.uber.org/zap"
)

// Sweeper expires PENDING entries older than ttl. Payments never completed
// leave those behind, and a late webhook for an expired key is acknowledged
// without creating an order.
type Sweeper struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(store Store, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is done. It returns nil on cancellation
// so it can sit in an errgroup next to the HTTP server.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) int64 {
	cutoff := s.now().UTC().Add(-s.ttl)

	n, err := s.store.ExpirePending(ctx, cutoff)
	if err != nil {
		logger.L().Error("failed to expire pending checkouts", zap.Error(err))
		return 0
	}
	if n > 0 {
		logger.L().Info("expired pending checkouts",
			zap.Int64("count", n),
			zap.Time("cutoff", cutoff),
		)
	}
	return n
}
