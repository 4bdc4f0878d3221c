package syncer

import (
	"context"
	"errors"
	"time"
)

// Run syncs once immediately and then every interval until ctx is done.
// Cycle errors are reported through subscriptions and do not stop the loop.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.SyncNow(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			s.log.Warn().Err(err).Msg("scheduled sync failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
