package syncer

import (
	"context"
	"fmt"

	"github.com/llehouerou/scrobblesync/internal/errmsg"
	"github.com/llehouerou/scrobblesync/internal/lastfm"
	"github.com/llehouerou/scrobblesync/internal/scrobble"
)

// RetrySingle resubmits one pending or failed record.
func (s *Service) RetrySingle(ctx context.Context, id string) (Summary, error) {
	s.mu.RLock()
	r, ok := s.records.Get(id)
	s.mu.RUnlock()
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if scrobble.IsSuccess(r.Status) {
		return Summary{}, ErrAlreadyScrobbled
	}
	return s.retry(ctx, errmsg.OpRetry, []scrobble.Record{r})
}

// RetryAllFailed resubmits every failed record. With nothing to retry it
// returns an empty summary.
func (s *Service) RetryAllFailed(ctx context.Context) (Summary, error) {
	s.mu.RLock()
	failed := s.records.Failed()
	s.mu.RUnlock()
	if len(failed) == 0 {
		return Summary{}, nil
	}
	return s.retry(ctx, errmsg.OpRetryAll, failed)
}

func (s *Service) retry(ctx context.Context, op errmsg.Op, batch []scrobble.Record) (Summary, error) {
	if !s.submitter.IsAuthenticated() {
		return Summary{}, lastfm.ErrNotAuthenticated
	}
	if !s.begin() {
		return Summary{}, ErrSyncInProgress
	}
	defer s.end()

	s.mu.Lock()
	for i := range batch {
		s.records.SetStatus(batch[i].ID, scrobble.Pending)
	}
	s.mu.Unlock()
	s.persist(0)

	now := s.now()
	sum := Summary{Started: now}
	err := s.submit(ctx, batch, now, &sum)
	sum.Duration = s.now().Sub(now)
	if err != nil {
		s.fail(op, err)
	}
	s.log.Info().Int("tracks", len(batch)).Int("accepted", sum.Accepted).Msg("retry complete")
	return sum, err
}
