// Package syncer orchestrates sync cycles: fetch recently played tracks,
// estimate and filter them, merge them into the local log, submit them to
// Last.fm and record what was accepted.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/scrobblesync/internal/errmsg"
	"github.com/llehouerou/scrobblesync/internal/history"
	"github.com/llehouerou/scrobblesync/internal/lastfm"
	"github.com/llehouerou/scrobblesync/internal/logging"
	"github.com/llehouerou/scrobblesync/internal/metrics"
	"github.com/llehouerou/scrobblesync/internal/scrobble"
	"github.com/llehouerou/scrobblesync/internal/state"
)

var (
	// ErrSyncInProgress is returned when a cycle or retry is already running.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrRecordNotFound is returned when retrying an unknown record.
	ErrRecordNotFound = errors.New("scrobble not found")
	// ErrAlreadyScrobbled is returned when retrying an accepted record.
	ErrAlreadyScrobbled = errors.New("scrobble was already accepted")
)

// Submitter sends records to the scrobbling service.
type Submitter interface {
	IsAuthenticated() bool
	Scrobble(ctx context.Context, records []scrobble.Record) (lastfm.Result, error)
}

// Store is the durable state the orchestrator needs.
type Store interface {
	state.DedupStore
	state.ScrobbleStore
}

// Config wires a Service.
type Config struct {
	Provider  history.Provider
	Submitter Submitter
	Store     Store

	// LogRetention drops accepted records older than this from the local
	// log. Zero keeps them all.
	LogRetention time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service owns the local log and is the only writer of the dedup store.
type Service struct {
	provider  history.Provider
	submitter Submitter
	store     Store
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger

	busy atomic.Bool

	mu      sync.RWMutex
	records *scrobble.Log
	state   State

	subsMu sync.Mutex
	subs   []*Subscription
	closed bool
}

// New creates a Service, loading the persisted log from the store.
func New(cfg Config) (*Service, error) {
	if cfg.Provider == nil || cfg.Submitter == nil || cfg.Store == nil {
		return nil, errors.New("syncer: provider, submitter and store are required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	saved, err := cfg.Store.LoadScrobbles()
	if err != nil {
		return nil, fmt.Errorf("load scrobbles: %w", err)
	}

	s := &Service{
		provider:  cfg.Provider,
		submitter: cfg.Submitter,
		store:     cfg.Store,
		retention: cfg.LogRetention,
		now:       now,
		log:       logging.With().Str("component", "syncer").Logger(),
		records:   scrobble.NewLog(saved),
	}
	s.updateGauges()
	return s, nil
}

// State returns whether a cycle is running.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Records returns a snapshot of the local log, most recent first.
func (s *Service) Records() []scrobble.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Records()
}

// Filter returns the log records matching f.
func (s *Service) Filter(f scrobble.StatusFilter) []scrobble.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Filter(f)
}

// Stats summarizes the local log relative to the current time.
func (s *Service) Stats() scrobble.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Stats(s.now())
}

// LastSync returns the watermark, if a cycle ever completed.
func (s *Service) LastSync() (time.Time, bool, error) {
	return s.store.Watermark()
}

// Subscribe returns a new event subscription.
func (s *Service) Subscribe() *Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	sub := newSubscription()
	if s.closed {
		sub.close()
		return sub
	}
	s.subs = append(s.subs, sub)
	return sub
}

// Close ends every subscription.
func (s *Service) Close() error {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, sub := range s.subs {
		sub.close()
	}
	s.subs = nil
	return nil
}

func (s *Service) emit(fn func(*Subscription)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		fn(sub)
	}
}

// begin takes the re-entrancy guard shared by cycles and retries.
func (s *Service) begin() bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.setState(StateSyncing)
	return true
}

func (s *Service) end() {
	s.setState(StateIdle)
	s.busy.Store(false)
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.emit(func(sub *Subscription) { sub.sendState(StateChange{Previous: prev, Current: st}) })
	}
}

// fail logs err and emits a one-shot ErrorEvent.
func (s *Service) fail(op errmsg.Op, err error) {
	s.log.Error().Err(err).Str("op", string(op)).Msg("sync step failed")
	s.emit(func(sub *Subscription) { sub.sendError(ErrorEvent{Op: op, Err: err}) })
}

// persist saves the log. A failed save is reported but never undoes the
// in-memory state.
func (s *Service) persist(added int) {
	s.mu.RLock()
	snapshot := s.records.Records()
	s.mu.RUnlock()

	if err := s.store.SaveScrobbles(snapshot); err != nil {
		s.fail(errmsg.OpSyncPersist, err)
	}
	s.updateGauges()
	s.emit(func(sub *Subscription) { sub.sendRecords(RecordsChange{Added: added, Total: len(snapshot)}) })
}

func (s *Service) updateGauges() {
	st := s.Stats()
	metrics.LogRecords.WithLabelValues("pending").Set(float64(st.Pending))
	metrics.LogRecords.WithLabelValues("failed").Set(float64(st.Failed))
	metrics.LogRecords.WithLabelValues("success").Set(float64(st.Total - st.Pending - st.Failed))
}

// SyncNow runs one sync cycle. It returns ErrSyncInProgress immediately if
// a cycle or retry is already running.
//
// A provider failure ends the cycle without touching the watermark. A
// submission failure marks the affected plays failed; the watermark still
// advances and the error is returned.
func (s *Service) SyncNow(ctx context.Context) (Summary, error) {
	if !s.begin() {
		metrics.SyncRuns.WithLabelValues("busy").Inc()
		return Summary{}, ErrSyncInProgress
	}
	defer s.end()

	now := s.now()
	sum := Summary{Started: now}
	defer func() { metrics.SyncDuration.Observe(s.now().Sub(now).Seconds()) }()

	if n, err := s.store.PurgeOlderThan(now.Add(-state.RetentionWindow)); err != nil {
		s.fail(errmsg.OpSyncPurge, err)
	} else if n > 0 {
		s.log.Debug().Int("purged", n).Msg("purged submitted ids")
	}

	plays, err := s.provider.FetchRecent(ctx)
	if err != nil {
		metrics.SyncRuns.WithLabelValues("fetch_error").Inc()
		s.fail(errmsg.OpSyncFetch, err)
		sum.Duration = s.now().Sub(now)
		return sum, fmt.Errorf("fetch recent: %w", err)
	}
	sum.Fetched = len(plays)
	metrics.PlaysFetched.Add(float64(len(plays)))

	fresh, err := s.filter(scrobble.FromPlays(plays, now))
	if err != nil {
		metrics.SyncRuns.WithLabelValues("persist_error").Inc()
		s.fail(errmsg.OpSyncPersist, err)
		sum.Duration = s.now().Sub(now)
		return sum, err
	}
	sum.New = len(fresh)
	metrics.PlaysFiltered.Add(float64(len(plays) - len(fresh)))
	s.log.Debug().Int("fetched", len(plays)).Int("new", len(fresh)).Msg("filtered plays")

	var added []scrobble.Record
	if len(fresh) > 0 {
		s.mu.Lock()
		added = s.records.Merge(fresh)
		if s.retention > 0 {
			s.records.Prune(now.Add(-s.retention))
		}
		s.mu.Unlock()
		s.persist(len(added))
	}

	if !s.submitter.IsAuthenticated() {
		if len(added) > 0 {
			s.log.Info().Int("pending", len(added)).Msg("not signed in to Last.fm, plays left pending")
		}
		return s.complete(now, sum, nil)
	}

	batch := append(added, s.stalePending(added)...)
	if len(batch) == 0 {
		return s.complete(now, sum, nil)
	}
	subErr := s.submit(ctx, batch, now, &sum)
	return s.complete(now, sum, subErr)
}

// filter drops plays at or below the watermark, plays whose identity key
// was already accepted and plays whose provider id is already in the log.
// The last keeps pending and failed plays from being logged twice; they
// are found again through their status.
func (s *Service) filter(records []scrobble.Record) ([]scrobble.Record, error) {
	at, ok, err := s.store.Watermark()
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}

	keys := make([]string, 0, len(records))
	for i := range records {
		if k := records[i].IdentityKey(); k != "" {
			keys = append(keys, k)
		}
	}
	seen, err := s.store.ContainsAny(keys)
	if err != nil {
		return nil, fmt.Errorf("read submitted ids: %w", err)
	}

	fresh := scrobble.Filter(records, scrobble.Watermark{At: at, Set: ok}, func(k string) bool { return seen[k] })

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := fresh[:0]
	for i := range fresh {
		if _, known := s.records.FindBySourceID(fresh[i].SourceID); known {
			continue
		}
		out = append(out, fresh[i])
	}
	return out, nil
}

// stalePending returns pending log records left by earlier cycles that ran
// while signed out.
func (s *Service) stalePending(added []scrobble.Record) []scrobble.Record {
	fresh := make(map[string]bool, len(added))
	for i := range added {
		fresh[added[i].ID] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scrobble.Record
	for _, r := range s.records.Pending() {
		if !fresh[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// complete advances the watermark and reports the end of a cycle.
func (s *Service) complete(now time.Time, sum Summary, subErr error) (Summary, error) {
	sum.Duration = s.now().Sub(now)
	if err := s.store.SetWatermark(now); err != nil {
		metrics.SyncRuns.WithLabelValues("persist_error").Inc()
		s.fail(errmsg.OpSyncPersist, err)
		return sum, errors.Join(subErr, err)
	}
	metrics.LastSyncTimestamp.Set(float64(now.Unix()))

	if subErr != nil {
		metrics.SyncRuns.WithLabelValues("submit_error").Inc()
		s.fail(errmsg.OpSyncSubmit, subErr)
	} else {
		metrics.SyncRuns.WithLabelValues("ok").Inc()
	}
	s.log.Info().
		Int("fetched", sum.Fetched).
		Int("new", sum.New).
		Int("accepted", sum.Accepted).
		Int("failed", sum.Failed).
		Dur("took", sum.Duration).
		Msg("sync complete")
	s.emit(func(sub *Subscription) { sub.sendCompleted(SyncCompleted{Summary: sum}) })
	return sum, subErr
}

// submit sends batch, reconciles the outcomes into the log and records the
// accepted identity keys.
func (s *Service) submit(ctx context.Context, batch []scrobble.Record, now time.Time, sum *Summary) error {
	sum.Submitted += len(batch)
	res, subErr := s.submitter.Scrobble(ctx, batch)

	s.mu.Lock()
	if len(res.Outcomes) == 0 && subErr != nil {
		// nothing came back, e.g. the session vanished
		for i := range batch {
			s.records.SetStatus(batch[i].ID, scrobble.Failed(subErr.Error()))
		}
	}
	keys := reconcile(s.records, res.Outcomes)
	s.mu.Unlock()

	accepted, ignored := 0, 0
	for _, o := range res.Outcomes {
		switch {
		case o.Accepted:
			accepted++
		case o.IgnoredCode != lastfm.IgnoredNone:
			ignored++
		}
	}
	sum.Accepted += accepted
	sum.Ignored += ignored
	sum.Failed += len(batch) - accepted

	s.persist(0)

	if err := s.store.Insert(keys, now); err != nil {
		s.fail(errmsg.OpSyncPersist, err)
		subErr = errors.Join(subErr, err)
	}
	return subErr
}
