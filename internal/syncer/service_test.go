package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/scrobblesync/internal/errmsg"
	"github.com/llehouerou/scrobblesync/internal/history"
	"github.com/llehouerou/scrobblesync/internal/lastfm"
	"github.com/llehouerou/scrobblesync/internal/scrobble"
	"github.com/llehouerou/scrobblesync/internal/state"
)

var testNow = time.Date(2026, 5, 10, 20, 0, 0, 0, time.UTC)

type harness struct {
	svc       *Service
	provider  *fakeProvider
	submitter *fakeSubmitter
	store     *state.Mock
}

func newHarness(t *testing.T, plays ...history.Play) *harness {
	t.Helper()
	h := &harness{
		provider:  &fakeProvider{plays: plays},
		submitter: &fakeSubmitter{authenticated: true},
		store:     state.NewMock(),
	}
	svc, err := New(Config{
		Provider:  h.provider,
		Submitter: h.submitter,
		Store:     h.store,
		Now:       func() time.Time { return testNow },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	h.svc = svc
	return h
}

func statuses(records []scrobble.Record) map[string]scrobble.Status {
	out := make(map[string]scrobble.Status, len(records))
	for _, r := range records {
		out[r.Track] = r.Status
	}
	return out
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNew_LoadsPersistedLog(t *testing.T) {
	store := state.NewMock()
	require.NoError(t, store.SaveScrobbles([]scrobble.Record{
		{ID: "1", Track: "a", Artist: "x", Timestamp: testNow.Add(-time.Hour), Status: scrobble.Failed("boom")},
	}))

	svc, err := New(Config{Provider: &fakeProvider{}, Submitter: &fakeSubmitter{}, Store: store})
	require.NoError(t, err)

	require.Len(t, svc.Records(), 1)
	assert.Len(t, svc.Filter(scrobble.FilterFailed), 1)
}

func TestSyncNow_SubmitsNewPlays(t *testing.T) {
	h := newHarness(t,
		play("Two", "Artist", "s:2", testNow.Add(-5*time.Minute)),
		play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)),
	)

	sum, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Fetched)
	assert.Equal(t, 2, sum.New)
	assert.Equal(t, 2, sum.Accepted)
	assert.Zero(t, sum.Failed)

	for _, r := range h.svc.Records() {
		assert.Equal(t, scrobble.Success, r.Status, r.Track)
	}
	submitted := h.store.Submitted()
	assert.Contains(t, submitted, "s:1")
	assert.Contains(t, submitted, "s:2")

	wm, ok, err := h.svc.LastSync()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, wm.Equal(testNow))

	saved, err := h.store.LoadScrobbles()
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestSyncNow_IsIdempotent(t *testing.T) {
	h := newHarness(t, play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)))

	_, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)
	sum, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Fetched)
	assert.Zero(t, sum.New)
	assert.Len(t, h.submitter.Batches(), 1)
	assert.Len(t, h.svc.Records(), 1)
}

func undated(title, artist, sourceID string) history.Play {
	return history.Play{Title: title, Artist: artist, Album: "Album", Duration: 3 * time.Minute, SourceID: sourceID}
}

func TestSyncNow_UndatedPlaysNotLoggedTwiceWhileSignedOut(t *testing.T) {
	h := newHarness(t, undated("Two", "Artist", "s:2"), undated("One", "Artist", "s:1"))
	h.submitter.authenticated = false

	_, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)
	require.Len(t, h.svc.Records(), 2)

	// estimates move with the clock, past the watermark
	h.svc.now = func() time.Time { return testNow.Add(10 * time.Minute) }
	sum, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Zero(t, sum.New)
	assert.Len(t, h.svc.Records(), 2)
	assert.Len(t, h.svc.Filter(scrobble.FilterPending), 2)

	h.submitter.authenticated = true
	h.svc.now = func() time.Time { return testNow.Add(20 * time.Minute) }
	sum, err = h.svc.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Zero(t, sum.New)
	assert.Equal(t, 2, sum.Accepted)
	batches := h.submitter.Batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.Len(t, h.svc.Records(), 2)
}

func TestSyncNow_IgnoredUndatedPlaysNotResubmitted(t *testing.T) {
	h := newHarness(t, undated("Two", "Artist", "s:2"), undated("One", "Artist", "s:1"))
	h.submitter.respond = func(records []scrobble.Record) (lastfm.Result, error) {
		res, _ := acceptAll(records)
		for i := range res.Outcomes {
			res.Outcomes[i].Accepted = false
			res.Outcomes[i].IgnoredCode = lastfm.IgnoredArtist
			res.Outcomes[i].Message = lastfm.IgnoredReason(lastfm.IgnoredArtist)
		}
		res.Accepted, res.Ignored = 0, len(records)
		return res, nil
	}

	_, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)

	h.svc.now = func() time.Time { return testNow.Add(10 * time.Minute) }
	sum, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Zero(t, sum.New)
	assert.Len(t, h.submitter.Batches(), 1)
	require.Len(t, h.svc.Records(), 2)
	for _, r := range h.svc.Records() {
		assert.Equal(t, scrobble.Failed("Artist was ignored"), r.Status, r.Track)
		assert.True(t, r.Timestamp.Before(testNow), "first estimate is kept")
	}
}

func TestSyncNow_StateReadFailure(t *testing.T) {
	h := newHarness(t, play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)))
	h.store.ReadErr = errors.New("database is locked")
	sub := h.svc.Subscribe()

	_, err := h.svc.SyncNow(context.Background())
	require.Error(t, err)
	assert.Empty(t, h.submitter.Batches())
	assert.Empty(t, h.svc.Records())

	select {
	case e := <-sub.Error:
		assert.Equal(t, errmsg.OpSyncPersist, e.Op)
	default:
		t.Fatal("expected an error event")
	}
}

func TestSyncNow_SkipsPlaysAlreadySubmitted(t *testing.T) {
	h := newHarness(t,
		play("Two", "Artist", "s:2", testNow.Add(-5*time.Minute)),
		play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)),
	)
	require.NoError(t, h.store.Insert([]string{"s:1"}, testNow.Add(-time.Hour)))

	sum, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.New)
	batches := h.submitter.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "Two", batches[0][0].Track)
}

func TestSyncNow_UnauthenticatedLeavesPending(t *testing.T) {
	h := newHarness(t, play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)))
	h.submitter.authenticated = false

	sum, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.New)
	assert.Zero(t, sum.Submitted)
	assert.Empty(t, h.submitter.Batches())
	assert.Equal(t, scrobble.Pending, h.svc.Records()[0].Status)
	assert.Empty(t, h.store.Submitted())

	_, ok, err := h.svc.LastSync()
	require.NoError(t, err)
	assert.True(t, ok)

	// After signing in the pending play goes out even though the
	// watermark now hides it from the provider listing.
	h.submitter.authenticated = true
	sum, err = h.svc.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.New)
	assert.Equal(t, 1, sum.Submitted)
	assert.Equal(t, 1, sum.Accepted)
	assert.Len(t, h.submitter.Batches(), 1)
	assert.Empty(t, h.svc.Filter(scrobble.FilterPending))

	h.provider.plays = append(h.provider.plays, play("Two", "Artist", "s:2", testNow.Add(time.Minute)))
	h.svc.now = func() time.Time { return testNow.Add(5 * time.Minute) }
	sum, err = h.svc.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.New)
	assert.Equal(t, 1, sum.Submitted)
	assert.Len(t, h.submitter.Batches(), 2)
}

func TestSyncNow_TransportFailureMarksFailed(t *testing.T) {
	h := newHarness(t,
		play("Two", "Artist", "s:2", testNow.Add(-5*time.Minute)),
		play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)),
	)
	boom := &lastfm.TransportError{Op: "track.scrobble", StatusCode: 502, Err: errors.New("bad gateway")}
	h.submitter.respond = failAll(boom)
	sub := h.svc.Subscribe()

	sum, err := h.svc.SyncNow(context.Background())
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 2, sum.Failed)
	for _, r := range h.svc.Records() {
		require.True(t, scrobble.IsFailed(r.Status), r.Track)
		assert.Contains(t, scrobble.Reason(r.Status), "bad gateway")
	}
	assert.Empty(t, h.store.Submitted())

	_, ok, err := h.svc.LastSync()
	require.NoError(t, err)
	assert.True(t, ok, "watermark advances even when submission failed")

	select {
	case e := <-sub.Error:
		assert.Equal(t, errmsg.OpSyncSubmit, e.Op)
	default:
		t.Fatal("expected an error event")
	}
	select {
	case <-sub.SyncCompleted:
	default:
		t.Fatal("expected a completed event")
	}
}

func TestSyncNow_SubmitErrorWithoutOutcomesMarksBatchFailed(t *testing.T) {
	h := newHarness(t, play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)))
	h.submitter.respond = func([]scrobble.Record) (lastfm.Result, error) {
		return lastfm.Result{}, lastfm.ErrNotAuthenticated
	}

	_, err := h.svc.SyncNow(context.Background())
	require.ErrorIs(t, err, lastfm.ErrNotAuthenticated)
	assert.True(t, scrobble.IsFailed(h.svc.Records()[0].Status))
}

func TestSyncNow_IgnoredTracksAreFailed(t *testing.T) {
	h := newHarness(t,
		play("Two", "Artist", "s:2", testNow.Add(-5*time.Minute)),
		play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)),
	)
	h.submitter.respond = func(records []scrobble.Record) (lastfm.Result, error) {
		res, _ := acceptAll(records)
		res.Outcomes[1].Accepted = false
		res.Outcomes[1].IgnoredCode = lastfm.IgnoredTimestampOld
		res.Outcomes[1].Message = lastfm.IgnoredReason(lastfm.IgnoredTimestampOld)
		res.Accepted, res.Ignored = 1, 1
		return res, nil
	}

	sum, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Accepted)
	assert.Equal(t, 1, sum.Ignored)
	assert.Equal(t, 1, sum.Failed)

	got := statuses(h.svc.Records())
	assert.Equal(t, scrobble.Success, got["Two"])
	assert.Equal(t, scrobble.Failed("Timestamp too old"), got["One"])
	assert.Contains(t, h.store.Submitted(), "s:2")
	assert.NotContains(t, h.store.Submitted(), "s:1")
}

func TestSyncNow_FetchFailureKeepsWatermark(t *testing.T) {
	h := newHarness(t)
	h.provider.err = history.ErrNotAuthorized
	sub := h.svc.Subscribe()

	_, err := h.svc.SyncNow(context.Background())
	require.ErrorIs(t, err, history.ErrNotAuthorized)

	_, ok, err := h.svc.LastSync()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, h.submitter.Batches())

	select {
	case e := <-sub.Error:
		assert.Equal(t, errmsg.OpSyncFetch, e.Op)
		assert.Contains(t, e.Message(), "fetch recently played tracks")
	default:
		t.Fatal("expected an error event")
	}
	assert.Equal(t, StateIdle, h.svc.State())
}

func TestSyncNow_RejectsConcurrentCycle(t *testing.T) {
	h := newHarness(t, play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.submitter.respond = func(records []scrobble.Record) (lastfm.Result, error) {
		close(entered)
		<-release
		return acceptAll(records)
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.SyncNow(context.Background())
		done <- err
	}()
	<-entered

	assert.Equal(t, StateSyncing, h.svc.State())
	_, err := h.svc.SyncNow(context.Background())
	require.ErrorIs(t, err, ErrSyncInProgress)
	_, err = h.svc.RetrySingle(context.Background(), h.svc.Records()[0].ID)
	require.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, h.svc.State())
}

func TestSyncNow_PersistFailureKeepsMemoryState(t *testing.T) {
	h := newHarness(t, play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)))
	h.store.WriteErr = errors.New("disk full")

	_, err := h.svc.SyncNow(context.Background())
	require.ErrorIs(t, err, state.ErrPersistence)
	require.Len(t, h.svc.Records(), 1)
	assert.Equal(t, scrobble.Success, h.svc.Records()[0].Status)
}

func TestSyncNow_PrunesOldAcceptedRecords(t *testing.T) {
	store := state.NewMock()
	require.NoError(t, store.SaveScrobbles([]scrobble.Record{
		{ID: "old", Track: "old", Artist: "x", Timestamp: testNow.AddDate(0, 0, -40), Status: scrobble.Success},
		{ID: "stuck", Track: "stuck", Artist: "x", Timestamp: testNow.AddDate(0, 0, -40), Status: scrobble.Failed("x")},
	}))
	svc, err := New(Config{
		Provider:     &fakeProvider{plays: []history.Play{play("One", "Artist", "s:1", testNow.Add(-time.Minute))}},
		Submitter:    &fakeSubmitter{authenticated: true},
		Store:        store,
		LogRetention: 30 * 24 * time.Hour,
		Now:          func() time.Time { return testNow },
	})
	require.NoError(t, err)

	_, err = svc.SyncNow(context.Background())
	require.NoError(t, err)

	got := statuses(svc.Records())
	assert.NotContains(t, got, "old")
	assert.Contains(t, got, "stuck")
	assert.Contains(t, got, "One")
}

func TestReconcile_FallsBackToTrackAndArtist(t *testing.T) {
	log := scrobble.NewLog([]scrobble.Record{
		{ID: "a", Track: "Song", Artist: "Band", Timestamp: testNow, Status: scrobble.Pending, SourceID: "s:a"},
		{ID: "b", Track: "Other", Artist: "Band", Timestamp: testNow.Add(-time.Hour), Status: scrobble.Pending},
		{ID: "c", Track: "Third", Artist: "Band", Timestamp: testNow.Add(-2 * time.Hour), Status: scrobble.Pending},
	})

	keys := reconcile(log, []lastfm.Outcome{
		{SourceID: "s:a", Accepted: true},
		{RecordID: "b", Accepted: false, Message: "Artist was ignored"},
		{Track: " third ", Artist: "BAND", Accepted: true},
		{Track: "nowhere", Artist: "nobody", Accepted: true},
	})

	got := statuses(log.Records())
	assert.Equal(t, scrobble.Success, got["Song"])
	assert.Equal(t, scrobble.Failed("Artist was ignored"), got["Other"])
	assert.Equal(t, scrobble.Success, got["Third"])

	require.Len(t, keys, 2)
	assert.Equal(t, "s:a", keys[0])
	assert.Equal(t, scrobble.Fingerprint("Third", "Band", testNow.Add(-2*time.Hour)), keys[1])
}

func TestRetrySingle(t *testing.T) {
	h := newHarness(t,
		play("Two", "Artist", "s:2", testNow.Add(-5*time.Minute)),
		play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)),
	)
	h.submitter.respond = failAll(errors.New("timeout"))
	_, err := h.svc.SyncNow(context.Background())
	require.Error(t, err)

	_, err = h.svc.RetrySingle(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRecordNotFound)

	h.submitter.respond = nil
	target := h.svc.Records()[0]
	sum, err := h.svc.RetrySingle(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Accepted)

	rec, ok := h.svc.records.Get(target.ID)
	require.True(t, ok)
	assert.Equal(t, scrobble.Success, rec.Status)
	assert.Len(t, h.svc.Filter(scrobble.FilterFailed), 1)

	_, err = h.svc.RetrySingle(context.Background(), target.ID)
	require.ErrorIs(t, err, ErrAlreadyScrobbled)
}

func TestRetryAllFailed(t *testing.T) {
	h := newHarness(t,
		play("Two", "Artist", "s:2", testNow.Add(-5*time.Minute)),
		play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)),
	)
	h.submitter.respond = failAll(errors.New("timeout"))
	_, err := h.svc.SyncNow(context.Background())
	require.Error(t, err)
	require.Len(t, h.svc.Filter(scrobble.FilterFailed), 2)

	h.submitter.respond = nil
	sum, err := h.svc.RetryAllFailed(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Submitted)
	assert.Equal(t, 2, sum.Accepted)
	assert.Empty(t, h.svc.Filter(scrobble.FilterFailed))
	assert.Len(t, h.store.Submitted(), 2)
}

func TestRetry_RequiresAuthentication(t *testing.T) {
	h := newHarness(t, play("One", "Artist", "s:1", testNow.Add(-10*time.Minute)))
	h.submitter.respond = failAll(errors.New("timeout"))
	_, _ = h.svc.SyncNow(context.Background())
	h.submitter.authenticated = false

	_, err := h.svc.RetryAllFailed(context.Background())
	require.ErrorIs(t, err, lastfm.ErrNotAuthenticated)
	_, err = h.svc.RetrySingle(context.Background(), h.svc.Records()[0].ID)
	require.ErrorIs(t, err, lastfm.ErrNotAuthenticated)
}

func TestStats(t *testing.T) {
	h := newHarness(t,
		play("Two", "Artist", "s:2", testNow.Add(-5*time.Minute)),
		play("One", "Artist", "s:1", testNow.AddDate(0, 0, -3)),
	)
	h.submitter.authenticated = false
	_, err := h.svc.SyncNow(context.Background())
	require.NoError(t, err)

	st := h.svc.Stats()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Today)
	assert.Equal(t, 2, st.Week)
	assert.Equal(t, 2, st.Pending)
}
