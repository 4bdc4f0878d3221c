package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/scrobblesync/internal/scrobble"
)

// setupTestManager opens an in-memory database with the schema initialized.
func setupTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := OpenPath(":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestDedup_PurgeOlderThanRetention(t *testing.T) {
	m := setupTestManager(t)
	now := time.Now()

	if err := m.Insert([]string{"old"}, now.Add(-8*24*time.Hour)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := m.Insert([]string{"recent"}, now.Add(-6*24*time.Hour)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	n, err := m.PurgeOlderThan(now.Add(-RetentionWindow))
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}

	if ok, _ := m.Contains("old"); ok {
		t.Error("8-day-old id should be gone")
	}
	if ok, _ := m.Contains("recent"); !ok {
		t.Error("6-day-old id should be kept")
	}
}

func TestDedup_InsertAndContainsAny(t *testing.T) {
	m := setupTestManager(t)
	now := time.Now()

	require.NoError(t, m.Insert([]string{"a", "b", "", "a"}, now))

	found, err := m.ContainsAny([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, found)

	count, err := m.SubmittedCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDedup_ReinsertRefreshesTime(t *testing.T) {
	m := setupTestManager(t)
	now := time.Now()

	require.NoError(t, m.Insert([]string{"a"}, now.Add(-10*24*time.Hour)))
	require.NoError(t, m.Insert([]string{"a"}, now))

	n, err := m.PurgeOlderThan(now.Add(-RetentionWindow))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWatermark(t *testing.T) {
	m := setupTestManager(t)

	_, ok, err := m.Watermark()
	require.NoError(t, err)
	assert.False(t, ok, "no watermark before the first sync")

	at := time.Date(2026, 3, 1, 12, 30, 15, 123456789, time.UTC)
	require.NoError(t, m.SetWatermark(at))

	got, ok, err := m.Watermark()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got), "got %v, want %v", got, at)
}

func TestOnboarded(t *testing.T) {
	m := setupTestManager(t)

	done, err := m.IsOnboarded()
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, m.SetOnboarded(true))
	done, _ = m.IsOnboarded()
	assert.True(t, done)
}

func TestSession(t *testing.T) {
	m := setupTestManager(t)

	s, err := m.LoadSession()
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil session on empty db, got %+v", s)
	}

	linked := time.Unix(1700000000, 0)
	require.NoError(t, m.SaveSession(LastfmSession{Username: "listener", SessionKey: "sk", Subscriber: true, LinkedAt: linked}))

	s, err = m.LoadSession()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "listener", s.Username)
	assert.Equal(t, "sk", s.SessionKey)
	assert.True(t, s.Subscriber)
	assert.True(t, linked.Equal(s.LinkedAt))

	// overwrite keeps a single row
	require.NoError(t, m.SaveSession(LastfmSession{Username: "other", SessionKey: "sk2"}))
	s, _ = m.LoadSession()
	assert.Equal(t, "other", s.Username)

	require.NoError(t, m.DeleteSession())
	s, _ = m.LoadSession()
	assert.Nil(t, s)
}

func TestSession_WriteFailureIsPersistenceError(t *testing.T) {
	m := setupTestManager(t)
	require.NoError(t, m.Close())

	err := m.SaveSession(LastfmSession{Username: "x", SessionKey: "y"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
}

func TestTokens(t *testing.T) {
	m := setupTestManager(t)

	data, err := m.LoadToken("spotify")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, m.SaveToken("spotify", []byte(`{"access_token":"a"}`)))
	require.NoError(t, m.SaveToken("spotify", []byte(`{"access_token":"b"}`)))

	data, err = m.LoadToken("spotify")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"b"}`, string(data))

	require.NoError(t, m.DeleteToken("spotify"))
	data, _ = m.LoadToken("spotify")
	assert.Nil(t, data)
}

func TestScrobbles_SaveAndLoad(t *testing.T) {
	m := setupTestManager(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []scrobble.Record{
		{
			ID: "1", SourceID: "s1", Track: "Song", Artist: "Band", Album: "LP",
			ArtworkURL: "https://img/1.jpg", Timestamp: base, Duration: 200 * time.Second,
			Status: scrobble.Success,
		},
		{
			ID: "2", Track: "Other", Artist: "Band", Album: scrobble.UnknownAlbum,
			Timestamp: base.Add(-time.Hour), Estimated: true,
			Status: scrobble.Failed("Timestamp too old"),
		},
	}
	require.NoError(t, m.SaveScrobbles(records))

	got, err := m.LoadScrobbles()
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "s1", got[0].SourceID)
	assert.Equal(t, "https://img/1.jpg", got[0].ArtworkURL)
	assert.Equal(t, 200*time.Second, got[0].Duration)
	assert.True(t, base.Equal(got[0].Timestamp))
	assert.True(t, scrobble.IsSuccess(got[0].Status))

	assert.Empty(t, got[1].SourceID)
	assert.True(t, got[1].Estimated)
	assert.Equal(t, time.Duration(0), got[1].Duration)
	assert.Equal(t, "Timestamp too old", scrobble.Reason(got[1].Status))

	// saving again replaces the log
	require.NoError(t, m.SaveScrobbles(records[:1]))
	got, _ = m.LoadScrobbles()
	assert.Len(t, got, 1)
}

func TestReset(t *testing.T) {
	m := setupTestManager(t)
	now := time.Now()

	require.NoError(t, m.Insert([]string{"a"}, now))
	require.NoError(t, m.SetWatermark(now))
	require.NoError(t, m.SetOnboarded(true))
	require.NoError(t, m.SaveSession(LastfmSession{Username: "u", SessionKey: "k"}))
	require.NoError(t, m.SaveScrobbles([]scrobble.Record{{ID: "1", Track: "t", Artist: "a", Album: "b", Timestamp: now, Status: scrobble.Pending}}))

	require.NoError(t, m.Reset())

	_, ok, _ := m.Watermark()
	assert.False(t, ok)
	done, _ := m.IsOnboarded()
	assert.False(t, done)
	s, _ := m.LoadSession()
	assert.Nil(t, s)
	records, _ := m.LoadScrobbles()
	assert.Empty(t, records)

	// submitted ids survive a reset
	ok, _ = m.Contains("a")
	assert.True(t, ok)
}

func TestMock_WriteErr(t *testing.T) {
	m := NewMock()
	m.WriteErr = errors.New("disk full")

	err := m.Insert([]string{"a"}, time.Now())

	require.ErrorIs(t, err, ErrPersistence)
	ok, _ := m.Contains("a")
	assert.False(t, ok)
}
