package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/llehouerou/scrobblesync/internal/history"
	"github.com/llehouerou/scrobblesync/internal/lastfm"
	"github.com/llehouerou/scrobblesync/internal/scrobble"
)

type fakeProvider struct {
	mu    sync.Mutex
	plays []history.Play
	err   error
	calls int
}

func (p *fakeProvider) Name() string       { return "fake" }
func (p *fakeProvider) IsAuthorized() bool { return true }

func (p *fakeProvider) RequestAuthorization(context.Context) (bool, error) { return true, nil }

func (p *fakeProvider) FetchRecent(context.Context) ([]history.Play, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return append([]history.Play(nil), p.plays...), nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeSubmitter struct {
	mu            sync.Mutex
	authenticated bool
	// respond builds the result for a batch; nil accepts everything.
	respond func([]scrobble.Record) (lastfm.Result, error)
	batches [][]scrobble.Record
}

func (s *fakeSubmitter) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *fakeSubmitter) Scrobble(_ context.Context, records []scrobble.Record) (lastfm.Result, error) {
	s.mu.Lock()
	s.batches = append(s.batches, append([]scrobble.Record(nil), records...))
	respond := s.respond
	s.mu.Unlock()
	if respond != nil {
		return respond(records)
	}
	return acceptAll(records)
}

func (s *fakeSubmitter) Batches() [][]scrobble.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]scrobble.Record(nil), s.batches...)
}

func acceptAll(records []scrobble.Record) (lastfm.Result, error) {
	res := lastfm.Result{Accepted: len(records)}
	for i := range records {
		res.Outcomes = append(res.Outcomes, lastfm.Outcome{
			RecordID: records[i].ID,
			SourceID: records[i].SourceID,
			Track:    records[i].Track,
			Artist:   records[i].Artist,
			Accepted: true,
		})
	}
	return res, nil
}

func failAll(err error) func([]scrobble.Record) (lastfm.Result, error) {
	return func(records []scrobble.Record) (lastfm.Result, error) {
		var res lastfm.Result
		for i := range records {
			res.Outcomes = append(res.Outcomes, lastfm.Outcome{
				RecordID: records[i].ID,
				SourceID: records[i].SourceID,
				Track:    records[i].Track,
				Artist:   records[i].Artist,
				Message:  err.Error(),
			})
		}
		return res, err
	}
}

func play(title, artist, sourceID string, at time.Time) history.Play {
	return history.Play{
		Title:      title,
		Artist:     artist,
		Album:      "Album",
		LastPlayed: &at,
		Duration:   3 * time.Minute,
		SourceID:   sourceID,
	}
}
