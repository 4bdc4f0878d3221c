package state

import (
	"time"

	"github.com/llehouerou/scrobblesync/internal/scrobble"
)

// DedupStore remembers which plays were accepted and when the last sync
// completed.
type DedupStore interface {
	Contains(id string) (bool, error)
	ContainsAny(ids []string) (map[string]bool, error)
	Insert(ids []string, at time.Time) error
	PurgeOlderThan(cutoff time.Time) (int, error)
	Watermark() (time.Time, bool, error)
	SetWatermark(t time.Time) error
}

// ScrobbleStore persists the local scrobble log.
type ScrobbleStore interface {
	SaveScrobbles(records []scrobble.Record) error
	LoadScrobbles() ([]scrobble.Record, error)
	ClearScrobbles() error
}

// TokenStore persists OAuth tokens of history providers.
type TokenStore interface {
	LoadToken(provider string) ([]byte, error)
	SaveToken(provider string, data []byte) error
	DeleteToken(provider string) error
}

// Interface defines the state manager contract for dependency injection and testing.
type Interface interface {
	DedupStore
	ScrobbleStore
	CredentialStore
	TokenStore
	SubmittedCount() (int, error)
	IsOnboarded() (bool, error)
	SetOnboarded(done bool) error
	Reset() error
	Close() error
}

// Verify Manager implements Interface at compile time.
var _ Interface = (*Manager)(nil)
