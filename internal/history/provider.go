// Package history provides access to a user's recently played tracks.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotAuthorized is returned by FetchRecent when the provider has not
// been granted access to the listening history.
var ErrNotAuthorized = errors.New("history: not authorized")

// Play is one entry of the recently played list.
type Play struct {
	Title      string
	Artist     string
	Album      string
	ArtworkURL string     // optional
	LastPlayed *time.Time // nil when the provider does not know when it was played
	Duration   time.Duration
	SourceID   string // provider-native id, may be empty
}

// Provider is a source of recently played tracks.
//
// FetchRecent returns plays most-recent-first.
type Provider interface {
	Name() string
	IsAuthorized() bool
	// RequestAuthorization may block while the user grants access externally.
	RequestAuthorization(ctx context.Context) (bool, error)
	FetchRecent(ctx context.Context) ([]Play, error)
}
