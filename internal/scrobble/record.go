// Package scrobble holds the play records exchanged between the history
// provider, the local log and the Last.fm submitter, together with the pure
// steps of a sync cycle: timestamp estimation and deduplication filtering.
package scrobble

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llehouerou/scrobblesync/internal/history"
)

// Record is a play as tracked by the local log (a scrobble).
type Record struct {
	ID         string
	Track      string
	Artist     string
	Album      string
	ArtworkURL string
	Timestamp  time.Time
	Status     Status
	SourceID   string
	Duration   time.Duration // 0 when unknown
	Estimated  bool          // Timestamp was reconstructed, not reported
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// MergeKey is the key under which the local log refuses duplicates.
type MergeKey struct {
	Track     string
	Artist    string
	Timestamp int64
}

// Key returns the merge key of r.
func (r *Record) Key() MergeKey {
	return MergeKey{Track: r.Track, Artist: r.Artist, Timestamp: r.Timestamp.Unix()}
}

// IdentityKey returns the key under which a successful submission of r is
// remembered: the provider id when present, otherwise a fingerprint for
// plays with an authoritative timestamp. Estimated plays without a provider
// id have no identity key and are protected by the watermark only.
func (r *Record) IdentityKey() string {
	if r.SourceID != "" {
		return r.SourceID
	}
	if r.Estimated {
		return ""
	}
	return Fingerprint(r.Track, r.Artist, r.Timestamp)
}

// SameTrack reports whether r is the same track by the same artist as
// track/artist, ignoring case and surrounding space.
func (r *Record) SameTrack(track, artist string) bool {
	return strings.EqualFold(strings.TrimSpace(r.Track), strings.TrimSpace(track)) &&
		strings.EqualFold(strings.TrimSpace(r.Artist), strings.TrimSpace(artist))
}

// FromPlays converts provider plays into pending records, estimating the
// timestamps of plays the provider could not date.
func FromPlays(plays []history.Play, now time.Time) []Record {
	times := EstimateTimestamps(plays, now)
	records := make([]Record, 0, len(plays))
	for i, p := range plays {
		album := p.Album
		if album == "" {
			album = UnknownAlbum
		}
		records = append(records, Record{
			ID:         NewID(),
			Track:      p.Title,
			Artist:     p.Artist,
			Album:      album,
			ArtworkURL: p.ArtworkURL,
			Timestamp:  times[i],
			Status:     Pending,
			SourceID:   p.SourceID,
			Duration:   p.Duration,
			Estimated:  p.LastPlayed == nil,
		})
	}
	return records
}

// UnknownAlbum is used for plays the provider reports without an album.
const UnknownAlbum = "Unknown Album"
