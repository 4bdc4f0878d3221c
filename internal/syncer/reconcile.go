package syncer

import (
	"github.com/llehouerou/scrobblesync/internal/lastfm"
	"github.com/llehouerou/scrobblesync/internal/scrobble"
)

// reconcile applies submission outcomes to the log and returns the identity
// keys of the accepted records.
//
// An outcome is matched to a record by provider id first, then by record
// id, and finally by the first record of the same track and artist.
// lastfm.Client echoes the record id of every submitted track, so the
// track and artist fallback, where duplicates resolve to the first log
// entry, only applies to outcomes that carry no ids. Outcomes that match
// nothing are dropped.
func reconcile(log *scrobble.Log, outcomes []lastfm.Outcome) []string {
	var keys []string
	for _, o := range outcomes {
		r, ok := match(log, o)
		if !ok {
			continue
		}
		if !o.Accepted {
			log.SetStatus(r.ID, scrobble.Failed(o.Message))
			continue
		}
		log.SetStatus(r.ID, scrobble.Success)
		if k := r.IdentityKey(); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func match(log *scrobble.Log, o lastfm.Outcome) (scrobble.Record, bool) {
	if r, ok := log.FindBySourceID(o.SourceID); ok {
		return r, true
	}
	if o.RecordID != "" {
		if r, ok := log.Get(o.RecordID); ok {
			return r, true
		}
	}
	return log.FindByTrackArtist(o.Track, o.Artist)
}
