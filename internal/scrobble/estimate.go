package scrobble

import (
	"time"

	"github.com/llehouerou/scrobblesync/internal/history"
)

// DefaultTrackDuration is assumed for plays without a known duration.
const DefaultTrackDuration = 210 * time.Second

// EstimateTimestamps returns a timestamp for every play, in the same order.
//
// Plays are expected most-recent-first. Known play times are used as
// anchors; every other play is placed right before the more recent one,
// walking back by track durations from the last anchor (or from now minus
// the first track's duration when the list starts without one).
func EstimateTimestamps(plays []history.Play, now time.Time) []time.Time {
	if len(plays) == 0 {
		return []time.Time{}
	}

	times := make([]time.Time, len(plays))
	cursor := now.Add(-durationOf(plays[0]))
	for i, p := range plays {
		if p.LastPlayed != nil {
			cursor = *p.LastPlayed
		}
		times[i] = cursor
		cursor = cursor.Add(-durationOf(p))
	}
	return times
}

func durationOf(p history.Play) time.Duration {
	if p.Duration <= 0 {
		return DefaultTrackDuration
	}
	return p.Duration
}
