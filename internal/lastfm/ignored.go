package lastfm

import "fmt"

// Ignored codes reported per track by track.scrobble.
const (
	IgnoredNone         = 0
	IgnoredArtist       = 1
	IgnoredTrack        = 2
	IgnoredTimestampOld = 3
	IgnoredTimestampNew = 4
	IgnoredDailyLimit   = 5
)

// IgnoredReason returns the message for an ignored code, or "" when the
// track was accepted.
func IgnoredReason(code int) string {
	switch code {
	case IgnoredNone:
		return ""
	case IgnoredArtist:
		return "Artist was ignored"
	case IgnoredTrack:
		return "Track was ignored"
	case IgnoredTimestampOld:
		return "Timestamp too old"
	case IgnoredTimestampNew:
		return "Timestamp too new"
	case IgnoredDailyLimit:
		return "Daily scrobble limit exceeded"
	default:
		return fmt.Sprintf("Unknown error (code %d)", code)
	}
}
