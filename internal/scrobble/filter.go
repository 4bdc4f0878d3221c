package scrobble

import (
	"crypto/sha1" //nolint:gosec // fingerprint, not a security boundary
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// FingerprintBucket is the timestamp granularity of fingerprints.
const FingerprintBucket = 15 * time.Minute

// fingerprintPrefix keeps fingerprints apart from provider ids.
const fingerprintPrefix = "fp:"

// Fingerprint derives an identity key for a play that has no provider id.
func Fingerprint(track, artist string, at time.Time) string {
	bucket := at.Truncate(FingerprintBucket).Unix()
	h := sha1.New() //nolint:gosec // see import
	h.Write([]byte(strings.ToLower(strings.TrimSpace(track))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(artist))))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(bucket, 10)))
	return fingerprintPrefix + hex.EncodeToString(h.Sum(nil))
}

// Watermark is the optional time at or below which plays count as processed.
type Watermark struct {
	At  time.Time
	Set bool
}

// Filter keeps the records that are newer than the watermark and whose
// identity key has not been submitted yet. It preserves order and does not
// modify its input.
func Filter(records []Record, wm Watermark, submitted func(key string) bool) []Record {
	out := make([]Record, 0, len(records))
	for i := range records {
		r := &records[i]
		if wm.Set && !r.Timestamp.After(wm.At) {
			continue
		}
		if key := r.IdentityKey(); key != "" && submitted != nil && submitted(key) {
			continue
		}
		out = append(out, *r)
	}
	return out
}
