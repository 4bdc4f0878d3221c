package scrobble

import (
	"slices"
	"time"
)

// Log is the local, ordered list of known plays. Records are kept sorted
// by timestamp, most recent first, and no two records share a MergeKey.
//
// Log is not safe for concurrent use; it has a single owner.
type Log struct {
	records []Record
}

// NewLog builds a log from records, dropping merge-key duplicates.
func NewLog(records []Record) *Log {
	l := &Log{}
	l.Merge(records)
	return l
}

// Len returns the number of records.
func (l *Log) Len() int { return len(l.records) }

// Records returns a copy of the records, most recent first.
func (l *Log) Records() []Record {
	return slices.Clone(l.records)
}

// Merge inserts the records whose merge key and provider id are not in the
// log yet and returns the ones that were added. An estimated play fetched
// again gets a new timestamp, so its provider id is what identifies it.
func (l *Log) Merge(records []Record) []Record {
	existing := make(map[MergeKey]struct{}, len(l.records))
	sources := make(map[string]struct{}, len(l.records))
	for i := range l.records {
		existing[l.records[i].Key()] = struct{}{}
		if id := l.records[i].SourceID; id != "" {
			sources[id] = struct{}{}
		}
	}

	var added []Record
	for i := range records {
		k := records[i].Key()
		if _, ok := existing[k]; ok {
			continue
		}
		if id := records[i].SourceID; id != "" {
			if _, ok := sources[id]; ok {
				continue
			}
			sources[id] = struct{}{}
		}
		existing[k] = struct{}{}
		added = append(added, records[i])
	}
	if len(added) == 0 {
		return nil
	}

	merged := make([]Record, 0, len(added)+len(l.records))
	merged = append(merged, added...)
	l.records = append(merged, l.records...)
	l.sort()
	return added
}

func (l *Log) sort() {
	slices.SortStableFunc(l.records, func(a, b Record) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}

// Get returns the record with the given id.
func (l *Log) Get(id string) (Record, bool) {
	if i := l.indexOf(id); i >= 0 {
		return l.records[i], true
	}
	return Record{}, false
}

func (l *Log) indexOf(id string) int {
	return slices.IndexFunc(l.records, func(r Record) bool { return r.ID == id })
}

// SetStatus updates the status of the record with the given id.
func (l *Log) SetStatus(id string, s Status) bool {
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.records[i].Status = s
	return true
}

// FindBySourceID returns the first record carrying sourceID.
func (l *Log) FindBySourceID(sourceID string) (Record, bool) {
	if sourceID == "" {
		return Record{}, false
	}
	for i := range l.records {
		if l.records[i].SourceID == sourceID {
			return l.records[i], true
		}
	}
	return Record{}, false
}

// FindByTrackArtist returns the first record of track by artist.
func (l *Log) FindByTrackArtist(track, artist string) (Record, bool) {
	for i := range l.records {
		if l.records[i].SameTrack(track, artist) {
			return l.records[i], true
		}
	}
	return Record{}, false
}

// Filter returns the records matching f, most recent first.
func (l *Log) Filter(f StatusFilter) []Record {
	var out []Record
	for i := range l.records {
		if f.Matches(l.records[i].Status) {
			out = append(out, l.records[i])
		}
	}
	return out
}

// Failed returns the records currently failed.
func (l *Log) Failed() []Record { return l.Filter(FilterFailed) }

// Pending returns the records currently pending.
func (l *Log) Pending() []Record { return l.Filter(FilterPending) }

// Clear removes every record.
func (l *Log) Clear() { l.records = nil }

// Prune drops successful records older than cutoff and returns how many
// were removed. Pending and failed records are kept whatever their age.
func (l *Log) Prune(cutoff time.Time) int {
	before := len(l.records)
	l.records = slices.DeleteFunc(l.records, func(r Record) bool {
		return IsSuccess(r.Status) && r.Timestamp.Before(cutoff)
	})
	return before - len(l.records)
}

// RecentLimit is the number of records Stats reports as recent.
const RecentLimit = 15

// Stats summarizes the log.
type Stats struct {
	Total   int
	Today   int
	Week    int
	Pending int
	Failed  int
	Recent  []Record
}

// Stats computes counters relative to now. "Today" is the local calendar
// day of now; "Week" is the last seven days.
func (l *Log) Stats(now time.Time) Stats {
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)

	s := Stats{Total: len(l.records)}
	for i := range l.records {
		r := &l.records[i]
		if !r.Timestamp.Before(startOfDay) && r.Timestamp.Before(startOfDay.AddDate(0, 0, 1)) {
			s.Today++
		}
		if !r.Timestamp.Before(weekAgo) {
			s.Week++
		}
		switch r.Status.(type) {
		case StatusPending:
			s.Pending++
		case StatusFailed:
			s.Failed++
		case StatusSuccess:
		}
	}
	n := min(RecentLimit, len(l.records))
	s.Recent = slices.Clone(l.records[:n])
	return s
}
