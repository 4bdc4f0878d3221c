package lastfm

// Session is an authenticated Last.fm session.
type Session struct {
	Name       string
	Key        string
	Subscriber bool
}

// Valid reports whether the session can sign write calls.
func (s Session) Valid() bool { return s.Key != "" }

// Outcome is the per-track result of a submission.
type Outcome struct {
	RecordID    string
	SourceID    string
	Track       string
	Artist      string
	Accepted    bool
	IgnoredCode int
	Message     string // empty when accepted
}

// Result aggregates the outcomes of one Scrobble call. Accepted and Ignored
// are the counts reported by Last.fm; tracks of failed chunks appear only in
// Outcomes.
type Result struct {
	Accepted int
	Ignored  int
	Outcomes []Outcome
}

// Failed returns the number of outcomes that were not accepted.
func (r Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Accepted {
			n++
		}
	}
	return n
}

// Profile is the subset of user.getInfo the CLI shows.
type Profile struct {
	Name      string
	URL       string
	PlayCount string
}
