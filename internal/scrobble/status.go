package scrobble

// Status is the submission state of a Record.
//
// It is a closed set: StatusSuccess, StatusPending and StatusFailed are the
// only implementations.
type Status interface {
	status()
	String() string
}

// StatusSuccess means the service accepted the play.
type StatusSuccess struct{}

// StatusPending means the play has not been confirmed yet.
type StatusPending struct{}

// StatusFailed means the play was ignored or could not be submitted.
type StatusFailed struct {
	Reason string
}

func (StatusSuccess) status() {}
func (StatusPending) status() {}
func (StatusFailed) status()  {}

func (StatusSuccess) String() string { return "success" }
func (StatusPending) String() string { return "pending" }
func (StatusFailed) String() string  { return "failed" }

// Success, Pending and Failed build statuses.
var (
	Success Status = StatusSuccess{}
	Pending Status = StatusPending{}
)

// Failed returns a failed status carrying reason.
func Failed(reason string) Status {
	return StatusFailed{Reason: reason}
}

// IsSuccess reports whether s is StatusSuccess.
func IsSuccess(s Status) bool {
	_, ok := s.(StatusSuccess)
	return ok
}

// IsPending reports whether s is StatusPending.
func IsPending(s Status) bool {
	_, ok := s.(StatusPending)
	return ok
}

// IsFailed reports whether s is StatusFailed.
func IsFailed(s Status) bool {
	_, ok := s.(StatusFailed)
	return ok
}

// Reason returns the failure reason, or "" for non-failed statuses.
func Reason(s Status) string {
	if f, ok := s.(StatusFailed); ok {
		return f.Reason
	}
	return ""
}

// ParseStatus rebuilds a Status from its persisted name and reason.
// Unknown names decode as pending so the play is offered again.
func ParseStatus(name, reason string) Status {
	switch name {
	case "success":
		return Success
	case "failed":
		return Failed(reason)
	default:
		return Pending
	}
}

// StatusFilter selects records by status for listings.
type StatusFilter string

const (
	FilterAll     StatusFilter = "all"
	FilterPending StatusFilter = "pending"
	FilterFailed  StatusFilter = "failed"
)

// Matches reports whether a record with status s passes the filter.
func (f StatusFilter) Matches(s Status) bool {
	switch f {
	case FilterPending:
		return IsPending(s)
	case FilterFailed:
		return IsFailed(s)
	default:
		return true
	}
}

// ParseFilter maps user input to a StatusFilter.
func ParseFilter(v string) (StatusFilter, bool) {
	switch StatusFilter(v) {
	case FilterAll, "":
		return FilterAll, true
	case FilterPending:
		return FilterPending, true
	case FilterFailed:
		return FilterFailed, true
	}
	return FilterAll, false
}
