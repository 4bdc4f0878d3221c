package syncer

import (
	"time"

	"github.com/llehouerou/scrobblesync/internal/errmsg"
)

// StateChange is emitted when a cycle or retry starts or ends.
type StateChange struct {
	Previous State
	Current  State
}

// RecordsChange is emitted whenever the local log changes: new plays were
// merged or statuses were updated.
type RecordsChange struct {
	Added int
	Total int
}

// Summary describes one sync cycle or retry.
type Summary struct {
	Fetched   int // plays returned by the provider
	New       int // plays that survived filtering
	Submitted int
	Accepted  int
	Ignored   int
	Failed    int
	Started   time.Time
	Duration  time.Duration
}

// SyncCompleted is emitted at the end of a cycle that reached the
// watermark update, even if submission failed.
type SyncCompleted struct {
	Summary Summary
}

// ErrorEvent is a one-shot failure notification.
type ErrorEvent struct {
	Op  errmsg.Op
	Err error
}

// Message formats the event for the user.
func (e ErrorEvent) Message() string {
	return errmsg.Format(e.Op, e.Err)
}
