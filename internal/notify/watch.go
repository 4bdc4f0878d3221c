package notify

import (
	"context"
	"fmt"

	"github.com/llehouerou/scrobblesync/internal/logging"
	"github.com/llehouerou/scrobblesync/internal/syncer"
)

// DefaultTimeout is how long sync notifications stay visible, in ms.
const DefaultTimeout int32 = 5000

// Watch raises a notification for every failed sync step and for cycles
// that scrobbled something, until ctx is done or the subscription closes.
// Each new notification replaces the previous one.
func Watch(ctx context.Context, n Notifier, sub *syncer.Subscription) {
	var last uint32
	send := func(notif Notification) {
		notif.ReplacesID = last
		id, err := n.Notify(notif)
		if err != nil {
			logging.Warn().Err(err).Msg("desktop notification failed")
			return
		}
		last = id
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case e := <-sub.Error:
			send(errorNotification(e))
		case c := <-sub.SyncCompleted:
			if notif, ok := completedNotification(c.Summary); ok {
				send(notif)
			}
		}
	}
}

func errorNotification(e syncer.ErrorEvent) Notification {
	return Notification{
		Title:   "Scrobble sync failed",
		Body:    e.Message(),
		Icon:     "dialog-error",
		Category: CategoryTransferError,
		Timeout:  DefaultTimeout,
		Urgency:  UrgencyNormal,
	}
}

// completedNotification describes a cycle; quiet cycles raise nothing.
func completedNotification(s syncer.Summary) (Notification, bool) {
	if s.Accepted == 0 {
		return Notification{}, false
	}
	body := ""
	if s.Failed > 0 {
		body = fmt.Sprintf("%d not accepted", s.Failed)
	}
	return Notification{
		Title:   fmt.Sprintf("Scrobbled %d %s", s.Accepted, plural(s.Accepted, "track", "tracks")),
		Body:      body,
		Category:  CategoryTransferComplete,
		Timeout:   DefaultTimeout,
		Urgency:   UrgencyLow,
		Transient: true,
	}, true
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
