package notify

import (
	"errors"
	"testing"

	"github.com/llehouerou/scrobblesync/internal/errmsg"
	"github.com/llehouerou/scrobblesync/internal/syncer"
)

func TestUrgencyValues(t *testing.T) {
	// Verify urgency constants match D-Bus spec
	if UrgencyLow != 0 {
		t.Errorf("UrgencyLow = %d, want 0", UrgencyLow)
	}
	if UrgencyNormal != 1 {
		t.Errorf("UrgencyNormal = %d, want 1", UrgencyNormal)
	}
	if UrgencyCritical != 2 {
		t.Errorf("UrgencyCritical = %d, want 2", UrgencyCritical)
	}
}

func TestNotificationZeroValue(t *testing.T) {
	var n Notification
	if n.Urgency != UrgencyLow {
		t.Errorf("zero value Urgency = %d, want UrgencyLow (0)", n.Urgency)
	}
	if n.Timeout != 0 {
		t.Error("zero value Timeout should be 0 (never expire)")
	}
	if n.ReplacesID != 0 {
		t.Error("zero value ReplacesID should be 0 (new notification)")
	}
}

func TestErrorNotification(t *testing.T) {
	n := errorNotification(syncer.ErrorEvent{Op: errmsg.OpSyncSubmit, Err: errors.New("HTTP 502")})

	if n.Title != "Scrobble sync failed" {
		t.Errorf("Title = %q", n.Title)
	}
	if want := "Failed to submit scrobbles: HTTP 502"; n.Body != want {
		t.Errorf("Body = %q, want %q", n.Body, want)
	}
	if n.Urgency != UrgencyNormal {
		t.Errorf("Urgency = %d, want UrgencyNormal", n.Urgency)
	}
	if n.Category != CategoryTransferError || n.Transient {
		t.Errorf("Category = %q, Transient = %v; want %q, false", n.Category, n.Transient, CategoryTransferError)
	}
}

func TestCompletedNotification(t *testing.T) {
	tests := []struct {
		name      string
		summary   syncer.Summary
		wantOK    bool
		wantTitle string
		wantBody  string
	}{
		{"nothing new", syncer.Summary{}, false, "", ""},
		{"one track", syncer.Summary{Accepted: 1}, true, "Scrobbled 1 track", ""},
		{"partial", syncer.Summary{Accepted: 3, Failed: 2}, true, "Scrobbled 3 tracks", "2 not accepted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := completedNotification(tt.summary)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if n.Title != tt.wantTitle || n.Body != tt.wantBody {
				t.Errorf("got %q / %q, want %q / %q", n.Title, n.Body, tt.wantTitle, tt.wantBody)
			}
			if ok && (n.Category != CategoryTransferComplete || !n.Transient) {
				t.Errorf("Category = %q, Transient = %v", n.Category, n.Transient)
			}
		})
	}
}

func TestDisabled(t *testing.T) {
	n := Disabled()
	id, err := n.Notify(Notification{Title: "x"})
	if id != 0 || err != nil {
		t.Errorf("Notify() = %d, %v; want 0, nil", id, err)
	}
}
