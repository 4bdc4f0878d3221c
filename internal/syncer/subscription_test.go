package syncer

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/llehouerou/scrobblesync/internal/errmsg"
	"github.com/llehouerou/scrobblesync/internal/state"
)

func TestNewSubscription_ChannelsReadable(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sub := newSubscription()

		sub.sendState(StateChange{Previous: StateIdle, Current: StateSyncing})
		sub.sendRecords(RecordsChange{Added: 2, Total: 5})
		sub.sendCompleted(SyncCompleted{Summary: Summary{Accepted: 3}})
		sub.sendError(ErrorEvent{Op: errmsg.OpSyncFetch, Err: errors.New("offline")})

		if e := <-sub.StateChanged; e.Current != StateSyncing {
			t.Errorf("StateChanged.Current = %v, want Syncing", e.Current)
		}
		if r := <-sub.RecordsChanged; r.Added != 2 || r.Total != 5 {
			t.Errorf("RecordsChanged = %+v, want Added 2 Total 5", r)
		}
		if c := <-sub.SyncCompleted; c.Summary.Accepted != 3 {
			t.Errorf("SyncCompleted.Accepted = %d, want 3", c.Summary.Accepted)
		}
		e := <-sub.Error
		if got, want := e.Message(), "Failed to fetch recently played tracks: offline"; got != want {
			t.Errorf("Error.Message() = %q, want %q", got, want)
		}
	})
}

func TestSubscription_Close_SignalsDone(t *testing.T) {
	synctest.Test(t, func(_ *testing.T) {
		sub := newSubscription()
		sub.close()
		<-sub.Done
	})
}

func TestSubscription_NonBlocking_DropsWhenFull(t *testing.T) {
	sub := newSubscription()

	for range eventBufferSize + 5 {
		sub.sendRecords(RecordsChange{})
	}

	count := 0
	for {
		select {
		case <-sub.RecordsChanged:
			count++
		default:
			goto done
		}
	}
done:
	if count != eventBufferSize {
		t.Errorf("received %d events, want %d (buffer size)", count, eventBufferSize)
	}
}

func TestService_CloseEndsSubscriptions(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		sub := h.svc.Subscribe()
		if err := h.svc.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		<-sub.Done

		late := h.svc.Subscribe()
		<-late.Done
		if err := h.svc.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
	})
}

func TestService_StateEvents(t *testing.T) {
	h := newHarness(t)
	sub := h.svc.Subscribe()

	if _, err := h.svc.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}

	first := <-sub.StateChanged
	second := <-sub.StateChanged
	if first.Current != StateSyncing || second.Current != StateIdle {
		t.Errorf("state events = %v, %v; want Syncing then Idle", first.Current, second.Current)
	}
	select {
	case <-sub.SyncCompleted:
	default:
		t.Error("expected SyncCompleted even when nothing was played")
	}
}

func TestRun_SyncsOnInterval(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		provider := &fakeProvider{}
		svc, err := New(Config{
			Provider:  provider,
			Submitter: &fakeSubmitter{authenticated: true},
			Store:     state.NewMock(),
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx, time.Minute) }()

		time.Sleep(150 * time.Second)
		synctest.Wait()
		if got := provider.Calls(); got != 3 {
			t.Errorf("provider calls = %d, want 3", got)
		}

		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	})
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateSyncing, "Syncing"},
		{State(42), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
