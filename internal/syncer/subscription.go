package syncer

const eventBufferSize = 16

// Subscription provides event channels for a subscriber.
type Subscription struct {
	StateChanged   <-chan StateChange
	RecordsChanged <-chan RecordsChange
	SyncCompleted  <-chan SyncCompleted
	Error          <-chan ErrorEvent
	Done           <-chan struct{}

	// Internal write channels
	stateCh     chan StateChange
	recordsCh   chan RecordsChange
	completedCh chan SyncCompleted
	errorCh     chan ErrorEvent
	doneCh      chan struct{}
}

// newSubscription creates a new subscription with buffered channels.
func newSubscription() *Subscription {
	s := &Subscription{
		stateCh:     make(chan StateChange, eventBufferSize),
		recordsCh:   make(chan RecordsChange, eventBufferSize),
		completedCh: make(chan SyncCompleted, eventBufferSize),
		errorCh:     make(chan ErrorEvent, eventBufferSize),
		doneCh:      make(chan struct{}),
	}
	s.StateChanged = s.stateCh
	s.RecordsChanged = s.recordsCh
	s.SyncCompleted = s.completedCh
	s.Error = s.errorCh
	s.Done = s.doneCh
	return s
}

// close signals subscribers to stop by closing doneCh.
func (s *Subscription) close() {
	close(s.doneCh)
}

// sendState sends a state change event (non-blocking).
func (s *Subscription) sendState(e StateChange) {
	select {
	case s.stateCh <- e:
	default:
		// Drop if buffer full
	}
}

// sendRecords sends a records change event (non-blocking).
func (s *Subscription) sendRecords(e RecordsChange) {
	select {
	case s.recordsCh <- e:
	default:
	}
}

// sendCompleted sends a sync completed event (non-blocking).
func (s *Subscription) sendCompleted(e SyncCompleted) {
	select {
	case s.completedCh <- e:
	default:
	}
}

// sendError sends an error event (non-blocking).
func (s *Subscription) sendError(e ErrorEvent) {
	select {
	case s.errorCh <- e:
	default:
	}
}
