package state

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/llehouerou/scrobblesync/internal/scrobble"
)

// Mock is an in-memory test double for Manager.
type Mock struct {
	mu        sync.Mutex
	submitted map[string]time.Time
	watermark *time.Time
	records   []scrobble.Record
	session   *LastfmSession
	tokens    map[string][]byte
	onboarded bool
	closed    bool

	// WriteErr, when set, is returned (wrapped in ErrPersistence) by every write.
	WriteErr error
	// ReadErr, when set, is returned by Watermark and ContainsAny.
	ReadErr error
}

// NewMock creates a new mock state manager for testing.
func NewMock() *Mock {
	return &Mock{
		submitted: make(map[string]time.Time),
		tokens:    make(map[string][]byte),
	}
}

func (m *Mock) writeErr() error {
	if m.WriteErr != nil {
		return errors.Join(ErrPersistence, m.WriteErr)
	}
	return nil
}

func (m *Mock) Contains(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.submitted[id]
	return ok, nil
}

func (m *Mock) ContainsAny(ids []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	found := make(map[string]bool)
	for _, id := range ids {
		if _, ok := m.submitted[id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

func (m *Mock) Insert(ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	for _, id := range ids {
		if id != "" {
			m.submitted[id] = at
		}
	}
	return nil
}

func (m *Mock) PurgeOlderThan(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, at := range m.submitted {
		if at.Before(cutoff) {
			delete(m.submitted, id)
			n++
		}
	}
	return n, nil
}

func (m *Mock) Watermark() (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return time.Time{}, false, m.ReadErr
	}
	if m.watermark == nil {
		return time.Time{}, false, nil
	}
	return *m.watermark, true, nil
}

func (m *Mock) SetWatermark(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.watermark = &t
	return nil
}

func (m *Mock) SaveScrobbles(records []scrobble.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.records = slices.Clone(records)
	return nil
}

func (m *Mock) LoadScrobbles() ([]scrobble.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records), nil
}

func (m *Mock) ClearScrobbles() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

func (m *Mock) LoadSession() (*LastfmSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil //nolint:nilnil // mirrors Manager
	}
	s := *m.session
	return &s, nil
}

func (m *Mock) SaveSession(s LastfmSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.session = &s
	return nil
}

func (m *Mock) DeleteSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

func (m *Mock) LoadToken(provider string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[provider], nil
}

func (m *Mock) SaveToken(provider string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.tokens[provider] = slices.Clone(data)
	return nil
}

func (m *Mock) DeleteToken(provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, provider)
	return nil
}

func (m *Mock) SubmittedCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted), nil
}

func (m *Mock) IsOnboarded() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onboarded, nil
}

func (m *Mock) SetOnboarded(done bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onboarded = done
	return nil
}

func (m *Mock) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.session = nil
	m.watermark = nil
	m.onboarded = false
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Test helpers

// Submitted returns a copy of the remembered identifiers.
func (m *Mock) Submitted() map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.submitted))
	for k, v := range m.submitted {
		out[k] = v
	}
	return out
}

func (m *Mock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Verify Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
