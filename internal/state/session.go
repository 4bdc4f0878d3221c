package state

import (
	"database/sql"
	"fmt"
	"time"

	dbutil "github.com/llehouerou/scrobblesync/internal/db"
)

// LastfmSession represents a stored Last.fm session.
type LastfmSession struct {
	Username   string
	SessionKey string
	Subscriber bool
	LinkedAt   time.Time
}

// CredentialStore persists the Last.fm session. Write failures wrap
// ErrPersistence.
type CredentialStore interface {
	LoadSession() (*LastfmSession, error)
	SaveSession(s LastfmSession) error
	DeleteSession() error
}

// LoadSession returns the stored Last.fm session, or nil if not linked.
func (m *Manager) LoadSession() (*LastfmSession, error) {
	var (
		s          LastfmSession
		subscriber int
		linkedAt   int64
	)
	err := m.db.QueryRow(`
		SELECT username, session_key, subscriber, linked_at FROM lastfm_session WHERE id = 1
	`).Scan(&s.Username, &s.SessionKey, &subscriber, &linkedAt)

	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // nil session means not linked, not an error
	}
	if err != nil {
		return nil, err
	}

	s.Subscriber = subscriber != 0
	s.LinkedAt = time.Unix(linkedAt, 0)
	return &s, nil
}

// SaveSession stores the Last.fm session after successful authentication.
func (m *Manager) SaveSession(s LastfmSession) error {
	if s.LinkedAt.IsZero() {
		s.LinkedAt = time.Now()
	}
	_, err := m.db.Exec(`
		INSERT INTO lastfm_session (id, username, session_key, subscriber, linked_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			session_key = excluded.session_key,
			subscriber = excluded.subscriber,
			linked_at = excluded.linked_at
	`, s.Username, s.SessionKey, dbutil.BoolInt(s.Subscriber), s.LinkedAt.Unix())
	if err != nil {
		return fmt.Errorf("%w: save session: %w", ErrPersistence, err)
	}
	return nil
}

// DeleteSession removes the stored Last.fm session (sign out).
func (m *Manager) DeleteSession() error {
	if _, err := m.db.Exec(`DELETE FROM lastfm_session WHERE id = 1`); err != nil {
		return fmt.Errorf("%w: delete session: %w", ErrPersistence, err)
	}
	return nil
}
