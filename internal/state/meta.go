package state

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	metaLastSyncDate = "last_sync_date"
	metaOnboarded    = "onboarded"
)

func (m *Manager) getMeta(key string) (string, bool, error) {
	var v string
	err := m.db.QueryRow(`SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (m *Manager) setMeta(key, value string) error {
	_, err := m.db.Exec(`
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrPersistence, key, err)
	}
	return nil
}

// Watermark returns the time of the last completed sync, if any.
func (m *Manager) Watermark() (time.Time, bool, error) {
	v, ok, err := m.getMeta(metaLastSyncDate)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark %q: %w", v, err)
	}
	return t, true, nil
}

// SetWatermark records t as the time of the last completed sync.
func (m *Manager) SetWatermark(t time.Time) error {
	return m.setMeta(metaLastSyncDate, t.UTC().Format(time.RFC3339Nano))
}

// IsOnboarded reports whether setup completed.
func (m *Manager) IsOnboarded() (bool, error) {
	v, ok, err := m.getMeta(metaOnboarded)
	if err != nil || !ok {
		return false, err
	}
	return v == "1", nil
}

func (m *Manager) SetOnboarded(done bool) error {
	v := "0"
	if done {
		v = "1"
	}
	return m.setMeta(metaOnboarded, v)
}
