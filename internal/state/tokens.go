package state

import (
	"database/sql"
	"fmt"
	"time"
)

// LoadToken returns the serialized OAuth token of a history provider, or
// nil when none is stored.
func (m *Manager) LoadToken(provider string) ([]byte, error) {
	var data string
	err := m.db.QueryRow(`SELECT token_json FROM provider_tokens WHERE provider = ?`, provider).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// SaveToken stores the serialized OAuth token of a history provider.
func (m *Manager) SaveToken(provider string, data []byte) error {
	_, err := m.db.Exec(`
		INSERT INTO provider_tokens (provider, token_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			token_json = excluded.token_json,
			updated_at = excluded.updated_at
	`, provider, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: save %s token: %w", ErrPersistence, provider, err)
	}
	return nil
}

// DeleteToken forgets a provider token.
func (m *Manager) DeleteToken(provider string) error {
	if _, err := m.db.Exec(`DELETE FROM provider_tokens WHERE provider = ?`, provider); err != nil {
		return fmt.Errorf("%w: delete %s token: %w", ErrPersistence, provider, err)
	}
	return nil
}
