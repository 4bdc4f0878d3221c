package state

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbutil "github.com/llehouerou/scrobblesync/internal/db"
)

// RetentionWindow is how long submitted identifiers are remembered.
const RetentionWindow = 7 * 24 * time.Hour

// Contains reports whether id was recorded as submitted.
func (m *Manager) Contains(id string) (bool, error) {
	var one int
	err := m.db.QueryRow(`SELECT 1 FROM submitted_ids WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ContainsAny returns the subset of ids recorded as submitted.
func (m *Manager) ContainsAny(ids []string) (map[string]bool, error) {
	found := make(map[string]bool)
	const chunk = 500 // stay well below SQLITE_MAX_VARIABLE_NUMBER
	for start := 0; start < len(ids); start += chunk {
		batch := ids[start:min(start+chunk, len(ids))]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")

		//nolint:gosec // placeholders only
		rows, err := m.db.Query(`SELECT id FROM submitted_ids WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			found[id] = true
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return found, nil
}

// Insert records ids as submitted at the given time, in one transaction.
func (m *Manager) Insert(ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := dbutil.WithTx(m.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO submitted_ids (id, submitted_at) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET submitted_at = excluded.submitted_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range ids {
			if id == "" {
				continue
			}
			if _, err := stmt.Exec(id, at.Unix()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: insert submitted ids: %w", ErrPersistence, err)
	}
	return nil
}

// PurgeOlderThan drops identifiers submitted before cutoff and returns how
// many were removed.
func (m *Manager) PurgeOlderThan(cutoff time.Time) (int, error) {
	res, err := m.db.Exec(`DELETE FROM submitted_ids WHERE submitted_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: purge submitted ids: %w", ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// SubmittedCount returns the number of remembered identifiers.
func (m *Manager) SubmittedCount() (int, error) {
	var n int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM submitted_ids`).Scan(&n)
	return n, err
}
