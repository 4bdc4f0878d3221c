package state

import (
	"database/sql"
	"fmt"
	"time"

	dbutil "github.com/llehouerou/scrobblesync/internal/db"
	"github.com/llehouerou/scrobblesync/internal/scrobble"
)

// SaveScrobbles replaces the persisted scrobble log with records.
func (m *Manager) SaveScrobbles(records []scrobble.Record) error {
	now := time.Now().Unix()
	err := dbutil.WithTx(m.db, func(tx *sql.Tx) error {
		created := make(map[string]int64)
		rows, err := tx.Query(`SELECT id, created_at FROM scrobble_log`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				id string
				at int64
			)
			if err := rows.Scan(&id, &at); err != nil {
				rows.Close()
				return err
			}
			created[id] = at
		}
		if err := rows.Close(); err != nil {
			return err
		}

		if _, err := tx.Exec(`DELETE FROM scrobble_log`); err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO scrobble_log
			(id, source_id, track, artist, album, artwork_url, timestamp, duration_seconds,
			 estimated, status, status_reason, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range records {
			r := &records[i]
			createdAt, ok := created[r.ID]
			if !ok {
				createdAt = now
			}
			_, err := stmt.Exec(
				r.ID, dbutil.NullString(r.SourceID), r.Track, r.Artist, r.Album,
				dbutil.NullString(r.ArtworkURL), r.Timestamp.UnixMilli(),
				dbutil.NullInt64(int64(r.Duration/time.Second)), dbutil.BoolInt(r.Estimated),
				r.Status.String(), dbutil.NullString(scrobble.Reason(r.Status)),
				createdAt, now,
			)
			if err != nil {
				return fmt.Errorf("insert %s: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save scrobbles: %w", ErrPersistence, err)
	}
	return nil
}

// LoadScrobbles returns the persisted scrobble log, most recent first.
func (m *Manager) LoadScrobbles() ([]scrobble.Record, error) {
	rows, err := m.db.Query(`
		SELECT id, source_id, track, artist, album, artwork_url, timestamp,
		       duration_seconds, estimated, status, status_reason
		FROM scrobble_log
		ORDER BY timestamp DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []scrobble.Record
	for rows.Next() {
		var (
			r                         scrobble.Record
			sourceID, artwork, reason sql.NullString
			duration                  sql.NullInt64
			timestamp                 int64
			estimated                 int
			status                    string
		)
		err := rows.Scan(
			&r.ID, &sourceID, &r.Track, &r.Artist, &r.Album, &artwork, &timestamp,
			&duration, &estimated, &status, &reason,
		)
		if err != nil {
			return nil, err
		}

		r.SourceID = dbutil.NullStringValue(sourceID)
		r.ArtworkURL = dbutil.NullStringValue(artwork)
		r.Timestamp = time.UnixMilli(timestamp)
		r.Duration = time.Duration(dbutil.NullInt64Value(duration)) * time.Second
		r.Estimated = estimated != 0
		r.Status = scrobble.ParseStatus(status, dbutil.NullStringValue(reason))

		records = append(records, r)
	}

	return records, rows.Err()
}

// ClearScrobbles empties the persisted scrobble log.
func (m *Manager) ClearScrobbles() error {
	if _, err := m.db.Exec(`DELETE FROM scrobble_log`); err != nil {
		return fmt.Errorf("%w: clear scrobbles: %w", ErrPersistence, err)
	}
	return nil
}
