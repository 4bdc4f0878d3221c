package state

import (
	"database/sql"
)

const currentSchemaVersion = 1

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS submitted_ids (
			id TEXT PRIMARY KEY,
			submitted_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_submitted_ids_at ON submitted_ids(submitted_at);

		CREATE TABLE IF NOT EXISTS sync_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS lastfm_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			username TEXT NOT NULL,
			session_key TEXT NOT NULL,
			subscriber INTEGER NOT NULL DEFAULT 0,
			linked_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS provider_tokens (
			provider TEXT PRIMARY KEY,
			token_json TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS scrobble_log (
			id TEXT PRIMARY KEY,
			source_id TEXT,
			track TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT NOT NULL,
			artwork_url TEXT,
			timestamp INTEGER NOT NULL,
			duration_seconds INTEGER,
			estimated INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			status_reason TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(track, artist, timestamp)
		);

		CREATE INDEX IF NOT EXISTS idx_scrobble_log_timestamp ON scrobble_log(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_scrobble_log_status ON scrobble_log(status);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	return err
}
