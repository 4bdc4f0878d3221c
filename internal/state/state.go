// Package state is the durable local store: submitted identifiers, the
// sync watermark, the Last.fm session, provider tokens and the scrobble
// log, all in one SQLite database under the XDG data directory.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	appName    = "scrobblesync"
	dbFileName = "scrobblesync.db"
)

// ErrPersistence marks a failed write to durable storage.
var ErrPersistence = errors.New("state: persistence failed")

type Manager struct {
	db *sql.DB
}

// Open opens the database at its default XDG location.
func Open() (*Manager, error) {
	dbPath, err := DBPath()
	if err != nil {
		return nil, err
	}
	return OpenPath(dbPath)
}

// OpenPath opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenPath(path string) (*Manager, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Manager{db: db}, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func (m *Manager) DB() *sql.DB {
	return m.db
}

// Reset forgets the scrobble log, the session, the watermark and the
// onboarding flag. Submitted identifiers are kept so a fresh start cannot
// submit the same plays twice.
func (m *Manager) Reset() error {
	_, err := m.db.Exec(`
		DELETE FROM scrobble_log;
		DELETE FROM lastfm_session;
		DELETE FROM sync_meta;
	`)
	if err != nil {
		return fmt.Errorf("%w: reset: %w", ErrPersistence, err)
	}
	return nil
}

// DBPath returns the default database location.
func DBPath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}
