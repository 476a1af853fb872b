package providers

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ryanmio/starlink-trainspotter/internal/tle"
)

// ErrNoBackup is returned by LoadSnapshot when no snapshot has been saved.
var ErrNoBackup = errors.New("no backup snapshot available")

// BackupStore persists the most recent good snapshot to sqlite so the
// engine has an offline source of last resort when every upstream
// provider is unavailable.
type BackupStore struct {
	db *sql.DB
}

// OpenBackup opens (creating if needed) the backup database at path.
func OpenBackup(path string) (*BackupStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating backup dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening backup db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &BackupStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BackupStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS launches (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			launched_at DATETIME NOT NULL,
			success     INTEGER NOT NULL,
			core_id     TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS satellites (
			launch_id TEXT NOT NULL,
			norad_id  INTEGER NOT NULL,
			name      TEXT NOT NULL DEFAULT '',
			epoch     DATETIME NOT NULL,
			line1     TEXT NOT NULL,
			line2     TEXT NOT NULL,
			PRIMARY KEY (launch_id, norad_id)
		);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing backup schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *BackupStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored snapshot with snap.
func (s *BackupStore) SaveSnapshot(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM launches`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM satellites`); err != nil {
		return err
	}

	launchStmt, err := tx.Prepare(`INSERT INTO launches (id, name, launched_at, success, core_id) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer launchStmt.Close()

	satStmt, err := tx.Prepare(`INSERT INTO satellites (launch_id, norad_id, name, epoch, line1, line2) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer satStmt.Close()

	for _, g := range snap.Launches {
		if _, err := launchStmt.Exec(g.ID, g.Name, g.LaunchedAt.UTC(), boolToInt(g.Success), g.CoreID); err != nil {
			return fmt.Errorf("saving launch %s: %w", g.ID, err)
		}
		for _, e := range snap.Satellites[g.ID] {
			if _, err := satStmt.Exec(g.ID, e.NORADID, e.Name, e.Epoch.UTC(), e.Line1, e.Line2); err != nil {
				return fmt.Errorf("saving satellite %d: %w", e.NORADID, err)
			}
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES ('saved_at', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, snap.FetchedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	return tx.Commit()
}

// LoadSnapshot returns the stored snapshot, or ErrNoBackup if none exists.
func (s *BackupStore) LoadSnapshot() (*Snapshot, error) {
	var savedAt string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'saved_at'`).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup meta: %w", err)
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing backup timestamp: %w", err)
	}

	snap := &Snapshot{
		FetchedAt:  fetchedAt,
		Satellites: make(map[string][]tle.Entry),
	}

	rows, err := s.db.Query(`SELECT id, name, launched_at, success, core_id FROM launches ORDER BY launched_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying backup launches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g LaunchGroup
		var success int
		if err := rows.Scan(&g.ID, &g.Name, &g.LaunchedAt, &success, &g.CoreID); err != nil {
			return nil, fmt.Errorf("scanning backup launch: %w", err)
		}
		g.Success = success != 0
		snap.Launches = append(snap.Launches, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snap.Launches) == 0 {
		return nil, ErrNoBackup
	}

	satRows, err := s.db.Query(`SELECT launch_id, norad_id, name, epoch, line1, line2 FROM satellites`)
	if err != nil {
		return nil, fmt.Errorf("querying backup satellites: %w", err)
	}
	defer satRows.Close()

	for satRows.Next() {
		var launchID string
		var e tle.Entry
		if err := satRows.Scan(&launchID, &e.NORADID, &e.Name, &e.Epoch, &e.Line1, &e.Line2); err != nil {
			return nil, fmt.Errorf("scanning backup satellite: %w", err)
		}
		snap.Satellites[launchID] = append(snap.Satellites[launchID], e)
	}
	return snap, satRows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
