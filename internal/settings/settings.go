// Package settings persists application-level state that outlives a single
// workspace: recently opened workspaces, recently touched campaigns and
// simple key/value preferences. Backed by a SQLite database in the user's
// config directory.
package settings

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// recentLimit caps how many recent workspaces and campaigns are reported.
const recentLimit = 5

// Store provides SQLite-backed settings persistence.
type Store struct {
	db *sql.DB
}

// Open creates or opens the settings database at the given path.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set stores a preference value under a key.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Get returns a preference value, or the empty string when unset.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Workspace is one known workspace directory.
type Workspace struct {
	Path       string
	Name       string
	AccessedAt time.Time
}

// TouchWorkspace records that a workspace was opened now and marks it as the
// last one used.
func (s *Store) TouchWorkspace(path, name string) error {
	_, err := s.db.Exec(`
		INSERT INTO workspaces (path, name, accessed_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			accessed_at = excluded.accessed_at
	`, path, name, time.Now().UTC())
	if err != nil {
		return err
	}
	return s.Set("last_workspace", path)
}

// LastWorkspace returns the most recently opened workspace path, or the
// empty string when none was recorded yet.
func (s *Store) LastWorkspace() (string, error) {
	return s.Get("last_workspace")
}

// RecentWorkspaces returns up to five workspaces, most recently opened first.
func (s *Store) RecentWorkspaces() ([]Workspace, error) {
	rows, err := s.db.Query(`
		SELECT path, name, accessed_at FROM workspaces
		ORDER BY accessed_at DESC LIMIT ?
	`, recentLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		var w Workspace
		if err := rows.Scan(&w.Path, &w.Name, &w.AccessedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CampaignRef points at a campaign inside a workspace.
type CampaignRef struct {
	ID            string
	WorkspacePath string
	Name          string
	AccessedAt    time.Time
}

// TouchCampaign records that a campaign was used now. The workspace must
// already be known.
func (s *Store) TouchCampaign(id, workspacePath, name string) error {
	_, err := s.db.Exec(`
		INSERT INTO campaigns (id, workspace_path, name, accessed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace_path = excluded.workspace_path,
			name = excluded.name,
			accessed_at = excluded.accessed_at
	`, id, workspacePath, name, time.Now().UTC())
	return err
}

// RecentCampaigns returns up to five campaigns, most recently used first.
func (s *Store) RecentCampaigns() ([]CampaignRef, error) {
	rows, err := s.db.Query(`
		SELECT id, workspace_path, name, accessed_at FROM campaigns
		ORDER BY accessed_at DESC LIMIT ?
	`, recentLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CampaignRef
	for rows.Next() {
		var c CampaignRef
		if err := rows.Scan(&c.ID, &c.WorkspacePath, &c.Name, &c.AccessedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ForgetCampaign drops a campaign from the recents list.
func (s *Store) ForgetCampaign(id string) error {
	_, err := s.db.Exec(`DELETE FROM campaigns WHERE id = ?`, id)
	return err
}
