// Package campaignstore persists campaigns to their on-disk layout:
//
//	<workspace>/campaigns/<id>/config.json
//	<workspace>/campaigns/<id>/runs/<batch_id>.csv
//	<workspace>/campaigns/<id>/optimizer_state.bin
//
// All writes are atomic temp-then-rename replacements.
package campaignstore

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tunex-app/tunex/internal/domain"
)

const (
	// CampaignsDirName is the campaigns directory under the workspace root.
	CampaignsDirName = "campaigns"
	configFileName   = "config.json"
	runsDirName      = "runs"
	stateFileName    = "optimizer_state.bin"

	stateHeaderPrefix = "tunex-state v1"
)

// Store reads and writes campaign data under one workspace root.
type Store struct {
	root string
}

// New creates a store rooted at the given workspace directory.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the workspace root directory.
func (s *Store) Root() string { return s.root }

// CampaignDir returns the directory holding one campaign's files.
func (s *Store) CampaignDir(id string) string {
	return filepath.Join(s.root, CampaignsDirName, id)
}

func (s *Store) configPath(id string) string {
	return filepath.Join(s.CampaignDir(id), configFileName)
}

func (s *Store) runsDir(id string) string {
	return filepath.Join(s.CampaignDir(id), runsDirName)
}

func (s *Store) batchPath(id, batchID string) string {
	return filepath.Join(s.runsDir(id), batchID+".csv")
}

func (s *Store) statePath(id string) string {
	return filepath.Join(s.CampaignDir(id), stateFileName)
}

// SaveConfig atomically writes the campaign's config.json.
func (s *Store) SaveConfig(c *domain.Campaign) error {
	data, err := domain.EncodeCampaign(c)
	if err != nil {
		return fmt.Errorf("encoding campaign %s: %w", c.ID, err)
	}
	return writeFileAtomic(s.configPath(c.ID), data)
}

// LoadConfig reads and, if needed, migrates a stored campaign config.
func (s *Store) LoadConfig(id string) (*domain.Campaign, error) {
	data, err := os.ReadFile(s.configPath(id))
	if err != nil {
		return nil, fmt.Errorf("reading campaign config: %w", err)
	}
	return domain.DecodeCampaign(data)
}

// ListCampaignIDs returns the IDs of every campaign directory that holds a
// config file, in directory order.
func (s *Store) ListCampaignIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, CampaignsDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing campaigns: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(s.configPath(e.Name())); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// SaveState atomically writes the opaque optimizer-state blob together with
// the config hash it was built from and its build time. Format: a single
// header line "tunex-state v1 <hash> <built_at>" followed by the raw blob.
func (s *Store) SaveState(campaignID string, blob []byte, configHash string, builtAt time.Time) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %s\n", stateHeaderPrefix, configHash, builtAt.UTC().Format(time.RFC3339))
	buf.Write(blob)
	return writeFileAtomic(s.statePath(campaignID), buf.Bytes())
}

// LoadState reads a persisted optimizer state. A missing file returns
// os.ErrNotExist; a file with a malformed header returns an error the caller
// should treat as corrupt (and therefore stale).
func (s *Store) LoadState(campaignID string) (blob []byte, configHash string, builtAt time.Time, err error) {
	f, err := os.Open(s.statePath(campaignID))
	if err != nil {
		return nil, "", time.Time{}, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("reading optimizer state header: %w", err)
	}
	fields := strings.Fields(strings.TrimSpace(header))
	// tunex-state v1 <hash> <built_at>
	if len(fields) != 4 || fields[0]+" "+fields[1] != stateHeaderPrefix {
		return nil, "", time.Time{}, fmt.Errorf("malformed optimizer state header %q", strings.TrimSpace(header))
	}
	configHash = fields[2]
	builtAt, err = time.Parse(time.RFC3339, fields[3])
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("parsing optimizer state build time: %w", err)
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(r); err != nil {
		return nil, "", time.Time{}, fmt.Errorf("reading optimizer state blob: %w", err)
	}
	return body.Bytes(), configHash, builtAt, nil
}

// DeleteState removes the persisted optimizer state, if any.
func (s *Store) DeleteState(campaignID string) error {
	err := os.Remove(s.statePath(campaignID))
	if err != nil && !os.IsNotExist(err) {
		return &domain.StorageError{Op: "delete", Path: s.statePath(campaignID), Err: err}
	}
	return nil
}
