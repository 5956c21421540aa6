package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

// FileStore keeps profiles in a flat JSON list. The field names match the
// db.json files written by the legacy migration tool, so those load as is.
type FileStore struct {
	mu   sync.RWMutex
	path string
}

// NewFileStore opens path; a missing file is an empty store
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	fs := &FileStore{path: path}
	if _, err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

// fileProfile accepts port as a number or a string
type fileProfile struct {
	Profile
	Port flexPort `json:"port"`
}

type flexPort int

func (p *flexPort) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*p = flexPort(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("port: %w", err)
	}
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port %q: %w", s, err)
	}
	*p = flexPort(n)
	return nil
}

func (fs *FileStore) load() ([]Profile, error) {
	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fs.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var raw []fileProfile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", fs.path, err)
	}
	profiles := make([]Profile, 0, len(raw))
	for _, r := range raw {
		p := r.Profile
		p.Port = int(r.Port)
		profiles = append(profiles, p.Normalize())
	}
	return profiles, nil
}

func (fs *FileStore) save(profiles []Profile) error {
	if dir := filepath.Dir(fs.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return err
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, fs.path)
}

// List returns profiles sorted by name
func (fs *FileStore) List(context.Context) ([]Profile, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	profiles, err := fs.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// Get returns the profile called name
func (fs *FileStore) Get(_ context.Context, name string) (Profile, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	profiles, err := fs.load()
	if err != nil {
		return Profile{}, err
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// Add stores a new profile
func (fs *FileStore) Add(_ context.Context, p Profile) error {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	profiles, err := fs.load()
	if err != nil {
		return err
	}
	for _, existing := range profiles {
		if existing.Name == p.Name {
			return fmt.Errorf("%w: %s", ErrProfileExists, p.Name)
		}
	}
	return fs.save(append(profiles, p))
}

// Remove deletes the profile called name
func (fs *FileStore) Remove(_ context.Context, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	profiles, err := fs.load()
	if err != nil {
		return err
	}
	kept := profiles[:0]
	for _, p := range profiles {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(profiles) {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return fs.save(kept)
}

// Close is a no-op
func (fs *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
