// Package identity persists the single cached display name read at session
// start. It is injected into the session controller so the core never touches
// ambient storage.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	appName    = "huddle"
	configFile = "identity.json"
)

// Store holds the cached display name.
type Store interface {
	Get() (string, bool)
	Set(name string) error
}

type userIdentity struct {
	Username string `json:"username"`
}

type fileStore struct {
	path  string
	mu    sync.RWMutex
	cache *userIdentity
}

// NewFileStore returns a Store backed by a JSON file under the user config
// directory. Read failures degrade to "no cached name".
func NewFileStore() Store {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	dir = filepath.Join(dir, appName)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to create config directory: %v\n", err)
	}

	return &fileStore{path: filepath.Join(dir, configFile)}
}

// NewFileStoreAt is NewFileStore with an explicit path, for tests.
func NewFileStoreAt(path string) Store {
	return &fileStore{path: path}
}

func (s *fileStore) Get() (string, bool) {
	s.mu.RLock()
	if s.cache != nil {
		defer s.mu.RUnlock()
		return s.cache.Username, s.cache.Username != ""
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil {
		return s.cache.Username, s.cache.Username != ""
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}

	var id userIdentity
	if err := json.Unmarshal(data, &id); err != nil {
		return "", false
	}

	s.cache = &id
	return id.Username, id.Username != ""
}

func (s *fileStore) Set(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := userIdentity{Username: name}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}

	s.cache = &id
	return nil
}
