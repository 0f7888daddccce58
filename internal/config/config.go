// ABOUTME: Runtime configuration defaults and persisted client identity
// ABOUTME: Holds default values and stores a UUID client id across restarts
// Package config holds the player's configuration defaults and persists
// the player's identity across restarts. CLI flags are parsed by the
// caller (cmd/sendspin-player), not here.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Defaults mirror the configuration record in the spec: buffer depth,
// discovery timeout, initial volume, and the mDNS advertise port.
const (
	DefaultBufferMs        = 11_000
	DefaultDiscoveryTimeMs = 10_000
	DefaultVolume          = 100
	DefaultMDNSPort        = 8927
)

// identity is the on-disk record of the persisted client id.
type identity struct {
	ClientID string `json:"client_id"`
}

// Store loads and persists the player's identity in path (a JSON file
// under the user's config directory).
type Store struct {
	path string
}

// NewStore creates a Store rooted at the user's config directory, under
// "sendspin-player/identity.json".
func NewStore() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("config: resolve user config dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, "sendspin-player", "identity.json")}, nil
}

// StoreAt creates a Store rooted at an explicit path, for tests.
func StoreAt(path string) *Store {
	return &Store{path: path}
}

// ClientID returns the persisted client id, generating and persisting a
// new one on first run.
func (s *Store) ClientID() (string, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		var id identity
		if err := json.Unmarshal(data, &id); err == nil && id.ClientID != "" {
			return id.ClientID, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("config: read identity file: %w", err)
	}

	newID := uuid.New().String()
	if err := s.save(identity{ClientID: newID}); err != nil {
		return "", err
	}
	return newID, nil
}

func (s *Store) save(id identity) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal identity: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("config: write identity file: %w", err)
	}
	return nil
}
