package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemBackend stores vault state as a JSON file with owner-only
// permissions.
type FilesystemBackend struct {
	path string
}

// NewFilesystemBackend creates a backend writing to the given path.
func NewFilesystemBackend(path string) *FilesystemBackend {
	if path == "" {
		path = "vinylog-vault.json"
	}
	return &FilesystemBackend{path: path}
}

// Load reads the stored state, returning nil when the file does not exist.
func (b *FilesystemBackend) Load() (*State, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read vault file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse vault file: %w", err)
	}

	return &state, nil
}

// Save writes the state, creating parent directories as needed.
func (b *FilesystemBackend) Save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode vault state: %w", err)
	}

	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create vault directory: %w", err)
		}
	}

	if err := os.WriteFile(b.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write vault file: %w", err)
	}

	return nil
}
