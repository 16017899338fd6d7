package vault

import (
	"fmt"

	"vinylog/internal/shared"
)

// State is the serialized form a backend stores. Token fields arrive already
// obfuscated; backends treat the struct as opaque.
type State struct {
	Discogs *DiscogsCredentials `json:"discogs,omitempty"`
	GitHub  GitHubSession       `json:"github"`
}

// Backend persists vault state.
type Backend interface {
	Load() (*State, error)
	Save(*State) error
}

// NewBackend builds the backend named by the configuration.
//
// "file" (the default) stores state as JSON on disk; "memory" keeps it in
// process only, for tests and for users who refuse secrets at rest.
func NewBackend(cfg shared.VaultConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFilesystemBackend(cfg.Path), nil
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("%w: unknown vault backend %q", shared.ErrInvalidConfig, cfg.Backend)
	}
}
