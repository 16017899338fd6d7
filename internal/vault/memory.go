package vault

import "sync"

// MemoryBackend keeps vault state in process memory only. Nothing touches
// disk, so every process start begins unauthenticated.
type MemoryBackend struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns the held state, nil when nothing has been saved.
func (b *MemoryBackend) Load() (*State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, nil
}

// Save replaces the held state.
func (b *MemoryBackend) Save(state *State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := *state
	b.state = &copied
	return nil
}
