package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Vault       VaultConfig       `toml:"vault"`
	Sync        SyncConfig        `toml:"sync"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Discogs DiscogsConfig `toml:"discogs"`
	GitHub  GitHubConfig  `toml:"github"`
}

// DiscogsConfig contains Discogs API credentials.
//
// Token and Username here seed the vault on first run; credentials set
// interactively via `vinylog discogs connect` take precedence.
type DiscogsConfig struct {
	Token    string `toml:"token"`
	Username string `toml:"username"`
}

// GitHubConfig contains the GitHub OAuth app identity used for device-flow login.
type GitHubConfig struct {
	ClientID string `toml:"client_id"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// VaultConfig selects where credentials are kept at rest.
//
// Backend "file" persists an obfuscated JSON file at Path; "memory" keeps
// tokens in process memory only, so every run starts unauthenticated.
type VaultConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// SyncConfig tunes API retry behavior and the push debounce window.
type SyncConfig struct {
	MaxRetries       int `toml:"max_retries"`
	RetryDelayMS     int `toml:"retry_delay_ms"`
	RateLimitDelayMS int `toml:"rate_limit_delay_ms"`
	PollCap          int `toml:"poll_cap"`
	DebounceMS       int `toml:"debounce_ms"`
}

// RetryDelay returns the inter-retry delay as a [time.Duration].
func (s SyncConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMS) * time.Millisecond
}

// RateLimitDelay returns the rate-limit backoff as a [time.Duration].
func (s SyncConfig) RateLimitDelay() time.Duration {
	return time.Duration(s.RateLimitDelayMS) * time.Millisecond
}

// Debounce returns the push coalescing window as a [time.Duration].
func (s SyncConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
