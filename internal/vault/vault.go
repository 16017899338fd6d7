// Package vault holds Discogs and GitHub secrets.
//
// Tokens are lightly obfuscated (reversible base64, explicitly not a
// security control) before they reach a persistent backend. Callers who want
// no secret at rest can select the memory backend instead.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"vinylog/internal/models"
	"vinylog/internal/shared"
)

// DiscogsCredentials is the active Discogs identity.
type DiscogsCredentials struct {
	Token    string `json:"token"`
	Username string `json:"username,omitempty"`
}

// GitHubSession is the persisted GitHub identity.
//
// GistID outlives the token: logout clears AccessToken and User but keeps
// GistID so a re-login reuses the same remote document.
type GitHubSession struct {
	AccessToken string             `json:"accessToken,omitempty"`
	User        *models.GitHubUser `json:"user,omitempty"`
	GistID      string             `json:"gistId,omitempty"`
}

// Validator checks a Discogs credential pair against the live API.
//
// Injected at construction so tests can substitute a stub; the production
// implementation is the Discogs client.
type Validator interface {
	ValidateCredentials(ctx context.Context, token, username string) (bool, error)
}

// NopValidator accepts every credential pair without a network call.
type NopValidator struct{}

func (NopValidator) ValidateCredentials(context.Context, string, string) (bool, error) {
	return true, nil
}

// Vault owns the credential state and its persistence.
type Vault struct {
	backend   Backend
	validator Validator
	logger    *log.Logger

	mu      sync.Mutex
	discogs *DiscogsCredentials
	github  GitHubSession
}

// New creates a Vault over the given backend and loads any persisted state.
func New(backend Backend, validator Validator, logger *log.Logger) (*Vault, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: vault backend is required", shared.ErrInvalidConfig)
	}
	if validator == nil {
		validator = NopValidator{}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	v := &Vault{backend: backend, validator: validator, logger: logger}

	state, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load vault state: %w", err)
	}
	if state != nil {
		v.github = state.GitHub
		if v.github.AccessToken, err = Deobfuscate(state.GitHub.AccessToken); err != nil {
			return nil, fmt.Errorf("failed to decode stored github token: %w", err)
		}
		if state.Discogs != nil {
			token, err := Deobfuscate(state.Discogs.Token)
			if err != nil {
				return nil, fmt.Errorf("failed to decode stored discogs token: %w", err)
			}
			v.discogs = &DiscogsCredentials{Token: token, Username: state.Discogs.Username}
		}
	}

	return v, nil
}

// SetDiscogsCredentials validates the pair against Discogs and, only on
// success, replaces the active credential set and persists it.
//
// Returns false with a nil error when the credentials are simply invalid;
// prior state is untouched on any failure.
func (v *Vault) SetDiscogsCredentials(ctx context.Context, token, username string) (bool, error) {
	if token == "" {
		return false, fmt.Errorf("%w: discogs token is required", shared.ErrMissingCredentials)
	}

	valid, err := v.validator.ValidateCredentials(ctx, token, username)
	if err != nil {
		return false, fmt.Errorf("failed to validate discogs credentials: %w", err)
	}
	if !valid {
		return false, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	prev := v.discogs
	v.discogs = &DiscogsCredentials{Token: token, Username: username}
	if err := v.persistLocked(); err != nil {
		v.discogs = prev
		return false, err
	}

	return true, nil
}

// Discogs returns the active Discogs credentials, if any.
func (v *Vault) Discogs() (DiscogsCredentials, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.discogs == nil {
		return DiscogsCredentials{}, false
	}
	return *v.discogs, true
}

// SetGitHubSession stores the access token and user profile after a
// successful login. The cached gist id is preserved.
func (v *Vault) SetGitHubSession(accessToken string, user *models.GitHubUser) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.github.AccessToken = accessToken
	v.github.User = user
	return v.persistLocked()
}

// SetGistID caches the remote document id for subsequent sessions.
func (v *Vault) SetGistID(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.github.GistID = id
	return v.persistLocked()
}

// GitHub returns the persisted GitHub session and whether a token is present.
func (v *Vault) GitHub() (GitHubSession, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.github, v.github.AccessToken != ""
}

// ClearGitHubSession drops the token and user profile but retains the gist
// id for reuse on the next login.
func (v *Vault) ClearGitHubSession() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.github.AccessToken = ""
	v.github.User = nil
	return v.persistLocked()
}

// CredentialsForRemote encodes the active Discogs credentials for transport
// inside the remote document, or nil when none are set.
func (v *Vault) CredentialsForRemote() *models.CredentialBlob {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.discogs == nil {
		return nil
	}
	return &models.CredentialBlob{
		APIKey:    Obfuscate(v.discogs.Token),
		Username:  v.discogs.Username,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ApplyRemoteCredentials decodes a credential blob from the remote document
// and activates it, but only when no Discogs credentials exist locally.
//
// Reports whether credentials were applied.
func (v *Vault) ApplyRemoteCredentials(blob *models.CredentialBlob) bool {
	if blob == nil || blob.APIKey == "" {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.discogs != nil {
		return false
	}

	token, err := Deobfuscate(blob.APIKey)
	if err != nil || token == "" {
		v.logger.Errorf("failed to decode remote discogs credentials: %v", err)
		return false
	}

	v.discogs = &DiscogsCredentials{Token: token, Username: blob.Username}
	if err := v.persistLocked(); err != nil {
		v.logger.Errorf("failed to persist remote discogs credentials: %v", err)
	}
	return true
}

// persistLocked writes the current state through the backend with tokens
// obfuscated. Callers must hold v.mu.
func (v *Vault) persistLocked() error {
	state := State{GitHub: v.github}
	state.GitHub.AccessToken = Obfuscate(v.github.AccessToken)
	if v.discogs != nil {
		state.Discogs = &DiscogsCredentials{
			Token:    Obfuscate(v.discogs.Token),
			Username: v.discogs.Username,
		}
	}

	if err := v.backend.Save(&state); err != nil {
		return fmt.Errorf("failed to persist vault state: %w", err)
	}
	return nil
}

// Obfuscate reversibly encodes a secret for storage at rest.
func Obfuscate(s string) string {
	if s == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// Deobfuscate reverses [Obfuscate].
func Deobfuscate(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("failed to decode stored secret: %w", err)
	}
	return string(raw), nil
}
