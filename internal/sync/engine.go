// Package sync keeps the local play-history store and the remote gist
// document in agreement.
//
// One gist per GitHub account holds a single JSON data file shared by every
// device. Writers merge the remote document into their local state before
// replacing it, so concurrent pushes lose nothing; the merge rules live in
// the store package.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/charmbracelet/log"

	"vinylog/internal/models"
	"vinylog/internal/services"
	"vinylog/internal/shared"
	"vinylog/internal/store"
	"vinylog/internal/vault"
)

const (
	// GistDescription identifies the app's gist among the user's gists.
	GistDescription = "vinylog play history data"
	// DataFileName is the single data file inside the gist.
	DataFileName = "vinylog-data.json"
)

// pushTimeout bounds background pushes triggered by local mutations.
const pushTimeout = 30 * time.Second

// SessionState describes where the engine is in its session lifecycle.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateSyncingDown
	StateSyncingUp
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateSyncingDown:
		return "syncing down"
	case StateSyncingUp:
		return "syncing up"
	default:
		return "unknown"
	}
}

// Engine drives device-flow login and bidirectional gist sync.
//
// It implements the store's Notifier so local mutations schedule a debounced
// background push. The engine holds all session state; nothing is package
// level.
type Engine struct {
	github   *services.GitHubClient
	vault    *vault.Vault
	store    *store.Store
	logger   *log.Logger
	notifier Notifier
	catalog  CredentialSink
	debounce time.Duration

	mu    stdsync.Mutex
	state SessionState
	timer *time.Timer
}

// NewEngine creates an Engine over the given clients and store.
//
// The engine starts authenticated when the vault already holds a GitHub
// token from a previous session.
func NewEngine(github *services.GitHubClient, vlt *vault.Vault, st *store.Store, cfg shared.SyncConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	debounce := cfg.Debounce()
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	e := &Engine{
		github:   github,
		vault:    vlt,
		store:    st,
		logger:   logger,
		notifier: NopNotifier{},
		debounce: debounce,
		state:    StateUnauthenticated,
	}
	if _, authed := vlt.GitHub(); authed {
		e.state = StateAuthenticated
	}
	return e
}

// SetNotifier registers the user-facing message sink.
func (e *Engine) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	e.notifier = n
}

// CredentialSink receives Discogs credentials adopted from the remote
// document, so the live catalog client picks them up without a restart.
type CredentialSink interface {
	SetCredentials(token, username string)
}

// SetCredentialSink registers the catalog client updated on credential adoption.
func (e *Engine) SetCredentialSink(s CredentialSink) {
	e.catalog = s
}

// State returns the current session state.
func (e *Engine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s SessionState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Login runs the device flow end to end.
//
// The prompt callback receives the user code and verification URI to show
// the user; the browser opens best effort. On success the session and
// profile land in the vault, the data gist is discovered or created, and an
// initial pull runs. Cancellation of ctx abandons the flow and returns the
// engine to unauthenticated.
func (e *Engine) Login(ctx context.Context, prompt func(userCode, verificationURI string)) (*models.GitHubUser, error) {
	e.setState(StateAuthenticating)

	auth, err := e.github.StartDeviceFlow(ctx)
	if err != nil {
		e.setState(StateUnauthenticated)
		return nil, err
	}

	if prompt != nil {
		prompt(auth.UserCode, auth.VerificationURI)
	}
	if err := shared.OpenBrowser(auth.VerificationURI); err != nil {
		e.logger.Debugf("could not open browser: %v", err)
	}

	token, err := e.github.PollDeviceToken(ctx, auth)
	if err != nil {
		e.setState(StateUnauthenticated)
		return nil, err
	}

	user, err := e.github.User(ctx, token)
	if err != nil {
		e.setState(StateUnauthenticated)
		return nil, err
	}

	if err := e.vault.SetGitHubSession(token, user); err != nil {
		e.setState(StateUnauthenticated)
		return nil, err
	}
	e.setState(StateAuthenticated)

	if _, err := e.ensureGist(ctx, token); err != nil {
		e.notifier.NotifyError(fmt.Sprintf("Could not prepare sync storage: %v", err))
		return user, nil
	}
	if err := e.SyncFromRemote(ctx); err != nil {
		e.notifier.NotifyError(fmt.Sprintf("Initial sync failed: %v", err))
	}

	return user, nil
}

// Logout drops the GitHub session. The cached gist id stays in the vault so
// the next login reuses the same remote document.
func (e *Engine) Logout() error {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.state = StateUnauthenticated
	e.mu.Unlock()

	return e.vault.ClearGitHubSession()
}

// session returns the stored token or ErrNotAuthenticated.
func (e *Engine) session() (vault.GitHubSession, error) {
	session, authed := e.vault.GitHub()
	if !authed {
		return vault.GitHubSession{}, shared.ErrNotAuthenticated
	}
	return session, nil
}

// ensureGist returns the data gist's id, discovering an existing gist by
// description or creating a fresh private one seeded with an empty document.
func (e *Engine) ensureGist(ctx context.Context, token string) (string, error) {
	if session, _ := e.vault.GitHub(); session.GistID != "" {
		return session.GistID, nil
	}

	gists, err := e.github.ListGists(ctx, token)
	if err != nil {
		return "", err
	}
	for _, gist := range gists {
		if gist.Description == GistDescription {
			if err := e.vault.SetGistID(gist.ID); err != nil {
				return "", err
			}
			e.logger.Debugf("found existing data gist %s", gist.ID)
			return gist.ID, nil
		}
	}

	seed, err := json.MarshalIndent(models.RemoteDocument{PlayHistory: []models.Play{}}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode seed document: %w", err)
	}

	gist, err := e.github.CreateGist(ctx, token, GistDescription, map[string]string{DataFileName: string(seed)})
	if err != nil {
		return "", err
	}
	if err := e.vault.SetGistID(gist.ID); err != nil {
		return "", err
	}
	e.logger.Debugf("created data gist %s", gist.ID)
	return gist.ID, nil
}

// SyncFromRemote pulls the remote document and merges it into local state.
//
// A gist without the data file means no device has pushed yet, so the engine
// pushes instead. A document that fails to parse aborts the pull with local
// state untouched.
func (e *Engine) SyncFromRemote(ctx context.Context) error {
	session, err := e.session()
	if err != nil {
		return err
	}

	e.setState(StateSyncingDown)
	defer e.setState(StateAuthenticated)

	gistID, err := e.ensureGist(ctx, session.AccessToken)
	if err != nil {
		return err
	}

	gist, err := e.github.GetGist(ctx, session.AccessToken, gistID)
	if err != nil {
		return err
	}

	file, ok := gist.Files[DataFileName]
	if !ok {
		e.logger.Debug("remote data file absent, pushing local state")
		return e.push(ctx, session.AccessToken, gistID)
	}

	content, err := e.github.FileContent(ctx, session.AccessToken, file)
	if err != nil {
		return err
	}

	var doc models.RemoteDocument
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		e.notifier.NotifyError("Remote data is malformed; sync aborted")
		return fmt.Errorf("%w: %v", shared.ErrParse, err)
	}

	if e.vault.ApplyRemoteCredentials(doc.DiscogsAuth) {
		if e.catalog != nil {
			if creds, ok := e.vault.Discogs(); ok {
				e.catalog.SetCredentials(creds.Token, creds.Username)
			}
		}
		e.notifier.Notify("Discogs credentials restored from sync")
	}

	local := e.store.LoadPlayHistory()
	merged := store.MergeHistories(local, doc.PlayHistory)
	if err := e.store.SavePlayHistory(merged); err != nil {
		return err
	}
	if err := e.store.SaveStats(store.MergeStats(e.store.Stats(), doc.Stats)); err != nil {
		return err
	}
	if err := e.store.SetLastSync(time.Now()); err != nil {
		return err
	}

	e.notifier.Notify("Synced from GitHub")
	return nil
}

// SyncToRemote merges the current remote document into local state and then
// replaces the remote data file wholesale.
func (e *Engine) SyncToRemote(ctx context.Context) error {
	session, err := e.session()
	if err != nil {
		return err
	}

	e.setState(StateSyncingUp)
	defer e.setState(StateAuthenticated)

	gistID, err := e.ensureGist(ctx, session.AccessToken)
	if err != nil {
		return err
	}

	return e.push(ctx, session.AccessToken, gistID)
}

// push re-reads the remote document, merges it into local state and
// PATCHes the result back. The remote file is always replaced in full, so a
// failed re-read aborts the push; writing without merging first could drop
// a concurrent push from another device. Only a parse failure proceeds, with
// the unreadable document replaced and the user told.
func (e *Engine) push(ctx context.Context, token, gistID string) error {
	history := e.store.LoadPlayHistory()
	stats := e.store.Stats()

	gist, err := e.github.GetGist(ctx, token, gistID)
	if err != nil {
		return fmt.Errorf("failed to read remote before push: %w", err)
	}
	if file, ok := gist.Files[DataFileName]; ok {
		content, err := e.github.FileContent(ctx, token, file)
		if err != nil {
			return fmt.Errorf("failed to read remote before push: %w", err)
		}
		var remote models.RemoteDocument
		if err := json.Unmarshal([]byte(content), &remote); err == nil {
			history = store.MergeHistories(history, remote.PlayHistory)
			stats = store.MergeStats(stats, remote.Stats)
		} else {
			e.notifier.NotifyError("Remote data is malformed; replacing it")
			e.logger.Warnf("remote data malformed, replacing it: %v", err)
		}
	}

	doc := models.RemoteDocument{
		PlayHistory: history,
		Stats:       stats,
		DiscogsAuth: e.vault.CredentialsForRemote(),
		LastSync:    time.Now().UTC().Format(time.RFC3339),
	}
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode remote document: %w", err)
	}

	if _, err := e.github.UpdateGist(ctx, token, gistID, map[string]string{DataFileName: string(content)}); err != nil {
		return err
	}

	// The merge may have pulled in plays from another device.
	if err := e.store.SavePlayHistory(history); err != nil {
		return err
	}
	if err := e.store.SaveStats(stats); err != nil {
		return err
	}
	if err := e.store.SetLastSync(time.Now()); err != nil {
		return err
	}

	e.notifier.Notify("Synced to GitHub")
	return nil
}

// DataChanged implements the store's notifier hook.
//
// Rapid successive mutations coalesce into a single push once the debounce
// window closes. The push is best effort; failures surface through the
// Notifier and the data stays local until the next trigger.
func (e *Engine) DataChanged() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateUnauthenticated || e.state == StateAuthenticating {
		return
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounce, e.flush)
}

func (e *Engine) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if err := e.SyncToRemote(ctx); err != nil {
		e.notifier.NotifyError(fmt.Sprintf("Background sync failed: %v", err))
	}
}
