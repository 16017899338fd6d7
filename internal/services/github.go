// GitHub API client for device-flow authentication and gist storage.
//
// Gist API response types based on https://docs.github.com/en/rest/gists
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"vinylog/internal/models"
	"vinylog/internal/shared"
)

const (
	githubAPIBaseURL    = "https://api.github.com"
	githubDeviceAuthURL = "https://github.com/login/device/code"
	githubTokenURL      = "https://github.com/login/oauth/access_token"
	githubScope         = "gist"

	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

// defaultPollInterval applies when the device-code response omits one.
const defaultPollInterval = 5 * time.Second

// Gist represents a GitHub gist.
type Gist struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]GistFile `json:"files"`
}

// GistFile is a single file within a gist. Content may be truncated for
// large files, in which case RawURL serves the full body.
type GistFile struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	RawURL    string `json:"raw_url"`
	Truncated bool   `json:"truncated"`
}

type deviceTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// GitHubClient talks to GitHub for device-flow login and gist storage.
//
// The endpoints are fields rather than constants so tests can point the
// client at a local server.
type GitHubClient struct {
	apiBaseURL   string
	config       *oauth2.Config
	httpClient   *http.Client
	logger       *log.Logger
	pollCap      int
	pollInterval time.Duration
}

// NewGitHubClient creates a client for the given OAuth app.
//
// pollCap bounds how many times PollDeviceToken asks the token endpoint
// before giving up.
func NewGitHubClient(clientID string, sync shared.SyncConfig, logger *log.Logger) *GitHubClient {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	pollCap := sync.PollCap
	if pollCap <= 0 {
		pollCap = 30
	}
	return &GitHubClient{
		apiBaseURL: githubAPIBaseURL,
		config: &oauth2.Config{
			ClientID: clientID,
			Scopes:   []string{githubScope},
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: githubDeviceAuthURL,
				TokenURL:      githubTokenURL,
			},
		},
		httpClient:   http.DefaultClient,
		logger:       logger,
		pollCap:      pollCap,
		pollInterval: defaultPollInterval,
	}
}

// SetEndpoints points the client at alternate API and OAuth endpoints,
// primarily for tests running against a local server.
func (g *GitHubClient) SetEndpoints(apiBaseURL, deviceAuthURL, tokenURL string) {
	g.apiBaseURL = apiBaseURL
	g.config.Endpoint = oauth2.Endpoint{
		DeviceAuthURL: deviceAuthURL,
		TokenURL:      tokenURL,
	}
}

// SetPollInterval overrides the fallback polling interval used when the
// device-code response does not supply one.
func (g *GitHubClient) SetPollInterval(d time.Duration) {
	if d > 0 {
		g.pollInterval = d
	}
}

// StartDeviceFlow requests a device and user code pair from GitHub.
//
// The caller shows VerificationURI and UserCode to the user, then calls
// [GitHubClient.PollDeviceToken] to wait for approval.
func (g *GitHubClient) StartDeviceFlow(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	if g.config.ClientID == "" {
		return nil, fmt.Errorf("%w: github client id not set", shared.ErrMissingConfig)
	}

	response, err := g.config.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: device code request: %v", shared.ErrAuthFailed, err)
	}
	return response, nil
}

// PollDeviceToken polls the token endpoint until the user approves the
// device, the flow is denied, or the attempt budget runs out.
//
// A pending response consumes an attempt; a slow_down response additionally
// stretches the interval by five seconds as the protocol requires. Denial
// maps to [shared.ErrAuthDenied] and exhaustion or code expiry to
// [shared.ErrTimeout].
func (g *GitHubClient) PollDeviceToken(ctx context.Context, auth *oauth2.DeviceAuthResponse) (string, error) {
	interval := time.Duration(auth.Interval) * time.Second
	if interval <= 0 {
		interval = g.pollInterval
	}

	for attempt := 0; attempt < g.pollCap; attempt++ {
		if err := sleepContext(ctx, interval); err != nil {
			return "", err
		}

		token, err := g.requestDeviceToken(ctx, auth.DeviceCode)
		if err != nil {
			return "", err
		}

		switch token.Error {
		case "":
			if token.AccessToken == "" {
				return "", fmt.Errorf("%w: token endpoint returned no token", shared.ErrAuthFailed)
			}
			return token.AccessToken, nil
		case "authorization_pending":
			continue
		case "slow_down":
			interval += 5 * time.Second
			continue
		case "access_denied":
			return "", shared.ErrAuthDenied
		case "expired_token":
			return "", fmt.Errorf("%w: device code expired", shared.ErrTimeout)
		default:
			return "", fmt.Errorf("%w: %s", shared.ErrAuthFailed, token.Error)
		}
	}

	return "", fmt.Errorf("%w: gave up after %d polls", shared.ErrTimeout, g.pollCap)
}

func (g *GitHubClient) requestDeviceToken(ctx context.Context, deviceCode string) (*deviceTokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", g.config.ClientID)
	form.Set("device_code", deviceCode)
	form.Set("grant_type", deviceGrantType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	var token deviceTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("%w: failed to decode token response: %v", shared.ErrParse, err)
	}
	return &token, nil
}

// User retrieves the authenticated user's profile.
func (g *GitHubClient) User(ctx context.Context, token string) (*models.GitHubUser, error) {
	var user models.GitHubUser
	if err := g.doRequest(ctx, http.MethodGet, "/user", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListGists retrieves the authenticated user's gists.
func (g *GitHubClient) ListGists(ctx context.Context, token string) ([]Gist, error) {
	var gists []Gist
	if err := g.doRequest(ctx, http.MethodGet, "/gists", token, nil, &gists); err != nil {
		return nil, err
	}
	return gists, nil
}

// GetGist retrieves a single gist by ID.
func (g *GitHubClient) GetGist(ctx context.Context, token, id string) (*Gist, error) {
	var gist Gist
	if err := g.doRequest(ctx, http.MethodGet, "/gists/"+id, token, nil, &gist); err != nil {
		return nil, err
	}
	return &gist, nil
}

// FileContent returns a gist file's full body, following RawURL when the
// inline content is truncated.
func (g *GitHubClient) FileContent(ctx context.Context, token string, file GistFile) (string, error) {
	if !file.Truncated || file.RawURL == "" {
		return file.Content, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.RawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: raw content fetch: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read raw content: %w", err)
	}
	return string(body), nil
}

// CreateGist creates a private gist with the given description and files.
func (g *GitHubClient) CreateGist(ctx context.Context, token, description string, files map[string]string) (*Gist, error) {
	payload := map[string]interface{}{
		"description": description,
		"public":      false,
		"files":       gistFilePayload(files),
	}

	var gist Gist
	if err := g.doRequest(ctx, http.MethodPost, "/gists", token, payload, &gist); err != nil {
		return nil, err
	}
	return &gist, nil
}

// UpdateGist replaces the named files in an existing gist.
func (g *GitHubClient) UpdateGist(ctx context.Context, token, id string, files map[string]string) (*Gist, error) {
	payload := map[string]interface{}{
		"files": gistFilePayload(files),
	}

	var gist Gist
	if err := g.doRequest(ctx, http.MethodPatch, "/gists/"+id, token, payload, &gist); err != nil {
		return nil, err
	}
	return &gist, nil
}

func gistFilePayload(files map[string]string) map[string]map[string]string {
	payload := make(map[string]map[string]string, len(files))
	for name, content := range files {
		payload[name] = map[string]string{"content": content}
	}
	return payload
}

// doRequest performs an authenticated request against the GitHub API.
func (g *GitHubClient) doRequest(ctx context.Context, method, endpoint, token string, body interface{}, result interface{}) error {
	if token == "" {
		return shared.ErrNotAuthenticated
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.apiBaseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", shared.ErrNotAuthenticated, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", shared.ErrGistNotFound, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: github API error: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrParse, err)
		}
	}

	return nil
}
