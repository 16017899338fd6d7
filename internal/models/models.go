package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for Play.DateListened.
//
// No timezone component: a play logged on 2024-03-01 reads the same on every
// device regardless of locale.
const DateLayout = "2006-01-02"

// Play represents a single listening event for an album.
//
// Immutable once created except for deletion.
type Play struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Year         string `json:"year"`
	CoverURL     string `json:"coverUrl"`
	DiscogsURL   string `json:"discogsUrl"`
	DateListened string `json:"dateListened"`
}

// ListenedTime parses DateListened as a calendar date.
//
// The second return value reports whether the date is present and valid;
// plays with invalid dates sort after all dated plays.
func (p Play) ListenedTime() (time.Time, bool) {
	if p.DateListened == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, p.DateListened)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Validate checks the play has the fields required for persistence.
func (p Play) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("play id is required")
	}
	if p.Title == "" {
		return fmt.Errorf("play title is required")
	}
	return nil
}

// CartridgeStats tracks the aggregate play count.
//
// TotalPlays is persisted independently of the history and may diverge
// transiently during sync; reconciliation takes the larger of local vs
// remote, never the sum.
type CartridgeStats struct {
	TotalPlays int `json:"totalPlays"`
}

// Album is the canonical album record normalized from the Discogs API's
// search-result and full-release response shapes.
type Album struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Year       string `json:"year"`
	CoverURL   string `json:"coverUrl"`
	Thumb      string `json:"thumb,omitempty"`
	DiscogsURL string `json:"discogsUrl"`
}

// CredentialBlob carries obfuscated Discogs credentials inside the remote
// document so a second device can inherit them without manual entry.
type CredentialBlob struct {
	APIKey    string `json:"apiKey"`
	Username  string `json:"username,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// GitHubUser is the subset of the GitHub user profile the app displays.
type GitHubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// DisplayName returns the user's name, falling back to their login.
func (u GitHubUser) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Login
}

// RemoteDocument is the single JSON object stored in the gist data file.
//
// Owned collectively by all devices authenticated as the same GitHub user;
// writers merge before replacing to avoid clobbering each other.
type RemoteDocument struct {
	PlayHistory []Play          `json:"playHistory"`
	Stats       CartridgeStats  `json:"stats"`
	DiscogsAuth *CredentialBlob `json:"discogsAuth,omitempty"`
	LastSync    string          `json:"lastSync"`
}
