// Discogs API client for catalog search, collection search and release lookup.
//
// Response types based on https://www.discogs.com/developers/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"vinylog/internal/models"
	"vinylog/internal/shared"
)

const (
	discogsBaseURL   = "https://api.discogs.com"
	discogsUserAgent = "vinylog/1.0"
	discogsSiteURL   = "https://www.discogs.com"

	// Maximum page size the Discogs API allows for collection requests.
	collectionPageSize = 100
	// Delay between collection pages to stay under the API rate limit.
	collectionPageDelay = 300 * time.Millisecond
)

// DiscogsSearchResult is a single row from /database/search.
type DiscogsSearchResult struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Year       string `json:"year"`
	CoverImage string `json:"cover_image"`
	Thumb      string `json:"thumb"`
}

type discogsSearchResponse struct {
	Results []DiscogsSearchResult `json:"results"`
}

// DiscogsRelease is the full release object from /releases/{id}.
type DiscogsRelease struct {
	ID      int             `json:"id"`
	Title   string          `json:"title"`
	Artists []DiscogsArtist `json:"artists"`
	Year    int             `json:"year"`
	Images  []DiscogsImage  `json:"images"`
	Formats []DiscogsFormat `json:"formats"`
	Labels  []DiscogsEntity `json:"labels"`
	Genres  []string        `json:"genres"`
}

// DiscogsArtist represents an artist credit on a release.
type DiscogsArtist struct {
	Name string `json:"name"`
}

// DiscogsImage represents an image resource.
type DiscogsImage struct {
	URI string `json:"uri"`
}

// DiscogsFormat represents a release format (vinyl, CD, ...).
type DiscogsFormat struct {
	Name string `json:"name"`
}

// DiscogsEntity is a named catalog entity such as a label.
type DiscogsEntity struct {
	Name string `json:"name"`
}

type collectionPagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

// CollectionRelease is a row in a user's collection folder.
type CollectionRelease struct {
	ID               int                 `json:"id"`
	BasicInformation CollectionBasicInfo `json:"basic_information"`
}

// CollectionBasicInfo is the summary release data embedded in collection rows.
type CollectionBasicInfo struct {
	Title      string          `json:"title"`
	Year       int             `json:"year"`
	Artists    []DiscogsArtist `json:"artists"`
	CoverImage string          `json:"cover_image"`
	Thumb      string          `json:"thumb"`
}

type collectionResponse struct {
	Pagination collectionPagination `json:"pagination"`
	Releases   []CollectionRelease  `json:"releases"`
}

// DiscogsService implements [Catalog] against the Discogs API.
//
// With a username configured, searches run against that user's collection
// with score-based matching; without one they fall back to the global
// catalog. A rate limiter spaces out collection pagination requests.
type DiscogsService struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	sync       shared.SyncConfig
	limiter    *rate.Limiter

	token    string
	username string
}

// NewDiscogsService creates a Discogs client with the given credentials.
//
// Token and username may be empty; use [DiscogsService.SetCredentials] once
// the vault supplies them.
func NewDiscogsService(token, username string, sync shared.SyncConfig, logger *log.Logger) *DiscogsService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &DiscogsService{
		baseURL:    discogsBaseURL,
		httpClient: http.DefaultClient,
		logger:     logger,
		sync:       sync,
		limiter:    rate.NewLimiter(rate.Every(collectionPageDelay), 1),
		token:      token,
		username:   username,
	}
}

// SetCredentials replaces the active token and username.
func (s *DiscogsService) SetCredentials(token, username string) {
	s.token = token
	s.username = username
}

// HasCredentials reports whether an API token is set.
func (s *DiscogsService) HasCredentials() bool {
	return s.token != ""
}

// HasUsername reports whether a collection username is set.
func (s *DiscogsService) HasUsername() bool {
	return s.username != ""
}

func (s *DiscogsService) headers(req *http.Request, token string) {
	req.Header.Set("User-Agent", discogsUserAgent)
	if token != "" {
		req.Header.Set("Authorization", "Discogs token="+token)
	}
}

// doRequest performs a GET against the Discogs API with retry.
//
// A 429 waits out the rate-limit delay and retries without consuming an
// attempt; any other failure consumes one of the configured retries with the
// retry delay in between.
func (s *DiscogsService) doRequest(ctx context.Context, endpoint string, query url.Values, result interface{}) error {
	maxRetries := s.sync.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	attempts := 0
	for {
		err := s.fetch(ctx, apiURL, result)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, shared.ErrRateLimited) {
			s.logger.Warnf("rate limit hit, waiting %s before retrying", s.sync.RateLimitDelay())
			if err := sleepContext(ctx, s.sync.RateLimitDelay()); err != nil {
				return err
			}
			continue
		}

		attempts++
		s.logger.Errorf("discogs request failed (attempt %d/%d): %v", attempts, maxRetries, err)
		if attempts >= maxRetries {
			return fmt.Errorf("failed after %d attempts: %w", maxRetries, err)
		}
		if err := sleepContext(ctx, s.sync.RetryDelay()); err != nil {
			return err
		}
	}
}

// fetch performs a single GET and decodes the JSON body into result.
func (s *DiscogsService) fetch(ctx context.Context, apiURL string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.headers(req, s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", shared.ErrInvalidCredentials, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", shared.ErrAlbumNotFound, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: discogs API error: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrParse, err)
		}
	}

	return nil
}

// SearchAlbums finds albums matching the query.
//
// Searches the user's collection when a username is configured, otherwise
// the global catalog filtered to album releases.
func (s *DiscogsService) SearchAlbums(ctx context.Context, query string) ([]models.Album, error) {
	if !s.HasCredentials() {
		return nil, fmt.Errorf("%w: discogs token not set", shared.ErrMissingCredentials)
	}

	if s.HasUsername() {
		return s.searchCollection(ctx, query)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "release")
	params.Set("format", "album")

	var response discogsSearchResponse
	if err := s.doRequest(ctx, "/database/search", params, &response); err != nil {
		return nil, err
	}

	albums := make([]models.Album, 0, len(response.Results))
	for _, result := range response.Results {
		albums = append(albums, FormatSearchResult(result))
	}
	return albums, nil
}

// Collection retrieves every release in the user's collection, walking all
// pages with the rate limiter spacing requests.
func (s *DiscogsService) Collection(ctx context.Context) ([]CollectionRelease, error) {
	if !s.HasUsername() {
		return nil, fmt.Errorf("%w: discogs username not set", shared.ErrMissingCredentials)
	}

	var all []CollectionRelease
	for page := 1; ; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(collectionPageSize))

		endpoint := fmt.Sprintf("/users/%s/collection/folders/0/releases", url.PathEscape(s.username))
		var response collectionResponse
		if err := s.doRequest(ctx, endpoint, params, &response); err != nil {
			return nil, err
		}

		if len(response.Releases) == 0 {
			break
		}
		all = append(all, response.Releases...)

		if response.Pagination.Page >= response.Pagination.Pages {
			break
		}
	}

	return all, nil
}

// searchCollection filters the user's collection with score-based matching.
//
// A full-query substring match in title or artist scores 100; each query
// word longer than one character found in the combined text adds 10. Zero
// scores are dropped and results order by score, highest first.
func (s *DiscogsService) searchCollection(ctx context.Context, query string) ([]models.Album, error) {
	collection, err := s.Collection(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var words []string
	for _, word := range strings.Fields(q) {
		if len(word) > 1 {
			words = append(words, word)
		}
	}

	type scored struct {
		release CollectionRelease
		score   int
	}

	var matches []scored
	for _, release := range collection {
		info := release.BasicInformation
		title := strings.ToLower(info.Title)

		var artistNames []string
		for _, artist := range info.Artists {
			artistNames = append(artistNames, strings.ToLower(artist.Name))
		}
		artist := strings.Join(artistNames, " ")
		fullText := title + " " + artist

		score := 0
		if strings.Contains(title, q) || strings.Contains(artist, q) {
			score += 100
		}
		for _, word := range words {
			if strings.Contains(fullText, word) {
				score += 10
			}
		}

		if score > 0 {
			matches = append(matches, scored{release: release, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	albums := make([]models.Album, 0, len(matches))
	for _, match := range matches {
		albums = append(albums, FormatCollectionRelease(match.release))
	}
	return albums, nil
}

// GetAlbumDetails retrieves a single release by ID.
func (s *DiscogsService) GetAlbumDetails(ctx context.Context, id int) (*models.Album, error) {
	if !s.HasCredentials() {
		return nil, fmt.Errorf("%w: discogs token not set", shared.ErrMissingCredentials)
	}

	var release DiscogsRelease
	if err := s.doRequest(ctx, fmt.Sprintf("/releases/%d", id), nil, &release); err != nil {
		return nil, err
	}

	album := FormatRelease(release)
	return &album, nil
}

// ValidateCredentials probes the API with the given pair.
//
// Without a username a cheap catalog search checks the token; with one, the
// user profile and collection folders must both be readable. A rejected pair
// returns false with a nil error.
func (s *DiscogsService) ValidateCredentials(ctx context.Context, token, username string) (bool, error) {
	if username == "" {
		ok, err := s.probe(ctx, token, "/database/search?q=test&type=release&per_page=1")
		return ok, err
	}

	ok, err := s.probe(ctx, token, "/users/"+url.PathEscape(username))
	if err != nil || !ok {
		return false, err
	}
	return s.probe(ctx, token, "/users/"+url.PathEscape(username)+"/collection/folders")
}

// probe issues a single unretried GET and reports whether it succeeded.
func (s *DiscogsService) probe(ctx context.Context, token, endpoint string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	s.headers(req, token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// FormatSearchResult normalizes a catalog search row into an [models.Album].
func FormatSearchResult(result DiscogsSearchResult) models.Album {
	title := result.Title
	artist := ""
	// Catalog search rows combine the credit as "Artist - Title".
	if parts := strings.SplitN(result.Title, " - ", 2); len(parts) == 2 {
		artist = strings.TrimSpace(parts[0])
		title = strings.TrimSpace(parts[1])
	}

	cover := result.CoverImage
	if cover == "" {
		cover = result.Thumb
	}

	return models.Album{
		ID:         result.ID,
		Title:      fallback(title, "Unknown Title"),
		Artist:     fallback(artist, "Unknown Artist"),
		Year:       fallback(result.Year, "Unknown Year"),
		CoverURL:   cover,
		Thumb:      result.Thumb,
		DiscogsURL: releaseURL(result.ID),
	}
}

// FormatCollectionRelease normalizes a collection row into an [models.Album].
func FormatCollectionRelease(release CollectionRelease) models.Album {
	info := release.BasicInformation

	artist := ""
	if len(info.Artists) > 0 {
		artist = info.Artists[0].Name
	}

	year := ""
	if info.Year > 0 {
		year = strconv.Itoa(info.Year)
	}

	return models.Album{
		ID:         release.ID,
		Title:      fallback(info.Title, "Unknown Title"),
		Artist:     fallback(artist, "Unknown Artist"),
		Year:       fallback(year, "Unknown Year"),
		CoverURL:   fallback(info.CoverImage, info.Thumb),
		Thumb:      info.Thumb,
		DiscogsURL: releaseURL(release.ID),
	}
}

// FormatRelease normalizes a full release into an [models.Album]. All artist
// credits join into one display string.
func FormatRelease(release DiscogsRelease) models.Album {
	var artistNames []string
	for _, artist := range release.Artists {
		artistNames = append(artistNames, artist.Name)
	}

	year := ""
	if release.Year > 0 {
		year = strconv.Itoa(release.Year)
	}

	cover := ""
	if len(release.Images) > 0 {
		cover = release.Images[0].URI
	}

	return models.Album{
		ID:         release.ID,
		Title:      fallback(release.Title, "Unknown Title"),
		Artist:     fallback(strings.Join(artistNames, ", "), "Unknown Artist"),
		Year:       fallback(year, "Unknown Year"),
		CoverURL:   cover,
		DiscogsURL: releaseURL(release.ID),
	}
}

func releaseURL(id int) string {
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("%s/release/%d", discogsSiteURL, id)
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// sleepContext waits for the duration or the context, whichever ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
