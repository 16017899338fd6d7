package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"vinylog/internal/shared"
)

func fastSyncConfig() shared.SyncConfig {
	return shared.SyncConfig{
		MaxRetries:       3,
		RetryDelayMS:     1,
		RateLimitDelayMS: 1,
		PollCap:          5,
	}
}

func newTestDiscogs(t *testing.T, handler http.Handler) (*DiscogsService, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	srv := NewDiscogsService("test-token", "", fastSyncConfig(), nil)
	srv.baseURL = server.URL
	srv.limiter = rate.NewLimiter(rate.Inf, 1)
	return srv, server
}

func TestDiscogsSearchAlbums(t *testing.T) {
	t.Run("searches the catalog without a username", func(t *testing.T) {
		var gotPath, gotAuth string
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(discogsSearchResponse{Results: []DiscogsSearchResult{
				{ID: 123, Title: "Neil Young - Harvest", Year: "1972", CoverImage: "http://img/cover.jpg"},
			}})
		}))

		albums, err := srv.SearchAlbums(context.Background(), "harvest")
		if err != nil {
			t.Fatalf("SearchAlbums() error = %v", err)
		}

		if gotPath != "/database/search" {
			t.Errorf("path = %q, want /database/search", gotPath)
		}
		if gotAuth != "Discogs token=test-token" {
			t.Errorf("Authorization = %q", gotAuth)
		}
		if len(albums) != 1 {
			t.Fatalf("got %d albums, want 1", len(albums))
		}
		if albums[0].Artist != "Neil Young" || albums[0].Title != "Harvest" {
			t.Errorf("album = %+v", albums[0])
		}
		if albums[0].DiscogsURL != "https://www.discogs.com/release/123" {
			t.Errorf("DiscogsURL = %q", albums[0].DiscogsURL)
		}
	})

	t.Run("requires credentials", func(t *testing.T) {
		srv := NewDiscogsService("", "", fastSyncConfig(), nil)
		if _, err := srv.SearchAlbums(context.Background(), "x"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("scores collection matches", func(t *testing.T) {
		collection := collectionResponse{
			Pagination: collectionPagination{Page: 1, Pages: 1},
			Releases: []CollectionRelease{
				{ID: 1, BasicInformation: CollectionBasicInfo{Title: "Harvest", Artists: []DiscogsArtist{{Name: "Neil Young"}}, Year: 1972}},
				{ID: 2, BasicInformation: CollectionBasicInfo{Title: "Harvest Moon", Artists: []DiscogsArtist{{Name: "Neil Young"}}, Year: 1992}},
				{ID: 3, BasicInformation: CollectionBasicInfo{Title: "Blue", Artists: []DiscogsArtist{{Name: "Joni Mitchell"}}, Year: 1971}},
			},
		}

		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(collection)
		}))
		srv.username = "alice"

		albums, err := srv.SearchAlbums(context.Background(), "harvest moon")
		if err != nil {
			t.Fatalf("SearchAlbums() error = %v", err)
		}

		// "Harvest Moon" matches the full query (100) plus both words (20);
		// "Harvest" matches one word only. "Blue" scores zero and drops out.
		if len(albums) != 2 {
			t.Fatalf("got %d albums, want 2", len(albums))
		}
		if albums[0].ID != 2 {
			t.Errorf("top result ID = %d, want 2", albums[0].ID)
		}
		if albums[1].ID != 1 {
			t.Errorf("second result ID = %d, want 1", albums[1].ID)
		}
	})

	t.Run("drops non-matching collection items", func(t *testing.T) {
		collection := collectionResponse{
			Pagination: collectionPagination{Page: 1, Pages: 1},
			Releases: []CollectionRelease{
				{ID: 3, BasicInformation: CollectionBasicInfo{Title: "Blue", Artists: []DiscogsArtist{{Name: "Joni Mitchell"}}}},
			},
		}

		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(collection)
		}))
		srv.username = "alice"

		albums, err := srv.SearchAlbums(context.Background(), "zeppelin")
		if err != nil {
			t.Fatalf("SearchAlbums() error = %v", err)
		}
		if len(albums) != 0 {
			t.Errorf("got %d albums, want 0", len(albums))
		}
	})
}

func TestDiscogsCollection(t *testing.T) {
	t.Run("walks all pages", func(t *testing.T) {
		var pages atomic.Int32
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			page := r.URL.Query().Get("page")
			pages.Add(1)
			switch page {
			case "1":
				json.NewEncoder(w).Encode(collectionResponse{
					Pagination: collectionPagination{Page: 1, Pages: 2},
					Releases:   []CollectionRelease{{ID: 1}},
				})
			case "2":
				json.NewEncoder(w).Encode(collectionResponse{
					Pagination: collectionPagination{Page: 2, Pages: 2},
					Releases:   []CollectionRelease{{ID: 2}},
				})
			default:
				t.Errorf("unexpected page %q", page)
			}
		}))
		srv.username = "alice"

		releases, err := srv.Collection(context.Background())
		if err != nil {
			t.Fatalf("Collection() error = %v", err)
		}
		if len(releases) != 2 {
			t.Errorf("got %d releases, want 2", len(releases))
		}
		if got := pages.Load(); got != 2 {
			t.Errorf("server saw %d requests, want 2", got)
		}
	})

	t.Run("stops on an empty page", func(t *testing.T) {
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(collectionResponse{
				Pagination: collectionPagination{Page: 1, Pages: 5},
			})
		}))
		srv.username = "alice"

		releases, err := srv.Collection(context.Background())
		if err != nil {
			t.Fatalf("Collection() error = %v", err)
		}
		if len(releases) != 0 {
			t.Errorf("got %d releases, want 0", len(releases))
		}
	})

	t.Run("requires a username", func(t *testing.T) {
		srv := NewDiscogsService("tok", "", fastSyncConfig(), nil)
		if _, err := srv.Collection(context.Background()); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestDiscogsRetry(t *testing.T) {
	t.Run("retries a rate limit without consuming attempts", func(t *testing.T) {
		var calls atomic.Int32
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 4 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			json.NewEncoder(w).Encode(discogsSearchResponse{})
		}))

		// Four 429s exceed MaxRetries(3); the request must still succeed
		// because rate limiting does not count as a failed attempt.
		if _, err := srv.SearchAlbums(context.Background(), "x"); err != nil {
			t.Fatalf("SearchAlbums() error = %v", err)
		}
		if got := calls.Load(); got != 5 {
			t.Errorf("server saw %d requests, want 5", got)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))

		_, err := srv.SearchAlbums(context.Background(), "x")
		if err == nil {
			t.Fatal("expected error after exhausting retries")
		}
		if got := calls.Load(); got != 3 {
			t.Errorf("server saw %d requests, want 3", got)
		}
	})

	t.Run("honors context cancellation during backoff", func(t *testing.T) {
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		srv.sync.RateLimitDelayMS = 60_000

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := srv.SearchAlbums(ctx, "x")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected DeadlineExceeded, got %v", err)
		}
	})
}

func TestDiscogsGetAlbumDetails(t *testing.T) {
	t.Run("formats a full release", func(t *testing.T) {
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/releases/456" {
				t.Errorf("path = %q", r.URL.Path)
			}
			json.NewEncoder(w).Encode(DiscogsRelease{
				ID:      456,
				Title:   "Kind of Blue",
				Artists: []DiscogsArtist{{Name: "Miles Davis"}, {Name: "John Coltrane"}},
				Year:    1959,
				Images:  []DiscogsImage{{URI: "http://img/kob.jpg"}},
			})
		}))

		album, err := srv.GetAlbumDetails(context.Background(), 456)
		if err != nil {
			t.Fatalf("GetAlbumDetails() error = %v", err)
		}
		if album.Artist != "Miles Davis, John Coltrane" {
			t.Errorf("Artist = %q", album.Artist)
		}
		if album.Year != "1959" {
			t.Errorf("Year = %q", album.Year)
		}
		if album.CoverURL != "http://img/kob.jpg" {
			t.Errorf("CoverURL = %q", album.CoverURL)
		}
	})

	t.Run("maps a missing release", func(t *testing.T) {
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := srv.GetAlbumDetails(context.Background(), 999)
		if !errors.Is(err, shared.ErrAlbumNotFound) {
			t.Errorf("expected ErrAlbumNotFound, got %v", err)
		}
	})
}

func TestDiscogsValidateCredentials(t *testing.T) {
	t.Run("token-only probe hits the search endpoint", func(t *testing.T) {
		var gotPath string
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			json.NewEncoder(w).Encode(discogsSearchResponse{})
		}))

		ok, err := srv.ValidateCredentials(context.Background(), "tok", "")
		if err != nil {
			t.Fatalf("ValidateCredentials() error = %v", err)
		}
		if !ok {
			t.Error("expected credentials to validate")
		}
		if gotPath != "/database/search" {
			t.Errorf("path = %q", gotPath)
		}
	})

	t.Run("username probe checks profile and collection access", func(t *testing.T) {
		var paths []string
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))

		ok, err := srv.ValidateCredentials(context.Background(), "tok", "alice")
		if err != nil {
			t.Fatalf("ValidateCredentials() error = %v", err)
		}
		if !ok {
			t.Error("expected credentials to validate")
		}
		want := []string{"/users/alice", "/users/alice/collection/folders"}
		if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
			t.Errorf("paths = %v, want %v", paths, want)
		}
	})

	t.Run("rejected token reports false without error", func(t *testing.T) {
		srv, _ := newTestDiscogs(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		ok, err := srv.ValidateCredentials(context.Background(), "bad", "")
		if err != nil {
			t.Fatalf("ValidateCredentials() error = %v", err)
		}
		if ok {
			t.Error("expected credentials to be rejected")
		}
	})
}

func TestFormatAlbumData(t *testing.T) {
	t.Run("falls back for sparse search results", func(t *testing.T) {
		album := FormatSearchResult(DiscogsSearchResult{ID: 7})
		if album.Title != "Unknown Title" {
			t.Errorf("Title = %q", album.Title)
		}
		if album.Artist != "Unknown Artist" {
			t.Errorf("Artist = %q", album.Artist)
		}
		if album.Year != "Unknown Year" {
			t.Errorf("Year = %q", album.Year)
		}
	})

	t.Run("prefers cover image over thumb", func(t *testing.T) {
		album := FormatSearchResult(DiscogsSearchResult{ID: 7, Title: "A - B", CoverImage: "cover", Thumb: "thumb"})
		if album.CoverURL != "cover" {
			t.Errorf("CoverURL = %q", album.CoverURL)
		}

		album = FormatSearchResult(DiscogsSearchResult{ID: 7, Title: "A - B", Thumb: "thumb"})
		if album.CoverURL != "thumb" {
			t.Errorf("CoverURL = %q", album.CoverURL)
		}
	})

	t.Run("formats collection rows", func(t *testing.T) {
		album := FormatCollectionRelease(CollectionRelease{
			ID: 9,
			BasicInformation: CollectionBasicInfo{
				Title:   "Blue",
				Artists: []DiscogsArtist{{Name: "Joni Mitchell"}},
				Year:    1971,
				Thumb:   "thumb",
			},
		})
		if album.Artist != "Joni Mitchell" || album.Year != "1971" {
			t.Errorf("album = %+v", album)
		}
		if album.CoverURL != "thumb" {
			t.Errorf("CoverURL = %q", album.CoverURL)
		}
	})
}
