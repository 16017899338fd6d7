// package services defines clients for the HTTP APIs the app talks to
//
// Discogs (catalog and collection), GitHub (device-flow auth and gists)
package services

import (
	"context"

	"vinylog/internal/models"
)

// Catalog defines the interface for album lookup backends.
type Catalog interface {
	// SearchAlbums finds albums matching a free-text query. Searches the
	// user's collection when a username is configured, the global catalog
	// otherwise.
	SearchAlbums(ctx context.Context, query string) ([]models.Album, error)

	// GetAlbumDetails retrieves a single release by its catalog ID.
	GetAlbumDetails(ctx context.Context, id int) (*models.Album, error)

	// ValidateCredentials checks a token/username pair against the live API.
	// Returns false with a nil error when the pair is simply rejected.
	ValidateCredentials(ctx context.Context, token, username string) (bool, error)
}
