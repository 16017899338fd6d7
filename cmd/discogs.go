package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"vinylog/internal/shared"
)

// DiscogsConnect validates a Discogs credential pair and stores it in the vault.
func (r *Runner) DiscogsConnect(ctx context.Context, cmd *cli.Command) error {
	token := cmd.String("token")
	username := cmd.String("username")

	r.logger.Info("validating discogs credentials", "username", username)

	valid, err := r.vault.SetDiscogsCredentials(ctx, token, username)
	if err != nil {
		return fmt.Errorf("failed to store discogs credentials: %w", err)
	}
	if !valid {
		r.writePlain("✗ Discogs rejected the credentials; nothing was saved\n")
		return fmt.Errorf("%w: discogs rejected the token", shared.ErrInvalidCredentials)
	}

	r.discogs.SetCredentials(token, username)

	r.writePlain("✓ Discogs credentials saved\n")
	if username != "" {
		r.writePlain("Searches will rank your collection (user: %s)\n", username)
	} else {
		r.writePlain("Searches will use the public Discogs catalog\n")
	}
	return nil
}

// DiscogsSearch searches the catalog or collection for albums matching a query.
func (r *Runner) DiscogsSearch(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: search query is required", shared.ErrMissingArgument)
	}
	if !r.discogs.HasCredentials() {
		return fmt.Errorf("%w: run 'vinylog discogs connect' first", shared.ErrMissingCredentials)
	}

	albums, err := r.discogs.SearchAlbums(ctx, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(albums, cmd.Bool("pretty"))
	}

	if len(albums) == 0 {
		r.writePlain("No albums matched %q\n", query)
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Results for %q", query))
	for i, album := range albums {
		r.writePlain("%d. %s - %s (%s)\n", i+1, album.Artist, album.Title, album.Year)
		r.writePlain("   id: %d  %s\n", album.ID, album.DiscogsURL)
	}
	return nil
}

// DiscogsShow fetches the full release details for a Discogs release id.
func (r *Runner) DiscogsShow(ctx context.Context, cmd *cli.Command) error {
	rawID := cmd.StringArg("id")
	if rawID == "" {
		return fmt.Errorf("%w: release id is required", shared.ErrMissingArgument)
	}
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return fmt.Errorf("%w: release id must be numeric, got %q", shared.ErrInvalidArgument, rawID)
	}
	if !r.discogs.HasCredentials() {
		return fmt.Errorf("%w: run 'vinylog discogs connect' first", shared.ErrMissingCredentials)
	}

	album, err := r.discogs.GetAlbumDetails(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch release: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(album, cmd.Bool("pretty"))
	}

	r.writePlainHeader(album.Title)
	r.writePlain("Artist: %s\n", album.Artist)
	r.writePlain("Year:   %s\n", album.Year)
	r.writePlain("URL:    %s\n", album.DiscogsURL)
	if album.CoverURL != "" {
		r.writePlain("Cover:  %s\n", album.CoverURL)
	}
	return nil
}
