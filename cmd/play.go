package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"vinylog/internal/models"
	"vinylog/internal/shared"
)

// PlayLog fetches a release from Discogs and records a play of it.
func (r *Runner) PlayLog(ctx context.Context, cmd *cli.Command) error {
	rawID := cmd.StringArg("album-id")
	if rawID == "" {
		return fmt.Errorf("%w: album id is required", shared.ErrMissingArgument)
	}
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return fmt.Errorf("%w: album id must be numeric, got %q", shared.ErrInvalidArgument, rawID)
	}
	if !r.discogs.HasCredentials() {
		return fmt.Errorf("%w: run 'vinylog discogs connect' first", shared.ErrMissingCredentials)
	}

	date := cmd.String("date")
	switch {
	case cmd.Bool("undated"):
		date = ""
	case date == "":
		date = time.Now().Format(models.DateLayout)
	default:
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			return fmt.Errorf("%w: date must be %s, got %q", shared.ErrInvalidArgument, models.DateLayout, date)
		}
	}

	album, err := r.discogs.GetAlbumDetails(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch release: %w", err)
	}

	play, err := r.store.AddPlay(models.Play{
		Title:        album.Title,
		Artist:       album.Artist,
		Year:         album.Year,
		CoverURL:     album.CoverURL,
		DiscogsURL:   album.DiscogsURL,
		DateListened: date,
	})
	if err != nil {
		return fmt.Errorf("failed to log play: %w", err)
	}

	r.writePlain("✓ Logged %s - %s [%s]\n", play.Artist, play.Title, dateOrUndated(play))
	r.writePlain("Play id: %s\n", play.ID)
	return nil
}

// PlayDelete removes a play from the history by id.
func (r *Runner) PlayDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("play-id")
	if id == "" {
		return fmt.Errorf("%w: play id is required", shared.ErrMissingArgument)
	}

	if err := r.store.DeletePlay(id); err != nil {
		return fmt.Errorf("failed to delete play: %w", err)
	}

	r.writePlain("✓ Deleted play %s\n", id)
	return nil
}

// PlayHistory lists the logged plays, newest first.
func (r *Runner) PlayHistory(ctx context.Context, cmd *cli.Command) error {
	history := r.store.LoadPlayHistory()

	if cmd.Bool("json") {
		return r.writeJSON(history, cmd.Bool("pretty"))
	}

	if len(history) == 0 {
		r.writePlain("No plays logged yet\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Play History (%d plays)", len(history)))
	for i, play := range history {
		r.writePlain("%d. %s - %s [%s]\n", i+1, play.Artist, play.Title, dateOrUndated(play))
		r.writePlain("   id: %s\n", play.ID)
	}
	return nil
}

// PlayStats shows the aggregate play count and sync staleness.
func (r *Runner) PlayStats(ctx context.Context, cmd *cli.Command) error {
	stats := r.store.Stats()
	history := r.store.LoadPlayHistory()
	lastSync := r.store.LastSync()

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"totalPlays":  stats.TotalPlays,
			"loggedPlays": len(history),
			"lastSync":    lastSync,
		}, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Play Stats")
	r.writePlain("Total plays:  %d\n", stats.TotalPlays)
	r.writePlain("Logged plays: %d\n", len(history))
	if lastSync.IsZero() {
		r.writePlain("Last sync:    never\n")
	} else {
		r.writePlain("Last sync:    %s\n", lastSync.Format(time.RFC3339))
	}
	return nil
}

// PlayClear wipes the play history and stats. Requires --yes.
func (r *Runner) PlayClear(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: pass --yes to clear all play data", shared.ErrMissingArgument)
	}

	if err := r.store.ClearAllData(); err != nil {
		return fmt.Errorf("failed to clear play data: %w", err)
	}

	r.writePlain("✓ Play history and stats cleared\n")
	return nil
}

func dateOrUndated(play models.Play) string {
	if play.DateListened == "" {
		return "undated"
	}
	return play.DateListened
}
