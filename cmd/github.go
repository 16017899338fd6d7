package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

// GitHubLogin runs the device flow and performs an initial sync.
func (r *Runner) GitHubLogin(ctx context.Context, cmd *cli.Command) error {
	user, err := r.engine.Login(ctx, func(userCode, verificationURI string) {
		r.writePlainHeader("GitHub Device Login")
		r.writePlain("Visit:      %s\n", verificationURI)
		r.writePlain("Enter code: %s\n", userCode)
		r.writePlainln("Waiting for authorization...")
	})
	if err != nil {
		return fmt.Errorf("github login failed: %w", err)
	}

	r.writePlain("✓ Logged in as %s\n", user.DisplayName())
	return nil
}

// GitHubLogout drops the GitHub session.
func (r *Runner) GitHubLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.engine.Logout(); err != nil {
		return fmt.Errorf("github logout failed: %w", err)
	}

	r.writePlain("✓ Logged out; the sync gist is kept for the next login\n")
	return nil
}

// GitHubStatus shows the session state, profile and sync recency.
func (r *Runner) GitHubStatus(ctx context.Context, cmd *cli.Command) error {
	r.writePlainHeader("GitHub Status")
	r.writePlain("State: %s\n", r.engine.State())

	session, authed := r.vault.GitHub()
	if !authed {
		r.writePlain("Not logged in; run 'vinylog github login'\n")
		return nil
	}

	if session.User != nil {
		r.writePlain("User:  %s\n", session.User.DisplayName())
	}
	if session.GistID != "" {
		r.writePlain("Gist:  %s\n", session.GistID)
	}

	lastSync := r.store.LastSync()
	if lastSync.IsZero() {
		r.writePlain("Last sync: never\n")
	} else {
		r.writePlain("Last sync: %s\n", lastSync.Format(time.RFC3339))
	}
	return nil
}
