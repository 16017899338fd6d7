package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// SyncPush merges local history into the gist document and uploads it.
func (r *Runner) SyncPush(ctx context.Context, cmd *cli.Command) error {
	if err := r.engine.SyncToRemote(ctx); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	r.writePlain("✓ Pushed play history to the gist\n")
	return nil
}

// SyncPull merges the gist document into local history.
func (r *Runner) SyncPull(ctx context.Context, cmd *cli.Command) error {
	if err := r.engine.SyncFromRemote(ctx); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	r.writePlain("✓ Pulled play history from the gist\n")
	return nil
}
