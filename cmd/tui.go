package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"vinylog/internal/shared"
	"vinylog/internal/ui"
)

// TUI launches the interactive terminal UI for logging plays.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if !r.discogs.HasCredentials() {
		return fmt.Errorf("%w: run 'vinylog discogs connect' first", shared.ErrMissingCredentials)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/vinylog-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := ui.NewModel(ctx, r.discogs, r.store)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
