package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"vinylog/internal/formatter"
	"vinylog/internal/shared"
)

// Export writes the play history to CSV, Markdown or plain text.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	output := cmd.String("output")

	history := r.store.LoadPlayHistory()
	stats := r.store.Stats()

	switch format {
	case "csv":
		result, err := formatter.WriteCSVExport(history, stats, output)
		if err != nil {
			return fmt.Errorf("csv export failed: %w", err)
		}
		r.writePlain("✓ Exported %d plays\n", len(history))
		r.writePlain("Plays: %s\n", result.PlaysFile)
		r.writePlain("Stats: %s\n", result.StatsFile)

	case "markdown", "md":
		imageURL := ""
		if cmd.Bool("cover") && len(history) > 0 {
			imageURL = history[0].CoverURL
		}
		result, err := formatter.WriteMarkdownExport(history, stats, output, imageURL)
		if err != nil {
			return fmt.Errorf("markdown export failed: %w", err)
		}
		r.writePlain("✓ Exported %d plays to %s\n", len(history), result.Directory)
		for _, file := range result.Files {
			r.writePlain("  %s\n", file)
		}

	case "text", "txt":
		written, err := formatter.WriteTextExport(history, stats, output)
		if err != nil {
			return fmt.Errorf("text export failed: %w", err)
		}
		r.writePlain("✓ Exported %d plays to %s\n", len(history), written)

	default:
		return fmt.Errorf("%w: unknown format %q (want csv, markdown or text)", shared.ErrInvalidArgument, format)
	}

	return nil
}
