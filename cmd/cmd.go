// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for the database and config file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write an example config.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// discogsCommand handles Discogs credential and catalog operations.
func discogsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "discogs",
		Aliases: []string{"dc"},
		Usage:   "Discogs album search and credentials",
		Commands: []*cli.Command{
			{
				Name:  "connect",
				Usage: "Validate and store Discogs API credentials",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Discogs personal access token",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "username",
						Aliases: []string{"u"},
						Usage:   "Discogs username (enables collection search)",
					},
				},
				Action: r.DiscogsConnect,
			},
			{
				Name:  "search",
				Usage: "Search for an album by title or artist",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "query",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.DiscogsSearch,
			},
			{
				Name:  "show",
				Usage: "Show full release details for a Discogs release id",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.DiscogsShow,
			},
		},
	}
}

// playCommand handles play-history operations.
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Log and manage vinyl plays",
		Commands: []*cli.Command{
			{
				Name:  "log",
				Usage: "Log a play of a Discogs release",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "album-id",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "date",
						Aliases: []string{"d"},
						Usage:   "Listen date (YYYY-MM-DD, defaults to today)",
					},
					&cli.BoolFlag{
						Name:  "undated",
						Usage: "Log the play without a listen date",
					},
				},
				Action: r.PlayLog,
			},
			{
				Name:  "delete",
				Usage: "Delete a logged play by id",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "play-id",
					},
				},
				Action: r.PlayDelete,
			},
			{
				Name:    "history",
				Aliases: []string{"ls"},
				Usage:   "List the play history, newest first",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.PlayHistory,
			},
			{
				Name:  "stats",
				Usage: "Show aggregate play stats",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.PlayStats,
			},
			{
				Name:  "clear",
				Usage: "Delete the entire play history and reset stats",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm the wipe",
					},
				},
				Action: r.PlayClear,
			},
		},
	}
}

// githubCommand handles the GitHub session used for gist sync.
func githubCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "github",
		Aliases: []string{"gh"},
		Usage:   "GitHub device-flow login for sync",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authenticate with GitHub using the device flow",
				Action: r.GitHubLogin,
			},
			{
				Name:   "logout",
				Usage:  "Drop the GitHub session (keeps the sync gist)",
				Action: r.GitHubLogout,
			},
			{
				Name:   "status",
				Usage:  "Show session state, user, gist and last sync",
				Action: r.GitHubStatus,
			},
		},
	}
}

// syncCommand handles manual gist sync operations.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync play history with the GitHub gist",
		Commands: []*cli.Command{
			{
				Name:   "push",
				Usage:  "Merge local history into the gist and upload",
				Action: r.SyncPush,
			},
			{
				Name:   "pull",
				Usage:  "Merge the gist into local history",
				Action: r.SyncPull,
			},
		},
	}
}

// exportCommand writes the play history to a local file.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export play history to CSV, Markdown or plain text",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format: csv, markdown or text",
				Value:   "csv",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path (base name for csv, directory for markdown)",
			},
			&cli.BoolFlag{
				Name:  "cover",
				Usage: "Download the newest play's cover into a markdown export",
			},
		},
		Action: r.Export,
	}
}

// tuiCommand returns the top-level TUI command for interactive play logging.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for logging plays",
		Action:  r.TUI,
	}
}
