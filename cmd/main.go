package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"vinylog/internal/services"
	"vinylog/internal/shared"
	"vinylog/internal/store"
	vsync "vinylog/internal/sync"
	"vinylog/internal/vault"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	discogs := services.NewDiscogsService(config.Credentials.Discogs.Token, config.Credentials.Discogs.Username, config.Sync, logger)
	github := services.NewGitHubClient(config.Credentials.GitHub.ClientID, config.Sync, logger)

	backend, err := vault.NewBackend(config.Vault)
	if err != nil {
		logger.Fatalf("invalid vault configuration: %v", err)
	}
	credVault, err := vault.New(backend, discogs, logger)
	if err != nil {
		logger.Fatalf("failed to open credential vault: %v", err)
	}

	// Stored credentials win over the config seed.
	if creds, ok := credVault.Discogs(); ok {
		discogs.SetCredentials(creds.Token, creds.Username)
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		logger.Fatalf("failed to run migrations: %v", err)
	}

	playStore := store.New(db, logger)
	engine := vsync.NewEngine(github, credVault, playStore, config.Sync, logger)
	engine.SetNotifier(vsync.LogNotifier{Logger: logger})
	engine.SetCredentialSink(discogs)
	playStore.SetNotifier(engine)

	runner := NewRunner(RunnerOpts{
		Config:  config,
		Store:   playStore,
		Vault:   credVault,
		Discogs: discogs,
		GitHub:  github,
		Engine:  engine,
		Logger:  logger,
	})

	app := &cli.Command{
		Name:     "vinylog",
		Usage:    "Track vinyl plays with Discogs search and gist-backed sync",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
