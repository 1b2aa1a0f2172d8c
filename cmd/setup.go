package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cadence/internal/repositories"
	"github.com/desertthunder/cadence/internal/shared"
)

// Setup creates the config file when missing and initializes the session store.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if !cmd.IsSet("config") && r.configPath != "" {
		configPath = r.configPath
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.writePlain("✓ Created %s\n", configPath)
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return err
	}
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return err
	}

	r.logger.Info("initializing session store", "driver", config.Storage.Driver, "path", config.Storage.Path)

	store, err := repositories.Open(ctx, config.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	r.writePlain("✓ Session storage ready (%s)\n", config.Storage.Driver)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set backend.url, backend.api_key and music.client_id in %s\n", configPath)
	r.writePlain("2. Run 'cadence auth login' to sign in\n")
	return nil
}
