package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cadence/internal/shared"
)

func main() {
	_ = godotenv.Load()
	logger := shared.NewLogger(nil)

	configPath := "config.toml"
	if p := os.Getenv("CADENCE_CONFIG"); p != "" {
		configPath = p
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := shared.LoadConfig(configPath)
		if err != nil {
			logger.Fatalf("failed to load %s: %v", configPath, err)
		}
		config = loaded
	}
	config.ApplyEnv()
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "cadence",
		Usage:    "Control Music Service playback from the terminal",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	err := app.Run(ctx, os.Args)
	if cerr := runner.Close(); cerr != nil {
		logger.Warn("failed to close session store", "err", cerr)
	}
	if err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
