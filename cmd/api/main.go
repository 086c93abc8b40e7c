package main

import (
	"fmt"
	"log/slog"
	"os"

	"zentrust-donations/internal/config"
	"zentrust-donations/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "donations",
		Short:         "ZenTrust donation intent service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())

	return cmd
}

// loadConfig reads .env (if any) into the environment, then parses and
// validates the configuration.
func loadConfig() (*config.Config, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found (ok in prod)")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Log, os.Stdout)
	slog.SetDefault(log)

	return cfg, log, nil
}
