package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ggmhub/hub/internal/config"
	"github.com/ggmhub/hub/internal/logger"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "ggmhub",
	Short: "GGM Hub - agent scheduling and remote commands for a ground maintenance business",
	Long: `ggmhub runs on the office PC (hub) and the field laptop. The hub runs
recurring content agents and executes commands queued by the laptop; the
laptop executes commands queued by the hub. Both share a command mailbox.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "./.env", "Optional .env file loaded before the config")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(agentsCmd)
}

// loadConfig reads the .env file and the config, and validates it.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvOptional(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed:\n%w", errors.Join(errs...))
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}
