package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ggmhub/hub/internal/app"
	"github.com/ggmhub/hub/internal/logger"
)

var serveLogLevel string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run this node until interrupted",
	Long: `Start the node described by the configuration. A hub runs the agent
scheduler and the hub command set; a field node runs the field command set.
Both poll the shared mailbox for commands addressed to their node id.

SIGINT or SIGTERM stops the node gracefully: an agent run or command in
progress is allowed to finish.`,
	RunE: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveLogLevel != "" {
		if !logger.ValidLevel(serveLogLevel) {
			return fmt.Errorf("invalid log level: %s", serveLogLevel)
		}
		cfg.Logging.Level = serveLogLevel
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	logger.SetDefault(log)

	log.Info("🚀 Starting GGM Hub node",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "node", Value: cfg.Node.ID},
		logger.Field{Key: "role", Value: cfg.Node.Role},
		logger.Field{Key: "transport", Value: cfg.Transport.Kind})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, log).Run(ctx); err != nil {
		log.Error("Node stopped with error", err)
		return err
	}
	log.Info("👋 Node stopped gracefully")
	return nil
}

func init() {
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
}
