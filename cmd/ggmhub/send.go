package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ggmhub/hub/internal/app/builders"
	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/remote"
)

var sendTarget string

var sendCmd = &cobra.Command{
	Use:   "send <command> [json-payload]",
	Short: "Queue a command for another node",
	Example: `  ggmhub send ping --target laptop
  ggmhub send run_agent '{"agent_id": 3}'
  ggmhub send send_reminders '{"date": "2025-03-06"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{}
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
				return fmt.Errorf("payload must be a JSON object: %w", err)
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}

		transport, closer, err := builders.NewTransportBuilder(cfg, log).Build()
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}

		target := sendTarget
		if target == "" {
			target = cfg.Node.Peer
		}
		res := remote.NewSender(transport, log).Send(cmd.Context(), args[0], payload, cfg.Node.ID, target)
		if !res.Success {
			log.Warn("command not queued", logger.Field{Key: "error", Value: res.Message})
			return fmt.Errorf("send failed: %s", res.Message)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s (id %s)\n", res.Message, res.ID)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendTarget, "target", "t", "", "Target node id (default: node.peer)")
}
