package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggmhub/hub/internal/agents"
	"github.com/ggmhub/hub/internal/app/builders"
	"github.com/ggmhub/hub/internal/cadence"
	"github.com/ggmhub/hub/internal/config"
	"github.com/ggmhub/hub/internal/content"
	"github.com/ggmhub/hub/internal/remote"
	"github.com/ggmhub/hub/internal/store"
)

var (
	agentsAll bool
	runsLimit int
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and manage scheduled agents",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agent schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st *store.Store, _ *config.Config) error {
			schedules, err := st.GetAgentSchedules(ctx, !agentsAll)
			if err != nil {
				return err
			}
			if len(schedules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No agents found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tSCHEDULE\tENABLED\tLAST RUN\tNEXT RUN")
			for _, s := range schedules {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\t%s\n",
					s.ID, s.Name, s.AgentType, describeSchedule(s), s.Enabled, formatLastRun(s.LastRun), orDash(s.NextRun))
			}
			return w.Flush()
		})
	},
}

var agentsNextCmd = &cobra.Command{
	Use:   "next <agent-id>",
	Short: "Show when an agent fires next, computed from now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAgentID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, st *store.Store, _ *config.Config) error {
			s, err := st.GetAgentSchedule(ctx, id)
			if err != nil {
				return err
			}
			next := cadence.ComputeNextRun(s.ScheduleType, s.ScheduleDay, s.ScheduleTime, time.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): next run %s\n", s.Name, describeSchedule(*s), next.Format(time.RFC1123))
			if stored, ok := s.ParseNextRun(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "stored next run: %s\n", stored.Format(time.RFC1123))
			}
			return nil
		})
	},
}

var agentsRunCmd = &cobra.Command{
	Use:   "run <agent-id>",
	Short: "Run an agent once, now, in this process",
	Long: `Run an agent immediately regardless of its schedule or enabled flag. The
run is recorded and the agent's next run is recomputed, exactly as for a
scheduled run. The run is refused while the same agent is running in
another process sharing the database, such as ggmhub serve. To trigger an agent on a running hub from another machine,
use: ggmhub send run_agent '{"agent_id": N}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAgentID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, st *store.Store, cfg *config.Config) error {
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			resolver, err := builders.NewLLMBuilder(cfg, log).Build()
			if err != nil {
				return err
			}
			generator := content.NewLLMGenerator(resolver, cfg.LLM.Temperature, log)
			scheduler := agents.NewScheduler(st, agents.ContentExecutors(generator), agents.Config{}, log)

			outcome, err := scheduler.RunNow(ctx, id)
			if err != nil {
				return err
			}
			if outcome.Status == agents.RunFailed {
				return fmt.Errorf("run %d failed: %s", outcome.RunID, outcome.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ run %d %s: %s\nnext run %s\n",
				outcome.RunID, outcome.Status, outcome.Title, outcome.NextRun.Format(time.RFC1123))
			return nil
		})
	},
}

var agentsRunsCmd = &cobra.Command{
	Use:   "runs [agent-id]",
	Short: "Show recent agent runs, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		if len(args) == 1 {
			var err error
			if id, err = parseAgentID(args[0]); err != nil {
				return err
			}
		}
		return withStore(func(ctx context.Context, st *store.Store, _ *config.Config) error {
			runs, err := st.ListAgentRuns(ctx, id, runsLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tAGENT\tTYPE\tSTATUS\tSTARTED\tFINISHED\tOUTPUT")
			for _, r := range runs {
				output := r.OutputTitle
				if r.Status == agents.RunFailed {
					output = r.ErrorMessage
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.AgentID, r.AgentType, r.Status, formatLastRun(&r.StartedAt),
					formatLastRun(r.FinishedAt), orDash(remote.TruncateTo(output, 60)))
			}
			return w.Flush()
		})
	},
}

var agentsImportCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Create or update agents and clients from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st *store.Store, _ *config.Config) error {
			res, err := st.ImportFile(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ agents: %d created, %d updated; clients: %d created\n",
				res.AgentsCreated, res.AgentsUpdated, res.ClientsCreated)
			return nil
		})
	},
}

var agentsEnableCmd = &cobra.Command{
	Use:   "enable <agent-id>",
	Short: "Enable an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  setEnabled(true),
}

var agentsDisableCmd = &cobra.Command{
	Use:   "disable <agent-id>",
	Short: "Disable an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  setEnabled(false),
}

func setEnabled(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseAgentID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, st *store.Store, _ *config.Config) error {
			if err := st.SetAgentEnabled(ctx, id, enabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "agent %d enabled=%t\n", id, enabled)
			return nil
		})
	}
}

// withStore opens the configured store for the duration of fn.
func withStore(fn func(ctx context.Context, st *store.Store, cfg *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(context.Background(), st, cfg)
}

func parseAgentID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid agent id: %q", s)
	}
	return id, nil
}

func describeSchedule(s agents.Schedule) string {
	switch s.ScheduleType {
	case string(cadence.Daily):
		return fmt.Sprintf("daily %s", orDefault(s.ScheduleTime, "09:00"))
	case string(cadence.Monthly):
		return fmt.Sprintf("monthly, first %s %s", orDefault(s.ScheduleDay, "Monday"), orDefault(s.ScheduleTime, "09:00"))
	default:
		return fmt.Sprintf("%s %s %s", s.ScheduleType, orDefault(s.ScheduleDay, "Monday"), orDefault(s.ScheduleTime, "09:00"))
	}
}

func formatLastRun(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	return orDefault(s, "-")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func init() {
	agentsListCmd.Flags().BoolVarP(&agentsAll, "all", "a", false, "Include disabled agents")
	agentsRunsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to show")

	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsNextCmd)
	agentsCmd.AddCommand(agentsRunCmd)
	agentsCmd.AddCommand(agentsRunsCmd)
	agentsCmd.AddCommand(agentsImportCmd)
	agentsCmd.AddCommand(agentsEnableCmd)
	agentsCmd.AddCommand(agentsDisableCmd)
}
