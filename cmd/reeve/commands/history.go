package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reeveops/reeve/pkg/history"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long: `Inspect the local run history database.

Every completed run is recorded with its per-task results. The history
is an audit log: runs never read prior state from it.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	settings, err := loadSettings(configPath)
	if err != nil {
		return nil, err
	}
	return history.Open(cmd.Context(), settings.History.Path)
}

func newHistoryListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			if jsonOutput {
				data, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return &ExitError{Code: 2, Err: err}
				}
				fmt.Println(string(data))
				return nil
			}

			if len(runs) == 0 {
				fmt.Println("no recorded runs")
				return nil
			}
			for _, run := range runs {
				mode := ""
				if run.CheckMode {
					mode = " (check)"
				}
				fmt.Printf("%s  %s  %-6s%s  changed=%d unchanged=%d skipped=%d failed=%d\n",
					run.StartedAt.Local().Format(time.RFC3339),
					run.ID, run.Status, mode,
					run.Changed, run.Unchanged, run.Skipped, run.Failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the task results of one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			results, err := store.ListResults(cmd.Context(), args[0])
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			if jsonOutput {
				data, err := json.MarshalIndent(struct {
					Run     *history.RunRecord      `json:"run"`
					Results []*history.ResultRecord `json:"results"`
				}{run, results}, "", "  ")
				if err != nil {
					return &ExitError{Code: 2, Err: err}
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("run %s  playbook=%s  status=%s  started=%s  duration=%s\n",
				run.ID, run.Playbook, run.Status,
				run.StartedAt.Local().Format(time.RFC3339), run.Duration)
			for _, res := range results {
				line := fmt.Sprintf("  %-16s %-24s [%s] %s", res.Host, res.Task, res.Module, res.Status)
				if res.Message != "" {
					line += ": " + res.Message
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete recorded runs older than a cutoff",
		Example: `  # Drop everything older than 30 days
  reeve history prune --older-than 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			defer store.Close()

			pruned, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			fmt.Printf("pruned %d run(s)\n", pruned)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff for pruning")

	return cmd
}
