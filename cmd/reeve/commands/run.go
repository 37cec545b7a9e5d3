package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reeveops/reeve/pkg/facts"
	"github.com/reeveops/reeve/pkg/history"
	"github.com/reeveops/reeve/pkg/inventory"
	"github.com/reeveops/reeve/pkg/modules"
	"github.com/reeveops/reeve/pkg/play"
	"github.com/reeveops/reeve/pkg/report"
	"github.com/reeveops/reeve/pkg/runner"
	"github.com/reeveops/reeve/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		inventoryPath string
		limit         string
		check         bool
		forks         int
		maxRetries    int
	)

	cmd := &cobra.Command{
		Use:   "run <play-file>",
		Short: "Apply a playbook to inventory hosts",
		Long: `Apply a playbook to the hosts it targets.

For every task the module first probes the host's current state. A host
already in the desired state is reported unchanged; otherwise the module
applies the change and re-probes to confirm convergence. The first
failed task on a host skips that host's remaining tasks; other hosts
continue unaffected.

Exit codes: 0 when every host converged, 1 when the run finished with
failures, 2 when the inventory or playbook could not be loaded.`,
		Example: `  # Apply site.yml to the hosts in inventory.yml
  reeve run site.yml -i inventory.yml

  # Preview without changing anything
  reeve run site.yml -i inventory.yml --check

  # Only the web* hosts, 20 at a time
  reeve run site.yml -i inventory.yml --limit 'web*' --forks 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(configPath)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			if forks > 0 {
				settings.Runner.Forks = forks
			}
			if maxRetries >= 0 {
				settings.Runner.MaxRetries = maxRetries
			}

			rep, runErr := executeRun(cmd.Context(), settings, args[0], inventoryPath, limit, check)
			if rep == nil {
				return &ExitError{Code: 2, Err: runErr}
			}

			if err := printReport(rep); err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			recordHistory(cmd.Context(), settings, rep)

			if runErr != nil {
				return &ExitError{Code: 1, Err: runErr}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inventoryPath, "inventory", "i", "", "inventory file path")
	cmd.Flags().StringVar(&limit, "limit", "", "restrict hosts by glob on host or group name")
	cmd.Flags().BoolVar(&check, "check", false, "probe only, apply nothing")
	cmd.Flags().IntVar(&forks, "forks", 0, "max hosts executed concurrently")
	cmd.Flags().IntVar(&maxRetries, "max-retries", -1, "max retries of transient transport failures")
	cmd.MarkFlagRequired("inventory")

	return cmd
}

// executeRun loads inputs and drives one run. A nil report means the
// run never started.
func executeRun(ctx context.Context, settings *Settings, playPath, inventoryPath, limit string, check bool) (*report.RunReport, error) {
	inv, err := inventory.NewParser().ParseFile(inventoryPath)
	if err != nil {
		return nil, err
	}

	registry := modules.NewRegistry()
	pb, err := play.NewParser(registry.Names(), knownFactKeys(inv)).ParseFile(playPath)
	if err != nil {
		return nil, err
	}

	telCfg := settings.telemetryConfig(appVersion)
	logger, err := telemetry.NewLogger(telCfg.Logging)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(telCfg.Metrics)
	if err != nil {
		return nil, err
	}
	metrics.StartMetricsServer(logger)
	tracer, err := telemetry.NewTracer(telCfg.Tracing, telCfg.ServiceName, telCfg.ServiceVersion)
	if err != nil {
		return nil, err
	}
	defer tracer.Shutdown(ctx)

	r := runner.New(runner.NewSSHDialer(settings.sshConfig()), registry, runner.Options{
		Forks:       settings.Runner.Forks,
		Check:       check,
		Limit:       limit,
		MaxRetries:  settings.Runner.MaxRetries,
		TaskTimeout: settings.taskTimeout(),
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      tracer,
	})

	return r.Run(ctx, inv, pb)
}

// knownFactKeys is the closed fact-key set guards may reference:
// discovered fact keys plus every inventory variable key.
func knownFactKeys(inv *inventory.Inventory) map[string]bool {
	known := facts.KnownKeys()
	for _, h := range inv.Hosts() {
		for k := range h.Vars {
			known[k] = true
		}
	}
	return known
}

func printReport(rep *report.RunReport) error {
	if jsonOutput {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Print(rep.Render())
	return nil
}

// recordHistory persists the report. History is an audit log; a failure
// to write it never fails the run.
func recordHistory(ctx context.Context, settings *Settings, rep *report.RunReport) {
	if !settings.History.Enabled {
		return
	}
	if err := os.MkdirAll(filepath.Dir(settings.History.Path), 0o755); err != nil {
		log.Warn().Err(err).Msg("failed to create history directory")
		return
	}
	store, err := history.Open(ctx, settings.History.Path)
	if err != nil {
		log.Warn().Err(err).Msg("failed to open run history")
		return
	}
	defer store.Close()
	if err := store.RecordRun(ctx, rep); err != nil {
		log.Warn().Err(err).Msg("failed to record run history")
	}
}
