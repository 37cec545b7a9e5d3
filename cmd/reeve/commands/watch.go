package commands

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		inventoryPath string
		limit         string
	)

	cmd := &cobra.Command{
		Use:   "watch <play-file>",
		Short: "Re-run check mode whenever the playbook or inventory changes",
		Long: `Watch the playbook and inventory files and run a check-mode pass on
every change. Nothing is ever applied; the command is a live preview of
what a run would change while the files are edited.`,
		Example: `  reeve watch site.yml -i inventory.yml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(configPath)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			defer watcher.Close()

			for _, path := range []string{args[0], inventoryPath} {
				if err := watcher.Add(path); err != nil {
					return &ExitError{Code: 2, Err: err}
				}
			}

			runCheck := func() {
				rep, err := executeRun(cmd.Context(), settings, args[0], inventoryPath, limit, true)
				if rep == nil {
					log.Error().Err(err).Msg("check run could not start")
					return
				}
				if printErr := printReport(rep); printErr != nil {
					log.Error().Err(printErr).Msg("failed to print report")
				}
				if err != nil {
					log.Warn().Err(err).Msg("check run finished with failures")
				}
			}

			log.Info().Str("play", args[0]).Str("inventory", inventoryPath).
				Msg("watching for changes")
			runCheck()

			// Editors fire bursts of events per save; debounce them.
			var pending *time.Timer
			debounce := 500 * time.Millisecond

			for {
				select {
				case <-cmd.Context().Done():
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
						continue
					}
					// Some editors replace the file; re-add the watch.
					if event.Has(fsnotify.Create) {
						_ = watcher.Add(event.Name)
					}
					if pending != nil {
						pending.Stop()
					}
					pending = time.AfterFunc(debounce, runCheck)

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(err).Msg("watch error")
				}
			}
		},
	}

	cmd.Flags().StringVarP(&inventoryPath, "inventory", "i", "", "inventory file path")
	cmd.Flags().StringVar(&limit, "limit", "", "restrict hosts by glob on host or group name")
	cmd.MarkFlagRequired("inventory")

	return cmd
}
