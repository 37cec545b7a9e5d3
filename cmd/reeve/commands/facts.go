package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/reeveops/reeve/pkg/facts"
	"github.com/reeveops/reeve/pkg/inventory"
	"github.com/reeveops/reeve/pkg/modules"
	"github.com/reeveops/reeve/pkg/runner"
)

func newFactsCommand() *cobra.Command {
	var inventoryPath string

	cmd := &cobra.Command{
		Use:   "facts <host>",
		Short: "Gather and print facts from one inventory host",
		Long: `Connect to a single inventory host, gather its facts and print
them. Inventory host variables are merged in with the same precedence a
run uses: a variable pins the fact it names.`,
		Example: `  reeve facts web1 -i inventory.yml
  reeve facts web1 -i inventory.yml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(configPath)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			inv, err := inventory.NewParser().ParseFile(inventoryPath)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			host := inv.Host(args[0])
			if host == nil {
				return &ExitError{Code: 2, Err: &inventory.Error{
					Reason: "host not found in inventory",
					Host:   args[0],
				}}
			}

			gathered, err := gatherHostFacts(cmd.Context(), settings, host)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			if jsonOutput {
				data, err := json.MarshalIndent(gathered, "", "  ")
				if err != nil {
					return &ExitError{Code: 2, Err: err}
				}
				fmt.Println(string(data))
				return nil
			}

			keys := make([]string, 0, len(gathered))
			for k := range gathered {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%-24s %s\n", k, gathered[k])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inventoryPath, "inventory", "i", "", "inventory file path")
	cmd.MarkFlagRequired("inventory")

	return cmd
}

func gatherHostFacts(ctx context.Context, settings *Settings, host *inventory.Host) (map[string]string, error) {
	dialer := runner.NewSSHDialer(settings.sshConfig())
	sess, err := dialer.Dial(ctx, host)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	discovered, err := facts.Gather(ctx, sessionConn{sess})
	if err != nil {
		return nil, err
	}
	return facts.Merge(discovered, host.Vars), nil
}

// sessionConn exposes a session as an unescalated module connection.
type sessionConn struct {
	sess runner.Session
}

func (c sessionConn) Run(ctx context.Context, cmd string) (modules.Output, error) {
	return c.sess.Run(ctx, cmd)
}

func (c sessionConn) Upload(ctx context.Context, data []byte, remotePath string, mode uint32) error {
	return c.sess.Upload(ctx, data, remotePath, mode)
}

func (c sessionConn) Checksum(ctx context.Context, remotePath string) (string, error) {
	return c.sess.Checksum(ctx, remotePath)
}
