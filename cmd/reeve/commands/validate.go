package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reeveops/reeve/pkg/inventory"
	"github.com/reeveops/reeve/pkg/modules"
	"github.com/reeveops/reeve/pkg/play"
)

func newValidateCommand() *cobra.Command {
	var inventoryPath string

	cmd := &cobra.Command{
		Use:   "validate <play-file>",
		Short: "Validate a playbook and inventory without contacting hosts",
		Long: `Validate a playbook and inventory statically.

Validation resolves the inventory (group cycles, duplicate hosts,
missing connection fields), checks every task against the module set and
verifies guard expressions reference known fact keys. No host is
contacted.`,
		Example: `  reeve validate site.yml -i inventory.yml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := inventory.NewParser().ParseFile(inventoryPath)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			registry := modules.NewRegistry()
			pb, err := play.NewParser(registry.Names(), knownFactKeys(inv)).ParseFile(args[0])
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			tasks := 0
			for _, pl := range pb.Plays {
				if !inv.HasGroup(pl.Hosts) {
					return &ExitError{Code: 2, Err: &play.PlanError{
						Play:   pl.Name,
						Reason: fmt.Sprintf("unknown target group %q", pl.Hosts),
					}}
				}
				tasks += len(pl.Tasks)
			}

			fmt.Printf("ok: %d host(s), %d play(s), %d task(s)\n", inv.Len(), len(pb.Plays), tasks)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inventoryPath, "inventory", "i", "", "inventory file path")
	cmd.MarkFlagRequired("inventory")

	return cmd
}
