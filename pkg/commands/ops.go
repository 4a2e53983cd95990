package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newOpsCmd creates the ops command group.
func newOpsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Operation catalog commands",
	}

	cmd.AddCommand(newOpsListCmd(a))

	return cmd
}

// newOpsListCmd lists every operation a plan file can reference.
func newOpsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVERSION\tDESCRIPTION")
			for _, def := range a.registry().Definitions() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", def.ID, def.Version, def.Description)
			}

			return w.Flush()
		},
	}
}
