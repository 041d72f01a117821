package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/localstack-control-plane/internal/docker"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Remove leftover backend containers",
	Long: `Force-remove every container started by localstack-ci on the current Docker
daemon. Normally 'start' and 'run' clean up after themselves; this is for runs
that were killed before they could.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		color.Cyan("Removing localstack-ci containers...")

		removed, err := docker.RemoveManaged(cmd.Context())
		for _, id := range removed {
			color.Cyan("  removed %.12s", id)
		}
		if err != nil {
			color.Red("✗ Failed to remove containers")
			return err
		}

		if len(removed) == 0 {
			color.Green("✓ Nothing to remove")
			return nil
		}
		color.Green("✓ Removed %d container(s)", len(removed))
		return nil
	},
}
