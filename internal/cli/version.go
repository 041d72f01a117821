package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/localstack-control-plane/internal/backend"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("localstack-ci version %s\n", cmd.Root().Version)
		fmt.Println("\nDefault images:")
		fmt.Printf("  Community:  %s\n", backend.CommunityImage)
		fmt.Printf("  Pro:        %s\n", backend.ProImage)
	},
}
