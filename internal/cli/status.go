package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/localstack-control-plane/internal/docker"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show health of a running backend",
	Long:  `Display version, edition and per-service health of the backend at --endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := docker.Status(cmd.Context(), cfg.Endpoint, logger)
		if err != nil {
			color.Red("✗ LocalStack is not reachable at %s", status.Endpoint)
			return err
		}

		color.Green("✓ LocalStack %s (%s) at %s", status.Version, status.Edition, status.Endpoint)
		if status.Edition == "pro" && !status.LicenseActivated {
			color.Yellow("⚠ Pro license is not activated")
		}

		color.Cyan("\nService                  Status")
		color.Cyan("────────────────────────────────────────")
		for _, name := range status.ServiceNames() {
			printServiceStatus(name, status.Services[name])
		}

		return nil
	},
}

func printServiceStatus(name string, status docker.ServiceStatus) {
	var statusText string
	switch status {
	case docker.ServiceUp:
		statusText = color.GreenString("✓ UP")
	case docker.ServiceDown:
		statusText = color.RedString("✗ DOWN")
	case docker.ServiceStarting:
		statusText = color.YellowString("⚠ STARTING")
	case docker.ServiceDisabled:
		statusText = color.New(color.Faint).Sprint("- DISABLED")
	default:
		statusText = color.RedString("✗ UNKNOWN")
	}

	color.New().Printf("%-24s %s\n", name, statusText)
}

func init() {
	statusCmd.Flags().String("endpoint", "", "backend endpoint (default http://localhost:4566)")
}
