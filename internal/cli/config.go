package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/localstack-control-plane/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and persist configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration and where it came from",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := config.Display()
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to a config file",
	Long: `Write the effective configuration to the config file in use, or create
$HOME/.localstack-ci/config.yaml when none exists. Only the credential handle is
written, never the token itself.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(cfg); err != nil {
			color.Red("✗ Failed to write config")
			return err
		}
		color.Green("✓ Configuration written")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd)
}
