package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/localstack-control-plane/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Save, load or reset the state of a running backend",
	Long: `Apply exactly one state operation to the backend at --endpoint:

  --save NAME   snapshot the current state as Cloud Pod NAME (needs a credential)
  --load NAME   replace the current state with Cloud Pod NAME (needs a credential)
  --reset       discard all state`,
	Example: `  localstack-ci state --save ci-baseline
  localstack-ci state --reset --endpoint localhost:4566
  localstack-ci state --load ci-baseline --auth-token env:LOCALSTACK_AUTH_TOKEN`,
	RunE: func(cmd *cobra.Command, args []string) error {
		save, _ := cmd.Flags().GetString("save")
		load, _ := cmd.Flags().GetString("load")
		reset, _ := cmd.Flags().GetBool("reset")

		cred, err := credentialFromConfig()
		if err != nil {
			return err
		}

		req, err := state.NewRequest(save, load, reset, cfg.Endpoint, cred)
		if err != nil {
			return err
		}

		color.Cyan("→ %s on %s", req.Operation, cfg.Endpoint)
		out, err := newClient().State(cmd.Context(), req)
		if err != nil {
			color.Red("✗ State %s failed", req.Operation)
			return err
		}

		color.Green("✓ %s", out.Message)
		return nil
	},
}

func init() {
	f := stateCmd.Flags()
	f.String("save", "", "save state to the named Cloud Pod")
	f.String("load", "", "load state from the named Cloud Pod")
	f.Bool("reset", false, "reset all state")
	f.String("endpoint", "", "backend endpoint (default http://localhost:4566)")
	stateCmd.MarkFlagsMutuallyExclusive("save", "load", "reset")
}
