package cli

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/localstack-control-plane/internal/launcher"
	"github.com/blackwell-systems/localstack-control-plane/internal/smoke"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Start a backend, run a command against it, then stop it",
	Long: `Start a LocalStack container, run the given command with the endpoint exported,
and remove the container afterwards regardless of the command's outcome.

The command sees AWS_ENDPOINT_URL and LOCALSTACK_ENDPOINT, plus dummy AWS
credentials and region unless those are already set. The exit status of the
command becomes the exit status of localstack-ci.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := startBackend(ctx, newClient())
		if err != nil {
			return err
		}
		defer stopBackend(ctx, svc)

		if probe, _ := cmd.Flags().GetBool("smoke"); probe {
			if _, err := smoke.Run(ctx, svc.URL(), smoke.Options{Logger: logger}); err != nil {
				color.Red("✗ Smoke test failed")
				return err
			}
			color.Green("✓ Smoke test passed")
		}

		color.Cyan("→ %s", args[0])
		return runChild(ctx, svc, args)
	},
}

// childEnv is base plus the backend endpoint. lookup reports which AWS
// variables are already set.
func childEnv(base []string, endpoint string, lookup func(string) (string, bool)) []string {
	env := append([]string(nil), base...)
	env = append(env,
		"AWS_ENDPOINT_URL="+endpoint,
		"LOCALSTACK_ENDPOINT="+endpoint,
	)
	defaults := map[string]string{
		"AWS_ACCESS_KEY_ID":     smoke.AccessKey,
		"AWS_SECRET_ACCESS_KEY": smoke.AccessKey,
		"AWS_DEFAULT_REGION":    smoke.DefaultRegion,
	}
	for key, value := range defaults {
		if _, ok := lookup(key); !ok {
			env = append(env, key+"="+value)
		}
	}
	return env
}

func runChild(ctx context.Context, svc *launcher.RunningService, args []string) error {
	child := exec.CommandContext(ctx, args[0], args[1:]...)
	child.Env = childEnv(os.Environ(), svc.URL(), os.LookupEnv)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	err := child.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		color.Red("✗ %s exited with status %d", args[0], exitErr.ExitCode())
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}

func init() {
	addBackendFlags(runCmd)
	runCmd.Flags().Bool("smoke", false, "run the S3 smoke test before the command")
}
