// Package cli implements the localstack-ci command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/blackwell-systems/localstack-control-plane/internal/config"
	"github.com/blackwell-systems/localstack-control-plane/internal/credential"
	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
	"github.com/blackwell-systems/localstack-control-plane/internal/localstack"
	"github.com/blackwell-systems/localstack-control-plane/internal/metrics"
)

// flagKeys maps command flags to config keys. Binding happens for the command
// that actually runs, so commands can share flag names.
var flagKeys = map[string]string{
	"edition":          "edition",
	"image":            "image",
	"configuration":    "configuration",
	"docker-socket":    "docker-socket",
	"auth-token":       "auth-token",
	"pull":             "pull-on-start",
	"port":             "port-gateway",
	"https-port":       "port-https",
	"startup-timeout":  "startup-timeout",
	"endpoint":         "endpoint",
	"api-url":          "api-url",
	"poll-interval":    "poll-interval",
	"max-wait":         "max-wait",
	"lifetime":         "lifetime",
	"log-level":        "log-level",
	"log-format":       "log-format",
	"metrics-textfile": "metrics-textfile",
}

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "localstack-ci",
	Short: "Run and manage LocalStack backends from CI pipelines",
	Long: `localstack-ci starts LocalStack containers for pipeline steps, snapshots and
restores their state as Cloud Pods, and manages remotely hosted ephemeral
instances.

Credentials are passed as handles (env:NAME or file:PATH), never as values.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			if err := config.SetConfigFile(cfgFile); err != nil {
				return err
			}
		}

		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if key, ok := flagKeys[f.Name]; ok {
				config.BindFlag(key, f)
			}
		})

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		logger = config.NewLogger(os.Stderr, cfg)
		return nil
	},
}

// Execute runs the command tree. Interrupts cancel the command context so
// running backends get stopped.
func Execute(version string) error {
	rootCmd.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		var exit *ExitError
		if !errors.As(err, &exit) {
			color.Red("✗ %v", err)
		}
	}

	if cfg != nil && cfg.MetricsFile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsFile); werr != nil {
			color.Yellow("⚠ Failed to write metrics: %v", werr)
		}
	}
	return err
}

// ExitError carries a child process exit code through Execute.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	var exit *ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.Code
	case errs.KindOf(err) == errs.KindConfig, errs.IsAuthRequired(err):
		return 2
	default:
		return 1
	}
}

func credentialFromConfig() (*credential.Secret, error) {
	cred, err := cfg.Credential()
	if err != nil {
		return nil, errs.ConfigOpf("load", "auth-token", "%v", err)
	}
	return cred, nil
}

func newClient() *localstack.Client {
	return localstack.New(
		localstack.WithLogger(logger),
		localstack.WithEphemeralAPI(cfg.Ephemeral.APIURL),
		localstack.WithPolling(cfg.Ephemeral.PollInterval, cfg.Ephemeral.MaxWait),
	)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default $HOME/.localstack-ci/config.yaml)")
	pf.String("auth-token", "", "credential handle: env:NAME or file:PATH (default env:LOCALSTACK_AUTH_TOKEN)")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (text|json)")
	pf.String("metrics-textfile", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(startCmd, runCmd, statusCmd, stopCmd, stateCmd, ephemeralCmd, smokeCmd, configCmd, versionCmd)
}
