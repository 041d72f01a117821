package cli

import (
	"context"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/localstack-control-plane/internal/backend"
	"github.com/blackwell-systems/localstack-control-plane/internal/launcher"
	"github.com/blackwell-systems/localstack-control-plane/internal/localstack"
)

// stopTimeout bounds container teardown after the command context is gone.
const stopTimeout = 30 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a LocalStack backend and keep it running",
	Long: `Start a LocalStack container and block until interrupted.

The edition follows the credential: with a resolvable auth token the Pro image
is started, otherwise the community image. The container is removed when the
command exits (Ctrl-C or SIGTERM). Use 'localstack-ci run -- <cmd>' to wrap a
single pipeline step instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := startBackend(ctx, newClient())
		if err != nil {
			return err
		}
		defer stopBackend(ctx, svc)

		color.Cyan("\nPress Ctrl-C to stop")
		<-ctx.Done()
		return nil
	},
}

// backendSpec builds the launch request from the loaded config.
func backendSpec() (launcher.BackendSpec, error) {
	edition, err := backend.ParseEdition(cfg.Edition)
	if err != nil {
		return launcher.BackendSpec{}, err
	}

	pairs, err := backend.ParseConfiguration(cfg.Configuration)
	if err != nil {
		return launcher.BackendSpec{}, err
	}

	cred, err := credentialFromConfig()
	if err != nil {
		return launcher.BackendSpec{}, err
	}

	return launcher.BackendSpec{
		Image:         cfg.Image,
		Edition:       edition,
		Configuration: pairs,
		Credential:    cred,
		DockerSocket:  cfg.DockerSocket,
		Ports: []backend.PortBinding{
			{Host: cfg.Ports.Gateway, Container: backend.GatewayPort},
			{Host: cfg.Ports.HTTPS, Container: backend.HTTPSPort},
		},
		PullImage:      cfg.PullOnStart,
		StartupTimeout: cfg.StartupTimeout,
	}, nil
}

func startBackend(ctx context.Context, client *localstack.Client) (*launcher.RunningService, error) {
	spec, err := backendSpec()
	if err != nil {
		return nil, err
	}

	color.Cyan("Starting LocalStack...")
	if spec.PullImage {
		color.Cyan("→ Pulling image before start")
	}

	svc, err := client.Start(ctx, spec)
	if err != nil {
		color.Red("✗ Failed to start backend")
		return nil, err
	}

	color.Green("✓ LocalStack %s is running", svc.Edition())
	color.Cyan("\nEndpoints:")
	color.Cyan("  Gateway:  %s", svc.URL())
	if https := svc.HTTPSEndpoint(); https != "" {
		color.Cyan("  HTTPS:    https://%s", https)
	}
	color.Cyan("  Image:    %s", svc.Image())
	return svc, nil
}

func stopBackend(ctx context.Context, svc *launcher.RunningService) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	color.Cyan("Stopping LocalStack...")
	if err := svc.Stop(stopCtx); err != nil {
		color.Red("✗ Failed to stop backend: %v", err)
		color.Yellow("⚠ Run 'localstack-ci stop' to remove leftover containers")
		return
	}
	color.Green("✓ Backend stopped")
}

func addBackendFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("edition", "", "edition (auto|community|pro)")
	f.String("image", "", "image override (default depends on edition)")
	f.StringP("configuration", "c", "", "backend configuration as KEY=VALUE,KEY=VALUE")
	f.String("docker-socket", "", "host Docker socket to mount, e.g. /var/run/docker.sock")
	f.Bool("pull", false, "pull the image before starting")
	f.Int("port", backend.GatewayPort, "host port for the gateway (0 picks a free port)")
	f.Int("https-port", backend.HTTPSPort, "host port for the Pro HTTPS listener (0 picks a free port)")
	f.Duration("startup-timeout", launcher.DefaultStartupTimeout, "how long to wait for the health endpoint")
}

func init() {
	addBackendFlags(startCmd)
}
