// Package launcher starts and stops the LocalStack backend container.
//
// Start turns a BackendSpec into a container request (image, environment,
// port bindings, socket mount), hands it to the container runtime and returns
// a RunningService that exclusively owns the container until Stop.
package launcher

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/blackwell-systems/localstack-control-plane/internal/backend"
	"github.com/blackwell-systems/localstack-control-plane/internal/credential"
	"github.com/blackwell-systems/localstack-control-plane/internal/docker"
	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
	"github.com/blackwell-systems/localstack-control-plane/internal/metrics"
)

// DefaultStartupTimeout bounds the wait for the health endpoint.
const DefaultStartupTimeout = 2 * time.Minute

// LabelEdition is set on every container started by the launcher.
const LabelEdition = "org.localstack-ci.edition"

// BackendSpec describes one backend process. It is not modified by Start.
type BackendSpec struct {
	// Image overrides the edition default when set.
	Image   string
	Edition backend.Edition
	// Configuration is passed to the container verbatim as environment.
	Configuration []backend.Pair
	Credential    *credential.Secret
	// DockerSocket is a host socket path to mount for services that need to
	// start containers of their own (e.g. Lambda).
	DockerSocket string
	// Ports defaults to backend.DefaultPorts for the resolved edition.
	Ports          []backend.PortBinding
	PullImage      bool
	StartupTimeout time.Duration
}

// Launcher starts backend containers on a runtime
type Launcher struct {
	runtime docker.Runtime
	logger  *slog.Logger
}

// New creates a launcher. A nil logger discards output.
func New(rt docker.Runtime, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Launcher{runtime: rt, logger: logger}
}

// resolved is a BackendSpec with every default applied.
type resolved struct {
	edition backend.Edition
	image   string
	ports   []backend.PortBinding
	env     map[string]string
	timeout time.Duration
}

func resolve(spec BackendSpec) (*resolved, error) {
	edition, err := spec.Edition.Resolve(credential.Present(spec.Credential))
	if err != nil {
		return nil, err
	}

	r := &resolved{
		edition: edition,
		image:   spec.Image,
		ports:   portsFor(edition, spec.Ports),
		env:     backend.Environment(spec.Configuration, edition, ""),
		timeout: spec.StartupTimeout,
	}
	if r.image == "" {
		r.image = edition.DefaultImage()
	}
	if r.timeout <= 0 {
		r.timeout = DefaultStartupTimeout
	}

	if err := backend.ValidatePorts(r.ports); err != nil {
		return nil, err
	}
	return r, nil
}

// portsFor applies edition defaults: the HTTPS port is only bound for pro.
func portsFor(edition backend.Edition, ports []backend.PortBinding) []backend.PortBinding {
	if len(ports) == 0 {
		return backend.DefaultPorts(edition, backend.GatewayPort, backend.HTTPSPort)
	}

	out := make([]backend.PortBinding, 0, len(ports)+1)
	https := false
	for _, p := range ports {
		if p.Container == backend.HTTPSPort {
			if edition != backend.EditionPro {
				continue
			}
			https = true
		}
		out = append(out, p)
	}
	if edition == backend.EditionPro && !https {
		out = append(out, backend.PortBinding{Host: 0, Container: backend.HTTPSPort})
	}
	return out
}

// Start launches the backend and waits for it to report healthy. Failures are
// KindLaunch errors (KindConfig/KindAuthRequired for bad specs) and are not
// retried.
func (l *Launcher) Start(ctx context.Context, spec BackendSpec) (svc *RunningService, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.ComponentLauncher, "start", start, err) }()

	r, err := resolve(spec)
	if err != nil {
		return nil, err
	}

	cs := docker.ContainerSpec{
		Image:          r.image,
		Env:            r.env,
		Ports:          r.ports,
		SocketMount:    spec.DockerSocket,
		Pull:           spec.PullImage,
		StartupTimeout: r.timeout,
		Labels: map[string]string{
			LabelEdition:        string(r.edition),
			docker.LabelManaged: "true",
		},
	}

	l.logger.Info("starting backend",
		"image", r.image,
		"edition", r.edition,
		"ports", r.ports,
		"docker_socket", spec.DockerSocket != "",
		"credential", spec.Credential)

	c, err := l.run(ctx, cs, spec.Credential)
	if err != nil {
		return nil, err
	}

	svc = &RunningService{
		container: c,
		edition:   r.edition,
		image:     r.image,
		logger:    l.logger,
	}

	svc.endpoint, err = c.Endpoint(ctx, backend.GatewayPort)
	if err == nil && r.edition == backend.EditionPro {
		svc.httpsEndpoint, err = c.Endpoint(ctx, backend.HTTPSPort)
	}
	if err != nil {
		_ = c.Terminate(context.WithoutCancel(ctx))
		return nil, errs.Wrap(errs.KindLaunch, "start", r.image, err)
	}

	metrics.ServiceStarted()
	l.logger.Info("backend started", "endpoint", svc.endpoint, "container", c.ID(), "elapsed", time.Since(start))
	return svc, nil
}

// run starts the container, injecting the credential only for the duration
// of the runtime call.
func (l *Launcher) run(ctx context.Context, cs docker.ContainerSpec, cred *credential.Secret) (docker.Container, error) {
	if !credential.Present(cred) {
		c, err := l.runtime.Run(ctx, cs)
		if err != nil {
			return nil, errs.Wrap(errs.KindLaunch, "start", cs.Image, err)
		}
		return c, nil
	}

	var c docker.Container
	err := cred.Use(func(token string) error {
		env := maps.Clone(cs.Env)
		env[backend.AuthTokenVar] = token
		defer delete(env, backend.AuthTokenVar)

		cs.Env = env
		var runErr error
		c, runErr = l.runtime.Run(ctx, cs)
		if runErr == nil {
			return nil
		}

		if scrubbed := credential.Scrub(runErr.Error(), token); scrubbed != runErr.Error() {
			return errs.New(errs.KindLaunch, "start", cs.Image, scrubbed)
		}
		return errs.Wrap(errs.KindLaunch, "start", cs.Image, runErr)
	})
	if errors.Is(err, credential.ErrAbsent) {
		return nil, errs.AuthRequired("start", cs.Image)
	}
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, errs.Wrap(errs.KindLaunch, "start", cs.Image, err)
	}
	return c, nil
}

// RunningService is a started backend. It is the sole owner of its container
// and must be stopped explicitly.
type RunningService struct {
	container     docker.Container
	edition       backend.Edition
	image         string
	endpoint      string
	httpsEndpoint string
	logger        *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// Endpoint returns host:port of the gateway, or "" once stopped.
func (s *RunningService) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ""
	}
	return s.endpoint
}

// URL returns the gateway as an http URL, or "" once stopped.
func (s *RunningService) URL() string {
	if ep := s.Endpoint(); ep != "" {
		return "http://" + ep
	}
	return ""
}

// HTTPSEndpoint returns host:port of the pro HTTPS listener, or "".
func (s *RunningService) HTTPSEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ""
	}
	return s.httpsEndpoint
}

func (s *RunningService) Edition() backend.Edition { return s.edition }

func (s *RunningService) Image() string { return s.image }

func (s *RunningService) ContainerID() string { return s.container.ID() }

// Stop terminates the container. Stopping twice is a no-op.
func (s *RunningService) Stop(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}

	start := time.Now()
	defer func() { metrics.Observe(metrics.ComponentLauncher, "stop", start, err) }()

	if err := s.container.Terminate(ctx); err != nil {
		return errs.Wrap(errs.KindStop, "stop", s.container.ID(), err)
	}

	s.stopped = true
	metrics.ServiceStopped()
	s.logger.Info("backend stopped", "container", s.container.ID())
	return nil
}
