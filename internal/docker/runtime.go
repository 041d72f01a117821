// Package docker runs the backend container and probes its health endpoints.
//
// The container runtime is treated as a black box behind Runtime: it takes an
// image, an environment, port bindings and an optional socket mount, and hands
// back something that can report its endpoint and be terminated.
package docker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/blackwell-systems/localstack-control-plane/internal/backend"
)

// HealthPath is polled until the backend answers 200.
const HealthPath = "/_localstack/health"

// ContainerSpec is everything the runtime needs to start the backend
type ContainerSpec struct {
	Image          string
	Env            map[string]string
	Ports          []backend.PortBinding
	SocketMount    string // host socket path, mounted read/write at backend.DockerSocketPath
	Pull           bool
	StartupTimeout time.Duration
	Labels         map[string]string
}

// Container is a started backend container
type Container interface {
	ID() string
	// Endpoint returns the host:port reachable from this process for containerPort.
	Endpoint(ctx context.Context, containerPort int) (string, error)
	Terminate(ctx context.Context) error
}

// Runtime starts containers
type Runtime interface {
	Run(ctx context.Context, spec ContainerSpec) (Container, error)
}

// TestcontainersRuntime runs containers through testcontainers-go, which
// talks to whatever Docker-compatible daemon DOCKER_HOST points at.
type TestcontainersRuntime struct{}

// NewRuntime returns the default runtime
func NewRuntime() *TestcontainersRuntime {
	return &TestcontainersRuntime{}
}

// Run starts the container and blocks until the health endpoint answers or
// spec.StartupTimeout elapses.
func (r *TestcontainersRuntime) Run(ctx context.Context, spec ContainerSpec) (Container, error) {
	exposed := make([]string, 0, len(spec.Ports))
	for _, p := range spec.Ports {
		exposed = append(exposed, string(containerPort(p.Container)))
	}

	req := testcontainers.ContainerRequest{
		Image:           spec.Image,
		Env:             spec.Env,
		ExposedPorts:    exposed,
		Labels:          spec.Labels,
		AlwaysPullImage: spec.Pull,
		HostConfigModifier: func(hc *container.HostConfig) {
			applyHostConfig(hc, spec)
		},
		WaitingFor: wait.ForHTTP(HealthPath).
			WithPort(containerPort(backend.GatewayPort)).
			WithStartupTimeout(spec.StartupTimeout),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		// a container that was created but never became healthy must not linger
		if c != nil {
			_ = c.Terminate(context.WithoutCancel(ctx))
		}
		return nil, err
	}

	return &tcContainer{c: c}, nil
}

// applyHostConfig pins fixed host ports and mounts the docker socket.
func applyHostConfig(hc *container.HostConfig, spec ContainerSpec) {
	if hc.PortBindings == nil {
		hc.PortBindings = nat.PortMap{}
	}
	for _, p := range spec.Ports {
		if p.Host == 0 {
			continue
		}
		hc.PortBindings[containerPort(p.Container)] = []nat.PortBinding{{
			HostIP:   "0.0.0.0",
			HostPort: strconv.Itoa(p.Host),
		}}
	}

	if spec.SocketMount != "" {
		hc.Binds = append(hc.Binds, spec.SocketMount+":"+backend.DockerSocketPath+":rw")
	}
}

func containerPort(port int) nat.Port {
	return nat.Port(strconv.Itoa(port) + "/tcp")
}

type tcContainer struct {
	c testcontainers.Container
}

func (t *tcContainer) ID() string {
	return t.c.GetContainerID()
}

func (t *tcContainer) Endpoint(ctx context.Context, port int) (string, error) {
	host, err := t.c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve container host: %w", err)
	}

	mapped, err := t.c.MappedPort(ctx, containerPort(port))
	if err != nil {
		return "", fmt.Errorf("resolve mapped port %d: %w", port, err)
	}

	return net.JoinHostPort(host, mapped.Port()), nil
}

func (t *tcContainer) Terminate(ctx context.Context) error {
	return t.c.Terminate(ctx)
}
