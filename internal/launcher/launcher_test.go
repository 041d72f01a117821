package launcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/localstack-control-plane/internal/backend"
	"github.com/blackwell-systems/localstack-control-plane/internal/credential"
	"github.com/blackwell-systems/localstack-control-plane/internal/docker"
	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
)

const testToken = "ls-test-token"

// fakeRuntime records container specs and enforces unique host ports the way
// a real daemon would.
type fakeRuntime struct {
	mu        sync.Mutex
	specs     []docker.ContainerSpec
	envTokens []string
	bound     map[int]bool
	runErr    error
	next      int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{bound: map[int]bool{}}
}

func (f *fakeRuntime) Run(_ context.Context, spec docker.ContainerSpec) (docker.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.specs = append(f.specs, spec)
	f.envTokens = append(f.envTokens, spec.Env[backend.AuthTokenVar])

	if f.runErr != nil {
		return nil, f.runErr
	}
	for _, p := range spec.Ports {
		if p.Host != 0 && f.bound[p.Host] {
			return nil, fmt.Errorf("Bind for 0.0.0.0:%d failed: port is already allocated", p.Host)
		}
	}

	c := &fakeContainer{id: fmt.Sprintf("c%d", f.next), runtime: f, ports: map[int]int{}}
	f.next++
	for i, p := range spec.Ports {
		host := p.Host
		if host == 0 {
			host = 50000 + f.next*10 + i
		} else {
			f.bound[host] = true
		}
		c.ports[p.Container] = host
	}
	return c, nil
}

func (f *fakeRuntime) lastSpec() docker.ContainerSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[len(f.specs)-1]
}

type fakeContainer struct {
	id           string
	runtime      *fakeRuntime
	ports        map[int]int
	terminated   int
	terminateErr error
}

func (c *fakeContainer) ID() string { return c.id }

func (c *fakeContainer) Endpoint(_ context.Context, port int) (string, error) {
	host, ok := c.ports[port]
	if !ok {
		return "", fmt.Errorf("port %d not exposed", port)
	}
	return fmt.Sprintf("localhost:%d", host), nil
}

func (c *fakeContainer) Terminate(_ context.Context) error {
	if c.terminateErr != nil {
		return c.terminateErr
	}
	c.terminated++
	c.runtime.mu.Lock()
	defer c.runtime.mu.Unlock()
	for _, host := range c.ports {
		delete(c.runtime.bound, host)
	}
	return nil
}

func TestStartCommunity(t *testing.T) {
	rt := newFakeRuntime()
	l := New(rt, nil)

	svc, err := l.Start(context.Background(), BackendSpec{
		Configuration: []backend.Pair{{Key: "DEBUG", Value: "1"}},
	})
	require.NoError(t, err)

	spec := rt.lastSpec()
	assert.Equal(t, backend.CommunityImage, spec.Image)
	assert.Equal(t, []backend.PortBinding{{Host: 4566, Container: 4566}}, spec.Ports)
	assert.Equal(t, "1", spec.Env["DEBUG"])
	assert.NotContains(t, spec.Env, backend.AuthTokenVar)
	assert.Empty(t, spec.SocketMount)

	assert.Equal(t, backend.EditionCommunity, svc.Edition())
	assert.Equal(t, "localhost:4566", svc.Endpoint())
	assert.Equal(t, "http://localhost:4566", svc.URL())
	assert.Empty(t, svc.HTTPSEndpoint())
}

func TestStartProInjectsCredentialOnlyIntoEnvironment(t *testing.T) {
	rt := newFakeRuntime()
	l := New(rt, nil)

	svc, err := l.Start(context.Background(), BackendSpec{
		Credential:   credential.FromValue(testToken),
		DockerSocket: "/var/run/docker.sock",
	})
	require.NoError(t, err)

	spec := rt.lastSpec()
	assert.Equal(t, backend.ProImage, spec.Image)
	assert.Equal(t, testToken, rt.envTokens[0], "token reaches the runtime")
	assert.NotContains(t, spec.Env, backend.AuthTokenVar, "token is dropped from the env map after the runtime call")
	assert.Equal(t, "/var/run/docker.sock", spec.SocketMount)
	assert.Contains(t, spec.Ports, backend.PortBinding{Host: 443, Container: 443})
	assert.Equal(t, "1", spec.Env["ACTIVATE_PRO"])

	assert.Equal(t, backend.EditionPro, svc.Edition())
	assert.Equal(t, "localhost:443", svc.HTTPSEndpoint())
}

func TestStartImageOverride(t *testing.T) {
	rt := newFakeRuntime()
	_, err := New(rt, nil).Start(context.Background(), BackendSpec{Image: "localstack/localstack:3.8"})
	require.NoError(t, err)
	assert.Equal(t, "localstack/localstack:3.8", rt.lastSpec().Image)
}

func TestProPortSetIsSupersetOfCommunity(t *testing.T) {
	rt := newFakeRuntime()
	l := New(rt, nil)
	ports := []backend.PortBinding{{Host: 14566, Container: 4566}, {Host: 8443, Container: 443}}

	_, err := l.Start(context.Background(), BackendSpec{Edition: backend.EditionCommunity, Ports: ports})
	require.NoError(t, err)
	community := rt.lastSpec().Ports

	_, err = l.Start(context.Background(), BackendSpec{
		Edition:    backend.EditionPro,
		Ports:      []backend.PortBinding{{Host: 24566, Container: 4566}, {Host: 9443, Container: 443}},
		Credential: credential.FromValue(testToken),
	})
	require.NoError(t, err)
	pro := rt.lastSpec().Ports

	assert.Len(t, community, 1, "community never binds the HTTPS port")
	for _, c := range community {
		found := false
		for _, p := range pro {
			found = found || p.Container == c.Container
		}
		assert.True(t, found, "pro binds container port %d", c.Container)
	}
}

func TestStartRejectsInvalidSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec BackendSpec
		kind errs.Kind
	}{
		{
			name: "pro without credential",
			spec: BackendSpec{Edition: backend.EditionPro},
			kind: errs.KindAuthRequired,
		},
		{
			name: "unset credential handle for pro",
			spec: BackendSpec{Edition: backend.EditionPro, Credential: credential.FromEnv("LSCI_TEST_UNSET")},
			kind: errs.KindAuthRequired,
		},
		{
			name: "duplicate host ports",
			spec: BackendSpec{Ports: []backend.PortBinding{{Host: 4566, Container: 4566}, {Host: 4566, Container: 4510}}},
			kind: errs.KindConfig,
		},
		{
			name: "no gateway port",
			spec: BackendSpec{Ports: []backend.PortBinding{{Host: 4510, Container: 4510}}},
			kind: errs.KindConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			_, err := New(rt, nil).Start(context.Background(), tt.spec)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.Empty(t, rt.specs, "runtime must not be called")
		})
	}
}

func TestStartTwiceWithOverlappingPortsFails(t *testing.T) {
	rt := newFakeRuntime()
	l := New(rt, nil)

	first, err := l.Start(context.Background(), BackendSpec{})
	require.NoError(t, err)

	_, err = l.Start(context.Background(), BackendSpec{})
	assert.ErrorIs(t, err, errs.ErrLaunch)

	require.NoError(t, first.Stop(context.Background()))
	_, err = l.Start(context.Background(), BackendSpec{})
	assert.NoError(t, err, "port is free again after stop")
}

func TestStartRuntimeErrorIsScrubbed(t *testing.T) {
	rt := newFakeRuntime()
	rt.runErr = errors.New("invalid env LOCALSTACK_AUTH_TOKEN=" + testToken)

	_, err := New(rt, nil).Start(context.Background(), BackendSpec{Credential: credential.FromValue(testToken)})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrLaunch)
	assert.NotContains(t, err.Error(), testToken)
	assert.True(t, strings.Contains(err.Error(), credential.Redacted))
}

func TestStopInvalidatesEndpoint(t *testing.T) {
	rt := newFakeRuntime()
	svc, err := New(rt, nil).Start(context.Background(), BackendSpec{})
	require.NoError(t, err)

	require.NoError(t, svc.Stop(context.Background()))
	assert.Empty(t, svc.Endpoint())
	assert.Empty(t, svc.URL())

	require.NoError(t, svc.Stop(context.Background()), "second stop is a no-op")
	assert.Equal(t, 1, svc.container.(*fakeContainer).terminated)
}

func TestStopError(t *testing.T) {
	rt := newFakeRuntime()
	svc, err := New(rt, nil).Start(context.Background(), BackendSpec{})
	require.NoError(t, err)

	svc.container.(*fakeContainer).terminateErr = errors.New("daemon unavailable")
	err = svc.Stop(context.Background())
	assert.ErrorIs(t, err, errs.ErrStop)
	assert.NotEmpty(t, svc.Endpoint(), "a failed stop leaves the service owned and addressable")
}
