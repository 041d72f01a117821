package localstack_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/localstack-control-plane/internal/backend"
	"github.com/blackwell-systems/localstack-control-plane/internal/credential"
	"github.com/blackwell-systems/localstack-control-plane/internal/docker"
	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
	"github.com/blackwell-systems/localstack-control-plane/internal/launcher"
	"github.com/blackwell-systems/localstack-control-plane/internal/localstack"
	"github.com/blackwell-systems/localstack-control-plane/internal/state"
	"github.com/blackwell-systems/localstack-control-plane/internal/testutil/fakeapi"
)

const token = "ls-facade-token"

type stubRuntime struct{ specs []docker.ContainerSpec }

func (r *stubRuntime) Run(_ context.Context, spec docker.ContainerSpec) (docker.Container, error) {
	r.specs = append(r.specs, spec)
	return stubContainer{}, nil
}

type stubContainer struct{}

func (stubContainer) ID() string { return "stub" }

func (stubContainer) Endpoint(_ context.Context, port int) (string, error) {
	return fmt.Sprintf("localhost:%d", port), nil
}

func (stubContainer) Terminate(context.Context) error { return nil }

func newClient(t *testing.T) (*localstack.Client, *fakeapi.Server, *stubRuntime) {
	t.Helper()
	fake := fakeapi.New(token)
	t.Cleanup(fake.Close)
	rt := &stubRuntime{}
	c := localstack.New(
		localstack.WithRuntime(rt),
		localstack.WithEphemeralAPI(fake.APIURL()),
		localstack.WithPolling(10*time.Millisecond, time.Second),
	)
	return c, fake, rt
}

func TestStart(t *testing.T) {
	c, _, rt := newClient(t)

	svc, err := c.Start(context.Background(), launcher.BackendSpec{Edition: backend.EditionCommunity})
	require.NoError(t, err)
	assert.Equal(t, "localhost:4566", svc.Endpoint())
	require.Len(t, rt.specs, 1)
	assert.Equal(t, backend.CommunityImage, rt.specs[0].Image)
	require.NoError(t, svc.Stop(context.Background()))
}

func TestState(t *testing.T) {
	c, fake, _ := newClient(t)
	fake.AddResource("bucket")

	out, err := c.State(context.Background(), state.Reset(fake.URL))
	require.NoError(t, err)
	assert.Equal(t, "LocalStack state reset successfully.", out.Message)
	assert.Empty(t, fake.Resources())
}

func TestEphemeralLifecycle(t *testing.T) {
	c, fake, _ := newClient(t)
	ctx := context.Background()
	cred := credential.FromValue(token)

	res, err := c.Ephemeral(ctx, localstack.EphemeralRequest{
		Operation: localstack.OpCreate, Credential: cred, Name: "preview", Lifetime: 30,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Instance)
	assert.Contains(t, res.Message, "preview")

	res, err = c.Ephemeral(ctx, localstack.EphemeralRequest{Operation: localstack.OpList, Credential: cred})
	require.NoError(t, err)
	assert.Len(t, res.Instances, 1)

	res, err = c.Ephemeral(ctx, localstack.EphemeralRequest{Operation: localstack.OpLogs, Credential: cred, Name: "preview"})
	require.NoError(t, err)
	assert.Empty(t, res.Logs)
	assert.Equal(t, "No logs available for this instance.", res.Message)

	fake.SetLogs("preview", "line one", "line two")
	res, err = c.Ephemeral(ctx, localstack.EphemeralRequest{Operation: localstack.OpLogs, Credential: cred, Name: "preview"})
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", res.Logs)

	res, err = c.Ephemeral(ctx, localstack.EphemeralRequest{Operation: localstack.OpDelete, Credential: cred, Name: "preview"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully deleted instance: preview", res.Message)
	assert.False(t, fake.HasInstance("preview"))
}

func TestEphemeralInvalidRequests(t *testing.T) {
	c, fake, _ := newClient(t)
	ctx := context.Background()

	_, err := c.Ephemeral(ctx, localstack.EphemeralRequest{Operation: "restart", Credential: credential.FromValue(token)})
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)

	_, err = c.Ephemeral(ctx, localstack.EphemeralRequest{Operation: localstack.OpList})
	assert.ErrorIs(t, err, errs.ErrAuthRequired)

	assert.Empty(t, fake.Requests())
}

func TestParseEphemeralOperation(t *testing.T) {
	tests := []struct {
		in      string
		want    localstack.EphemeralOperation
		wantErr bool
	}{
		{"create", localstack.OpCreate, false},
		{" LIST ", localstack.OpList, false},
		{"logs", localstack.OpLogs, false},
		{"delete", localstack.OpDelete, false},
		{"", "", true},
		{"stop", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := localstack.ParseEphemeralOperation(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
