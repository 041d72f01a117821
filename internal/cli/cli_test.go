package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/localstack-control-plane/internal/config"
	"github.com/blackwell-systems/localstack-control-plane/internal/ephemeral"
	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
	"github.com/blackwell-systems/localstack-control-plane/internal/testutil/fakeapi"
)

const testToken = "ls-cli-token"

func TestMain(m *testing.M) {
	color.NoColor = true
	if err := config.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "child exit status", err: &ExitError{Code: 3}, want: 3},
		{name: "config error", err: errs.Configf("bad"), want: 2},
		{name: "missing credential", err: errs.AuthRequired("save", "p"), want: 2},
		{name: "other", err: errors.New("boom"), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestChildEnv(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "AWS_DEFAULT_REGION" {
			return "eu-west-1", true
		}
		return "", false
	}

	env := childEnv([]string{"PATH=/bin"}, "http://localhost:4566", lookup)

	assert.Contains(t, env, "PATH=/bin")
	assert.Contains(t, env, "AWS_ENDPOINT_URL=http://localhost:4566")
	assert.Contains(t, env, "LOCALSTACK_ENDPOINT=http://localhost:4566")
	assert.Contains(t, env, "AWS_ACCESS_KEY_ID=test")
	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "AWS_DEFAULT_REGION="), "existing region is kept")
	}
}

func TestFlagKeysAreConfigKeys(t *testing.T) {
	for flag, key := range flagKeys {
		assert.NotEmpty(t, key, flag)
		assert.NotContains(t, key, "_", "config keys use dashes")
	}
}

func TestPrintInstances(t *testing.T) {
	var buf bytes.Buffer
	printInstances(&buf, []ephemeral.Instance{
		{Name: "pr-1", RawStatus: "running", Lifetime: 30, EndpointURL: "https://pr-1.example"},
		{Name: "pr-2", RawStatus: "creating", Lifetime: 60},
	})

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "pr-1")
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "30m")
}

func TestEphemeralCommands(t *testing.T) {
	fake := fakeapi.New(testToken)
	t.Cleanup(fake.Close)
	t.Setenv("LSCI_TEST_TOKEN", testToken)

	common := []string{"--api-url", fake.APIURL(), "--auth-token", "env:LSCI_TEST_TOKEN"}

	require.NoError(t, execute(t, append([]string{"ephemeral", "create", "cli-run", "--lifetime", "15", "--poll-interval", "10ms", "--max-wait", "1s"}, common...)...))
	assert.True(t, fake.HasInstance("cli-run"))

	require.NoError(t, execute(t, append([]string{"ephemeral", "list", "-o", "json"}, common...)...))

	require.NoError(t, execute(t, append([]string{"ephemeral", "delete", "cli-run"}, common...)...))
	assert.False(t, fake.HasInstance("cli-run"))

	err := execute(t, append([]string{"ephemeral", "logs", "cli-run"}, common...)...)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStateRequiresOneOperation(t *testing.T) {
	err := execute(t, "state", "--endpoint", "localhost:1")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}

// resetFlags restores flags a test changed, since the command tree and its
// viper bindings outlive a single execute.
func resetFlags(t *testing.T, fs *pflag.FlagSet, names ...string) {
	t.Helper()
	t.Cleanup(func() {
		for _, name := range names {
			f := fs.Lookup(name)
			require.NotNil(t, f, name)
			require.NoError(t, f.Value.Set(f.DefValue))
			f.Changed = false
		}
	})
}

func TestConfigErrorsExitTwo(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "raw token instead of handle", args: []string{"state", "--reset", "--auth-token", "plain-token-value"}},
		{name: "unknown credential source", args: []string{"state", "--reset", "--auth-token", "vault:secret/ls"}},
		{name: "unknown log level", args: []string{"state", "--reset", "--log-level", "loud"}},
		{name: "unknown log format", args: []string{"state", "--reset", "--log-format", "xml"}},
		{name: "missing config file", args: []string{"state", "--reset", "--config", filepath.Join(t.TempDir(), "absent.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t, rootCmd.PersistentFlags(), "auth-token", "log-level", "log-format", "config")
			resetFlags(t, stateCmd.Flags(), "reset")

			err := execute(t, tt.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrConfig)
			assert.Equal(t, 2, ExitCode(err))
			assert.NotContains(t, err.Error(), "plain-token-value")
		})
	}
}
