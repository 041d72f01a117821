// Package localstack is the caller-facing surface of the control plane.
//
// A Client bundles the three controllers behind one value: Start launches a
// local backend, State snapshots or resets a running one, and Ephemeral
// manages remotely hosted instances. Credentials are accepted only as
// *credential.Secret handles and are resolved at the point of use.
package localstack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/blackwell-systems/localstack-control-plane/internal/credential"
	"github.com/blackwell-systems/localstack-control-plane/internal/docker"
	"github.com/blackwell-systems/localstack-control-plane/internal/ephemeral"
	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
	"github.com/blackwell-systems/localstack-control-plane/internal/launcher"
	"github.com/blackwell-systems/localstack-control-plane/internal/state"
)

// EphemeralOperation selects what Ephemeral does
type EphemeralOperation string

const (
	OpCreate EphemeralOperation = "create"
	OpList   EphemeralOperation = "list"
	OpLogs   EphemeralOperation = "logs"
	OpDelete EphemeralOperation = "delete"
)

const unknownOperation = "unknown operation (supported: create, list, delete, logs)"

// ParseEphemeralOperation accepts create, list, logs and delete.
func ParseEphemeralOperation(s string) (EphemeralOperation, error) {
	switch op := EphemeralOperation(strings.ToLower(strings.TrimSpace(s))); op {
	case OpCreate, OpList, OpLogs, OpDelete:
		return op, nil
	default:
		return "", errs.New(errs.KindInvalidRequest, "ephemeral", s, unknownOperation)
	}
}

// EphemeralRequest is one ephemeral-instance operation
type EphemeralRequest struct {
	Operation   EphemeralOperation
	Credential  *credential.Secret
	Name        string
	Lifetime    int
	AutoLoadPod string
	Extension   string
	Replace     bool
}

// EphemeralResult carries whichever output the operation produced.
type EphemeralResult struct {
	Operation EphemeralOperation
	Instance  *ephemeral.Instance
	Instances []ephemeral.Instance
	Logs      string
	Message   string
}

// Client is the control plane entry point
type Client struct {
	launcher   *launcher.Launcher
	state      *state.Controller
	logger     *slog.Logger
	httpClient *http.Client
	runtime    docker.Runtime

	apiURL       string
	pollInterval time.Duration
	maxWait      time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithRuntime replaces the container runtime (testcontainers by default).
func WithRuntime(rt docker.Runtime) Option {
	return func(c *Client) { c.runtime = rt }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient sets the HTTP client for state and management API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEphemeralAPI sets the management API base URL.
func WithEphemeralAPI(url string) Option {
	return func(c *Client) { c.apiURL = url }
}

// WithPolling sets how Create waits for readiness.
func WithPolling(interval, maxWait time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = interval
		c.maxWait = maxWait
	}
}

// New creates a Client
func New(opts ...Option) *Client {
	c := &Client{
		logger:       slog.New(slog.DiscardHandler),
		apiURL:       ephemeral.DefaultAPIURL,
		pollInterval: ephemeral.DefaultPollInterval,
		maxWait:      ephemeral.DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runtime == nil {
		c.runtime = docker.NewRuntime()
	}

	c.launcher = launcher.New(c.runtime, c.logger)
	c.state = state.NewController(state.WithHTTPClient(c.httpClient), state.WithLogger(c.logger))
	return c
}

// Start launches a backend. The caller owns the returned service and must Stop it.
func (c *Client) Start(ctx context.Context, spec launcher.BackendSpec) (*launcher.RunningService, error) {
	return c.launcher.Start(ctx, spec)
}

// State applies a save, load or reset to a running backend.
func (c *Client) State(ctx context.Context, req state.Request) (state.Outcome, error) {
	return c.state.Apply(ctx, req)
}

func (c *Client) ephemeral(cred *credential.Secret) *ephemeral.Controller {
	return ephemeral.NewController(c.apiURL, cred,
		ephemeral.WithHTTPClient(c.httpClient),
		ephemeral.WithLogger(c.logger),
		ephemeral.WithPolling(c.pollInterval, c.maxWait))
}

// Ephemeral dispatches one operation to the management API.
func (c *Client) Ephemeral(ctx context.Context, req EphemeralRequest) (EphemeralResult, error) {
	res := EphemeralResult{Operation: req.Operation}
	ctrl := c.ephemeral(req.Credential)

	switch req.Operation {
	case OpCreate:
		inst, err := ctrl.Create(ctx, ephemeral.CreateRequest{
			Name:        req.Name,
			Lifetime:    req.Lifetime,
			AutoLoadPod: req.AutoLoadPod,
			Extension:   req.Extension,
			Replace:     req.Replace,
		})
		if err != nil {
			return res, err
		}
		res.Instance = inst
		res.Message = fmt.Sprintf("Instance %s is ready at %s", inst.Name, inst.EndpointURL)

	case OpList:
		list, err := ctrl.List(ctx)
		if err != nil {
			return res, err
		}
		res.Instances = list
		res.Message = fmt.Sprintf("%d instance(s)", len(list))

	case OpLogs:
		logs, err := ctrl.Logs(ctx, req.Name)
		if err != nil {
			return res, err
		}
		res.Logs = logs
		res.Message = logs
		if logs == "" {
			res.Message = "No logs available for this instance."
		}

	case OpDelete:
		if err := ctrl.Delete(ctx, req.Name); err != nil {
			return res, err
		}
		res.Message = "Successfully deleted instance: " + req.Name

	default:
		return res, errs.New(errs.KindInvalidRequest, "ephemeral", string(req.Operation), unknownOperation)
	}

	return res, nil
}
