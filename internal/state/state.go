// Package state saves, loads and resets the state of a running backend
// through its /_localstack control-plane endpoints.
//
// Each Apply is a single-shot transition: nothing is remembered between
// calls, and nothing is retried. Save and load are idempotent by name and
// reset is naturally idempotent, so callers can retry a whole Apply safely.
package state

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blackwell-systems/localstack-control-plane/internal/credential"
	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
	"github.com/blackwell-systems/localstack-control-plane/internal/httpapi"
	"github.com/blackwell-systems/localstack-control-plane/internal/metrics"
)

// Operation is one of save, load or reset
type Operation string

const (
	OpSave  Operation = "save"
	OpLoad  Operation = "load"
	OpReset Operation = "reset"
)

const (
	InfoPath  = "/_localstack/info"
	ResetPath = "/_localstack/state/reset"
	PodsPath  = "/_localstack/pods/"

	// StateSecretHeader carries the base64 encoded auth token on pod calls.
	StateSecretHeader = "x-localstack-state-secret"

	// DefaultEndpoint is used when a request names no endpoint.
	DefaultEndpoint = "http://localhost:4566"
)

// Request is one state operation against one endpoint
type Request struct {
	Operation  Operation
	Name       string // pod name for save and load
	Endpoint   string
	Credential *credential.Secret
}

// NewRequest builds a Request from the CLI-shaped inputs. Exactly one of
// save, load and reset must be set.
func NewRequest(save, load string, reset bool, endpoint string, cred *credential.Secret) (Request, error) {
	req := Request{Endpoint: endpoint, Credential: cred}
	n := 0
	if save != "" {
		req.Operation, req.Name = OpSave, save
		n++
	}
	if load != "" {
		req.Operation, req.Name = OpLoad, load
		n++
	}
	if reset {
		req.Operation = OpReset
		n++
	}
	if n != 1 {
		return Request{}, errs.New(errs.KindInvalidRequest, "state", endpoint,
			"exactly one of save, load or reset must be requested")
	}
	return req, nil
}

// Save returns a save request.
func Save(name, endpoint string, cred *credential.Secret) Request {
	return Request{Operation: OpSave, Name: name, Endpoint: endpoint, Credential: cred}
}

// Load returns a load request.
func Load(name, endpoint string, cred *credential.Secret) Request {
	return Request{Operation: OpLoad, Name: name, Endpoint: endpoint, Credential: cred}
}

// Reset returns a reset request; it needs no credential.
func Reset(endpoint string) Request {
	return Request{Operation: OpReset, Endpoint: endpoint}
}

// Validate checks the request without touching the network.
func (r Request) Validate() error {
	switch r.Operation {
	case OpReset:
		return nil
	case OpSave, OpLoad:
		if strings.TrimSpace(r.Name) == "" {
			return errs.New(errs.KindInvalidRequest, string(r.Operation), r.Endpoint, "a pod name is required")
		}
		if !credential.Present(r.Credential) {
			return errs.AuthRequired(string(r.Operation), r.Name)
		}
		return nil
	default:
		return errs.New(errs.KindInvalidRequest, "state", r.Endpoint,
			"unknown operation "+string(r.Operation)+" (want save, load, or reset)")
	}
}

// Outcome is what the control plane answered
type Outcome struct {
	Operation Operation
	Name      string
	Endpoint  string
	Message   string
}

// Controller issues state requests
type Controller struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Controller) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates a Controller
func NewController(opts ...Option) *Controller {
	c := &Controller{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func failureKind(op Operation) errs.Kind {
	switch op {
	case OpSave:
		return errs.KindSaveFailed
	case OpLoad:
		return errs.KindLoadFailed
	default:
		return errs.KindResetFailed
	}
}

// Apply performs the request. The endpoint must be running; it is checked
// through the info endpoint first.
func (c *Controller) Apply(ctx context.Context, req Request) (out Outcome, err error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	defer func() { metrics.Observe(metrics.ComponentState, string(req.Operation), start, err) }()

	if req.Endpoint == "" {
		req.Endpoint = DefaultEndpoint
	}
	client := httpapi.New(req.Endpoint, httpapi.WithHTTPClient(c.httpClient), httpapi.WithLogger(c.logger))
	out = Outcome{Operation: req.Operation, Name: req.Name, Endpoint: client.BaseURL()}

	if err := c.ping(ctx, client, req); err != nil {
		return out, err
	}

	c.logger.Info("applying state operation", "operation", req.Operation, "name", req.Name, "endpoint", out.Endpoint)

	switch req.Operation {
	case OpReset:
		out.Message, err = c.reset(ctx, client, req)
	default:
		out.Message, err = c.pod(ctx, client, req)
	}
	if err != nil {
		return out, err
	}

	c.logger.Info("state operation completed", "operation", req.Operation, "name", req.Name, "elapsed", time.Since(start))
	return out, nil
}

func (c *Controller) ping(ctx context.Context, client *httpapi.Client, req Request) error {
	kind := failureKind(req.Operation)
	target := targetOf(req, client)

	resp, err := client.Do(ctx, http.MethodGet, InfoPath, nil, nil)
	if err != nil {
		e := errs.Wrap(kind, string(req.Operation), target, err)
		e.Detail = "backend is not running at " + client.BaseURL()
		return e
	}
	if !resp.OK() {
		return errs.FromStatus(kind, string(req.Operation), target, resp.StatusCode,
			"backend is not healthy at "+client.BaseURL(), false)
	}
	return nil
}

func (c *Controller) reset(ctx context.Context, client *httpapi.Client, req Request) (string, error) {
	resp, err := client.Do(ctx, http.MethodPost, ResetPath, nil, nil)
	if err != nil {
		return "", errs.Wrap(errs.KindResetFailed, "reset", client.BaseURL(), err)
	}
	if !resp.OK() {
		return "", errs.FromStatus(errs.KindResetFailed, "reset", client.BaseURL(), resp.StatusCode, resp.Text(), false)
	}
	return "LocalStack state reset successfully.", nil
}

// pod saves (POST) or loads (PUT) a named Cloud Pod.
func (c *Controller) pod(ctx context.Context, client *httpapi.Client, req Request) (string, error) {
	kind := failureKind(req.Operation)
	method := http.MethodPost
	if req.Operation == OpLoad {
		method = http.MethodPut
	}

	var msg string
	err := req.Credential.Use(func(token string) error {
		headers := map[string]string{
			StateSecretHeader: base64.StdEncoding.EncodeToString([]byte(token)),
		}

		resp, err := client.Do(ctx, method, PodsPath+url.PathEscape(req.Name), headers, struct{}{})
		if err != nil {
			return errs.Wrap(kind, string(req.Operation), req.Name, err)
		}
		if !resp.OK() {
			e := errs.FromStatus(kind, string(req.Operation), req.Name, resp.StatusCode, resp.Text(), false)
			e.Detail = credential.Scrub(e.Detail, token)
			return e
		}
		msg = credential.Scrub(resp.Text(), token)
		return nil
	})
	if errors.Is(err, credential.ErrAbsent) {
		return "", errs.AuthRequired(string(req.Operation), req.Name)
	}
	return msg, err
}

func targetOf(req Request, client *httpapi.Client) string {
	if req.Name != "" {
		return req.Name
	}
	return client.BaseURL()
}
