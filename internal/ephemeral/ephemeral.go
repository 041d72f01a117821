// Package ephemeral manages remotely hosted, short-lived LocalStack instances
// through the management API.
//
// The controller keeps no inventory of its own; the remote API is
// authoritative for names, lifetimes and status. Create is the only operation
// that waits: provisioning is asynchronous on the remote side, so Create polls
// the instance until it reports ready or the configured maximum wait passes.
package ephemeral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/blackwell-systems/localstack-control-plane/internal/credential"
	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
	"github.com/blackwell-systems/localstack-control-plane/internal/httpapi"
	"github.com/blackwell-systems/localstack-control-plane/internal/metrics"
	"github.com/blackwell-systems/localstack-control-plane/internal/poll"
)

const (
	DefaultAPIURL       = "https://api.localstack.cloud/v1"
	DefaultLifetime     = 60
	DefaultPollInterval = 5 * time.Second
	DefaultMaxWait      = 5 * time.Minute

	// APIKeyHeader carries the auth token on management API calls.
	APIKeyHeader  = "ls-api-key"
	InstancesPath = "/compute/instances"

	AutoLoadPodVar = "AUTO_LOAD_POD"
	ExtensionVar   = "EXTENSION_AUTO_INSTALL"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,62}$`)

// Status is the normalized lifecycle state of an instance
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// NormalizeStatus maps the remote status vocabulary onto pending/ready/error.
func NormalizeStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ready", "running":
		return StatusReady
	case "error", "failed":
		return StatusError
	default:
		return StatusPending
	}
}

// Instance is the management API's record of an ephemeral instance
type Instance struct {
	ID          string            `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string            `json:"instance_name" yaml:"instance_name"`
	RawStatus   string            `json:"status" yaml:"status"`
	EndpointURL string            `json:"endpoint_url,omitempty" yaml:"endpoint_url,omitempty"`
	Lifetime    int               `json:"lifetime,omitempty" yaml:"lifetime,omitempty"`
	EnvVars     map[string]string `json:"env_vars,omitempty" yaml:"env_vars,omitempty"`
}

// Status returns the normalized status.
func (i Instance) Status() Status {
	return NormalizeStatus(i.RawStatus)
}

// CreateRequest describes a new instance
type CreateRequest struct {
	Name     string
	Lifetime int // minutes
	// AutoLoadPod names a Cloud Pod loaded into the instance on startup.
	AutoLoadPod string
	// Extension names an extension installed on startup.
	Extension string
	// Replace deletes a same-named instance before creating.
	Replace bool
}

type createBody struct {
	Name     string            `json:"instance_name"`
	Lifetime int               `json:"lifetime"`
	EnvVars  map[string]string `json:"env_vars,omitempty"`
}

// Controller talks to the management API
type Controller struct {
	client   *httpapi.Client
	cred     *credential.Secret
	logger   *slog.Logger
	interval time.Duration
	maxWait  time.Duration

	httpClient *http.Client
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

// WithPolling sets the readiness poll interval and maximum wait.
func WithPolling(interval, maxWait time.Duration) Option {
	return func(c *Controller) {
		c.interval = interval
		c.maxWait = maxWait
	}
}

// NewController creates a controller for apiURL authenticated by cred.
func NewController(apiURL string, cred *credential.Secret, opts ...Option) *Controller {
	c := &Controller{
		cred:     cred,
		logger:   slog.New(slog.DiscardHandler),
		interval: DefaultPollInterval,
		maxWait:  DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	c.client = httpapi.New(apiURL, httpapi.WithHTTPClient(c.httpClient), httpapi.WithLogger(c.logger))
	return c
}

// ValidateName performs the local name check; uniqueness is the remote API's job.
func ValidateName(name string) error {
	if name == "" {
		return errs.New(errs.KindInvalidRequest, "validate", "", "an instance name is required")
	}
	if !namePattern.MatchString(name) {
		return errs.New(errs.KindInvalidRequest, "validate", name,
			"instance names are 1-63 characters of letters, digits, '.', '_' or '-', starting with a letter or digit")
	}
	return nil
}

func (c *Controller) requireCredential(op, target string) error {
	if !credential.Present(c.cred) {
		return errs.AuthRequired(op, target)
	}
	return nil
}

// do performs one authenticated call. The token is resolved for this call only.
func (c *Controller) do(ctx context.Context, op, target, method, path string, body any) (*httpapi.Response, error) {
	var resp *httpapi.Response
	err := c.cred.Use(func(token string) error {
		r, err := c.client.Do(ctx, method, path, map[string]string{APIKeyHeader: token}, body)
		if err != nil {
			return err
		}
		r.Body = []byte(credential.Scrub(string(r.Body), token))
		resp = r
		return nil
	})
	if errors.Is(err, credential.ErrAbsent) {
		return nil, errs.AuthRequired(op, target)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindRemote, op, target, err)
	}
	return resp, nil
}

func instancePath(name string) string {
	return InstancesPath + "/" + url.PathEscape(name)
}

// Create requests a new instance and waits until it is ready. On
// ProvisionTimeout or cancellation the remote instance keeps existing and must
// be removed with Delete.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (inst *Instance, err error) {
	if err := c.requireCredential("create", req.Name); err != nil {
		return nil, err
	}
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}
	if req.Lifetime <= 0 {
		return nil, errs.New(errs.KindInvalidRequest, "create", req.Name,
			fmt.Sprintf("lifetime must be > 0 minutes, got %d", req.Lifetime))
	}

	start := time.Now()
	defer func() { metrics.Observe(metrics.ComponentEphemeral, "create", start, err) }()

	if req.Replace {
		if err := c.Delete(ctx, req.Name); err != nil && !errs.IsNotFound(err) {
			return nil, err
		}
	}

	body := createBody{Name: req.Name, Lifetime: req.Lifetime}
	if req.AutoLoadPod != "" || req.Extension != "" {
		body.EnvVars = map[string]string{}
		if req.AutoLoadPod != "" {
			body.EnvVars[AutoLoadPodVar] = req.AutoLoadPod
		}
		if req.Extension != "" {
			body.EnvVars[ExtensionVar] = req.Extension
		}
	}

	c.logger.Info("creating ephemeral instance", "name", req.Name, "lifetime_minutes", req.Lifetime,
		"auto_load_pod", req.AutoLoadPod, "extension", req.Extension)

	resp, err := c.do(ctx, "create", req.Name, http.MethodPost, InstancesPath, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, errs.FromStatus(errs.KindRemote, "create", req.Name, resp.StatusCode, resp.Text(), false)
	}

	inst = &Instance{}
	if err := resp.DecodeJSON(inst); err != nil {
		return nil, errs.Wrap(errs.KindRemote, "create", req.Name, err)
	}
	if inst.Name == "" {
		inst.Name = req.Name
	}

	inst, err = c.awaitReady(ctx, inst)
	if err != nil {
		return nil, err
	}

	c.logger.Info("ephemeral instance ready", "name", inst.Name, "endpoint", inst.EndpointURL, "elapsed", time.Since(start))
	return inst, nil
}

// awaitReady polls the instance until it reports ready.
func (c *Controller) awaitReady(ctx context.Context, created *Instance) (*Instance, error) {
	switch created.Status() {
	case StatusReady:
		return created, nil
	case StatusError:
		return nil, errs.New(errs.KindProvisionFailed, "create", created.Name, "remote reported status "+created.RawStatus)
	}

	current := created
	checks, err := poll.Until(ctx, poll.Options{Interval: c.interval, MaxWait: c.maxWait},
		func(ctx context.Context) (bool, error) {
			inst, err := c.Get(ctx, created.Name)
			if errs.IsNotFound(err) {
				// the record can lag behind the create call
				return false, nil
			}
			if retryable(err) {
				c.logger.Debug("instance status unavailable, retrying", "name", created.Name, "error", err)
				return false, nil
			}
			if err != nil {
				return false, err
			}
			current = inst
			c.logger.Debug("instance status", "name", inst.Name, "status", inst.RawStatus)

			switch inst.Status() {
			case StatusReady:
				return true, nil
			case StatusError:
				return false, errs.New(errs.KindProvisionFailed, "create", inst.Name, "remote reported status "+inst.RawStatus)
			default:
				return false, nil
			}
		})
	metrics.ObservePolls(checks)

	switch {
	case errors.Is(err, poll.ErrTimeout):
		return nil, &errs.Error{
			Kind:   errs.KindProvisionTimeout,
			Op:     "create",
			Target: created.Name,
			Detail: fmt.Sprintf("not ready after %s (last status %q); the instance may still be provisioning, check it with list or remove it with delete",
				c.maxWait, current.RawStatus),
		}
	case err != nil && ctx.Err() != nil:
		return nil, fmt.Errorf("create %s: waiting for readiness: %w", created.Name, ctx.Err())
	case err != nil:
		return nil, err
	}
	return current, nil
}

// retryable reports whether a status read failed in a way a later read can
// recover from: transport failures, throttling and 5xx answers. Rejected
// credentials and other 4xx answers are final.
func retryable(err error) bool {
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.KindRemote {
		return false
	}
	if e.StatusCode == 0 {
		return e.Cause != nil
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Get fetches one instance.
func (c *Controller) Get(ctx context.Context, name string) (*Instance, error) {
	if err := c.requireCredential("get", name); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errs.New(errs.KindInvalidRequest, "get", "", "an instance name is required")
	}

	resp, err := c.do(ctx, "get", name, http.MethodGet, instancePath(name), nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, errs.FromStatus(errs.KindRemote, "get", name, resp.StatusCode, resp.Text(), true)
	}

	var inst Instance
	if err := resp.DecodeJSON(&inst); err != nil {
		return nil, errs.Wrap(errs.KindRemote, "get", name, err)
	}
	return &inst, nil
}

// List returns whatever the management API reports for the credential's
// account.
func (c *Controller) List(ctx context.Context) (list []Instance, err error) {
	if err := c.requireCredential("list", ""); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.Observe(metrics.ComponentEphemeral, "list", start, err) }()

	resp, err := c.do(ctx, "list", c.client.BaseURL(), http.MethodGet, InstancesPath, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, errs.FromStatus(errs.KindRemote, "list", c.client.BaseURL(), resp.StatusCode, resp.Text(), false)
	}

	if err := resp.DecodeJSON(&list); err != nil {
		return nil, errs.Wrap(errs.KindRemote, "list", c.client.BaseURL(), err)
	}
	return list, nil
}

type logLine struct {
	Content string `json:"content"`
}

// Logs returns the instance log, one line per entry. An instance without log
// output yields "".
func (c *Controller) Logs(ctx context.Context, name string) (text string, err error) {
	if err := c.requireCredential("logs", name); err != nil {
		return "", err
	}
	if name == "" {
		return "", errs.New(errs.KindInvalidRequest, "logs", "", "an instance name is required")
	}

	start := time.Now()
	defer func() { metrics.Observe(metrics.ComponentEphemeral, "logs", start, err) }()

	resp, err := c.do(ctx, "logs", name, http.MethodGet, instancePath(name)+"/logs", nil)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", errs.FromStatus(errs.KindRemote, "logs", name, resp.StatusCode, resp.Text(), true)
	}

	var lines []logLine
	if err := resp.DecodeJSON(&lines); err != nil {
		return "", errs.Wrap(errs.KindRemote, "logs", name, err)
	}

	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Content != "" {
			out = append(out, l.Content)
		}
	}
	return strings.Join(out, "\n"), nil
}

// Delete removes an instance. The instance is unusable once this returns,
// but it may still show up in List for a while.
func (c *Controller) Delete(ctx context.Context, name string) (err error) {
	if err := c.requireCredential("delete", name); err != nil {
		return err
	}
	if name == "" {
		return errs.New(errs.KindInvalidRequest, "delete", "", "an instance name is required")
	}

	start := time.Now()
	defer func() { metrics.Observe(metrics.ComponentEphemeral, "delete", start, err) }()

	resp, err := c.do(ctx, "delete", name, http.MethodDelete, instancePath(name), nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return errs.FromStatus(errs.KindRemote, "delete", name, resp.StatusCode, resp.Text(), true)
	}

	c.logger.Info("ephemeral instance deleted", "name", name)
	return nil
}
