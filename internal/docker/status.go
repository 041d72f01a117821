package docker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/localstack-control-plane/internal/httpapi"
)

// InfoPath reports version and edition of a running backend.
const InfoPath = "/_localstack/info"

// ServiceStatus represents the status of a service
type ServiceStatus int

const (
	ServiceUnknown ServiceStatus = iota
	ServiceUp
	ServiceDown
	ServiceStarting
	ServiceDisabled
)

// EndpointStatus represents the health of one backend endpoint
type EndpointStatus struct {
	Endpoint         string
	Reachable        bool
	Version          string
	Edition          string
	LicenseActivated bool
	Services         map[string]ServiceStatus
}

// ServiceNames returns the service names in stable order.
func (s *EndpointStatus) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for name := range s.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type healthResponse struct {
	Services map[string]string `json:"services"`
	Edition  string            `json:"edition"`
	Version  string            `json:"version"`
}

type infoResponse struct {
	Version          string `json:"version"`
	Edition          string `json:"edition"`
	LicenseActivated bool   `json:"is_license_activated"`
}

// Status returns health status of the backend at endpoint. The health and
// info endpoints are queried concurrently. A backend that cannot be reached is
// reported with Reachable false together with the probe error.
func Status(ctx context.Context, endpoint string, logger *slog.Logger) (*EndpointStatus, error) {
	client := httpapi.New(endpoint,
		httpapi.WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
		httpapi.WithLogger(logger))

	status := &EndpointStatus{
		Endpoint: client.BaseURL(),
		Services: map[string]ServiceStatus{},
	}

	var health healthResponse
	var info infoResponse

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return getJSON(gctx, client, HealthPath, &health)
	})
	g.Go(func() error {
		return getJSON(gctx, client, InfoPath, &info)
	})

	if err := g.Wait(); err != nil {
		return status, err
	}

	status.Reachable = true
	status.Version = firstNonEmpty(info.Version, health.Version)
	status.Edition = firstNonEmpty(info.Edition, health.Edition)
	status.LicenseActivated = info.LicenseActivated
	for name, s := range health.Services {
		status.Services[name] = parseServiceStatus(s)
	}

	return status, nil
}

func getJSON(ctx context.Context, client *httpapi.Client, path string, out any) error {
	resp, err := client.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return resp.DecodeJSON(out)
}

func parseServiceStatus(s string) ServiceStatus {
	switch s {
	case "available", "running":
		return ServiceUp
	case "initialized", "starting":
		return ServiceStarting
	case "disabled":
		return ServiceDisabled
	case "error":
		return ServiceDown
	default:
		return ServiceUnknown
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
