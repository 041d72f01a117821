// Package backend describes the LocalStack backend process: its editions,
// default images and ports, and the translation of user configuration into
// the container environment.
package backend

import (
	"fmt"
	"strings"

	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
)

// Edition selects the LocalStack distribution.
type Edition string

const (
	// EditionAuto picks pro when a credential is supplied, community otherwise.
	EditionAuto      Edition = "auto"
	EditionCommunity Edition = "community"
	EditionPro       Edition = "pro"
)

const (
	CommunityImage = "localstack/localstack:latest"
	ProImage       = "localstack/localstack-pro:latest"

	// GatewayPort is the primary edge endpoint, bound for every edition.
	GatewayPort = 4566
	// HTTPSPort is bound for the pro edition only.
	HTTPSPort = 443

	AuthTokenVar     = "LOCALSTACK_AUTH_TOKEN"
	DockerSocketPath = "/var/run/docker.sock"
)

// ParseEdition validates an edition name. The empty string means auto.
func ParseEdition(s string) (Edition, error) {
	switch e := Edition(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return EditionAuto, nil
	case EditionAuto, EditionCommunity, EditionPro:
		return e, nil
	default:
		return "", errs.ConfigOpf("start", "edition", "invalid edition: %s (must be auto, community, or pro)", s)
	}
}

// Resolve turns auto into a concrete edition. Pro without a credential is a
// contract violation.
func (e Edition) Resolve(hasCredential bool) (Edition, error) {
	switch e {
	case EditionAuto, "":
		if hasCredential {
			return EditionPro, nil
		}
		return EditionCommunity, nil
	case EditionPro:
		if !hasCredential {
			return "", errs.AuthRequired("start", string(EditionPro))
		}
		return e, nil
	case EditionCommunity:
		return e, nil
	default:
		return "", errs.ConfigOpf("start", "edition", "invalid edition: %s", e)
	}
}

// DefaultImage returns the image reference used when no override is given.
func (e Edition) DefaultImage() string {
	if e == EditionPro {
		return ProImage
	}
	return CommunityImage
}

// Defaults returns the environment every container of this edition starts from.
func (e Edition) Defaults() map[string]string {
	if e == EditionPro {
		return map[string]string{
			"GATEWAY_LISTEN": fmt.Sprintf("0.0.0.0:%d,0.0.0.0:%d", GatewayPort, HTTPSPort),
			"ACTIVATE_PRO":   "1",
		}
	}
	return map[string]string{
		"GATEWAY_LISTEN": fmt.Sprintf("0.0.0.0:%d", GatewayPort),
	}
}
