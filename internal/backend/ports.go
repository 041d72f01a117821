package backend

import (
	"fmt"

	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
)

// PortBinding maps a host port to a container port. Host 0 lets the
// runtime pick a free host port.
type PortBinding struct {
	Host      int
	Container int
}

func (p PortBinding) String() string {
	if p.Host == 0 {
		return fmt.Sprintf("*:%d", p.Container)
	}
	return fmt.Sprintf("%d:%d", p.Host, p.Container)
}

// DefaultPorts returns the bindings for an edition. The pro set is always the
// community set plus the HTTPS port.
func DefaultPorts(e Edition, gatewayHost, httpsHost int) []PortBinding {
	ports := []PortBinding{{Host: gatewayHost, Container: GatewayPort}}
	if e == EditionPro {
		ports = append(ports, PortBinding{Host: httpsHost, Container: HTTPSPort})
	}
	return ports
}

// ValidatePorts ensures ports are in range, host ports and container ports are
// unique, and the gateway port is bound.
func ValidatePorts(ports []PortBinding) error {
	hosts := make(map[int]bool, len(ports))
	containers := make(map[int]bool, len(ports))
	gateway := false

	for _, p := range ports {
		if p.Container < 1 || p.Container > 65535 {
			return errs.ConfigOpf("start", "ports", "invalid container port: %d", p.Container)
		}
		if p.Host < 0 || p.Host > 65535 {
			return errs.ConfigOpf("start", "ports", "invalid host port: %d", p.Host)
		}
		if containers[p.Container] {
			return errs.ConfigOpf("start", "ports", "container port %d bound twice", p.Container)
		}
		containers[p.Container] = true
		if p.Host != 0 {
			if hosts[p.Host] {
				return errs.ConfigOpf("start", "ports", "host port %d bound twice", p.Host)
			}
			hosts[p.Host] = true
		}
		if p.Container == GatewayPort {
			gateway = true
		}
	}

	if !gateway {
		return errs.ConfigOpf("start", "ports", "gateway port %d must be bound", GatewayPort)
	}
	return nil
}
