// Package manifest reads ephemeral instance manifests and encodes command
// output.
//
// A manifest lists the instances a pipeline wants, so a whole preview
// environment can be created from one checked-in file. YAML (.yaml, .yml) and
// JSON (.json) are both accepted.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/localstack-control-plane/internal/ephemeral"
)

// Manifest is the file structure
type Manifest struct {
	// Defaults apply to every instance that leaves the field unset.
	Defaults  Defaults       `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Instances []InstanceSpec `yaml:"instances" json:"instances"`
}

// Defaults holds fallback values for instances
type Defaults struct {
	Lifetime    int    `yaml:"lifetime,omitempty" json:"lifetime,omitempty"`
	AutoLoadPod string `yaml:"auto_load_pod,omitempty" json:"auto_load_pod,omitempty"`
	Extension   string `yaml:"extension,omitempty" json:"extension,omitempty"`
}

// InstanceSpec describes one instance
type InstanceSpec struct {
	Name        string `yaml:"name" json:"name"`
	Lifetime    int    `yaml:"lifetime,omitempty" json:"lifetime,omitempty"`
	AutoLoadPod string `yaml:"auto_load_pod,omitempty" json:"auto_load_pod,omitempty"`
	Extension   string `yaml:"extension,omitempty" json:"extension,omitempty"`
	Replace     bool   `yaml:"replace,omitempty" json:"replace,omitempty"`
}

// Load loads and parses a manifest file (supports .yaml, .yml, and .json)
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest extension %q (want .yaml, .yml or .json)", ext)
	}

	return &m, nil
}

// Requests applies defaults and validates every instance. All problems are
// reported together.
func (m *Manifest) Requests(fallbackLifetime int) ([]ephemeral.CreateRequest, error) {
	if len(m.Instances) == 0 {
		return nil, errors.New("manifest lists no instances")
	}

	var problems []error
	seen := make(map[string]bool, len(m.Instances))
	reqs := make([]ephemeral.CreateRequest, 0, len(m.Instances))

	for i, inst := range m.Instances {
		req := ephemeral.CreateRequest{
			Name:        inst.Name,
			Lifetime:    firstPositive(inst.Lifetime, m.Defaults.Lifetime, fallbackLifetime),
			AutoLoadPod: firstNonEmpty(inst.AutoLoadPod, m.Defaults.AutoLoadPod),
			Extension:   firstNonEmpty(inst.Extension, m.Defaults.Extension),
			Replace:     inst.Replace,
		}

		if err := ephemeral.ValidateName(req.Name); err != nil {
			problems = append(problems, fmt.Errorf("instances[%d]: %w", i, err))
			continue
		}
		if seen[req.Name] {
			problems = append(problems, fmt.Errorf("instances[%d]: duplicate name %q", i, req.Name))
			continue
		}
		seen[req.Name] = true
		if req.Lifetime <= 0 {
			problems = append(problems, fmt.Errorf("instances[%d] %s: lifetime must be > 0", i, req.Name))
			continue
		}
		reqs = append(reqs, req)
	}

	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return reqs, nil
}

// Format is an output encoding
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatYAML, FormatJSON:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, yaml or json)", s)
	}
}

// Encode writes v as YAML or JSON. Table output is rendered by the caller.
func Encode(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %q is not a structured encoding", format)
	}
}

// FromInstances builds a manifest that recreates the given instances.
func FromInstances(list []ephemeral.Instance) *Manifest {
	m := &Manifest{Instances: make([]InstanceSpec, 0, len(list))}
	for _, inst := range list {
		m.Instances = append(m.Instances, InstanceSpec{
			Name:        inst.Name,
			Lifetime:    inst.Lifetime,
			AutoLoadPod: inst.EnvVars[ephemeral.AutoLoadPodVar],
			Extension:   inst.EnvVars[ephemeral.ExtensionVar],
		})
	}
	return m
}

// Save writes m to path (format determined by file extension)
func Save(m *Manifest, path string) error {
	var format Format
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		format = FormatJSON
	case ".yaml", ".yml":
		format = FormatYAML
	default:
		return fmt.Errorf("unsupported manifest extension %q (want .yaml, .yml or .json)", ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := Encode(f, format, m); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return f.Close()
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
