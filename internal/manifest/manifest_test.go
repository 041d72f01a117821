package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/localstack-control-plane/internal/ephemeral"
)

const yamlManifest = `
defaults:
  lifetime: 45
  auto_load_pod: baseline
instances:
  - name: api-preview
  - name: worker-preview
    lifetime: 15
    extension: localstack-extension-mailhog
    replace: true
`

const jsonManifest = `{
  "instances": [
    {"name": "api-preview", "lifetime": 20}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		content   string
		wantCount int
		wantErr   bool
	}{
		{name: "yaml", file: "m.yaml", content: yamlManifest, wantCount: 2},
		{name: "yml", file: "m.yml", content: yamlManifest, wantCount: 2},
		{name: "json", file: "m.json", content: jsonManifest, wantCount: 1},
		{name: "broken json", file: "m.json", content: `{"instances": [`, wantErr: true},
		{name: "broken yaml", file: "m.yaml", content: "instances: [name: x", wantErr: true},
		{name: "unknown extension", file: "m.toml", content: yamlManifest, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Load(writeFile(t, tt.file, tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(m.Instances) != tt.wantCount {
				t.Errorf("Load() got %d instances, want %d", len(m.Instances), tt.wantCount)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestRequestsAppliesDefaults(t *testing.T) {
	m, err := Load(writeFile(t, "m.yaml", yamlManifest))
	if err != nil {
		t.Fatal(err)
	}

	reqs, err := m.Requests(60)
	if err != nil {
		t.Fatalf("Requests() error = %v", err)
	}

	want := []ephemeral.CreateRequest{
		{Name: "api-preview", Lifetime: 45, AutoLoadPod: "baseline"},
		{Name: "worker-preview", Lifetime: 15, AutoLoadPod: "baseline", Extension: "localstack-extension-mailhog", Replace: true},
	}
	if len(reqs) != len(want) {
		t.Fatalf("got %d requests, want %d", len(reqs), len(want))
	}
	for i := range want {
		if reqs[i] != want[i] {
			t.Errorf("request %d = %+v, want %+v", i, reqs[i], want[i])
		}
	}
}

func TestRequestsFallbackLifetime(t *testing.T) {
	m := &Manifest{Instances: []InstanceSpec{{Name: "a"}}}
	reqs, err := m.Requests(60)
	if err != nil {
		t.Fatal(err)
	}
	if reqs[0].Lifetime != 60 {
		t.Errorf("Lifetime = %d, want 60", reqs[0].Lifetime)
	}
}

func TestRequestsValidation(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		wantMsgs []string
	}{
		{
			name:     "empty",
			manifest: Manifest{},
			wantMsgs: []string{"no instances"},
		},
		{
			name: "bad and duplicate names reported together",
			manifest: Manifest{Instances: []InstanceSpec{
				{Name: "ok"}, {Name: "bad name"}, {Name: "ok"},
			}},
			wantMsgs: []string{"instances[1]", "instances[2]: duplicate name"},
		},
		{
			name:     "no lifetime anywhere",
			manifest: Manifest{Instances: []InstanceSpec{{Name: "a"}}},
			wantMsgs: []string{"lifetime must be > 0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.manifest.Requests(0)
			if err == nil {
				t.Fatal("expected error")
			}
			for _, msg := range tt.wantMsgs {
				if !strings.Contains(err.Error(), msg) {
					t.Errorf("error %q does not mention %q", err, msg)
				}
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	list := []ephemeral.Instance{{Name: "a", RawStatus: "running", Lifetime: 10}}

	var buf bytes.Buffer
	if err := Encode(&buf, FormatJSON, list); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"instance_name": "a"`) {
		t.Errorf("unexpected JSON: %s", buf.String())
	}

	buf.Reset()
	if err := Encode(&buf, FormatYAML, list); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "instance_name: a") {
		t.Errorf("unexpected YAML: %s", buf.String())
	}

	if err := Encode(&buf, FormatTable, list); err == nil {
		t.Error("table is not a structured encoding")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	list := []ephemeral.Instance{{
		Name:     "api-preview",
		Lifetime: 30,
		EnvVars:  map[string]string{ephemeral.AutoLoadPodVar: "baseline"},
	}}

	for _, name := range []string{"out.yaml", "out.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := Save(FromInstances(list), path); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			m, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			got := m.Instances[0]
			if got.Name != "api-preview" || got.Lifetime != 30 || got.AutoLoadPod != "baseline" {
				t.Errorf("round trip = %+v", got)
			}
		})
	}
}
