// Package credential models auth tokens as opaque handles.
//
// A Secret names where a token lives (an environment variable, a file, or an
// in-memory value handed over by a caller) and only produces the token inside
// Use. Every printing path (fmt verbs, slog, JSON) renders a fixed placeholder,
// so a Secret can be passed through configs, requests and log attributes
// without leaking.
package credential

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Redacted is what a Secret prints as.
const Redacted = "[REDACTED]"

// ErrAbsent is returned by Use when the handle resolves to nothing.
var ErrAbsent = errors.New("credential not set")

type source int

const (
	sourceValue source = iota
	sourceEnv
	sourceFile
)

// Secret is an opaque credential handle.
type Secret struct {
	src source
	ref string
}

// Parse turns a handle string into a Secret. Accepted forms are
// "env:NAME" and "file:/path/to/token". Plain tokens are rejected so they
// never travel through flags or config files.
func Parse(handle string) (*Secret, error) {
	kind, ref, ok := strings.Cut(handle, ":")
	if !ok || ref == "" {
		return nil, fmt.Errorf("invalid credential handle (want env:NAME or file:PATH)")
	}
	switch kind {
	case "env":
		return &Secret{src: sourceEnv, ref: ref}, nil
	case "file":
		return &Secret{src: sourceFile, ref: ref}, nil
	default:
		return nil, fmt.Errorf("unsupported credential source %q (want env or file)", kind)
	}
}

// FromEnv returns a Secret backed by the named environment variable.
func FromEnv(name string) *Secret {
	return &Secret{src: sourceEnv, ref: name}
}

// FromValue wraps an already materialized token, e.g. one injected by a
// pipeline host's secret store.
func FromValue(value string) *Secret {
	return &Secret{src: sourceValue, ref: value}
}

// Present reports whether s is non-nil and resolves to a non-empty token.
func Present(s *Secret) bool {
	return s != nil && s.IsSet()
}

// IsSet reports whether the handle currently resolves to a non-empty token.
// It does not keep the token.
func (s *Secret) IsSet() bool {
	if s == nil {
		return false
	}
	switch s.src {
	case sourceEnv:
		return os.Getenv(s.ref) != ""
	case sourceFile:
		info, err := os.Stat(s.ref)
		return err == nil && info.Size() > 0
	default:
		return s.ref != ""
	}
}

// Handle describes where the token comes from without revealing it.
func (s *Secret) Handle() string {
	if s == nil {
		return "(none)"
	}
	switch s.src {
	case sourceEnv:
		return "env:" + s.ref
	case sourceFile:
		return "file:" + s.ref
	default:
		return "value"
	}
}

// Use resolves the token and hands it to fn. The resolved buffer is wiped
// when fn returns, on every path. fn must not retain value.
func (s *Secret) Use(fn func(value string) error) error {
	if s == nil {
		return ErrAbsent
	}
	buf, err := s.resolve()
	if err != nil {
		return err
	}
	defer wipe(buf)
	if len(buf) == 0 {
		return ErrAbsent
	}
	return fn(string(buf))
}

func (s *Secret) resolve() ([]byte, error) {
	switch s.src {
	case sourceEnv:
		return []byte(os.Getenv(s.ref)), nil
	case sourceFile:
		data, err := os.ReadFile(s.ref)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrAbsent
			}
			// the path is not secret, the contents are
			return nil, fmt.Errorf("read credential file %s: %w", s.ref, errors.Unwrap(err))
		}
		trimmed := []byte(strings.TrimSpace(string(data)))
		wipe(data)
		return trimmed, nil
	default:
		return []byte(s.ref), nil
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// String implements fmt.Stringer.
func (s *Secret) String() string { return Redacted }

// GoString implements fmt.GoStringer.
func (s *Secret) GoString() string { return Redacted }

// Format makes every fmt verb print the placeholder.
func (s *Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(Redacted))
}

// LogValue implements slog.LogValuer.
func (s *Secret) LogValue() slog.Value {
	return slog.StringValue(Redacted)
}

// MarshalJSON implements json.Marshaler.
func (s *Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + Redacted + `"`), nil
}

// MarshalText implements encoding.TextMarshaler, which yaml and viper honor.
func (s *Secret) MarshalText() ([]byte, error) {
	return []byte(Redacted), nil
}

// Scrub removes value, and its base64 form, from text.
func Scrub(text, value string) string {
	if value == "" {
		return text
	}
	text = strings.ReplaceAll(text, value, Redacted)
	return strings.ReplaceAll(text, base64.StdEncoding.EncodeToString([]byte(value)), Redacted)
}
