package backend

import (
	"strings"

	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
)

// Pair is one KEY=VALUE entry of a configuration string.
type Pair struct {
	Key   string
	Value string
}

// ParseConfiguration splits "KEY1=value1,KEY2=value2" into ordered pairs.
// Entries are trimmed and split on the first '='; values may contain '='.
// Empty segments are skipped. An entry without '=' or with an empty key is
// rejected.
func ParseConfiguration(s string) ([]Pair, error) {
	var pairs []Pair
	for i, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, errs.ConfigOpf("translate", "configuration", "entry %d (%q) is missing '='", i+1, entry)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, errs.ConfigOpf("translate", "configuration", "entry %d has an empty key", i+1)
		}
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	return pairs, nil
}

// Environment builds the container environment from edition defaults and
// pairs. Pairs override defaults and later pairs override earlier ones.
// The auth token variable is set only when token is non-empty.
func Environment(pairs []Pair, edition Edition, token string) map[string]string {
	env := edition.Defaults()
	for _, p := range pairs {
		env[p.Key] = p.Value
	}
	if token != "" {
		env[AuthTokenVar] = token
	}
	return env
}

// Translate parses configuration and builds the container environment.
// It is pure: the same inputs always produce the same mapping.
func Translate(configuration string, edition Edition, token string) (map[string]string, error) {
	pairs, err := ParseConfiguration(configuration)
	if err != nil {
		return nil, err
	}
	return Environment(pairs, edition, token), nil
}
