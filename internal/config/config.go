// Package config provides configuration management for the localstack-ci CLI.
//
// It implements the disciplined Viper pattern where Viper stays contained
// in this package and the rest of the codebase receives explicit Config structs.
// Configuration sources are resolved in this order: flags > env > config file > defaults.
// A .env file in the working directory is loaded into the process environment
// first, without overriding variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blackwell-systems/localstack-control-plane/internal/backend"
	"github.com/blackwell-systems/localstack-control-plane/internal/credential"
	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
)

const (
	EnvPrefix        = "LSCI"
	DefaultAuthToken = "env:" + backend.AuthTokenVar
	DefaultEndpoint  = "http://localhost:4566"
	DefaultAPIURL    = "https://api.localstack.cloud/v1"
)

// Config is the explicit configuration struct
// This is what the rest of the codebase sees
type Config struct {
	Edition        string
	Image          string
	Configuration  string
	DockerSocket   string
	AuthToken      string // credential handle, never the token itself
	PullOnStart    bool
	StartupTimeout time.Duration
	Ports          PortConfig
	Endpoint       string
	Ephemeral      EphemeralConfig
	LogLevel       string
	LogFormat      string
	MetricsFile    string
}

// PortConfig defines host ports for the backend's container ports
type PortConfig struct {
	Gateway int
	HTTPS   int
}

// EphemeralConfig holds settings for the remote instance API
type EphemeralConfig struct {
	APIURL       string
	PollInterval time.Duration
	MaxWait      time.Duration
	Lifetime     int
}

// Init initializes viper with defaults and config file paths
func Init() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errs.Wrap(errs.KindConfig, "load", ".env", err)
	}

	// Set config file name and type
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Add config file search paths
	viper.AddConfigPath("$HOME/.localstack-ci")
	viper.AddConfigPath(".")

	setDefaults()

	// Bind environment variables with prefix
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errs.Wrap(errs.KindConfig, "load", viper.ConfigFileUsed(), err)
		}
	}

	return nil
}

// SetConfigFile points viper at an explicit file (the --config flag).
func SetConfigFile(path string) error {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return errs.Wrap(errs.KindConfig, "load", path, err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("edition", string(backend.EditionAuto))
	viper.SetDefault("image", "")
	viper.SetDefault("configuration", "")
	viper.SetDefault("docker-socket", "")
	viper.SetDefault("auth-token", DefaultAuthToken)
	viper.SetDefault("pull-on-start", false)
	viper.SetDefault("startup-timeout", 2*time.Minute)
	viper.SetDefault("port-gateway", backend.GatewayPort)
	viper.SetDefault("port-https", backend.HTTPSPort)
	viper.SetDefault("endpoint", DefaultEndpoint)
	viper.SetDefault("api-url", DefaultAPIURL)
	viper.SetDefault("poll-interval", 5*time.Second)
	viper.SetDefault("max-wait", 5*time.Minute)
	viper.SetDefault("lifetime", 60)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "text")
	viper.SetDefault("metrics-textfile", "")
}

// BindFlag binds a command flag to a config key so flags win over env and file.
func BindFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	_ = viper.BindPFlag(key, flag)
}

// Load reads from all sources and returns explicit Config
func Load() (*Config, error) {
	cfg := &Config{
		Edition:        viper.GetString("edition"),
		Image:          viper.GetString("image"),
		Configuration:  viper.GetString("configuration"),
		DockerSocket:   viper.GetString("docker-socket"),
		AuthToken:      viper.GetString("auth-token"),
		PullOnStart:    viper.GetBool("pull-on-start"),
		StartupTimeout: viper.GetDuration("startup-timeout"),
		Ports: PortConfig{
			Gateway: viper.GetInt("port-gateway"),
			HTTPS:   viper.GetInt("port-https"),
		},
		Endpoint: viper.GetString("endpoint"),
		Ephemeral: EphemeralConfig{
			APIURL:       viper.GetString("api-url"),
			PollInterval: viper.GetDuration("poll-interval"),
			MaxWait:      viper.GetDuration("max-wait"),
			Lifetime:     viper.GetInt("lifetime"),
		},
		LogLevel:    viper.GetString("log-level"),
		LogFormat:   viper.GetString("log-format"),
		MetricsFile: viper.GetString("metrics-textfile"),
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures config is sane
func (c *Config) Validate() error {
	if _, err := backend.ParseEdition(c.Edition); err != nil {
		return err
	}

	// host port 0 means "pick a free port"
	if c.Ports.Gateway < 0 || c.Ports.Gateway > 65535 {
		return errs.ConfigOpf("load", "port-gateway", "invalid gateway port: %d", c.Ports.Gateway)
	}

	if c.Ports.HTTPS < 0 || c.Ports.HTTPS > 65535 {
		return errs.ConfigOpf("load", "port-https", "invalid HTTPS port: %d", c.Ports.HTTPS)
	}

	if c.Ports.Gateway != 0 && c.Ports.Gateway == c.Ports.HTTPS {
		return errs.ConfigOpf("load", "port-https", "gateway and HTTPS ports must differ: %d", c.Ports.Gateway)
	}

	if c.StartupTimeout <= 0 {
		return errs.ConfigOpf("load", "startup-timeout", "invalid startup-timeout: %s", c.StartupTimeout)
	}

	if c.Ephemeral.PollInterval <= 0 {
		return errs.ConfigOpf("load", "poll-interval", "invalid poll-interval: %s", c.Ephemeral.PollInterval)
	}

	if c.Ephemeral.MaxWait < c.Ephemeral.PollInterval {
		return errs.ConfigOpf("load", "max-wait", "max-wait (%s) must be at least poll-interval (%s)", c.Ephemeral.MaxWait, c.Ephemeral.PollInterval)
	}

	if c.Ephemeral.Lifetime < 1 {
		return errs.ConfigOpf("load", "lifetime", "invalid lifetime: %d (minutes, must be > 0)", c.Ephemeral.Lifetime)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return errs.ConfigOpf("load", "log-format", "invalid log-format: %s (must be text or json)", c.LogFormat)
	}

	if c.AuthToken != "" {
		if _, err := credential.Parse(c.AuthToken); err != nil {
			return errs.Wrap(errs.KindConfig, "load", "auth-token", err)
		}
	}

	return nil
}

// Credential returns the configured credential handle, or nil when none is configured.
func (c *Config) Credential() (*credential.Secret, error) {
	if c.AuthToken == "" {
		return nil, nil
	}
	return credential.Parse(c.AuthToken)
}

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errs.ConfigOpf("load", "log-level", "invalid log-level: %s (must be debug, info, warn, or error)", s)
	}
}

// NewLogger creates a structured logger writing to w at the configured level.
func NewLogger(w io.Writer, c *Config) *slog.Logger {
	level, _ := ParseLogLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Save writes current config to file
func Save(cfg *Config) error {
	viper.Set("edition", cfg.Edition)
	viper.Set("image", cfg.Image)
	viper.Set("configuration", cfg.Configuration)
	viper.Set("docker-socket", cfg.DockerSocket)
	viper.Set("auth-token", cfg.AuthToken)
	viper.Set("pull-on-start", cfg.PullOnStart)
	viper.Set("startup-timeout", cfg.StartupTimeout.String())
	viper.Set("port-gateway", cfg.Ports.Gateway)
	viper.Set("port-https", cfg.Ports.HTTPS)
	viper.Set("endpoint", cfg.Endpoint)
	viper.Set("api-url", cfg.Ephemeral.APIURL)
	viper.Set("poll-interval", cfg.Ephemeral.PollInterval.String())
	viper.Set("max-wait", cfg.Ephemeral.MaxWait.String())
	viper.Set("lifetime", cfg.Ephemeral.Lifetime)
	viper.Set("log-level", cfg.LogLevel)
	viper.Set("log-format", cfg.LogFormat)
	viper.Set("metrics-textfile", cfg.MetricsFile)

	if viper.ConfigFileUsed() == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to locate home directory: %w", err)
		}
		path := filepath.Join(home, ".localstack-ci", "config.yaml")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		return viper.SafeWriteConfigAs(path)
	}
	return viper.WriteConfig()
}

// Display shows current config (for localstack-ci config show)
func Display() (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = "(not found)"
	}

	token := "(not set)"
	if cred, err := cfg.Credential(); err == nil && credential.Present(cred) {
		token = cred.Handle() + " (set)"
	} else if cred != nil {
		token = cred.Handle() + " (empty)"
	}

	return fmt.Sprintf(`Configuration:
  edition:            %s
  image:              %s
  configuration:      %s
  docker-socket:      %s
  auth-token:         %s
  pull-on-start:      %t
  startup-timeout:    %s

Ports:
  Gateway:            %d
  HTTPS (pro):        %d

State:
  endpoint:           %s

Ephemeral:
  api-url:            %s
  poll-interval:      %s
  max-wait:           %s
  lifetime:           %d min

Sources:
  Config file:        %s
  Environment:        %s_*
  Flags:              (per command)
`,
		cfg.Edition,
		orDefault(cfg.Image, "(edition default)"),
		orDefault(cfg.Configuration, "(none)"),
		orDefault(cfg.DockerSocket, "(not mounted)"),
		token,
		cfg.PullOnStart,
		cfg.StartupTimeout,
		cfg.Ports.Gateway,
		cfg.Ports.HTTPS,
		cfg.Endpoint,
		cfg.Ephemeral.APIURL,
		cfg.Ephemeral.PollInterval,
		cfg.Ephemeral.MaxWait,
		cfg.Ephemeral.Lifetime,
		configFile,
		EnvPrefix,
	), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
