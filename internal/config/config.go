// Package config provides configuration management for the board client.
// It loads a YAML file, applies .env and environment overrides, and
// exposes the settings the dispatcher and the CLI need.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultServerURL is used when neither the file nor the environment
	// names a backend.
	DefaultServerURL = "http://127.0.0.1:8000"

	// DefaultTimeout bounds each backend call.
	DefaultTimeout = 20 * time.Second

	// DefaultCSRFPath is the backend's token endpoint.
	DefaultCSRFPath = "/apis/auth/csrf_token"
)

// serverURLEnv lists the variables that override server-url, in priority order.
var serverURLEnv = []string{"BOARD_SERVER_URL", "SERVER_URL"}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// ServerURL is the backend base URL. Trailing slashes are removed.
	ServerURL string `yaml:"server-url" json:"server-url"`

	// Timeout bounds each call, e.g. "20s".
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// CSRFPath is the token endpoint relative to ServerURL.
	CSRFPath string `yaml:"csrf-path" json:"csrf-path"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// UserAgent is sent with every call when set.
	UserAgent string `yaml:"user-agent" json:"user-agent"`

	Debug         bool `yaml:"debug" json:"debug"`
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// Stub configures the local stub backend.
	Stub StubConfig `yaml:"stub" json:"stub"`
}

// StubConfig holds settings for the bundled stub backend.
type StubConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8000".
	Addr string `yaml:"addr" json:"addr"`

	// CSRFCookie makes the stub set the token as a cookie as well.
	CSRFCookie bool `yaml:"csrf-cookie" json:"csrf-cookie"`
}

// Duration is a time.Duration that reads "20s" or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings and integer seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the Go duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ParseDuration parses "1m30s" style durations and bare seconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid duration %q", raw)
}

// NewDefaultConfig returns the settings used when no file is present.
func NewDefaultConfig() *Config {
	return &Config{
		ServerURL: DefaultServerURL,
		Timeout:   Duration(DefaultTimeout),
		CSRFPath:  DefaultCSRFPath,
		Stub: StubConfig{
			Addr: "127.0.0.1:8000",
		},
	}
}

// GenerateDefaultConfigYAML renders NewDefaultConfig as YAML.
func GenerateDefaultConfigYAML() []byte {
	data, err := yaml.Marshal(NewDefaultConfig())
	if err != nil {
		return []byte("server-url: " + DefaultServerURL + "\ntimeout: 20s\n")
	}
	return data
}

// LoadConfig reads a YAML configuration file from the given path.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads configFile. When optional is true a missing or
// empty file yields the defaults. Environment overrides are applied last.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := NewDefaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		switch {
		case err != nil && optional && (os.IsNotExist(err) || errors.Is(err, syscall.EISDIR)):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		case len(strings.TrimSpace(string(data))) == 0 && optional:
		default:
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	ApplyEnv(cfg)
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from the environment.
func ApplyEnv(cfg *Config) {
	for _, key := range serverURLEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			cfg.ServerURL = v
			break
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOARD_TIMEOUT")); v != "" {
		if d, err := ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = Duration(d)
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOARD_PROXY_URL")); v != "" {
		cfg.ProxyURL = v
	}
}

// Normalize trims and validates cfg in place.
func (c *Config) Normalize() error {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: server-url %q must be an absolute http(s) url", c.ServerURL)
	}
	if c.Timeout <= 0 {
		c.Timeout = Duration(DefaultTimeout)
	}
	c.CSRFPath = strings.TrimSpace(c.CSRFPath)
	if c.CSRFPath == "" {
		c.CSRFPath = DefaultCSRFPath
	}
	if !strings.HasPrefix(c.CSRFPath, "/") {
		c.CSRFPath = "/" + c.CSRFPath
	}
	c.ProxyURL = strings.TrimSpace(c.ProxyURL)
	c.UserAgent = strings.TrimSpace(c.UserAgent)
	return nil
}
