// Package config provides configuration management for the HighFlow desktop
// auth core. It handles loading and parsing the YAML configuration file and
// provides structured access to the backend endpoint, OAuth provider settings,
// the loopback callback port, and local storage paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when the configuration file omits a setting.
const (
	DefaultBackendBaseURL = "https://api.highflow.app"
	DefaultProvider       = "google"
	DefaultAuthorizeURL   = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultClientID       = "865203172544-hfq4dm3v9p2ku1hs7t0c4tqvrg3onmfu.apps.googleusercontent.com"
	DefaultCallbackPort   = 51340
	DefaultCallbackPath   = "/auth/callback"
	defaultTimeoutSeconds = 300
)

// DefaultScopes are the OAuth scopes requested on every login.
var DefaultScopes = []string{"openid", "email", "profile"}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// BackendBaseURL is the base URL of the HighFlow backend service.
	BackendBaseURL string `yaml:"backend-base-url" json:"backend-base-url"`

	// Provider is the identity provider slug used in backend auth routes
	// (POST /v1/auth/<provider>).
	Provider string `yaml:"provider" json:"provider"`

	// AuthorizeURL is the provider's OAuth2 authorization endpoint.
	AuthorizeURL string `yaml:"authorize-url" json:"authorize-url"`

	// ClientID is the OAuth2 client identifier registered for the desktop app.
	ClientID string `yaml:"client-id" json:"client-id"`

	// Scopes is the list of OAuth scopes requested during authorization.
	Scopes []string `yaml:"scopes" json:"scopes"`

	// CallbackPort is the fixed local port the loopback listener binds to.
	// It must match the redirect URI registered with the provider.
	CallbackPort int `yaml:"callback-port" json:"callback-port"`

	// CallbackPath is the redirect path on the loopback listener.
	CallbackPath string `yaml:"callback-path" json:"callback-path"`

	// CallbackTimeoutSeconds bounds how long a login attempt waits for the
	// provider redirect before giving up.
	CallbackTimeoutSeconds int `yaml:"callback-timeout-seconds" json:"callback-timeout-seconds"`

	// DataDir is the per-user directory holding the stored credential and
	// key material. Empty means the OS user config directory is used.
	DataDir string `yaml:"data-dir" json:"data-dir"`

	// LoggingToFile enables writing logs to a rotating file in addition to stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir overrides the directory used for rotating log files.
	LogDir string `yaml:"log-dir" json:"log-dir"`
}

// Load reads and parses the configuration file at the given path.
// A missing file is not an error; defaults are returned instead, so the
// core works out of the box on a fresh install.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s failed: %w", path, err)
	}

	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s failed: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills in zero-valued settings with their defaults.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.BackendBaseURL) == "" {
		c.BackendBaseURL = DefaultBackendBaseURL
	}
	c.BackendBaseURL = strings.TrimRight(c.BackendBaseURL, "/")
	if strings.TrimSpace(c.Provider) == "" {
		c.Provider = DefaultProvider
	}
	if strings.TrimSpace(c.AuthorizeURL) == "" {
		c.AuthorizeURL = DefaultAuthorizeURL
	}
	if strings.TrimSpace(c.ClientID) == "" {
		c.ClientID = DefaultClientID
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.CallbackPort <= 0 {
		c.CallbackPort = DefaultCallbackPort
	}
	if strings.TrimSpace(c.CallbackPath) == "" {
		c.CallbackPath = DefaultCallbackPath
	}
	if !strings.HasPrefix(c.CallbackPath, "/") {
		c.CallbackPath = "/" + c.CallbackPath
	}
	if c.CallbackTimeoutSeconds <= 0 {
		c.CallbackTimeoutSeconds = defaultTimeoutSeconds
	}
}

// CallbackTimeout returns the callback wait window as a duration.
func (c *Config) CallbackTimeout() time.Duration {
	return time.Duration(c.CallbackTimeoutSeconds) * time.Second
}

// RedirectURI returns the loopback redirect URI registered with the provider.
func (c *Config) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", c.CallbackPort, c.CallbackPath)
}

// ResolveDataDir returns the directory used for credential storage, creating
// nothing. When DataDir is unset it falls back to the per-user config
// directory (e.g. ~/.config/highflow on Linux).
func (c *Config) ResolveDataDir() (string, error) {
	if strings.TrimSpace(c.DataDir) != "" {
		return c.DataDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir failed: %w", err)
	}
	return filepath.Join(base, "highflow"), nil
}
