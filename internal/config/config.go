// Package config provides configuration loading and management for Argon.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix of environment variables read through viper
	EnvPrefix = "ARGON"

	// DefaultConfigFileName is the config file looked up in the workspace
	DefaultConfigFileName = "argon.yaml"

	// DefaultCacheDirName is the cache directory created inside the workspace
	DefaultCacheDirName = ".argon"
)

const (
	// SourceTypeAPI fetches the class list from the Roblox client-version and API dump endpoints
	SourceTypeAPI = "api"

	// SourceTypeGit reads the class list from a Git repository tracking the API dump
	SourceTypeGit = "git"

	// SourceTypeFile reads the class list from a local file
	SourceTypeFile = "file"
)

const (
	// SourceFormatAPIDump is the Roblox API dump JSON format
	SourceFormatAPIDump = "api-dump"

	// SourceFormatClassList is a plain JSON list of class names, optionally wrapped
	// in an object carrying a version
	SourceFormatClassList = "class-list"
)

// Defaults for the Roblox endpoints and the Git mirror of the API dump
const (
	DefaultVersionEndpoint = "https://clientsettings.roblox.com/v2/client-version/WindowsStudio64"
	DefaultDumpEndpoint    = "https://setup.rbxcdn.com/{upload}-API-Dump.json"
	DefaultGitRepository   = "https://github.com/MaximumADHD/Roblox-Client-Tracker"
	DefaultGitBranch       = "roblox"
	DefaultGitPath         = "API-Dump.json"
)

// Operational defaults
const (
	DefaultMaxAge        = 24 * time.Hour
	DefaultHTTPTimeout   = 10 * time.Second
	DefaultHTTPRetries   = 3
	DefaultServerAddress = "localhost:8000"
	DefaultServiceName   = "argon"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path      string
	workspace string
}

// WithConfigPath loads configuration from a YAML file. The file must exist.
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		cfg.path = realPath
		return nil
	}
}

// WithWorkspace sets the workspace directory. Without WithConfigPath, the
// config file is looked up as <workspace>/argon.yaml and defaults are used
// when it does not exist.
func WithWorkspace(dir string) Option {
	return func(cfg *loaderConfig) error {
		if dir == "" {
			return nil
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve workspace path: %w", err)
		}
		cfg.workspace = abs
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Name identifies the project in session details. Defaults to the workspace directory name.
	Name string `yaml:"name,omitempty"`

	// Workspace is the directory being synced. Defaults to the current directory.
	Workspace string `yaml:"workspace,omitempty"`

	// CacheDir holds the class cache, status and lock files. Defaults to <workspace>/.argon
	CacheDir string `yaml:"cacheDir,omitempty"`

	// Source describes where the authoritative class list is fetched from
	Source SourceConfig `yaml:"source"`

	SyncPolicy *SyncPolicyConfig `yaml:"syncPolicy,omitempty"`
	HTTP       *HTTPConfig       `yaml:"http,omitempty"`
	Server     *ServerConfig     `yaml:"server,omitempty"`
	Telemetry  *TelemetryConfig  `yaml:"telemetry,omitempty"`
}

// SourceConfig defines the remote class list source
type SourceConfig struct {
	// Type is one of api, git or file. Defaults to api.
	Type string `yaml:"type,omitempty"`

	// Format specifies the payload format (api-dump or class-list). Defaults to api-dump.
	Format string `yaml:"format,omitempty"`

	// Type-specific configurations (only the one matching Type is used)
	API  *APIConfig  `yaml:"api,omitempty"`
	Git  *GitConfig  `yaml:"git,omitempty"`
	File *FileConfig `yaml:"file,omitempty"`
}

// APIConfig defines the HTTP endpoints of the api source
type APIConfig struct {
	// VersionEndpoint returns JSON with "version" and "clientVersionUpload" fields
	VersionEndpoint string `yaml:"versionEndpoint,omitempty"`

	// DumpEndpoint is the API dump URL; "{upload}" is replaced with clientVersionUpload
	DumpEndpoint string `yaml:"dumpEndpoint,omitempty"`
}

// GitConfig defines Git source settings
type GitConfig struct {
	// Repository is the Git repository URL
	Repository string `yaml:"repository,omitempty"`

	// Branch is the branch holding the dump
	Branch string `yaml:"branch,omitempty"`

	// Path is the path of the dump file within the repository
	Path string `yaml:"path,omitempty"`
}

// FileConfig defines local file source configuration
type FileConfig struct {
	// Path is the dump file, absolute or relative to the workspace
	Path string `yaml:"path"`
}

// SyncPolicyConfig defines when the class database is considered stale
type SyncPolicyConfig struct {
	// MaxAge is how long a synced database stays fresh (e.g. "24h"). "0" disables expiry.
	MaxAge string `yaml:"maxAge,omitempty"`

	// CheckInterval enables a periodic staleness check while a session runs. Empty disables it.
	CheckInterval string `yaml:"checkInterval,omitempty"`

	// CheckOnStart runs a staleness check when a session starts. Defaults to true.
	CheckOnStart *bool `yaml:"checkOnStart,omitempty"`
}

// HTTPConfig defines the remote transport settings
type HTTPConfig struct {
	// Timeout is the per-request timeout (e.g. "10s")
	Timeout string `yaml:"timeout,omitempty"`

	// Retries is the number of attempts for transient failures. Defaults to 3.
	Retries *int `yaml:"retries,omitempty"`
}

// ServerConfig defines the local session server
type ServerConfig struct {
	// Address to listen on. Defaults to localhost:8000
	Address string `yaml:"address,omitempty"`
}

// TelemetryConfig defines metrics export
type TelemetryConfig struct {
	// ServiceName identifies this process in exported metrics
	ServiceName string `yaml:"serviceName,omitempty"`

	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig defines metrics-specific configuration
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `yaml:"enabled"`

	// Prometheus exposes metrics on the session server's /metrics endpoint
	Prometheus bool `yaml:"prometheus,omitempty"`

	// Endpoint is an OTLP/HTTP collector ("host:port"). Empty disables OTLP export.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure allows HTTP connections to the collector
	Insecure bool `yaml:"insecure,omitempty"`
}

// LoadConfig loads, defaults and validates configuration
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	path, required := loaderCfg.path, true
	if path == "" {
		workspace := loaderCfg.workspace
		if workspace == "" {
			workspace = "."
		}
		path, required = filepath.Join(workspace, DefaultConfigFileName), false
	}

	// #nosec G304 -- the path is provided by the operator
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
		// No config file: defaults only
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if loaderCfg.workspace != "" {
		config.Workspace = loaderCfg.workspace
	}

	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the configuration used when no file is present
func Default(workspace string) (*Config, error) {
	config := &Config{Workspace: workspace}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyDefaults fills every optional field and resolves paths against the workspace
func (c *Config) applyDefaults() error {
	if c.Workspace == "" {
		c.Workspace = "."
	}
	workspace, err := filepath.Abs(c.Workspace)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	c.Workspace = workspace

	if c.Name == "" {
		c.Name = filepath.Base(c.Workspace)
	}

	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.Workspace, DefaultCacheDirName)
	} else if !filepath.IsAbs(c.CacheDir) {
		c.CacheDir = filepath.Join(c.Workspace, c.CacheDir)
	}

	c.Source.applyDefaults(c.Workspace)
	return nil
}

func (s *SourceConfig) applyDefaults(workspace string) {
	if s.Type == "" {
		s.Type = s.inferType()
	}
	if s.Format == "" {
		s.Format = SourceFormatAPIDump
	}

	switch s.Type {
	case SourceTypeAPI:
		if s.API == nil {
			s.API = &APIConfig{}
		}
		if s.API.VersionEndpoint == "" {
			s.API.VersionEndpoint = DefaultVersionEndpoint
		}
		if s.API.DumpEndpoint == "" {
			s.API.DumpEndpoint = DefaultDumpEndpoint
		}
	case SourceTypeGit:
		if s.Git == nil {
			s.Git = &GitConfig{}
		}
		if s.Git.Repository == "" {
			s.Git.Repository = DefaultGitRepository
			if s.Git.Branch == "" {
				s.Git.Branch = DefaultGitBranch
			}
		}
		if s.Git.Path == "" {
			s.Git.Path = DefaultGitPath
		}
	case SourceTypeFile:
		if s.File != nil && s.File.Path != "" && !filepath.IsAbs(s.File.Path) {
			s.File.Path = filepath.Join(workspace, s.File.Path)
		}
	}
}

// inferType returns the type of the single configured block, api when none is
func (s *SourceConfig) inferType() string {
	switch {
	case s.Git != nil && s.API == nil && s.File == nil:
		return SourceTypeGit
	case s.File != nil && s.API == nil && s.Git == nil:
		return SourceTypeFile
	default:
		return SourceTypeAPI
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}

	if c.SyncPolicy != nil {
		if c.SyncPolicy.MaxAge != "" {
			if _, err := parseNonNegativeDuration(c.SyncPolicy.MaxAge); err != nil {
				return fmt.Errorf("syncPolicy.maxAge must be a valid duration (e.g., '30m', '24h'): %w", err)
			}
		}
		if c.SyncPolicy.CheckInterval != "" {
			d, err := parseNonNegativeDuration(c.SyncPolicy.CheckInterval)
			if err != nil {
				return fmt.Errorf("syncPolicy.checkInterval must be a valid duration (e.g., '1h'): %w", err)
			}
			if d > 0 && d < time.Minute {
				return fmt.Errorf("syncPolicy.checkInterval must be at least 1m, got %s", d)
			}
		}
	}

	if c.HTTP != nil {
		if c.HTTP.Timeout != "" {
			d, err := parseNonNegativeDuration(c.HTTP.Timeout)
			if err != nil || d == 0 {
				return fmt.Errorf("http.timeout must be a positive duration, got %q", c.HTTP.Timeout)
			}
		}
		if c.HTTP.Retries != nil && *c.HTTP.Retries < 1 {
			return fmt.Errorf("http.retries must be at least 1, got %d", *c.HTTP.Retries)
		}
	}

	return nil
}

// Validate checks the source configuration
func (s *SourceConfig) Validate() error {
	if s == nil {
		return fmt.Errorf("source configuration cannot be nil")
	}

	switch s.Format {
	case SourceFormatAPIDump, SourceFormatClassList:
	default:
		return fmt.Errorf("unsupported format %q: expected %s or %s", s.Format, SourceFormatAPIDump, SourceFormatClassList)
	}

	switch s.Type {
	case SourceTypeAPI:
		if s.API == nil || s.API.VersionEndpoint == "" || s.API.DumpEndpoint == "" {
			return fmt.Errorf("api.versionEndpoint and api.dumpEndpoint are required")
		}
	case SourceTypeGit:
		if s.Git == nil || s.Git.Repository == "" {
			return fmt.Errorf("git.repository is required")
		}
	case SourceTypeFile:
		if s.File == nil || s.File.Path == "" {
			return fmt.Errorf("file.path is required")
		}
	default:
		return fmt.Errorf("unsupported source type %q", s.Type)
	}

	return nil
}

func parseNonNegativeDuration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration cannot be negative: %s", value)
	}
	return d, nil
}

// GetMaxAge returns how long a synced database stays fresh
func (c *Config) GetMaxAge() time.Duration {
	if c.SyncPolicy == nil || c.SyncPolicy.MaxAge == "" {
		return DefaultMaxAge
	}
	d, err := time.ParseDuration(c.SyncPolicy.MaxAge)
	if err != nil {
		return DefaultMaxAge
	}
	return d
}

// GetCheckInterval returns the periodic check interval, 0 when disabled
func (c *Config) GetCheckInterval() time.Duration {
	if c.SyncPolicy == nil || c.SyncPolicy.CheckInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.SyncPolicy.CheckInterval)
	if err != nil {
		return 0
	}
	return d
}

// CheckOnStart reports whether a session start triggers a staleness check
func (c *Config) CheckOnStart() bool {
	if c.SyncPolicy == nil || c.SyncPolicy.CheckOnStart == nil {
		return true
	}
	return *c.SyncPolicy.CheckOnStart
}

// GetHTTPTimeout returns the per-request timeout
func (c *Config) GetHTTPTimeout() time.Duration {
	if c.HTTP == nil || c.HTTP.Timeout == "" {
		return DefaultHTTPTimeout
	}
	d, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil || d <= 0 {
		return DefaultHTTPTimeout
	}
	return d
}

// GetHTTPRetries returns the number of attempts for transient failures
func (c *Config) GetHTTPRetries() int {
	if c.HTTP == nil || c.HTTP.Retries == nil {
		return DefaultHTTPRetries
	}
	return *c.HTTP.Retries
}

// GetServerAddress returns the session server address
func (c *Config) GetServerAddress() string {
	if c.Server == nil || c.Server.Address == "" {
		return DefaultServerAddress
	}
	return c.Server.Address
}

// GetServiceName returns the telemetry service name
func (c *Config) GetServiceName() string {
	if c.Telemetry == nil || c.Telemetry.ServiceName == "" {
		return DefaultServiceName
	}
	return c.Telemetry.ServiceName
}

// GetMetrics returns the metrics configuration, nil when metrics are not configured
func (c *Config) GetMetrics() *MetricsConfig {
	if c.Telemetry == nil {
		return nil
	}
	return c.Telemetry.Metrics
}
