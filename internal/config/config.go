// Package config loads and validates the gundeck daemon configuration.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/gundeck/internal/errors"
)

// Config represents the application configuration.
type Config struct {
	Platforms       map[string]Platform `yaml:"platforms"`
	DefaultPlatform string              `yaml:"default_platform,omitempty"`
	Remote          Remote              `yaml:"remote"`
	Services        []string            `yaml:"services,omitempty"`
	DriverLog       string              `yaml:"driver_log,omitempty"`
	VersionFile     string              `yaml:"version_file,omitempty"`
	OwnerAccount    string              `yaml:"owner_account,omitempty"`
	HTTP            HTTP                `yaml:"http"`
	Timeouts        Timeouts            `yaml:"timeouts"`
	Retention       Retention           `yaml:"retention"`
}

// Platform describes one device variant (PS1 / PS2 lightgun build).
type Platform struct {
	// ConfigPath is the live settings file for this variant.
	ConfigPath string `yaml:"config_path"`
	// InstallDir is where downloaded driver assets land.
	InstallDir string `yaml:"install_dir"`
	// RemoteDir is the variant's directory inside the release repository.
	RemoteDir string `yaml:"remote_dir"`
}

// Remote addresses the release repository holding driver assets.
type Remote struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch,omitempty"`
}

// HTTP holds the API server settings.
type HTTP struct {
	Port int `yaml:"port,omitempty"`
}

// Timeouts bound remote and service-controller calls, in seconds.
type Timeouts struct {
	ListSeconds     int `yaml:"list_seconds,omitempty"`
	DownloadSeconds int `yaml:"download_seconds,omitempty"`
	ServiceSeconds  int `yaml:"service_seconds,omitempty"`
}

// Retention bounds memory and disk growth.
type Retention struct {
	// BackupsPerPlatform keeps only the newest N backups per platform.
	BackupsPerPlatform int `yaml:"backups_per_platform,omitempty"`
	// TaskCap bounds the in-memory task registry.
	TaskCap int `yaml:"task_cap,omitempty"`
	// TaskLogLines caps per-task log growth.
	TaskLogLines int `yaml:"task_log_lines,omitempty"`
	// HistoryRows caps the sqlite task archive.
	HistoryRows int `yaml:"history_rows,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env overrides if present; missing files are fine.
	_ = godotenv.Load(".env.local", ".env")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.ConfigError(fmt.Sprintf("configuration file not found: %s", configPath))
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to read config file")
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to unmarshal config")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PlatformNames returns configured platform names in stable order.
func (c *Config) PlatformNames() []string {
	names := make([]string, 0, len(c.Platforms))
	for name := range c.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolvePlatform maps a user-supplied platform name onto a configured one,
// falling back to the default for empty or unknown input, matching the
// dashboard's permissive behavior.
func (c *Config) ResolvePlatform(name string) string {
	if _, ok := c.Platforms[name]; ok {
		return name
	}
	return c.DefaultPlatform
}

// Validate checks invariants that defaults cannot repair.
func (c *Config) Validate() error {
	if len(c.Platforms) == 0 {
		return errors.ConfigError("at least one platform must be configured")
	}
	for name, p := range c.Platforms {
		if p.ConfigPath == "" {
			return errors.ConfigError(fmt.Sprintf("platform %s: config_path is required", name))
		}
		if p.InstallDir == "" {
			return errors.ConfigError(fmt.Sprintf("platform %s: install_dir is required", name))
		}
	}
	if _, ok := c.Platforms[c.DefaultPlatform]; !ok {
		return errors.ConfigError(fmt.Sprintf("default_platform %q is not a configured platform", c.DefaultPlatform))
	}
	if c.Remote.Owner == "" || c.Remote.Repo == "" {
		return errors.ConfigError("remote.owner and remote.repo are required")
	}
	return nil
}
