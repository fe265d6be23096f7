// Package config provides configuration file parsing for simsnap.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/simsnap/internal/paths"
)

// FileName is the config file inside Dir.
const FileName = "config.yaml"

// Environment overrides, applied after the file.
const (
	EnvDeviceRoot = "SIMSNAP_DEVICE_ROOT"
	EnvDB         = "SIMSNAP_DB"
)

// Dir returns the simsnap config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/simsnap if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "simsnap"), nil
}

// Config holds user settings. Zero durations and counts mean "use the
// built-in default" to the packages that consume them.
type Config struct {
	DeviceRoot    string        `yaml:"device_root"`
	DBPath        string        `yaml:"db_path"`
	Workers       int           `yaml:"workers"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	RetryPause    time.Duration `yaml:"retry_pause"`
	MessageTTL    time.Duration `yaml:"message_ttl"`
	SystemAppDirs []string      `yaml:"system_app_dirs"`
	Log           LogConfig     `yaml:"log"`

	// Warnings lists values that were skipped while loading.
	Warnings []string `yaml:"-"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Verbose       bool   `yaml:"verbose"`
	JSON          bool   `yaml:"json"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns the configuration used when no file exists. Paths are
// rooted at home.
func Default(home string) *Config {
	state := filepath.Join(home, ".simsnap")
	return &Config{
		DeviceRoot: paths.DefaultDeviceRoot(home),
		DBPath:     filepath.Join(state, "simsnap.db"),
		Log: LogConfig{
			RetentionDays: 7,
		},
	}
}

// Load reads the YAML file at path over the defaults for home. A missing
// file yields the defaults without error. Values of the wrong type are
// skipped and reported in Warnings; a file that is not YAML at all is an
// error.
func Load(path, home string) (*Config, error) {
	cfg := Default(home)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		var typeErr *yaml.TypeError
		if !errors.As(err, &typeErr) {
			return Default(home), fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.Warnings = append(cfg.Warnings, typeErr.Errors...)
	}

	cfg.DeviceRoot = expandHome(cfg.DeviceRoot, home)
	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.Log.Dir = expandHome(cfg.Log.Dir, home)
	for i, d := range cfg.SystemAppDirs {
		cfg.SystemAppDirs[i] = expandHome(d, home)
	}

	if cfg.Workers < 0 {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("workers: %d is negative, using default", cfg.Workers))
		cfg.Workers = 0
	}
	return cfg, nil
}

// ApplyEnv overrides file values with SIMSNAP_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDeviceRoot); v != "" {
		c.DeviceRoot = v
	}
	if v := getenv(EnvDB); v != "" {
		c.DBPath = v
	}
}

func expandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if len(p) > 1 && p[0] == '~' && p[1] == '/' {
		return filepath.Join(home, p[2:])
	}
	return p
}
