// Package config handles configuration loading for agenticflow.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for agenticflow.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Retry   RetryConfig   `mapstructure:"retry"`
	History HistoryConfig `mapstructure:"history"`
	TUI     TUIConfig     `mapstructure:"tui"`
}

// EngineConfig holds scheduler settings.
type EngineConfig struct {
	// MaxConcurrent bounds the number of simultaneously running tasks.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// HeartbeatInterval is the quiet-period interval between synthetic
	// heartbeat events. Zero disables heartbeats.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// EventBufferSize is the per-coordinator event channel capacity.
	EventBufferSize int `mapstructure:"event_buffer_size"`
}

// RetryConfig holds the workflow-level retry defaults.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// HistoryConfig holds run-history persistence settings.
type HistoryConfig struct {
	// Enabled controls whether finished runs are recorded.
	Enabled bool `mapstructure:"enabled"`
	// Path overrides the database location. Empty means the XDG default.
	Path string `mapstructure:"path"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (AGENTICFLOW_*)
// 2. Project config (.agenticflow.yaml in current directory or parent)
// 3. User config (~/.config/agenticflow/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("AGENTICFLOW")
	v.AutomaticEnv()
	v.BindEnv("engine.max_concurrent", "AGENTICFLOW_MAX_CONCURRENT")
	v.BindEnv("history.path", "AGENTICFLOW_HISTORY_PATH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.History.Path = os.ExpandEnv(cfg.History.Path)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.History.Path = os.ExpandEnv(cfg.History.Path)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.max_concurrent", 4)
	v.SetDefault("engine.heartbeat_interval", "5s")
	v.SetDefault("engine.event_buffer_size", 64)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", "500ms")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.backoff_multiplier", 2.0)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for agenticflow.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agenticflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "agenticflow")
	}
	return filepath.Join(home, ".config", "agenticflow")
}

// findProjectConfig searches for .agenticflow.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".agenticflow.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxConcurrent:     4,
			HeartbeatInterval: 5 * time.Second,
			EventBufferSize:   64,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      500 * time.Millisecond,
			MaxDelay:          30 * time.Second,
			BackoffMultiplier: 2.0,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
