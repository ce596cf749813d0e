// Package config loads application configuration from a TOML file, falling
// back to defaults when the file is missing.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Engine        EngineConfig        `toml:"engine"`
	Fallback      FallbackConfig      `toml:"fallback"`
	Notifications NotificationsConfig `toml:"notifications"`
	Logging       LoggingConfig       `toml:"logging"`
}

// GeneralConfig holds workspace and settings locations.
type GeneralConfig struct {
	WorkspaceRoot  string `toml:"workspace_root"`
	SettingsDBPath string `toml:"settings_db_path"`
}

// EngineConfig holds the external optimization engine invocation.
type EngineConfig struct {
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	MaxConcurrent  int      `toml:"max_concurrent"`
}

// FallbackConfig tunes the random fallback sampler. A zero seed means seed
// from the clock.
type FallbackConfig struct {
	Seed int64 `toml:"seed"`
}

// NotificationsConfig holds notification sinks.
type NotificationsConfig struct {
	Desktop    bool   `toml:"desktop"`
	WebhookURL string `toml:"webhook_url"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			WorkspaceRoot:  "",
			SettingsDBPath: filepath.Join(home, ".config", "tunex", "settings.db"),
		},
		Engine: EngineConfig{
			Command:        "tunex-engine",
			TimeoutSeconds: 120,
			MaxConcurrent:  2,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.WorkspaceRoot = ExpandPath(cfg.General.WorkspaceRoot)
	cfg.General.SettingsDBPath = ExpandPath(cfg.General.SettingsDBPath)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tunex", "config.toml")
}
