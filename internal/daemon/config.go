// Package daemon wires the predictor service together: configuration,
// logging, storage, the HTTP server, and the two background jobs.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from a TOML file.
type Config struct {
	API       APIConfig       `toml:"api"`
	DB        DBConfig        `toml:"db"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Log       LogConfig       `toml:"log"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DBConfig configures the SQLite store.
type DBConfig struct {
	Path          string `toml:"path"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// BusyTimeout returns the busy timeout as a duration.
func (c DBConfig) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

// SchedulerConfig toggles the daily background jobs.
type SchedulerConfig struct {
	DecayEnabled  bool `toml:"decay_enabled"`
	WeeklyEnabled bool `toml:"weekly_enabled"`
}

// LogConfig configures zerolog output. With an empty File logs go to
// stderr; otherwise to a size-rotated file.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// DispatchConfig bounds the background dispatch worker.
type DispatchConfig struct {
	MaxConcurrent int `toml:"max_concurrent"`
}

// DefaultConfig returns production defaults. The database lands under the
// user's home directory.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8487,
			Metrics: true,
		},
		DB: DBConfig{
			Path:          filepath.Join(home, ".pantryd", "pantry.db"),
			BusyTimeoutMS: 5000,
		},
		Scheduler: SchedulerConfig{
			DecayEnabled:  true,
			WeeklyEnabled: true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Dispatch: DispatchConfig{
			MaxConcurrent: 4,
		},
	}
}

// LoadConfig reads a TOML config file over the defaults. A missing file is
// not an error: defaults apply. Unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
