package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SocketPath     string        `yaml:"socket_path"`
	DBPath         string        `yaml:"db_path"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	UnaryTimeout   time.Duration `yaml:"unary_timeout"`
	ReadRetries    int           `yaml:"read_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	MetricsEnabled bool          `yaml:"metrics_enabled"`

	// CheckpointInterval is how often the daemon truncates the SQLite WAL.
	// Zero disables the loop.
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

func DefaultConfig() Config {
	return Config{
		SocketPath:     defaultSocketPath(),
		DBPath:         defaultDBPath(),
		LogLevel:       "info",
		LogFormat:      "console",
		UnaryTimeout:   5 * time.Second,
		ReadRetries:    2,
		RetryBackoff:   250 * time.Millisecond,
		MetricsEnabled: true,

		CheckpointInterval: 10 * time.Minute,
	}
}

// LoadFile overlays the YAML file at path onto base. Keys missing from the
// file keep their base value. A missing file is not an error.
func LoadFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket_path is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.UnaryTimeout <= 0 {
		return fmt.Errorf("unary_timeout must be positive")
	}
	if c.ReadRetries < 0 {
		return fmt.Errorf("read_retries must not be negative")
	}
	if c.CheckpointInterval < 0 {
		return fmt.Errorf("checkpoint_interval must not be negative")
	}
	return nil
}

func DefaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "hostkeep", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "hostkeep.yaml"
	}
	return filepath.Join(home, ".config", "hostkeep", "config.yaml")
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "hostkeep", "hostkeepd.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hostkeepd.sock"
	}
	return filepath.Join(home, ".local", "state", "hostkeep", "hostkeepd.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "hostkeep.db"
	}
	return filepath.Join(home, ".local", "state", "hostkeep", "hostkeep.db")
}
