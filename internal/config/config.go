package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const configFile = "config.toml"

// Config is the on-disk client configuration.
type Config struct {
	// ServerURL is the base URL of the local tempo service.
	ServerURL string `toml:"server_url"`
	// APIKey authenticates against the service, if it requires one.
	APIKey string `toml:"api_key,omitempty"`

	// Sync tunables. Zero values fall back to engine defaults.
	SyncTimeout         duration `toml:"sync_timeout,omitempty"`
	HealthCheckInterval duration `toml:"health_check_interval,omitempty"`
}

// duration wraps time.Duration for TOML round-tripping ("10s", "1m").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ServerURL: "http://127.0.0.1:7700",
	}
}

// BaseDir returns the tempo data directory, honoring TEMPO_HOME.
func BaseDir() (string, error) {
	if dir := os.Getenv("TEMPO_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".tempo"), nil
}

// Load reads the config from baseDir, returning defaults if the file
// does not exist. TEMPO_SERVER_URL overrides the configured URL.
func Load(baseDir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(baseDir, configFile)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if url := os.Getenv("TEMPO_SERVER_URL"); url != "" {
		cfg.ServerURL = url
	}
	return cfg, nil
}

// Save writes the config atomically (temp file + rename).
func Save(baseDir string, cfg *Config) error {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(baseDir, configFile)

	tmp, err := os.CreateTemp(baseDir, "config-*.toml.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()

	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmpName, path)
}
