package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage backends accepted in storage.backend.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Admin   AdminConfig   `toml:"admin"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Listen     string `toml:"listen"`
	MaxClients int    `toml:"max_clients"`
	ReadBuffer int    `toml:"read_buffer"`
	// ReusePort sets SO_REUSEPORT on the listener. Off by default: two
	// servers on one port would overwrite each other's snapshot.
	ReusePort bool `toml:"reuse_port"`
}

type StorageConfig struct {
	Capacity           int      `toml:"capacity"`
	Backend            string   `toml:"backend"`
	SnapshotPath       string   `toml:"snapshot_path"`
	CheckpointInterval Duration `toml:"checkpoint_interval"`
}

// AdminConfig controls the HTTP admin endpoint. An empty Listen disables it.
type AdminConfig struct {
	Listen string `toml:"listen"`
}

type ProxyConfig struct {
	Listen   string   `toml:"listen"`
	Backends []string `toml:"backends"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string ("10s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with the values the server used before it
// was configurable: port 9001, 10000 resident records, a 10s checkpoint
// into flush_data.txt.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:     "0.0.0.0:9001",
			MaxClients: 1500,
			ReadBuffer: 1024,
		},
		Storage: StorageConfig{
			Capacity:           10000,
			Backend:            BackendFile,
			SnapshotPath:       "flush_data.txt",
			CheckpointInterval: Duration{10 * time.Second},
		},
		Proxy: ProxyConfig{
			Listen: "0.0.0.0:9000",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML config file on top of Defaults.
// If path is empty, ~/.blinkdb/config.toml is used when it exists.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = expandHome("~/.blinkdb/config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
