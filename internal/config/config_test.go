package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Listen != "0.0.0.0:9001" {
		t.Errorf("Server.Listen: got %q, want 0.0.0.0:9001", cfg.Server.Listen)
	}
	if cfg.Server.MaxClients != 1500 {
		t.Errorf("MaxClients: got %d, want 1500", cfg.Server.MaxClients)
	}
	if cfg.Server.ReusePort {
		t.Error("ReusePort should be off by default")
	}
	if cfg.Server.ReadBuffer != 1024 {
		t.Errorf("ReadBuffer: got %d, want 1024", cfg.Server.ReadBuffer)
	}
	if cfg.Storage.Capacity != 10000 {
		t.Errorf("Capacity: got %d, want 10000", cfg.Storage.Capacity)
	}
	if cfg.Storage.SnapshotPath != "flush_data.txt" {
		t.Errorf("SnapshotPath: got %q", cfg.Storage.SnapshotPath)
	}
	if cfg.Storage.CheckpointInterval.Duration != 10*time.Second {
		t.Errorf("CheckpointInterval: got %s, want 10s", cfg.Storage.CheckpointInterval)
	}
	if cfg.Admin.Listen != "" {
		t.Errorf("admin should be disabled by default, got %q", cfg.Admin.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:9001" {
		t.Errorf("Server.Listen: got %q, want 0.0.0.0:9001", cfg.Server.Listen)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := `
[server]
listen = "127.0.0.1:7001"
max_clients = 64
read_buffer = 4096
reuse_port = true

[storage]
capacity = 500
backend = "bolt"
snapshot_path = "/var/lib/blinkdb/snapshot.db"
checkpoint_interval = "250ms"

[admin]
listen = "127.0.0.1:7080"

[proxy]
listen = "0.0.0.0:7000"
backends = ["10.0.0.1:7001", "10.0.0.2:7001"]

[logging]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Listen != "127.0.0.1:7001" {
		t.Errorf("Server.Listen: got %q", cfg.Server.Listen)
	}
	if cfg.Server.MaxClients != 64 || cfg.Server.ReadBuffer != 4096 || !cfg.Server.ReusePort {
		t.Errorf("Server: got %+v", cfg.Server)
	}
	if cfg.Storage.Capacity != 500 || cfg.Storage.Backend != BackendBolt {
		t.Errorf("Storage: got %+v", cfg.Storage)
	}
	if cfg.Storage.CheckpointInterval.Duration != 250*time.Millisecond {
		t.Errorf("CheckpointInterval: got %s", cfg.Storage.CheckpointInterval)
	}
	if cfg.Admin.Listen != "127.0.0.1:7080" {
		t.Errorf("Admin.Listen: got %q", cfg.Admin.Listen)
	}
	if len(cfg.Proxy.Backends) != 2 || cfg.Proxy.Backends[1] != "10.0.0.2:7001" {
		t.Errorf("Proxy.Backends: got %v", cfg.Proxy.Backends)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging: got %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[storage]\ncapacity = 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Capacity != 3 {
		t.Errorf("Capacity: got %d, want 3", cfg.Storage.Capacity)
	}
	if cfg.Storage.Backend != BackendFile || cfg.Server.Listen != "0.0.0.0:9001" {
		t.Errorf("unset fields should keep defaults: %+v", cfg)
	}
}

func TestLoadBadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("{{invalid"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoadBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[storage]\ncheckpoint_interval = \"soon\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("an explicit missing path should be an error")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}

	got := ExpandHome("~/blink/flush_data.txt")
	want := filepath.Join(home, "blink/flush_data.txt")
	if got != want {
		t.Errorf("ExpandHome: got %q, want %q", got, want)
	}

	if got := ExpandHome("/absolute/path"); got != "/absolute/path" {
		t.Errorf("ExpandHome: got %q, want /absolute/path", got)
	}
}
