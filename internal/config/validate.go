package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"blinkdb/internal/logging"
)

// Validate checks every field and reports all problems at once.
// Each error names the TOML path of the offending field.
func (c *Config) Validate() error {
	var errs []error

	if err := validateListen(c.Server.Listen); err != nil {
		errs = append(errs, fmt.Errorf("server.listen: %w", err))
	}
	if c.Server.MaxClients <= 0 {
		errs = append(errs, fmt.Errorf("server.max_clients: must be positive, got %d", c.Server.MaxClients))
	}
	if c.Server.ReadBuffer <= 0 {
		errs = append(errs, fmt.Errorf("server.read_buffer: must be positive, got %d", c.Server.ReadBuffer))
	}

	if c.Storage.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("storage.capacity: must be positive, got %d", c.Storage.Capacity))
	}
	switch c.Storage.Backend {
	case BackendFile, BackendBolt:
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q (want %q or %q)",
			c.Storage.Backend, BackendFile, BackendBolt))
	}
	if strings.TrimSpace(c.Storage.SnapshotPath) == "" {
		errs = append(errs, errors.New("storage.snapshot_path: must not be empty"))
	}
	if c.Storage.CheckpointInterval.Duration <= 0 {
		errs = append(errs, fmt.Errorf("storage.checkpoint_interval: must be positive, got %s",
			c.Storage.CheckpointInterval.Duration))
	}

	if c.Admin.Listen != "" {
		if err := validateListen(c.Admin.Listen); err != nil {
			errs = append(errs, fmt.Errorf("admin.listen: %w", err))
		}
	}

	if c.Proxy.Listen != "" {
		if err := validateListen(c.Proxy.Listen); err != nil {
			errs = append(errs, fmt.Errorf("proxy.listen: %w", err))
		}
	}
	for i, addr := range c.Proxy.Backends {
		if err := validateDial(addr); err != nil {
			errs = append(errs, fmt.Errorf("proxy.backends[%d]: %w", i, err))
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q (want text or json)", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// validateListen accepts host:port; an empty host binds all interfaces.
func validateListen(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return validatePort(addr, port)
}

// validateDial accepts host:port addresses that can be connected to, so
// wildcard hosts are rejected.
func validateDial(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		return fmt.Errorf("cannot connect to wildcard host in %q", addr)
	}
	return validatePort(addr, port)
}

func validatePort(addr, port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port in %q", addr)
	}
	return nil
}
