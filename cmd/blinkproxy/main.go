// Command blinkproxy balances TCP clients across blinkdb servers.
//
//	blinkproxy [flags] <listen-port> <server1-ip> <server1-port> <server2-ip> <server2-port>
//	blinkproxy [flags] <listen-port> <host:port> [<host:port>...]
//	blinkproxy [flags]                      (listen and backends from config)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"blinkdb/internal/config"
	"blinkdb/internal/logging"
	"blinkdb/internal/proxy"
)

var log = logging.For("main")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "blinkproxy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s [flags] <listen-port> <server1-ip> <server1-port> <server2-ip> <server2-port>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if flag.NArg() > 0 {
		listen, backends, err := parseArgs(flag.Args())
		if err != nil {
			flag.Usage()
			return err
		}
		cfg.Proxy.Listen = listen
		cfg.Proxy.Backends = backends
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)

	p, err := proxy.New(cfg.Proxy.Listen, cfg.Proxy.Backends)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Listen(ctx); err != nil {
		return err
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return p.Serve(ctx)
}

// parseArgs accepts either the listen port followed by ip/port pairs, or
// the listen port followed by host:port backends.
func parseArgs(args []string) (string, []string, error) {
	if len(args) < 2 {
		return "", nil, errors.New("need a listen port and at least one backend")
	}
	if _, err := parsePort(args[0]); err != nil {
		return "", nil, fmt.Errorf("listen port: %w", err)
	}
	listen := net.JoinHostPort("0.0.0.0", args[0])

	rest := args[1:]
	if strings.Contains(rest[0], ":") && !isPortPairs(rest) {
		return listen, append([]string(nil), rest...), nil
	}
	if len(rest)%2 != 0 {
		return "", nil, errors.New("backends must be given as <ip> <port> pairs")
	}
	backends := make([]string, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		if _, err := parsePort(rest[i+1]); err != nil {
			return "", nil, fmt.Errorf("backend %d port: %w", i/2+1, err)
		}
		backends = append(backends, net.JoinHostPort(rest[i], rest[i+1]))
	}
	return listen, backends, nil
}

// isPortPairs reports whether args alternate host and numeric port, which
// is how bare IPv6 hosts (containing ':') are given.
func isPortPairs(args []string) bool {
	if len(args)%2 != 0 {
		return false
	}
	for i := 1; i < len(args); i += 2 {
		if _, err := parsePort(args[i]); err != nil {
			return false
		}
	}
	return true
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return n, nil
}
