package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"blinkdb/internal/admin"
	"blinkdb/internal/command"
	"blinkdb/internal/config"
	"blinkdb/internal/engine"
	"blinkdb/internal/logging"
	"blinkdb/internal/server"
	"blinkdb/internal/store"
	boltstore "blinkdb/internal/store/bolt"
	filestore "blinkdb/internal/store/file"
)

var log = logging.For("main")

func main() {
	// Graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "blinkdb: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then stops the server, the checkpoint
// task and the admin endpoint before the engine writes its final snapshot.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("blinkdb", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	listen := fs.String("listen", "", "listen address (overrides config)")
	snapshot := fs.String("snapshot", "", "snapshot path (overrides config)")
	backend := fs.String("backend", "", "snapshot backend: file or bolt (overrides config)")
	capacity := fs.Int("capacity", 0, "maximum resident records (overrides config)")
	adminListen := fs.String("admin-listen", "", "admin HTTP address (overrides config)")
	logLevel := fs.String("log-level", "", "log level (overrides config)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// CLI flags override config file values
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *snapshot != "" {
		cfg.Storage.SnapshotPath = *snapshot
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *capacity != 0 {
		cfg.Storage.Capacity = *capacity
	}
	if *adminListen != "" {
		cfg.Admin.Listen = *adminListen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)

	st, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	eng, err := engine.Open(st, engine.Options{
		Capacity:           cfg.Storage.Capacity,
		CheckpointInterval: cfg.Storage.CheckpointInterval.Duration,
	})
	if err != nil {
		st.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := server.New(server.Options{
		Addr:       cfg.Server.Listen,
		MaxClients: cfg.Server.MaxClients,
		ReadBuffer: cfg.Server.ReadBuffer,
		ReusePort:  cfg.Server.ReusePort,
	}, command.New(eng))
	if err := srv.Listen(ctx); err != nil {
		return errors.Join(err, eng.Close())
	}

	var adm *admin.Server
	if cfg.Admin.Listen != "" {
		adm = admin.NewServer(cfg.Admin.Listen, eng)
		if err := adm.Listen(); err != nil {
			srv.Stop()
			return errors.Join(err, eng.Close())
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()
	if adm != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := adm.Serve(ctx); err != nil {
				log.Error("admin", "err", err)
			}
		}()
	}

	serveErr := srv.Serve(ctx)
	log.Info("shutting down")
	cancel()
	wg.Wait()

	if err := eng.Close(); err != nil {
		return errors.Join(serveErr, err)
	}
	log.Info("stopped")
	return serveErr
}

func openStore(cfg config.StorageConfig) (store.Store, error) {
	path := config.ExpandHome(cfg.SnapshotPath)
	switch cfg.Backend {
	case config.BackendBolt:
		return boltstore.Open(path)
	default:
		return filestore.Open(path)
	}
}
