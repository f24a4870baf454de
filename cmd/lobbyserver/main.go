// Package main provides the lobby server binary: the TCP control plane, the
// UDP relay, the operator console and the optional health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/catalog"
	"github.com/cory-johannsen/lobby/internal/config"
	"github.com/cory-johannsen/lobby/internal/console"
	"github.com/cory-johannsen/lobby/internal/control"
	"github.com/cory-johannsen/lobby/internal/health"
	"github.com/cory-johannsen/lobby/internal/lobby"
	"github.com/cory-johannsen/lobby/internal/observability"
	"github.com/cory-johannsen/lobby/internal/relay"
	"github.com/cory-johannsen/lobby/internal/server"
	"github.com/cory-johannsen/lobby/internal/storage/postgres"
)

const healthPollInterval = time.Second

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty = defaults and LOBBY_ environment")
	capacity := flag.Int("capacity", 0, "max players per room (overrides lobby.capacity)")
	controlPort := flag.Int("control-port", 0, "control-plane TCP port (overrides control.port)")
	relayPort := flag.Int("relay-port", 0, "data-plane UDP port (overrides relay.port)")
	catalogFile := flag.String("catalog", "", "catalog YAML file served from memory when the database is disabled")
	withConsole := flag.Bool("console", true, "run the operator console on stdin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *capacity > 0 {
		cfg.Lobby.Capacity = *capacity
	}
	if *controlPort > 0 {
		cfg.Control.Port = *controlPort
	}
	if *relayPort > 0 {
		cfg.Relay.Port = *relayPort
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validating config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting lobby server",
		zap.String("control_addr", cfg.Control.Addr()),
		zap.String("relay_addr", cfg.Relay.Addr()),
		zap.Int("capacity", cfg.Lobby.Capacity),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lifecycle := server.NewLifecycle(logger)

	var lookup catalog.Lookup
	var pool *postgres.Pool
	switch {
	case cfg.Database.Enabled:
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		lookup = postgres.NewCatalogRepository(pool.DB())
		logger.Info("catalog database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
	case *catalogFile != "":
		entries, err := catalog.LoadFromFile(*catalogFile)
		if err != nil {
			logger.Fatal("loading catalog", zap.String("path", *catalogFile), zap.Error(err))
		}
		mem := catalog.NewMemory(entries...)
		lookup = mem
		logger.Info("catalog loaded", zap.String("path", *catalogFile), zap.Int("entries", mem.Len()))
	}

	// Added first so the pool closes after both listeners have stopped.
	if pool != nil {
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				<-ctx.Done()
				return nil
			},
			StopFn: func() {
				cancel()
				pool.Close()
			},
		})
	}

	store := lobby.NewStore(cfg.Lobby.Capacity,
		lobby.WithMaxClients(cfg.Lobby.MaxClients),
		lobby.WithClientTTL(cfg.Lobby.ClientTTL),
	)

	dispatcher := control.NewDispatcher(store, lookup, cfg.Database.LookupTimeout, logger.Named("control"))
	controlListener := control.NewListener(cfg.Control, store, dispatcher, logger.Named("control"))
	relayListener := relay.NewListener(cfg.Relay, store, logger.Named("relay"))

	lifecycle.Add("control", controlListener)
	lifecycle.Add("relay", relayListener)

	if cfg.Health.Enabled {
		services := []string{health.ServiceControl, health.ServiceRelay}
		if pool != nil {
			services = append(services, health.ServiceCatalog)
		}
		healthServer := health.NewServer(cfg.Health, logger.Named("health"), services...)
		lifecycle.Add("health", healthServer)

		running := func(isRunning func() bool) func(context.Context) error {
			return func(context.Context) error {
				if !isRunning() {
					return errors.New("not running")
				}
				return nil
			}
		}
		lifecycle.Add("health-control", health.NewWatcher(healthServer, health.ServiceControl, healthPollInterval,
			running(controlListener.IsRunning), logger))
		lifecycle.Add("health-relay", health.NewWatcher(healthServer, health.ServiceRelay, healthPollInterval,
			running(relayListener.IsRunning), logger))
		lifecycle.Add("health-overall", health.NewWatcher(healthServer, health.ServiceOverall, healthPollInterval,
			running(func() bool { return controlListener.IsRunning() && relayListener.IsRunning() }), logger))
		if pool != nil {
			lifecycle.Add("health-catalog", health.NewWatcher(healthServer, health.ServiceCatalog, healthPollInterval,
				func(ctx context.Context) error { return pool.Health(ctx, cfg.Database.LookupTimeout) }, logger))
		}
	}

	if *withConsole {
		lifecycle.Add("console", console.New(store, lookup, os.Stdin, os.Stdout, cancel, logger.Named("console")))
	}

	logger.Info("lobby server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
