// Package main loads a catalog YAML file into the PostgreSQL catalog table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/catalog"
	"github.com/cory-johannsen/lobby/internal/config"
	"github.com/cory-johannsen/lobby/internal/observability"
	"github.com/cory-johannsen/lobby/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	source := flag.String("source", "", "path to catalog YAML file")
	flag.Parse()

	if *source == "" {
		fmt.Fprintln(os.Stderr, "usage: import-catalog -source <file.yaml> [-config <path>]")
		os.Exit(1)
	}

	start := time.Now()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	entries, err := catalog.LoadFromFile(*source)
	if err != nil {
		logger.Fatal("loading catalog", zap.String("source", *source), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()

	n, err := postgres.NewCatalogRepository(pool.DB()).Upsert(ctx, entries)
	if err != nil {
		logger.Fatal("importing catalog", zap.Error(err))
	}

	logger.Info("catalog import complete",
		zap.String("source", *source),
		zap.Int("entries", n),
		zap.Duration("elapsed", time.Since(start)),
	)
}
