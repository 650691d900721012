package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cwysong85/whenr-database/internal/config"
	"github.com/cwysong85/whenr-database/internal/indexer"
	"github.com/cwysong85/whenr-database/internal/logging"
	"github.com/cwysong85/whenr-database/internal/metrics"
	"github.com/cwysong85/whenr-database/internal/searcher"
	"github.com/cwysong85/whenr-database/internal/storage"
	"github.com/cwysong85/whenr-database/internal/textindex"
)

// app holds the wired components shared by every command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    *storage.SQLiteStorage
	writer   *indexer.Writer
	searcher *searcher.Searcher

	logCloser io.Closer
}

// newApp loads configuration and wires storage, indexing and search.
// The text profile is built once here and shared by writer and searcher.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	text, err := textindex.New(textindex.Profile{
		Locale:          cfg.Search.Locale,
		PrimaryWeight:   cfg.Search.Weights.Primary,
		SecondaryWeight: cfg.Search.Weights.Secondary,
	})
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("failed to create text indexer: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	m := metrics.New()
	srch, err := searcher.NewSearcher(store, text, searcher.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		CacheSize:    cfg.Search.CacheSize,
		CacheTTL:     cfg.Search.CacheTTL,
	}, m)
	if err != nil {
		_ = store.Close()
		_ = logCloser.Close()
		return nil, err
	}

	writer := indexer.NewWriter(store, indexer.NewMaintainer(text, m),
		indexer.WithLogger(logger),
		indexer.WithMetrics(m),
	)
	writer.OnCommit(srch.Invalidate)

	logger.Debug("components wired",
		"database", cfg.Database.Path,
		"driver", storage.DriverName,
		"build_mode", storage.BuildMode,
		"locale", cfg.Search.Locale,
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		store:     store,
		writer:    writer,
		searcher:  srch,
		logCloser: logCloser,
	}, nil
}

func (a *app) reindexConfig() indexer.ReindexConfig {
	return indexer.ReindexConfig{
		Workers:   a.cfg.Indexer.Workers,
		BatchSize: a.cfg.Indexer.BatchSize,
	}
}

func (a *app) Close() error {
	err := a.store.Close()
	_ = a.logCloser.Close()
	return err
}
