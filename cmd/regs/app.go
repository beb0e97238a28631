package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/dshills/regs-mcp/internal/config"
	"github.com/dshills/regs-mcp/internal/embedder"
	"github.com/dshills/regs-mcp/internal/indexer"
	"github.com/dshills/regs-mcp/internal/logger"
	"github.com/dshills/regs-mcp/internal/metrics"
	"github.com/dshills/regs-mcp/internal/ranker"
	"github.com/dshills/regs-mcp/internal/searcher"
	"github.com/dshills/regs-mcp/internal/storage"
)

// providerNone disables embeddings entirely
const providerNone = "none"

// app holds the wired components shared by every command
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	store    *storage.SQLiteStorage
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

// loadConfig reads the config file and applies global flag overrides
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("pretty") {
		cfg.Log.Pretty = c.Bool("pretty")
	}
	if c.IsSet("provider") {
		cfg.Embedding.Provider = strings.ToLower(c.String("provider"))
	}
	return cfg, nil
}

// openApp builds storage, embedder, indexer and searcher from the CLI context
func openApp(c *cli.Context) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	m := metrics.New(nil)

	dbPath, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStorage(dbPath, storage.WithLogger(log), storage.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	emb, err := newEmbedder(cfg, log, m)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		store:    store,
		embedder: emb,
		indexer: indexer.New(store, emb, indexer.Config{
			BatchSize: cfg.Embedding.BatchSize,
			Workers:   cfg.Embedding.Workers,
			Logger:    log,
			Metrics:   m,
		}),
		searcher: searcher.New(store, emb, searcher.Config{
			Weights:      cfg.Weights(),
			Limit:        cfg.SearchLimit(),
			Mode:         ranker.Mode(cfg.Search.Mode),
			CacheSize:    cfg.Search.CacheSize,
			CacheTTL:     cfg.Search.CacheTTL,
			ReferencePad: cfg.Search.ReferencePad,
			Logger:       log,
			Metrics:      m,
		}),
	}

	log.Debug().
		Str("db_path", dbPath).
		Str("build_mode", storage.BuildMode).
		Bool("embeddings", emb != nil).
		Msg("components ready")
	return a, nil
}

// newEmbedder returns nil when embeddings are disabled or no provider key is
// available. Search then stays keyword-only.
func newEmbedder(cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (embedder.Embedder, error) {
	if cfg.Embedding.Provider == providerNone {
		return nil, nil
	}

	client, err := embedder.New(cfg.EmbedderConfig(log, m))
	if errors.Is(err, embedder.ErrNoProviderEnabled) {
		log.Warn().Err(err).Msg("embeddings disabled, search is keyword only")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return client, nil
}

// Close releases the embedder and the database
func (a *app) Close() error {
	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
