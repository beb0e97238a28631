// Package config loads server configuration from a YAML file and the environment.
//
// Precedence, lowest to highest: built-in defaults, YAML file, environment
// variables, command line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/dshills/regs-mcp/internal/embedder"
	"github.com/dshills/regs-mcp/internal/metrics"
	"github.com/dshills/regs-mcp/internal/ranker"
)

// Environment variables
const (
	EnvConfigPath        = "REGS_CONFIG"
	EnvDBPath            = "REGS_DB_PATH"
	EnvLogLevel          = "REGS_LOG_LEVEL"
	EnvMetricsAddr       = "REGS_METRICS_ADDR"
	EnvEmbeddingProvider = "REGS_EMBEDDING_PROVIDER"
	EnvEmbeddingHost     = "REGS_EMBEDDING_HOST"
	EnvEmbeddingModel    = "REGS_EMBEDDING_MODEL"
	EnvSearchMode        = "REGS_SEARCH_MODE"
	EnvSearchLimit       = "REGS_SEARCH_LIMIT"
)

// DefaultDBPath is used when no database path is configured
const DefaultDBPath = "~/.regs/regs.db"

var (
	ErrInvalidSearchMode = errors.New("invalid search mode")
	ErrInvalidLimit      = errors.New("search limit out of range")
)

// Config is the full server configuration
type Config struct {
	DBPath    string          `yaml:"db_path"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ranking   RankingConfig   `yaml:"ranking"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// EmbeddingConfig selects and configures the embedding provider
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // openai, jina, compat, local; empty = auto-detect
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host"`  // OpenAI-compatible base URL for the compat provider
	Model     string `yaml:"model"` // Empty = provider default
	CacheSize int    `yaml:"cache_size"`
	BatchSize int    `yaml:"batch_size"`
	Workers   int    `yaml:"workers"`
}

// SearchConfig holds searcher defaults
type SearchConfig struct {
	Mode         string        `yaml:"mode"`
	Limit        int           `yaml:"limit"` // Default result count; 0 uses ranking max_results
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	CacheSize    int           `yaml:"cache_size"`
	ReferencePad int           `yaml:"reference_pad"`
}

// RankingConfig overrides individual ranker weights. Absent fields keep the
// default; an explicit 0 switches a signal off.
type RankingConfig struct {
	ExactSection      *float64 `yaml:"exact_section"`
	SectionContains   *float64 `yaml:"section_contains"`
	TitleContains     *float64 `yaml:"title_contains"`
	PathContains      *float64 `yaml:"path_contains"`
	KeywordTitle      *float64 `yaml:"keyword_title"`
	KeywordSection    *float64 `yaml:"keyword_section"`
	KeywordPath       *float64 `yaml:"keyword_path"`
	Coverage          *float64 `yaml:"coverage"`
	KeywordNormalizer *float64 `yaml:"keyword_normalizer"`
	KeywordBlend      *float64 `yaml:"keyword_blend"`
	SemanticBlend     *float64 `yaml:"semantic_blend"`
	MinScore          *float64 `yaml:"min_score"`
	MaxResults        *int     `yaml:"max_results"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DBPath: DefaultDBPath,
		Log: LogConfig{
			Level: "info",
		},
		Embedding: EmbeddingConfig{
			CacheSize: 10000,
			BatchSize: 50,
			Workers:   4,
		},
		Search: SearchConfig{
			Mode:         string(ranker.ModeHybrid),
			CacheTTL:     time.Hour,
			CacheSize:    1000,
			ReferencePad: 2,
		},
	}
}

// Load reads the YAML file at path (optional) and applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		c.Embedding.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(EnvEmbeddingHost); v != "" {
		c.Embedding.Host = v
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv(EnvSearchMode); v != "" {
		c.Search.Mode = strings.ToLower(v)
	}
	if v := os.Getenv(EnvSearchLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.Limit = n
		}
	}
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if !ranker.Mode(c.Search.Mode).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSearchMode, c.Search.Mode)
	}
	w := c.Weights()
	if w.MaxResults < 1 {
		return fmt.Errorf("%w: ranking max_results %d", ErrInvalidLimit, w.MaxResults)
	}
	if c.Search.Limit < 0 || c.Search.Limit > w.MaxResults {
		return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidLimit, c.Search.Limit, w.MaxResults)
	}
	return nil
}

// ResolveDBPath expands a leading ~ and creates the parent directory
func (c *Config) ResolveDBPath() (string, error) {
	path := c.DBPath
	if path == "" {
		path = DefaultDBPath
	}
	if path == ":memory:" {
		return path, nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return path, nil
}

// SearchLimit returns the default number of results per search
func (c *Config) SearchLimit() int {
	if c.Search.Limit > 0 {
		return c.Search.Limit
	}
	return c.Weights().MaxResults
}

// Weights merges the ranking overrides into the default weight table
func (c *Config) Weights() ranker.Weights {
	w := ranker.DefaultWeights()
	r := c.Ranking

	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&w.ExactSection, r.ExactSection)
	set(&w.SectionContains, r.SectionContains)
	set(&w.TitleContains, r.TitleContains)
	set(&w.PathContains, r.PathContains)
	set(&w.KeywordTitle, r.KeywordTitle)
	set(&w.KeywordSection, r.KeywordSection)
	set(&w.KeywordPath, r.KeywordPath)
	set(&w.Coverage, r.Coverage)
	set(&w.KeywordNormalizer, r.KeywordNormalizer)
	set(&w.KeywordBlend, r.KeywordBlend)
	set(&w.SemanticBlend, r.SemanticBlend)
	set(&w.MinScore, r.MinScore)
	if r.MaxResults != nil {
		w.MaxResults = *r.MaxResults
	}
	return w
}

// EmbedderConfig converts the embedding section into an embedder.Config.
// A configured host without a provider selects the OpenAI-compatible client.
func (c *Config) EmbedderConfig(log zerolog.Logger, m *metrics.Metrics) embedder.Config {
	provider := c.Embedding.Provider
	if provider == "" && c.Embedding.Host != "" {
		provider = embedder.ProviderCompat
	}
	return embedder.Config{
		Provider:  provider,
		APIKey:    c.Embedding.APIKey,
		Host:      c.Embedding.Host,
		Model:     c.Embedding.Model,
		CacheSize: c.Embedding.CacheSize,
		Logger:    log,
		Metrics:   m,
	}
}
