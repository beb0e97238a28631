package embedder

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/regs-mcp/internal/metrics"
)

// backend turns texts into raw vectors. Client owns validation, caching,
// retry and bookkeeping so backends stay small.
type backend interface {
	embed(ctx context.Context, texts []string, model string) ([][]float32, error)
	close() error
}

// Client implements Embedder on top of a provider backend
type Client struct {
	provider  string
	model     string
	maxBatch  int
	dimension atomic.Int64

	backend backend
	cache   *Cache
	retry   RetryConfig
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func newClient(provider, model string, dimension int, b backend, cfg Config) *Client {
	c := &Client{
		provider: provider,
		model:    model,
		maxBatch: MaxBatchSize,
		backend:  b,
		retry:    cfg.Retry,
		log:      cfg.Logger.With().Str("component", "embedder").Str("provider", provider).Logger(),
		metrics:  cfg.Metrics,
	}
	if c.retry.MaxRetries <= 0 {
		c.retry = DefaultRetryConfig()
	}
	if cfg.CacheSize >= 0 {
		c.cache = NewCache(cfg.CacheSize)
	}
	c.dimension.Store(int64(dimension))
	return c
}

// GenerateEmbedding embeds one text, serving repeats from cache
func (c *Client) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := c.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

// GenerateBatch embeds texts in one provider call. Cached texts are not resent.
func (c *Client) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > c.maxBatch {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, c.maxBatch)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	out := make([]*Embedding, len(req.Texts))
	var missing []int
	for i, text := range req.Texts {
		if c.cache != nil {
			if emb, ok := c.cache.Get(cacheKey(c.provider, model, text)); ok {
				out[i] = emb
				c.metrics.RecordEmbeddingCacheHit()
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) == 0 {
		return &BatchEmbeddingResponse{Embeddings: out, Provider: c.provider, Model: model}, nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = req.Texts[i]
	}

	start := time.Now()
	vectors, err := retryWithBackoff(ctx, c.retry, c.log, func() ([][]float32, error) {
		return c.backend.embed(ctx, texts, model)
	})
	c.metrics.RecordEmbedding(c.provider, time.Since(start), err)
	if err != nil {
		c.log.Error().Err(err).Int("texts", len(texts)).Msg("embedding failed")
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnexpectedResponse, len(vectors), len(texts))
	}

	for j, i := range missing {
		if err := c.checkDimension(len(vectors[j])); err != nil {
			return nil, err
		}
		emb := &Embedding{
			Vector:    vectors[j],
			Dimension: len(vectors[j]),
			Provider:  c.provider,
			Model:     model,
			Hash:      ComputeHash(req.Texts[i]),
		}
		if c.cache != nil {
			c.cache.Set(cacheKey(c.provider, model, req.Texts[i]), emb)
		}
		out[i] = emb
	}

	c.log.Debug().
		Int("texts", len(req.Texts)).
		Int("cached", len(req.Texts)-len(missing)).
		Dur("duration", time.Since(start)).
		Msg("embeddings generated")

	return &BatchEmbeddingResponse{Embeddings: out, Provider: c.provider, Model: model}, nil
}

// checkDimension learns the dimension from the first vector and rejects
// any later vector of a different length
func (c *Client) checkDimension(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty vector", ErrUnexpectedResponse)
	}
	if c.dimension.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := c.dimension.Load(); int64(n) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, n, want)
	}
	return nil
}

// Dimension returns the vector length this client produces
func (c *Client) Dimension() int {
	return int(c.dimension.Load())
}

// Provider returns the provider name
func (c *Client) Provider() string {
	return c.provider
}

// Model returns the default model
func (c *Client) Model() string {
	return c.model
}

// Close releases backend resources and drops the cache
func (c *Client) Close() error {
	if c.cache != nil {
		c.cache.Clear()
	}
	return c.backend.close()
}

// CacheSize returns the number of cached embeddings
func (c *Client) CacheSize() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Size()
}
