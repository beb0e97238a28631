package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/regs-mcp/internal/embedder"
	"github.com/dshills/regs-mcp/internal/logger"
	"github.com/dshills/regs-mcp/internal/metrics"
	"github.com/dshills/regs-mcp/internal/ranker"
	"github.com/dshills/regs-mcp/internal/storage"
	"github.com/dshills/regs-mcp/pkg/types"
)

const (
	// DefaultCacheSize is the number of cached responses
	DefaultCacheSize = 1000
	// DefaultCacheTTL is how long a cached response stays valid
	DefaultCacheTTL = time.Hour
	// DefaultReferencePad is the page window on each side of a result
	DefaultReferencePad = 2
)

var (
	// ErrEmptyQuery is returned when the query is empty or whitespace
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrInvalidDocument is returned for a non-positive document id
	ErrInvalidDocument = errors.New("document id must be positive")
	// ErrInvalidMode is returned for an unknown search mode
	ErrInvalidMode = errors.New("invalid search mode")
	// ErrInvalidLimit is returned for a limit outside 0..MaxResults
	ErrInvalidLimit = errors.New("invalid result limit")
)

// SearchRequest describes one section lookup
type SearchRequest struct {
	DocumentID int64
	Query      string
	Mode       ranker.Mode // Empty uses the searcher's default mode
	Limit      int         // 0 uses the default limit
	UseCache   bool
}

// SearchResponse is the ranked outcome of a search
type SearchResponse struct {
	DocumentID   int64
	Query        string
	Mode         ranker.Mode
	Results      []types.ScoredResult
	Selection    *types.ScoredResult // Best match, nil when nothing scored above the threshold
	Alternatives []types.ScoredResult
	Stats        ranker.Stats
	Duration     time.Duration
	CacheHit     bool
	Fallback     bool // Hybrid was requested on an embedded corpus but ranked on keywords only
}

// Config contains configuration for the searcher
type Config struct {
	Weights      ranker.Weights // Zero value uses ranker.DefaultWeights
	Mode         ranker.Mode    // Default mode when a request names none
	Limit        int            // Default result count; 0 or above Weights.MaxResults uses MaxResults
	CacheSize    int
	CacheTTL     time.Duration
	ReferencePad int
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// cacheEntry represents a cached search response with expiration
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher ranks TOC entries for queries. Safe for concurrent use.
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder // nil disables query embedding
	weights  ranker.Weights
	mode     ranker.Mode
	limit    int
	pad      int
	log      zerolog.Logger
	metrics  *metrics.Metrics

	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheTTL time.Duration
	cacheMu  sync.RWMutex
}

// New creates a Searcher. emb may be nil, in which case every search ranks on
// keywords only.
func New(store storage.Storage, emb embedder.Embedder, cfg Config) *Searcher {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.ReferencePad <= 0 {
		cfg.ReferencePad = DefaultReferencePad
	}
	if !cfg.Mode.Valid() {
		cfg.Mode = ranker.ModeHybrid
	}
	if cfg.Weights == (ranker.Weights{}) {
		cfg.Weights = ranker.DefaultWeights()
	}
	if cfg.Limit <= 0 || cfg.Limit > cfg.Weights.MaxResults {
		cfg.Limit = cfg.Weights.MaxResults
	}

	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		// Only fails on a non-positive size, which is excluded above
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		storage:  store,
		embedder: emb,
		weights:  cfg.Weights,
		mode:     cfg.Mode,
		limit:    cfg.Limit,
		pad:      cfg.ReferencePad,
		log:      logger.Component(cfg.Logger, "searcher"),
		metrics:  cfg.Metrics,
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
	}
}

// Search ranks one document's TOC against the query
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (resp *SearchResponse, err error) {
	start := time.Now()

	if req.Mode == "" {
		req.Mode = s.mode
	}
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	defer func() {
		if resp != nil && resp.CacheHit {
			return
		}
		results, fallback := 0, false
		if resp != nil {
			results, fallback = len(resp.Results), resp.Fallback
		}
		duration := time.Since(start)
		s.metrics.RecordSearch(string(req.Mode), results, duration, err)
		logger.LogSearch(s.log, req.DocumentID, req.Query, string(req.Mode), results, fallback, duration, err)
	}()

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			s.metrics.RecordSearchCache(true)
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
		s.metrics.RecordSearchCache(false)
	}

	if _, err := s.storage.GetDocument(ctx, req.DocumentID); err != nil {
		return nil, fmt.Errorf("document %d: %w", req.DocumentID, err)
	}

	entries, err := s.storage.ListTocEntries(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load toc: %w", err)
	}

	var queryEmbedding []float32
	wantEmbedding := req.Mode == ranker.ModeHybrid && corpusEmbedded(entries)
	if wantEmbedding {
		queryEmbedding, err = s.embedQuery(ctx, req.Query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn().Err(err).Int64("document_id", req.DocumentID).Msg("query embedding failed, ranking on keywords")
			queryEmbedding = nil
		}
	}

	rk := ranker.New(ranker.WithWeights(s.weights), ranker.WithMode(req.Mode))
	results, stats := rk.RankWithStats(entries, req.Query, queryEmbedding)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	resp = &SearchResponse{
		DocumentID:   req.DocumentID,
		Query:        req.Query,
		Mode:         req.Mode,
		Results:      results,
		Alternatives: ranker.Alternatives(results),
		Stats:        stats,
		Fallback:     wantEmbedding && !stats.UsedEmbeddings,
	}
	if len(results) > 0 {
		resp.Selection = &results[0]
	}
	if resp.Fallback {
		s.metrics.RecordFallback()
	}
	resp.Duration = time.Since(start)

	// A fallback is transient; the next search should try the embedder again
	if req.UseCache && !resp.Fallback {
		s.storeInCache(req, resp)
	}
	return resp, nil
}

// validateRequest checks the request and fills in the default limit
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return ErrEmptyQuery
	}
	if req.DocumentID <= 0 {
		return ErrInvalidDocument
	}
	if !req.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	limit, err := s.resolveLimit(req.Limit)
	if err != nil {
		return err
	}
	req.Limit = limit
	return nil
}

// resolveLimit rejects limits outside [0, MaxResults]; 0 becomes the default limit
func (s *Searcher) resolveLimit(limit int) (int, error) {
	if limit < 0 || limit > s.weights.MaxResults {
		return 0, fmt.Errorf("%w: %d (max %d)", ErrInvalidLimit, limit, s.weights.MaxResults)
	}
	if limit == 0 {
		return s.limit, nil
	}
	return limit, nil
}

// embedQuery returns the query vector, or an error when no embedder is set
func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embedder == nil {
		return nil, embedder.ErrNoProviderEnabled
	}
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, err
	}
	return emb.Vector, nil
}

func corpusEmbedded(entries []types.TocEntry) bool {
	for i := range entries {
		if entries[i].HasEmbedding() {
			return true
		}
	}
	return false
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)

	s.cacheMu.RLock()
	entry, ok := s.cache.Get(hash)
	s.cacheMu.RUnlock()
	if !ok {
		return nil
	}

	if time.Now().After(entry.expiresAt) {
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	return copySearchResponse(entry.response)
}

// storeInCache saves a copy of the response
func (s *Searcher) storeInCache(req SearchRequest, resp *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(resp),
		expiresAt: time.Now().Add(s.cacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. The LRU can't filter by
// document, so the whole cache is purged.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// copySearchResponse deep-copies a response so callers can't mutate the cache
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = copyResults(src.Results)
	dst.Alternatives = copyResults(src.Alternatives)
	dst.Selection = nil
	if len(dst.Results) > 0 {
		dst.Selection = &dst.Results[0]
	}
	return &dst
}

func copyResults(src []types.ScoredResult) []types.ScoredResult {
	if src == nil {
		return nil
	}
	dst := make([]types.ScoredResult, len(src))
	copy(dst, src)
	for i := range dst {
		if src[i].Entry.Embedding != nil {
			dst[i].Entry.Embedding = append([]float32(nil), src[i].Entry.Embedding...)
		}
	}
	return dst
}

// computeQueryHash computes the cache key for a validated request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(fmt.Sprintf("%d", req.DocumentID))
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))
	data.WriteString("|")
	data.WriteString(strings.TrimSpace(req.Query))
	return sha256.Sum256([]byte(data.String()))
}
