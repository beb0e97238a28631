package searcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/regs-mcp/internal/embedder"
	"github.com/dshills/regs-mcp/internal/metrics"
	"github.com/dshills/regs-mcp/internal/ranker"
	"github.com/dshills/regs-mcp/internal/storage"
	"github.com/dshills/regs-mcp/pkg/types"
)

// mockEmbedder returns a fixed query vector, or err when set
type mockEmbedder struct {
	mu     sync.Mutex
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &embedder.Embedding{Vector: m.vector, Dimension: len(m.vector), Provider: "mock", Model: "test-v1"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	return nil, errors.New("not used")
}

func (m *mockEmbedder) Dimension() int   { return len(m.vector) }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "test-v1" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixture struct {
	store   *storage.SQLiteStorage
	doc     *types.Document
	entries map[string]*types.TocEntry
}

// setupFixture creates one document with four entries:
// 2.6 and 2.6.3 match "rcd" on title, 3.9 and 4.1 don't.
func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	doc := &types.Document{Title: "Wiring Rules", DocumentType: "AS/NZS 3000:2018", PDFPageOffset: 4}
	require.NoError(t, store.UpsertDocument(ctx, doc))

	f := &fixture{store: store, doc: doc, entries: make(map[string]*types.TocEntry)}
	for _, e := range []struct {
		section, title string
		page           int
	}{
		{"2.6", "RCD protection", 50},
		{"2.6.3", "Additional protection by RCDs in bathrooms", 52},
		{"3.9", "Cable installation methods", 120},
		{"4.1", "Switchboards", 200},
	} {
		entry := &types.TocEntry{
			DocumentID:    doc.ID,
			SectionNumber: e.section,
			Title:         e.title,
			DocumentPage:  e.page,
			Level:         types.SectionDepth(e.section),
		}
		require.NoError(t, store.UpsertTocEntry(ctx, entry))
		f.entries[e.section] = entry
	}
	return f
}

// embed stores 2-d vectors: 2.6 along the query, 2.6.3 orthogonal, 3.9 opposite
func (f *fixture) embed(t *testing.T) {
	t.Helper()
	vectors := map[string][]float32{
		"2.6":   {1, 0},
		"2.6.3": {0, 1},
		"3.9":   {-1, 0},
	}
	for section, v := range vectors {
		entry := f.entries[section]
		require.NoError(t, f.store.UpsertTocEmbedding(context.Background(), &storage.TocEmbedding{
			TocID:     entry.ID,
			Vector:    v,
			Dimension: len(v),
			Provider:  "mock",
			Model:     "test-v1",
			TextHash:  storage.EmbeddingTextHash(entry),
		}))
	}
}

func sections(results []types.ScoredResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entry.SectionNumber
	}
	return out
}

func TestSearchKeyword(t *testing.T) {
	f := setupFixture(t)
	s := New(f.store, nil, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "rcd"})
	require.NoError(t, err)

	assert.Equal(t, []string{"2.6", "2.6.3"}, sections(resp.Results))
	require.NotNil(t, resp.Selection)
	assert.Equal(t, "2.6", resp.Selection.Entry.SectionNumber)
	assert.Equal(t, 1, resp.Selection.Rank)
	assert.Equal(t, []string{"2.6.3"}, sections(resp.Alternatives))
	assert.Equal(t, ranker.ModeHybrid, resp.Mode)
	assert.False(t, resp.Fallback, "unembedded corpus is not a fallback")
	assert.False(t, resp.Stats.UsedEmbeddings)
	assert.Equal(t, 4, resp.Stats.TotalEntries)
}

func TestSearchNoMatches(t *testing.T) {
	f := setupFixture(t)
	s := New(f.store, nil, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "earthing electrode"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Nil(t, resp.Selection)
	assert.Empty(t, resp.Alternatives)
}

func TestSearchValidation(t *testing.T) {
	f := setupFixture(t)
	s := New(f.store, nil, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  SearchRequest
		want error
	}{
		{"empty query", SearchRequest{DocumentID: f.doc.ID, Query: ""}, ErrEmptyQuery},
		{"whitespace query", SearchRequest{DocumentID: f.doc.ID, Query: "  \t "}, ErrEmptyQuery},
		{"zero document", SearchRequest{Query: "rcd"}, ErrInvalidDocument},
		{"bad mode", SearchRequest{DocumentID: f.doc.ID, Query: "rcd", Mode: "vector"}, ErrInvalidMode},
		{"negative limit", SearchRequest{DocumentID: f.doc.ID, Query: "rcd", Limit: -1}, ErrInvalidLimit},
		{"limit too large", SearchRequest{DocumentID: f.doc.ID, Query: "rcd", Limit: 21}, ErrInvalidLimit},
		{"unknown document", SearchRequest{DocumentID: 999, Query: "rcd"}, storage.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSearchLimit(t *testing.T) {
	f := setupFixture(t)
	s := New(f.store, nil, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "rcd", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"2.6"}, sections(resp.Results))
	assert.Empty(t, resp.Alternatives)
}

func TestSearchDefaultLimit(t *testing.T) {
	f := setupFixture(t)
	s := New(f.store, nil, Config{Limit: 1})
	ctx := context.Background()

	resp, err := s.Search(ctx, SearchRequest{DocumentID: f.doc.ID, Query: "rcd"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2.6"}, sections(resp.Results))

	resp, err = s.Search(ctx, SearchRequest{DocumentID: f.doc.ID, Query: "rcd", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"2.6", "2.6.3"}, sections(resp.Results))

	// Out-of-range defaults fall back to MaxResults
	wide := New(f.store, nil, Config{Limit: 50})
	resp, err = wide.Search(ctx, SearchRequest{DocumentID: f.doc.ID, Query: "rcd"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestSearchHybrid(t *testing.T) {
	f := setupFixture(t)
	f.embed(t)
	emb := &mockEmbedder{vector: []float32{1, 0}}
	s := New(f.store, emb, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "rcd"})
	require.NoError(t, err)

	assert.Equal(t, 1, emb.callCount())
	assert.True(t, resp.Stats.UsedEmbeddings)
	assert.False(t, resp.Fallback)
	assert.Equal(t, 3, resp.Stats.EmbeddedEntries)

	// 3.9 is opposite the query and 4.1 has no vector: both score zero
	assert.Equal(t, []string{"2.6", "2.6.3"}, sections(resp.Results))
	keyword := 350.0 / 1500
	assert.InDelta(t, (0.3*keyword+0.7*1)*1000, resp.Results[0].Score, 1e-6)
	assert.InDelta(t, (0.3*keyword+0.7*0.5)*1000, resp.Results[1].Score, 1e-6)
}

func TestSearchKeywordModeSkipsEmbedder(t *testing.T) {
	f := setupFixture(t)
	f.embed(t)
	emb := &mockEmbedder{vector: []float32{1, 0}}
	s := New(f.store, emb, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "rcd", Mode: ranker.ModeKeyword})
	require.NoError(t, err)
	assert.Zero(t, emb.callCount())
	assert.False(t, resp.Stats.UsedEmbeddings)
	assert.False(t, resp.Fallback)
	assert.Equal(t, []string{"2.6", "2.6.3"}, sections(resp.Results))
}

func TestSearchUnembeddedCorpusSkipsEmbedder(t *testing.T) {
	f := setupFixture(t)
	emb := &mockEmbedder{vector: []float32{1, 0}}
	s := New(f.store, emb, Config{})

	_, err := s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "rcd"})
	require.NoError(t, err)
	assert.Zero(t, emb.callCount())
}

func TestSearchEmbeddingFailureFallsBack(t *testing.T) {
	f := setupFixture(t)
	f.embed(t)
	emb := &mockEmbedder{err: errors.New("provider down")}
	m := metrics.New(nil)
	s := New(f.store, emb, Config{Metrics: m})

	resp, err := s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "rcd"})
	require.NoError(t, err)

	assert.True(t, resp.Fallback)
	assert.False(t, resp.Stats.UsedEmbeddings)
	assert.Equal(t, []string{"2.6", "2.6.3"}, sections(resp.Results))
	assert.InDelta(t, 350.0/1500*1000, resp.Results[0].Score, 1e-6)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchFallbacksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("hybrid", metrics.StatusSuccess)))
}

func TestSearchFallbackNotCached(t *testing.T) {
	f := setupFixture(t)
	f.embed(t)
	emb := &mockEmbedder{vector: []float32{1, 0}, err: errors.New("provider down")}
	s := New(f.store, emb, Config{})
	ctx := context.Background()
	req := SearchRequest{DocumentID: f.doc.ID, Query: "rcd", UseCache: true}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.Fallback)
	assert.Zero(t, s.CacheLen())

	// Provider recovers
	emb.mu.Lock()
	emb.err = nil
	emb.mu.Unlock()

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.False(t, second.Fallback)
	assert.True(t, second.Stats.UsedEmbeddings)
	assert.Equal(t, 2, emb.callCount())

	third, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, third.CacheHit)
	assert.Equal(t, 2, emb.callCount())
}

func TestSearchNoEmbedderOnEmbeddedCorpus(t *testing.T) {
	f := setupFixture(t)
	f.embed(t)
	s := New(f.store, nil, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "rcd"})
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.Equal(t, []string{"2.6", "2.6.3"}, sections(resp.Results))
}

func TestSearchCanceledContext(t *testing.T) {
	f := setupFixture(t)
	f.embed(t)
	emb := &mockEmbedder{err: context.Canceled}
	s := New(f.store, emb, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Search(ctx, SearchRequest{DocumentID: f.doc.ID, Query: "rcd"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchCache(t *testing.T) {
	f := setupFixture(t)
	f.embed(t)
	emb := &mockEmbedder{vector: []float32{1, 0}}
	m := metrics.New(nil)
	s := New(f.store, emb, Config{Metrics: m})
	ctx := context.Background()
	req := SearchRequest{DocumentID: f.doc.ID, Query: "rcd", UseCache: true}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	// Mutating a response must not leak into the cache
	first.Results[0].Entry.Title = "mutated"

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, emb.callCount())
	assert.Equal(t, "RCD protection", second.Results[0].Entry.Title)
	assert.Same(t, &second.Results[0], second.Selection)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchCacheMisses))

	// Surrounding whitespace maps to the same key
	third, err := s.Search(ctx, SearchRequest{DocumentID: f.doc.ID, Query: "  rcd ", UseCache: true})
	require.NoError(t, err)
	assert.True(t, third.CacheHit)

	// Different limit is a different key
	limited, err := s.Search(ctx, SearchRequest{DocumentID: f.doc.ID, Query: "rcd", Limit: 1, UseCache: true})
	require.NoError(t, err)
	assert.False(t, limited.CacheHit)

	s.InvalidateCache()
	assert.Zero(t, s.CacheLen())

	again, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, again.CacheHit)
}

func TestSearchCacheBypass(t *testing.T) {
	f := setupFixture(t)
	s := New(f.store, nil, Config{})
	ctx := context.Background()
	req := SearchRequest{DocumentID: f.doc.ID, Query: "rcd"}

	_, err := s.Search(ctx, req)
	require.NoError(t, err)
	resp, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Zero(t, s.CacheLen())
}

func TestSearchCacheExpiry(t *testing.T) {
	f := setupFixture(t)
	s := New(f.store, nil, Config{CacheTTL: time.Millisecond})
	ctx := context.Background()
	req := SearchRequest{DocumentID: f.doc.ID, Query: "rcd", UseCache: true}

	_, err := s.Search(ctx, req)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	resp, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestSearchCustomWeights(t *testing.T) {
	f := setupFixture(t)
	w := ranker.DefaultWeights()
	w.MaxResults = 1
	s := New(f.store, nil, Config{Weights: w})

	resp, err := s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "rcd"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)

	_, err = s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "rcd", Limit: 2})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestConcurrentSearches(t *testing.T) {
	f := setupFixture(t)
	f.embed(t)
	s := New(f.store, &mockEmbedder{vector: []float32{1, 0}}, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.Search(context.Background(), SearchRequest{DocumentID: f.doc.ID, Query: "rcd", UseCache: true})
			if assert.NoError(t, err) {
				assert.Equal(t, "2.6", resp.Selection.Entry.SectionNumber)
			}
		}()
	}
	wg.Wait()
}
