package ranker

import (
	"sort"

	"github.com/dshills/regs-mcp/pkg/types"
)

// AlternativesCount is how many runner-up results the alternatives view exposes
const AlternativesCount = 3

// Stats describes a ranking pass for debug output and metrics
type Stats struct {
	TotalEntries    int  // Entries considered
	EmbeddedEntries int  // Entries carrying an embedding
	UsedEmbeddings  bool // Hybrid blend applied (false = keyword fallback)
	KeywordCount    int  // Keywords surviving stop-word filtering
	AboveThreshold  int  // Results before truncation
}

// Ranker scores TOC entries against a query. It holds only immutable
// configuration, so one Ranker can serve concurrent requests.
type Ranker struct {
	weights Weights
	mode    Mode
}

// Option configures a Ranker
type Option func(*Ranker)

// WithWeights replaces the default weight table
func WithWeights(w Weights) Option {
	return func(r *Ranker) {
		r.weights = w.withDefaults()
	}
}

// WithMode sets the ranking mode. Unknown modes fall back to hybrid.
func WithMode(m Mode) Option {
	return func(r *Ranker) {
		if m.Valid() {
			r.mode = m
		}
	}
}

// New creates a Ranker with the default weights in hybrid mode
func New(opts ...Option) *Ranker {
	r := &Ranker{
		weights: DefaultWeights(),
		mode:    ModeHybrid,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Weights returns the ranker's weight table
func (r *Ranker) Weights() Weights {
	return r.weights
}

// Mode returns the ranker's mode
func (r *Ranker) Mode() Mode {
	return r.mode
}

// Rank scores entries against query using the default ranker
func Rank(entries []types.TocEntry, query string, queryEmbedding []float32) []types.ScoredResult {
	return defaultRanker.Rank(entries, query, queryEmbedding)
}

var defaultRanker = New()

// Rank scores entries against query and returns at most MaxResults results
// above the threshold, best first. queryEmbedding may be nil.
func (r *Ranker) Rank(entries []types.TocEntry, query string, queryEmbedding []float32) []types.ScoredResult {
	results, _ := r.RankWithStats(entries, query, queryEmbedding)
	return results
}

// RankWithStats is Rank plus a description of the pass
func (r *Ranker) RankWithStats(entries []types.TocEntry, query string, queryEmbedding []float32) ([]types.ScoredResult, Stats) {
	w := r.weights
	normQuery := NormalizeQuery(query)
	keywords := Keywords(query)

	stats := Stats{
		TotalEntries: len(entries),
		KeywordCount: len(keywords),
	}
	for i := range entries {
		if entries[i].HasEmbedding() {
			stats.EmbeddedEntries++
		}
	}

	// Hybrid needs both sides: an embedded corpus and a query vector
	hybrid := r.mode == ModeHybrid && stats.EmbeddedEntries > 0 && len(queryEmbedding) > 0
	stats.UsedEmbeddings = hybrid

	results := make([]types.ScoredResult, 0, len(entries))
	for i := range entries {
		entry := &entries[i]

		km := scoreKeywords(w, entry, normQuery, keywords)
		keyword := normalizeKeyword(w, km.raw)

		var semantic, final float64
		if hybrid {
			semantic = SemanticScore(queryEmbedding, entry.Embedding)
			final = w.KeywordBlend*keyword + w.SemanticBlend*semantic
		} else {
			final = keyword
		}

		score := final * w.ScoreScale
		if score <= w.MinScore {
			continue
		}

		results = append(results, types.ScoredResult{
			Entry:         *entry,
			KeywordScore:  keyword,
			SemanticScore: semantic,
			Score:         score,
			MatchCount:    km.matchCount,
		})
	}

	sortResults(results)
	stats.AboveThreshold = len(results)

	if len(results) > w.MaxResults {
		results = results[:w.MaxResults]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	return results, stats
}

// sortResults orders by score descending, then page ascending. Section
// number and id settle any remaining tie so the order never depends on input.
func sortResults(results []types.ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := &results[i], &results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Entry.DocumentPage != b.Entry.DocumentPage {
			return a.Entry.DocumentPage < b.Entry.DocumentPage
		}
		if a.Entry.SectionNumber != b.Entry.SectionNumber {
			return a.Entry.SectionNumber < b.Entry.SectionNumber
		}
		return a.Entry.ID < b.Entry.ID
	})
}

// Alternatives returns the runner-up results: positions 2 through 4
func Alternatives(results []types.ScoredResult) []types.ScoredResult {
	if len(results) <= 1 {
		return []types.ScoredResult{}
	}
	end := 1 + AlternativesCount
	if end > len(results) {
		end = len(results)
	}
	alts := make([]types.ScoredResult, end-1)
	copy(alts, results[1:end])
	return alts
}
