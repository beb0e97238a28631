package searcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/regs-mcp/internal/ranker"
	"github.com/dshills/regs-mcp/pkg/types"
)

const (
	// ExpandedTopN is how many hits each phrasing contributes
	ExpandedTopN = 3
	// MaxPhrasings caps the number of phrasings in one expanded search
	MaxPhrasings = 10
)

// ExpandedResult is a hit from an expanded search with the phrasing that found it
type ExpandedResult struct {
	types.ScoredResult
	FoundBy string
}

// ExpandedResponse merges the hits of several phrasings of one question
type ExpandedResponse struct {
	DocumentID int64
	Queries    []string
	Results    []ExpandedResult
	Fallback   bool // Any phrasing fell back to keyword ranking
	Duration   time.Duration
}

// SearchExpanded runs each phrasing against one document, keeps the top three
// hits of each, drops entries already found by an earlier phrasing and orders
// the union by score. Blank phrasings are skipped.
func (s *Searcher) SearchExpanded(ctx context.Context, documentID int64, queries []string, mode ranker.Mode) (*ExpandedResponse, error) {
	start := time.Now()

	phrasings := make([]string, 0, len(queries))
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			phrasings = append(phrasings, q)
		}
	}
	if len(phrasings) == 0 {
		return nil, ErrEmptyQuery
	}
	if len(phrasings) > MaxPhrasings {
		return nil, fmt.Errorf("%w: at most %d phrasings", ErrInvalidLimit, MaxPhrasings)
	}

	responses := make([]*SearchResponse, len(phrasings))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range phrasings {
		g.Go(func() error {
			resp, err := s.Search(gctx, SearchRequest{
				DocumentID: documentID,
				Query:      q,
				Mode:       mode,
				UseCache:   true,
			})
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &ExpandedResponse{
		DocumentID: documentID,
		Queries:    phrasings,
		Results:    make([]ExpandedResult, 0, len(phrasings)*ExpandedTopN),
	}

	// Merge in phrasing order so the first phrasing to find an entry owns it
	seen := make(map[int64]bool)
	for i, resp := range responses {
		out.Fallback = out.Fallback || resp.Fallback
		for j, r := range resp.Results {
			if j == ExpandedTopN {
				break
			}
			if seen[r.Entry.ID] {
				continue
			}
			seen[r.Entry.ID] = true
			out.Results = append(out.Results, ExpandedResult{ScoredResult: r, FoundBy: phrasings[i]})
		}
	}

	// Equal scores keep the ranker's page order; phrasing order settles the rest
	sort.SliceStable(out.Results, func(i, j int) bool {
		a, b := &out.Results[i], &out.Results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Entry.DocumentPage < b.Entry.DocumentPage
	})
	for i := range out.Results {
		out.Results[i].Rank = i + 1
	}

	out.Duration = time.Since(start)
	s.log.Debug().
		Int64("document_id", documentID).
		Int("phrasings", len(phrasings)).
		Int("results", len(out.Results)).
		Dur("duration", out.Duration).
		Msg("expanded search completed")
	return out, nil
}

// DocumentResult is a hit from a multi-document search
type DocumentResult struct {
	DocumentID int64
	types.ScoredResult
}

// SearchDocuments ranks the query against several documents concurrently and
// merges the hits by score, ties broken by page, then document id. Repeated
// document ids are searched once. limit caps the merged list; 0 uses the
// default limit.
func (s *Searcher) SearchDocuments(ctx context.Context, documentIDs []int64, query string, mode ranker.Mode, limit int) ([]DocumentResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	documentIDs = uniqueIDs(documentIDs)
	if len(documentIDs) == 0 {
		return nil, ErrInvalidDocument
	}
	limit, err := s.resolveLimit(limit)
	if err != nil {
		return nil, err
	}

	responses := make([]*SearchResponse, len(documentIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range documentIDs {
		g.Go(func() error {
			resp, err := s.Search(gctx, SearchRequest{
				DocumentID: id,
				Query:      query,
				Mode:       mode,
				Limit:      limit,
				UseCache:   true,
			})
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]DocumentResult, 0)
	for _, resp := range responses {
		for _, r := range resp.Results {
			merged = append(merged, DocumentResult{DocumentID: resp.DocumentID, ScoredResult: r})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := &merged[i], &merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Entry.DocumentPage != b.Entry.DocumentPage {
			return a.Entry.DocumentPage < b.Entry.DocumentPage
		}
		return a.DocumentID < b.DocumentID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	for i := range merged {
		merged[i].Rank = i + 1
	}
	return merged, nil
}

// uniqueIDs drops repeated ids, keeping first-seen order
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
