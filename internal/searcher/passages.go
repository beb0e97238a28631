package searcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/regs-mcp/internal/ranker"
	"github.com/dshills/regs-mcp/internal/rerank"
	"github.com/dshills/regs-mcp/pkg/types"
)

// PassageSources is how many top sections contribute pages to RerankPassages
const PassageSources = 5

// RerankPassages loads the stored pages around each of the first
// PassageSources results and re-ranks them as passages against query.
// A page reachable from several sections is kept once, under the
// best-scoring section. Documents without page text yield no passages.
func (s *Searcher) RerankPassages(ctx context.Context, documentID int64, query string, results []types.ScoredResult) ([]types.Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	doc, err := s.storage.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("document %d: %w", documentID, err)
	}

	sources := results
	if len(sources) > PassageSources {
		sources = sources[:PassageSources]
	}

	passages := make([]types.Passage, 0)
	seen := make(map[int64]bool)
	for _, r := range sources {
		pages, err := s.storage.GetPageRange(ctx, documentID, doc.PDFPage(r.Entry.DocumentPage), s.pad)
		if err != nil {
			return nil, err
		}
		for _, p := range pages {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			passages = append(passages, types.Passage{
				ID:            fmt.Sprintf("%d:%d", documentID, p.PageNumber),
				DocumentID:    documentID,
				SectionNumber: r.Entry.SectionNumber,
				SectionTitle:  r.Entry.Title,
				Content:       p.Content,
				KeyTopics:     ranker.Keywords(r.Entry.Title),
				Page:          p.DocumentPage,
				Similarity:    r.FinalScore(),
			})
		}
	}

	return rerank.Rerank(passages, query), nil
}

// Pad returns the page window applied on each side of a result
func (s *Searcher) Pad() int {
	return s.pad
}
