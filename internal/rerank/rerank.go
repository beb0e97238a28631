// Package rerank adjusts passage-level search hits with clause-aware bonuses.
//
// The TOC ranker works on headings; this package works on page passages that
// an upstream similarity search already returned. Each passage keeps its base
// similarity and earns fixed bonuses for phrase, title, clause-number and key
// topic matches. The adjusted score is clamped to [0, 1] and the best five are
// kept.
package rerank

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/regs-mcp/pkg/types"
)

// Weights is the explicit bonus table for passage re-ranking
type Weights struct {
	Phrase     float64 // Query phrase appears in passage content
	Title      float64 // Query appears in section title
	Clause     float64 // Clause number in query appears in section number
	TopicMatch float64 // Per key topic containing a query word
	MaxResults int
}

// DefaultWeights returns the production bonus table
func DefaultWeights() Weights {
	return Weights{
		Phrase:     0.3,
		Title:      0.2,
		Clause:     0.4,
		TopicMatch: 0.1,
		MaxResults: 5,
	}
}

var clausePattern = regexp.MustCompile(`\d+(\.\d+)*`)

// ClauseNumber returns the first clause-like number in query, or ""
func ClauseNumber(query string) string {
	return clausePattern.FindString(query)
}

// Rerank scores passages against query with the default weights
func Rerank(passages []types.Passage, query string) []types.Passage {
	return RerankWithWeights(passages, query, DefaultWeights())
}

// RerankWithWeights scores passages against query and returns the top
// MaxResults by adjusted score. Ties keep their input order. The input slice
// is not modified.
func RerankWithWeights(passages []types.Passage, query string, w Weights) []types.Passage {
	if w.MaxResults <= 0 {
		w.MaxResults = DefaultWeights().MaxResults
	}

	q := strings.ToLower(strings.TrimSpace(query))
	words := strings.Fields(q)
	clause := ClauseNumber(query)

	out := make([]types.Passage, len(passages))
	for i, p := range passages {
		p.KeyTopics = append([]string(nil), p.KeyTopics...)
		p.RelevanceScore = Score(&p, q, words, clause, w)
		out[i] = p
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})

	if len(out) > w.MaxResults {
		out = out[:w.MaxResults]
	}
	return out
}

// Score computes the clamped relevance of one passage. q is the lowercased,
// trimmed query, words its whitespace fields and clause its clause number.
func Score(p *types.Passage, q string, words []string, clause string, w Weights) float64 {
	score := p.Similarity

	if q != "" && strings.Contains(strings.ToLower(p.Content), q) {
		score += w.Phrase
	}
	if q != "" && p.SectionTitle != "" && strings.Contains(strings.ToLower(p.SectionTitle), q) {
		score += w.Title
	}
	if clause != "" && strings.Contains(p.SectionNumber, clause) {
		score += w.Clause
	}

	for _, topic := range p.KeyTopics {
		topic = strings.ToLower(topic)
		for _, word := range words {
			if strings.Contains(topic, word) {
				score += w.TopicMatch
				break
			}
		}
	}

	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(score, 1))
}
