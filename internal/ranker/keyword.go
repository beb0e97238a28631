package ranker

import (
	"math"
	"strings"

	"github.com/dshills/regs-mcp/pkg/types"
)

// stopWords are dropped from the keyword list before per-keyword matching
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {},
	"what": {}, "how": {}, "where": {}, "when": {}, "is": {},
	"a": {}, "an": {}, "to": {}, "in": {}, "on": {},
	"at": {}, "of": {}, "or": {}, "between": {},
}

// IsStopWord reports whether word is excluded from keyword matching
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// NormalizeQuery lowercases and trims a raw query
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Keywords splits a raw query into match terms: lowercase, whitespace split,
// tokens of length <= 1 and stop words removed. Duplicates are kept; each
// occurrence scores on its own.
func Keywords(query string) []string {
	fields := strings.Fields(NormalizeQuery(query))
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 1 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		keywords = append(keywords, f)
	}
	return keywords
}

// keywordMatch holds the raw keyword signal for one entry
type keywordMatch struct {
	raw        float64
	matchCount int
}

// scoreKeywords computes the additive keyword signals for one entry.
// normQuery must already be normalized; an empty query scores zero.
func scoreKeywords(w Weights, entry *types.TocEntry, normQuery string, keywords []string) keywordMatch {
	var m keywordMatch
	if normQuery == "" {
		return m
	}

	section := strings.ToLower(strings.TrimSpace(entry.SectionNumber))
	title := strings.ToLower(entry.Title)
	path := strings.ToLower(entry.FullPath)

	if section != "" && section == normQuery {
		m.raw += w.ExactSection
	}
	if strings.Contains(section, normQuery) {
		m.raw += w.SectionContains
	}
	if strings.Contains(title, normQuery) {
		m.raw += w.TitleContains
	}
	if path != "" && strings.Contains(path, normQuery) {
		m.raw += w.PathContains
	}

	for _, kw := range keywords {
		if strings.Contains(title, kw) {
			m.raw += w.KeywordTitle
			m.matchCount++
		}
		if strings.Contains(section, kw) {
			m.raw += w.KeywordSection
		}
		if path != "" && strings.Contains(path, kw) {
			m.raw += w.KeywordPath
		}
	}

	if len(keywords) > 1 && float64(m.matchCount) >= float64(len(keywords))/2 {
		m.raw += w.Coverage
	}

	return m
}

// normalizeKeyword maps a raw keyword sum into [0, 1]
func normalizeKeyword(w Weights, raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return math.Min(raw/w.KeywordNormalizer, 1)
}
