package types

// ScoredResult is a transient ranking of one TocEntry against one query
type ScoredResult struct {
	Entry TocEntry

	// Component scores, each in [0, 1]
	KeywordScore  float64
	SemanticScore float64

	// Score is the combined score scaled to 0-1000 for display and thresholding
	Score float64

	// MatchCount is the number of query keywords found in the title
	MatchCount int

	// Rank is the 1-based position in the result set
	Rank int
}

// FinalScore returns the combined score on the 0-1 scale
func (r *ScoredResult) FinalScore() float64 {
	return r.Score / 1000
}

// Validate checks if the scored result is internally consistent
func (r *ScoredResult) Validate() error {
	if r.Rank < 1 {
		return ErrInvalidRank
	}
	if r.KeywordScore < 0 || r.KeywordScore > 1 || r.SemanticScore < 0 || r.SemanticScore > 1 {
		return ErrInvalidComponentScore
	}
	if r.Score < 0 || r.Score > 1000 {
		return ErrInvalidScore
	}
	return nil
}

// Passage is a passage-level search hit re-ranked by the clause post-processor
type Passage struct {
	ID            string
	DocumentID    int64
	SectionNumber string
	SectionTitle  string
	Content       string
	KeyTopics     []string
	Page          int

	// Similarity is the base score from upstream search, in [0, 1]
	Similarity float64

	// RelevanceScore is set by the re-ranker, clamped to [0, 1]
	RelevanceScore float64
}

// ReferenceType identifies what kind of reference was found in free text
type ReferenceType string

const (
	ReferencePage  ReferenceType = "page"
	ReferenceTable ReferenceType = "table"
)

// PageReference is a page citation extracted from an answer
type PageReference struct {
	Page int           `json:"page"`
	Type ReferenceType `json:"type"`
}
