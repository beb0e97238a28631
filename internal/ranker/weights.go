package ranker

// Mode selects the signal set used for ranking
type Mode string

const (
	ModeHybrid  Mode = "hybrid"  // Keyword + semantic when embeddings are available
	ModeKeyword Mode = "keyword" // Keyword only, even when embeddings exist
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModeHybrid || m == ModeKeyword
}

// Weights is the explicit weight table for keyword and hybrid scoring.
// The defaults are empirically tuned against tradie queries and are expected
// to be revisited against query logs.
type Weights struct {
	// Whole-query signals
	ExactSection    float64 // normalized section number == normalized query
	SectionContains float64 // section number contains query
	TitleContains   float64 // title contains query
	PathContains    float64 // full path contains query

	// Per-keyword signals
	KeywordTitle   float64
	KeywordSection float64
	KeywordPath    float64

	// Coverage applies when at least half the keywords hit the title
	Coverage float64

	// KeywordNormalizer maps the raw keyword sum into [0, 1]
	KeywordNormalizer float64

	// Blend applied when both query and corpus embeddings are available
	KeywordBlend  float64
	SemanticBlend float64

	// ScoreScale converts the final [0, 1] score to the display scale
	ScoreScale float64

	// MinScore is the exclusive lower bound on the display scale
	MinScore float64

	// MaxResults caps the ranked list
	MaxResults int
}

// DefaultWeights returns the production weight table
func DefaultWeights() Weights {
	return Weights{
		ExactSection:      1000,
		SectionContains:   500,
		TitleContains:     300,
		PathContains:      200,
		KeywordTitle:      50,
		KeywordSection:    30,
		KeywordPath:       20,
		Coverage:          100,
		KeywordNormalizer: 1500,
		KeywordBlend:      0.3,
		SemanticBlend:     0.7,
		ScoreScale:        1000,
		MinScore:          10,
		MaxResults:        20,
	}
}

// withDefaults fills zero-valued scaling fields so a partially specified
// table cannot divide by zero or return an unbounded list
func (w Weights) withDefaults() Weights {
	d := DefaultWeights()
	if w.KeywordNormalizer <= 0 {
		w.KeywordNormalizer = d.KeywordNormalizer
	}
	if w.ScoreScale <= 0 {
		w.ScoreScale = d.ScoreScale
	}
	if w.MaxResults <= 0 {
		w.MaxResults = d.MaxResults
	}
	return w
}
