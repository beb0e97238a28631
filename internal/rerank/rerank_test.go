package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/regs-mcp/pkg/types"
)

func TestClauseNumber(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"what does 1.4.16 say", "1.4.16"},
		{"clause 6.2 zones", "6.2"},
		{"table 3", "3"},
		{"no numbers here", ""},
		{"3.1. trailing dot", "3.1"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ClauseNumber(tt.query))
		})
	}
}

func TestScore_Bonuses(t *testing.T) {
	w := DefaultWeights()

	tests := []struct {
		name    string
		passage types.Passage
		query   string
		want    float64
	}{
		{
			name:    "BaseOnly",
			passage: types.Passage{Similarity: 0.25, Content: "unrelated text"},
			query:   "rcd",
			want:    0.25,
		},
		{
			name:    "PhraseMatch",
			passage: types.Passage{Similarity: 0.1, Content: "Every RCD protection device shall..."},
			query:   "RCD protection",
			want:    0.4,
		},
		{
			name:    "TitleMatch",
			passage: types.Passage{Similarity: 0.1, SectionTitle: "Classification of zones"},
			query:   "zones",
			want:    0.3,
		},
		{
			name:    "ClauseMatch",
			passage: types.Passage{Similarity: 0.1, SectionNumber: "1.4.16"},
			query:   "what does 1.4.16 cover",
			want:    0.5,
		},
		{
			name:    "TopicMatches",
			passage: types.Passage{Similarity: 0.1, KeyTopics: []string{"bathroom zones", "rcd", "earthing"}},
			query:   "bathroom rcd",
			want:    0.3,
		},
		{
			name: "ClampedToOne",
			passage: types.Passage{
				Similarity:    0.8,
				Content:       "zone 1 clearance",
				SectionTitle:  "zone 1 clearance",
				SectionNumber: "6.2.2",
			},
			query: "zone 1 clearance",
			want:  1,
		},
		{
			name:    "ClampedToZero",
			passage: types.Passage{Similarity: -0.5},
			query:   "anything",
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := normalize(tt.query)
			got := Score(&tt.passage, q, fields(q), ClauseNumber(tt.query), w)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRerank_TopFiveSortedStable(t *testing.T) {
	passages := []types.Passage{
		{ID: "a", Similarity: 0.5},
		{ID: "b", Similarity: 0.6},
		{ID: "c", Similarity: 0.5},
		{ID: "d", Similarity: 0.15, SectionNumber: "2.6.3"},
		{ID: "e", Similarity: 0.1},
		{ID: "f", Similarity: 0.3},
		{ID: "g", Similarity: 0.05},
	}

	out := Rerank(passages, "clause 2.6.3")
	require.Len(t, out, 5)

	got := make([]string, len(out))
	for i, p := range out {
		got[i] = p.ID
	}
	assert.Equal(t, []string{"b", "d", "a", "c", "f"}, got)
	assert.InDelta(t, 0.55, out[1].RelevanceScore, 1e-9)
}

func TestRerank_DoesNotMutateInput(t *testing.T) {
	passages := []types.Passage{
		{ID: "a", Similarity: 0.1, KeyTopics: []string{"rcd"}},
		{ID: "b", Similarity: 0.9},
	}

	out := Rerank(passages, "rcd")
	require.Len(t, out, 2)
	assert.Zero(t, passages[0].RelevanceScore)
	assert.Equal(t, "a", passages[0].ID)

	out[1].KeyTopics[0] = "changed"
	assert.Equal(t, "rcd", passages[0].KeyTopics[0])
}

func TestRerank_EmptyQuery(t *testing.T) {
	passages := []types.Passage{{ID: "a", Similarity: 0.4, Content: "text", KeyTopics: []string{"x"}}}

	out := Rerank(passages, "   ")
	require.Len(t, out, 1)
	assert.InDelta(t, 0.4, out[0].RelevanceScore, 1e-9)
}

func TestRerank_Deterministic(t *testing.T) {
	passages := []types.Passage{
		{ID: "a", Similarity: 0.3, Content: "switch zone"},
		{ID: "b", Similarity: 0.3, Content: "switch zone"},
		{ID: "c", Similarity: 0.3},
	}
	first := Rerank(passages, "switch zone")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Rerank(passages, "switch zone"))
	}
}
