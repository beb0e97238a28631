package storage

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/regs-mcp/pkg/types"
)

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{0.5, -1.25, 3, 0}
	blob := serializeVector(v)
	assert.Len(t, blob, 16)

	got, err := deserializeVector(blob, 4)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestDeserializeVector_Malformed(t *testing.T) {
	nan := make([]byte, 4)
	binary.LittleEndian.PutUint32(nan, math.Float32bits(float32(math.NaN())))

	tests := []struct {
		name      string
		blob      []byte
		dimension int
	}{
		{"empty", nil, 0},
		{"partial float", []byte{1, 2, 3}, 0},
		{"dimension mismatch", serializeVector([]float32{1, 2}), 3},
		{"nan", nan, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := deserializeVector(tt.blob, tt.dimension)
			assert.ErrorIs(t, err, ErrMalformedVector)
		})
	}
}

func TestEmbeddingTextHash(t *testing.T) {
	e := &types.TocEntry{SectionNumber: "3.9.7", Title: "Bathroom zones", FullPath: "3 Selection > 3.9 Damp"}
	h := EmbeddingTextHash(e)
	assert.Len(t, h, 64)

	e.DocumentPage = 99
	assert.Equal(t, h, EmbeddingTextHash(e), "page is not embedded text")

	e.Title = "Shower zones"
	assert.NotEqual(t, h, EmbeddingTextHash(e))
}
