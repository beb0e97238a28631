package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/dshills/regs-mcp/pkg/types"
)

// ErrMalformedVector is returned when a stored blob cannot be decoded
var ErrMalformedVector = errors.New("malformed vector blob")

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector decodes a blob written by serializeVector. dimension is
// the stored dimension column; a mismatch means the row is corrupt.
func deserializeVector(blob []byte, dimension int) ([]float32, error) {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedVector, len(blob))
	}
	n := len(blob) / 4
	if dimension > 0 && n != dimension {
		return nil, fmt.Errorf("%w: %d values, dimension %d", ErrMalformedVector, n, dimension)
	}

	vector := make([]float32, n)
	for i := range vector {
		v := math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: non-finite value at %d", ErrMalformedVector, i)
		}
		vector[i] = v
	}
	return vector, nil
}

// EmbeddingTextHash identifies the text an entry's embedding was computed from.
// Changing an entry's section, title or path changes the hash and invalidates
// its stored embedding.
func EmbeddingTextHash(entry *types.TocEntry) string {
	h := sha256.Sum256([]byte(entry.EmbeddingText()))
	return hex.EncodeToString(h[:])
}
