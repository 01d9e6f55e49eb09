package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of a zero-value HashEmbedder.
const DefaultHashDimensions = 256

// HashEmbedder embeds text by hashing its words into a fixed number of
// buckets. It needs no network access, so it backs offline play and tests.
// Passages and queries must be embedded by the same embedder.
type HashEmbedder struct {
	Dimensions int
}

// EmbedderID names the hash function and vector size.
func (h HashEmbedder) EmbedderID() string {
	dims := h.Dimensions
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return fmt.Sprintf("hash-fnv32a/%d", dims)
}

// Embed returns a unit-length bag-of-words vector.
func (h HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dims := h.Dimensions
	if dims <= 0 {
		dims = DefaultHashDimensions
	}

	v := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		f := fnv.New32a()
		f.Write([]byte(w))
		v[int(f.Sum32()%uint32(dims))]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
	}
	return v, nil
}
