package embed

import (
	"hash/fnv"
	"math"
	"strings"
)

// HashingEmbedder produces deterministic feature-hashed vectors from
// command text. Tokens and their character trigrams are hashed into a
// fixed number of buckets and the result is L2-normalized, so similar
// command lines land near each other without any trained model.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a HashingEmbedder with the given dimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 128
	}
	return &HashingEmbedder{dim: dim}
}

// Dimension returns the vector length.
func (e *HashingEmbedder) Dimension() int {
	return e.dim
}

// Encode hashes the text's tokens and trigrams into a normalized vector.
func (e *HashingEmbedder) Encode(text string) ([]float32, error) {
	vec := make([]float32, e.dim)

	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return vec, nil
	}

	tokens := strings.Fields(text)
	for pos, tok := range tokens {
		// Whole-token features, the first token weighted highest because
		// the tool name dominates what a command "is about".
		weight := float32(1.0)
		if pos == 0 {
			weight = 2.0
		}
		e.bump(vec, "t:"+tok, weight)

		// Character trigrams catch near-identical arguments and flags.
		runes := []rune(tok)
		for i := 0; i+3 <= len(runes); i++ {
			e.bump(vec, "g:"+string(runes[i:i+3]), 0.5)
		}
	}

	normalize(vec)
	return vec, nil
}

// bump adds weight to the hashed bucket for the feature, with a second
// hash deciding the sign to keep the expectation of collisions at zero.
func (e *HashingEmbedder) bump(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(e.dim))
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}
