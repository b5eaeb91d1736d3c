// Package embed defines the embedding collaborator contract and a
// self-contained default implementation.
//
// The daemon does not train or run a model itself; anything satisfying
// Embedder can be injected. The bundled HashingEmbedder keeps the semantic
// tier useful without an external model process.
package embed

// Embedder converts command text into a fixed-length vector.
type Embedder interface {
	// Encode returns a vector of Dimension() floats for the given text.
	Encode(text string) ([]float32, error)

	// Dimension is the length of every vector Encode returns.
	Dimension() int
}
