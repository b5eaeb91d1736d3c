// Package vector provides approximate nearest-neighbor search over command
// embeddings using a forest of randomized hyperplane-partition trees.
//
// Vectors accumulate via Add and become searchable only after Build, which
// swaps in an immutable snapshot; queries against the previous snapshot
// keep working while a build is in flight.
package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrDimensionMismatch is returned when an added or queried vector does not
// match the configured dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrNotBuilt is returned by Query before the first successful Build.
var ErrNotBuilt = errors.New("vector index not built")

// Metadata is the payload carried with each vector, minimally the
// originating command text and store id.
type Metadata map[string]string

// Result is a single nearest-neighbor hit.
type Result struct {
	Meta     Metadata
	Distance float64
}

type entry struct {
	Vector []float32 `json:"v"`
	Meta   Metadata  `json:"m"`
}

// snapshot is an immutable built view of the index. Queries read it without
// locking; Build replaces it atomically.
type snapshot struct {
	generation uint64
	entries    []entry
	forest     []*treeNode
}

// Index is an approximate k-NN index over fixed-dimension float32 vectors.
type Index struct {
	dim   int
	trees int
	seed  int64

	mu      sync.Mutex // guards entries and dirty
	entries []entry
	dirty   bool

	buildMu sync.Mutex // at most one build in flight
	snap    atomic.Pointer[snapshot]
}

// Options configures a new Index.
type Options struct {
	// Dimension is the required vector length.
	Dimension int

	// Trees is the number of randomized trees per build. More trees cost
	// build time and memory for better recall.
	Trees int

	// Seed fixes the hyperplane RNG so rebuilds are reproducible. Zero
	// selects a fixed default.
	Seed int64
}

// New creates an empty Index.
func New(opts Options) (*Index, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", opts.Dimension)
	}
	trees := opts.Trees
	if trees <= 0 {
		trees = 8
	}
	seed := opts.Seed
	if seed == 0 {
		seed = 0x5eed5eed
	}
	return &Index{
		dim:   opts.Dimension,
		trees: trees,
		seed:  seed,
	}, nil
}

// Dimension returns the configured vector length.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Add accumulates a vector with its metadata and returns its dense local
// index. Added vectors are invisible to Query until the next Build.
func (ix *Index) Add(vec []float32, meta Metadata) (int, error) {
	if len(vec) != ix.dim {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.dim)
	}

	v := make([]float32, len(vec))
	copy(v, vec)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = append(ix.entries, entry{Vector: v, Meta: meta})
	ix.dirty = true
	return len(ix.entries) - 1, nil
}

// Len returns the number of accumulated vectors, built or not.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}

// Generation returns the build generation of the current snapshot, 0 if the
// index has never been built.
func (ix *Index) Generation() uint64 {
	if snap := ix.snap.Load(); snap != nil {
		return snap.generation
	}
	return 0
}

// Built reports whether the index has a queryable snapshot.
func (ix *Index) Built() bool {
	return ix.snap.Load() != nil
}

// Build constructs the searchable forest from all accumulated vectors and
// swaps it in atomically. A Build with no vectors added since the last one
// is a no-op and keeps the generation unchanged.
func (ix *Index) Build() error {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	ix.mu.Lock()
	if !ix.dirty && ix.snap.Load() != nil {
		ix.mu.Unlock()
		return nil
	}
	frozen := make([]entry, len(ix.entries))
	copy(frozen, ix.entries)
	ix.mu.Unlock()

	prevGen := uint64(0)
	if prev := ix.snap.Load(); prev != nil {
		prevGen = prev.generation
	}

	next := &snapshot{
		generation: prevGen + 1,
		entries:    frozen,
		forest:     buildForest(frozen, ix.dim, ix.trees, ix.seed),
	}
	ix.snap.Store(next)

	ix.mu.Lock()
	// Adds that raced in during the build stay dirty for the next one.
	ix.dirty = len(ix.entries) > len(frozen)
	ix.mu.Unlock()

	return nil
}

// Query returns the k approximate nearest neighbors of vec, nearest first.
// A k larger than the population returns every built entry.
func (ix *Index) Query(vec []float32, k int) ([]Result, error) {
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	snap := ix.snap.Load()
	if snap == nil {
		return nil, ErrNotBuilt
	}
	if k <= 0 || len(snap.entries) == 0 {
		return nil, nil
	}

	candidates := searchForest(snap.forest, vec, k*len(snap.forest)*4, len(snap.entries))

	results := make([]Result, 0, len(candidates))
	for idx := range candidates {
		results = append(results, Result{
			Meta:     snap.entries[idx].Meta,
			Distance: euclidean(vec, snap.entries[idx].Vector),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Meta["command"] < results[j].Meta["command"]
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
