package vector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileVersion guards against loading an incompatible index layout.
const fileVersion = 1

// indexFile is the on-disk representation. Trees are not serialized:
// Load rebuilds them from the stored seed, which reproduces the forest
// exactly and keeps the file format independent of the tree layout.
type indexFile struct {
	Version    int     `json:"version"`
	Dimension  int     `json:"dimension"`
	Trees      int     `json:"trees"`
	Seed       int64   `json:"seed"`
	Generation uint64  `json:"generation"`
	BuiltN     int     `json:"built_n"`
	Entries    []entry `json:"entries"`
}

// Save persists every accumulated entry plus the build state to path,
// atomically via a temp file rename. buildMu orders the entries copy
// against an in-flight Build so the file can never claim more built
// entries than it carries.
func (ix *Index) Save(path string) error {
	ix.buildMu.Lock()
	ix.mu.Lock()
	entries := make([]entry, len(ix.entries))
	copy(entries, ix.entries)
	ix.mu.Unlock()

	builtN := 0
	var generation uint64
	if snap := ix.snap.Load(); snap != nil {
		builtN = len(snap.entries)
		generation = snap.generation
	}
	ix.buildMu.Unlock()

	f := indexFile{
		Version:    fileVersion,
		Dimension:  ix.dim,
		Trees:      ix.trees,
		Seed:       ix.seed,
		Generation: generation,
		BuiltN:     builtN,
		Entries:    entries,
	}

	data, err := json.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores the index from path. A missing file leaves the index in
// its empty, not-built state without error so the caller can re-accumulate.
// When the saved index had been built, the forest is reconstructed from the
// stored seed so queries answer identically to the saved instance.
func (ix *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}

	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}
	if f.Version != fileVersion {
		return fmt.Errorf("unsupported index file version %d", f.Version)
	}
	if f.Dimension != ix.dim {
		return fmt.Errorf("%w: file has %d, index configured for %d", ErrDimensionMismatch, f.Dimension, ix.dim)
	}
	if f.BuiltN > len(f.Entries) {
		return fmt.Errorf("corrupt index file: built_n %d exceeds %d entries", f.BuiltN, len(f.Entries))
	}

	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	ix.mu.Lock()
	ix.entries = f.Entries
	ix.seed = f.Seed
	ix.trees = f.Trees
	ix.dirty = len(f.Entries) > f.BuiltN
	ix.mu.Unlock()

	if f.BuiltN > 0 {
		built := f.Entries[:f.BuiltN]
		ix.snap.Store(&snapshot{
			generation: f.Generation,
			entries:    built,
			forest:     buildForest(built, ix.dim, f.Trees, f.Seed),
		})
	} else {
		ix.snap.Store(nil)
	}
	return nil
}
