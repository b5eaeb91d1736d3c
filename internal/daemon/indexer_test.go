package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"shellsense/internal/embed"
	"shellsense/internal/vector"
)

func newTestIndexer(t *testing.T) (*Indexer, *vector.Index, string) {
	t.Helper()

	ix, err := vector.New(vector.Options{Dimension: 16})
	if err != nil {
		t.Fatalf("vector.New: %v", err)
	}
	path := filepath.Join(t.TempDir(), "vectors.idx")
	idx := NewIndexer(IndexerConfig{
		Index:     ix,
		Embedder:  embed.NewHashingEmbedder(16),
		IndexPath: path,
		BatchSize: 4,
		Interval:  time.Hour,
	})
	return idx, ix, path
}

func TestIndexerDrainAddsVectors(t *testing.T) {
	idx, ix, _ := newTestIndexer(t)

	idx.Enqueue(1, "git status")
	idx.Enqueue(2, "ls -la")
	if idx.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", idx.Pending())
	}

	added := idx.drain()
	if added != 2 {
		t.Fatalf("drain added %d, want 2", added)
	}
	if idx.Pending() != 0 {
		t.Fatalf("pending = %d after drain, want 0", idx.Pending())
	}
	if ix.Len() != 2 {
		t.Fatalf("index holds %d vectors, want 2", ix.Len())
	}
}

func TestIndexerRebuildPersists(t *testing.T) {
	idx, ix, path := newTestIndexer(t)

	idx.Enqueue(1, "git status")
	idx.drain()
	idx.rebuild()

	if !ix.Built() {
		t.Fatal("index not built after rebuild")
	}

	restored, err := vector.New(vector.Options{Dimension: 16})
	if err != nil {
		t.Fatalf("vector.New: %v", err)
	}
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Len() != 1 || !restored.Built() {
		t.Fatalf("restored: len=%d built=%v", restored.Len(), restored.Built())
	}
}

func TestIndexerRunFlushesOnShutdown(t *testing.T) {
	idx, ix, _ := newTestIndexer(t)

	idx.Enqueue(1, "git status")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		idx.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !ix.Built() {
		t.Fatal("pending event lost on shutdown")
	}
}

func TestIndexerRunBuildsOnBatch(t *testing.T) {
	idx, ix, _ := newTestIndexer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		idx.Run(ctx)
		close(done)
	}()

	// BatchSize is 4; the fourth enqueue must trigger a build without
	// waiting for the interval tick.
	for i := int64(1); i <= 4; i++ {
		idx.Enqueue(i, "cmd")
	}

	deadline := time.Now().Add(5 * time.Second)
	for !ix.Built() {
		if time.Now().After(deadline) {
			t.Fatal("batch threshold did not trigger a build")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}
