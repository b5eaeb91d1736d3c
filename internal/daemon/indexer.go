package daemon

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"shellsense/internal/embed"
	"shellsense/internal/vector"
)

// indexEvent is one logged command awaiting embedding.
type indexEvent struct {
	ID      int64
	Command string
}

// defaultQueueSize bounds the pending-embedding backlog.
const defaultQueueSize = 8192

// Indexer embeds logged commands into the vector index off the request
// path. Events flow through a bounded queue that drops the OLDEST entry
// when full, so a stalled embedder degrades semantic recall instead of
// blocking log_command. Rebuilds are batched: a build triggers once enough
// adds accumulate or the flush interval passes with work pending, and each
// successful build is persisted to disk.
type Indexer struct {
	index     *vector.Index
	embedder  embed.Embedder
	indexPath string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger

	mu           sync.Mutex
	events       []indexEvent
	totalDropped int64

	notify chan struct{}
}

// IndexerConfig configures an Indexer.
type IndexerConfig struct {
	Index     *vector.Index
	Embedder  embed.Embedder
	IndexPath string

	// BatchSize is how many pending adds trigger a rebuild. Default 32.
	BatchSize int

	// Interval is the longest a pending add waits for a rebuild. Default 30s.
	Interval time.Duration

	Logger *slog.Logger
}

// NewIndexer creates an Indexer. Run must be called for it to make progress.
func NewIndexer(cfg IndexerConfig) *Indexer {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		index:     cfg.Index,
		embedder:  cfg.Embedder,
		indexPath: cfg.IndexPath,
		batchSize: batch,
		interval:  interval,
		logger:    logger,
		events:    make([]indexEvent, 0, defaultQueueSize),
		notify:    make(chan struct{}, 1),
	}
}

// Enqueue queues a logged command for embedding. Never blocks; when the
// queue is full the oldest pending event is dropped.
func (ix *Indexer) Enqueue(id int64, command string) {
	ix.mu.Lock()
	if len(ix.events) >= defaultQueueSize {
		ix.events = ix.events[1:]
		ix.totalDropped++
		ix.logger.Warn("index queue full, dropping oldest event",
			"capacity", defaultQueueSize,
			"total_dropped", ix.totalDropped,
		)
	}
	ix.events = append(ix.events, indexEvent{ID: id, Command: command})
	ix.mu.Unlock()

	select {
	case ix.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued events.
func (ix *Indexer) Pending() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.events)
}

// Run drains the queue until ctx is cancelled, rebuilding and persisting
// the index as batches complete. A final flush runs on shutdown so logged
// commands survive into the next daemon session.
func (ix *Indexer) Run(ctx context.Context) {
	ticker := time.NewTicker(ix.interval)
	defer ticker.Stop()

	pendingAdds := 0
	for {
		select {
		case <-ctx.Done():
			pendingAdds += ix.drain()
			if pendingAdds > 0 {
				ix.rebuild()
			}
			return

		case <-ix.notify:
			pendingAdds += ix.drain()
			if pendingAdds >= ix.batchSize {
				ix.rebuild()
				pendingAdds = 0
			}

		case <-ticker.C:
			pendingAdds += ix.drain()
			if pendingAdds > 0 {
				ix.rebuild()
				pendingAdds = 0
			}
		}
	}
}

// drain embeds and adds everything currently queued, returning how many
// vectors were added.
func (ix *Indexer) drain() int {
	ix.mu.Lock()
	batch := ix.events
	ix.events = make([]indexEvent, 0, defaultQueueSize)
	ix.mu.Unlock()

	added := 0
	for _, ev := range batch {
		vec, err := ix.embedder.Encode(ev.Command)
		if err != nil {
			ix.logger.Warn("embedding failed, skipping command", "id", ev.ID, "error", err)
			continue
		}
		meta := vector.Metadata{
			"command": ev.Command,
			"id":      strconv.FormatInt(ev.ID, 10),
		}
		if _, err := ix.index.Add(vec, meta); err != nil {
			ix.logger.Warn("index add failed, skipping command", "id", ev.ID, "error", err)
			continue
		}
		added++
	}
	return added
}

// rebuild builds the forest and persists the index file.
func (ix *Indexer) rebuild() {
	start := time.Now()
	if err := ix.index.Build(); err != nil {
		ix.logger.Error("index build failed", "error", err)
		return
	}
	if err := ix.index.Save(ix.indexPath); err != nil {
		ix.logger.Warn("index save failed", "path", ix.indexPath, "error", err)
	}
	ix.logger.Debug("index rebuilt",
		"size", ix.index.Len(),
		"generation", ix.index.Generation(),
		"elapsed", time.Since(start),
	)
}
