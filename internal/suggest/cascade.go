// Package suggest implements the multi-tier suggestion cascade: exact
// prefix matches from the command store, fuzzy text scoring over recent
// history, and semantic neighbors from the vector index, fused into one
// ranked, deduplicated list.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"shellsense/internal/embed"
	"shellsense/internal/store"
	"shellsense/internal/vector"
)

// ErrRetrievalFailed indicates the command store could not serve the
// request. Unlike index or embedder failures it is fatal to the request.
var ErrRetrievalFailed = errors.New("suggestion retrieval failed")

// Tier identifies the retrieval strategy that produced a candidate.
type Tier string

const (
	TierExact    Tier = "EXACT"
	TierFuzzy    Tier = "FUZZY"
	TierSemantic Tier = "SEMANTIC"
)

// tierPriority orders tiers for deterministic tie-breaking, lower first.
func tierPriority(t Tier) int {
	switch t {
	case TierExact:
		return 0
	case TierSemantic:
		return 1
	case TierFuzzy:
		return 2
	default:
		return 3
	}
}

// Candidate is one ranked suggestion.
type Candidate struct {
	Command    string  `json:"command"`
	Confidence float64 `json:"confidence"`
	SourceTier Tier    `json:"source_tier"`

	// Tiers lists every tier that produced this command, highest
	// priority first.
	Tiers []Tier `json:"tiers,omitempty"`

	// FuzzyScore is the 0-100 fuzzy similarity when the fuzzy tier
	// contributed; Similarity is the raw vector distance when the
	// semantic tier did.
	FuzzyScore int     `json:"fuzzy_score,omitempty"`
	Similarity float64 `json:"similarity_score,omitempty"`
}

// Options are the per-request tunables of the cascade.
type Options struct {
	CWD            string
	MaxSuggestions int
	MinConfidence  float64
	FuzzyThreshold int
	FuzzyPoolSize  int
	SemanticK      int
}

func (o Options) withDefaults() Options {
	if o.MaxSuggestions <= 0 {
		o.MaxSuggestions = 5
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = 0.3
	}
	if o.FuzzyThreshold <= 0 {
		o.FuzzyThreshold = 60
	}
	if o.FuzzyPoolSize <= 0 {
		o.FuzzyPoolSize = 200
	}
	if o.SemanticK <= 0 {
		o.SemanticK = 10
	}
	return o
}

// exactRankDecay is subtracted per rank position within the exact tier so
// prefix hits stay ordered even though they all match equally well.
const exactRankDecay = 0.01

// Cascade fuses the three suggestion tiers.
type Cascade struct {
	store    store.Store
	index    *vector.Index
	embedder embed.Embedder
	logger   *slog.Logger
}

// New creates a Cascade. The index and embedder may be nil, in which case
// the semantic tier never contributes.
func New(st store.Store, ix *vector.Index, emb embed.Embedder, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{store: st, index: ix, embedder: emb, logger: logger}
}

// Suggest produces ranked, deduplicated, confidence-filtered suggestions
// for a partial command line. An empty partial returns nothing without
// consulting any tier.
func (c *Cascade) Suggest(ctx context.Context, partial string, opts Options) ([]Candidate, error) {
	if partial == "" {
		return nil, nil
	}
	opts = opts.withDefaults()

	merged := make(map[string]*Candidate)

	if err := c.exactTier(ctx, partial, opts, merged); err != nil {
		return nil, err
	}
	if err := c.fuzzyTier(ctx, partial, opts, merged); err != nil {
		return nil, err
	}
	c.semanticTier(partial, opts, merged)

	return rank(merged, opts), nil
}

// exactTier adds prefix matches at confidence 1.0 minus a small per-rank
// decay. Store failure is fatal to the request.
func (c *Cascade) exactTier(ctx context.Context, partial string, opts Options, merged map[string]*Candidate) error {
	recs, err := c.store.SearchPrefix(ctx, partial, opts.CWD, opts.MaxSuggestions*3)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	rank := 0
	seen := make(map[string]struct{})
	for _, rec := range recs {
		if _, dup := seen[rec.Command]; dup {
			continue
		}
		seen[rec.Command] = struct{}{}

		conf := 1.0 - float64(rank)*exactRankDecay
		if conf < 0 {
			conf = 0
		}
		absorb(merged, Candidate{
			Command:    rec.Command,
			Confidence: conf,
			SourceTier: TierExact,
		})
		rank++
	}
	return nil
}

// fuzzyTier scores a bounded pool of recent commands and keeps those at or
// above the threshold. Store failure is fatal to the request.
func (c *Cascade) fuzzyTier(ctx context.Context, partial string, opts Options, merged map[string]*Candidate) error {
	pool, err := c.store.Recent(ctx, opts.FuzzyPoolSize, "")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	scored := make(map[string]int)
	for _, rec := range pool {
		if _, done := scored[rec.Command]; done {
			continue
		}
		scored[rec.Command] = Score(partial, rec.Command)
	}

	for cmd, score := range scored {
		if score < opts.FuzzyThreshold {
			continue
		}
		absorb(merged, Candidate{
			Command:    cmd,
			Confidence: float64(score) / 100,
			SourceTier: TierFuzzy,
			FuzzyScore: score,
		})
	}
	return nil
}

// semanticTier embeds the partial and queries the vector index. Any
// failure here, including an index that has never been built, degrades the
// tier to nothing rather than failing the request.
func (c *Cascade) semanticTier(partial string, opts Options, merged map[string]*Candidate) {
	if c.index == nil || c.embedder == nil || !c.index.Built() {
		return
	}

	vec, err := c.embedder.Encode(partial)
	if err != nil {
		c.logger.Debug("embedder failed, skipping semantic tier", "error", err)
		return
	}

	results, err := c.index.Query(vec, opts.SemanticK)
	if err != nil {
		if !errors.Is(err, vector.ErrNotBuilt) {
			c.logger.Debug("vector query failed, skipping semantic tier", "error", err)
		}
		return
	}

	for _, res := range results {
		cmd := res.Meta["command"]
		if cmd == "" {
			continue
		}
		absorb(merged, Candidate{
			Command:    cmd,
			Confidence: 1 / (1 + res.Distance),
			SourceTier: TierSemantic,
			Similarity: res.Distance,
		})
	}
}

// absorb unions a tier candidate into the merged set, keeping the highest
// confidence and recording every contributing tier.
func absorb(merged map[string]*Candidate, cand Candidate) {
	existing, ok := merged[cand.Command]
	if !ok {
		cand.Tiers = []Tier{cand.SourceTier}
		merged[cand.Command] = &cand
		return
	}

	for _, t := range existing.Tiers {
		if t == cand.SourceTier {
			if cand.Confidence > existing.Confidence {
				existing.Confidence = cand.Confidence
				existing.SourceTier = cand.SourceTier
			}
			return
		}
	}
	existing.Tiers = append(existing.Tiers, cand.SourceTier)
	sort.Slice(existing.Tiers, func(i, j int) bool {
		return tierPriority(existing.Tiers[i]) < tierPriority(existing.Tiers[j])
	})

	if cand.Confidence > existing.Confidence {
		existing.Confidence = cand.Confidence
		existing.SourceTier = cand.SourceTier
	}
	if cand.FuzzyScore > existing.FuzzyScore {
		existing.FuzzyScore = cand.FuzzyScore
	}
	if cand.Similarity > 0 && (existing.Similarity == 0 || cand.Similarity < existing.Similarity) {
		existing.Similarity = cand.Similarity
	}
}

// rank sorts by (confidence desc, tier priority, command asc), filters by
// the confidence floor and caps the result.
func rank(merged map[string]*Candidate, opts Options) []Candidate {
	out := make([]Candidate, 0, len(merged))
	for _, cand := range merged {
		if cand.Confidence < opts.MinConfidence {
			continue
		}
		if cand.Confidence > 1 {
			cand.Confidence = 1
		}
		out = append(out, *cand)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		pi, pj := tierPriority(out[i].SourceTier), tierPriority(out[j].SourceTier)
		if pi != pj {
			return pi < pj
		}
		return out[i].Command < out[j].Command
	})

	if len(out) > opts.MaxSuggestions {
		out = out[:opts.MaxSuggestions]
	}
	return out
}
