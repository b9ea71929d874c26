// Package rank turns a question into a ranked list of knowledge-base chunks.
// It embeds the query, over-fetches candidates from the similarity index,
// filters them by a relevance threshold, and re-scores the survivors with
// content-length and title-overlap bonuses.
package rank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/eoralabs/kbase/engine/domain"
)

// Embedder produces the embedding vector for the question text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher abstracts the vector index nearest-neighbour query.
type Searcher interface {
	Query(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error)
}

// Options configures the ranking behaviour.
type Options struct {
	// MinSimilarity filters candidates: only results strictly above it survive.
	MinSimilarity float64
	// Confidence is the stricter bar on the top raw similarity used by
	// HasRelevantInformation to decide whether to attempt an answer at all.
	// Deliberately a separate knob from MinSimilarity.
	Confidence float64
	// SearchTimeout bounds the index query round trip.
	SearchTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MinSimilarity: 0.3,
		Confidence:    0.4,
		SearchTimeout: 5 * time.Second,
	}
}

// Ranker is the retrieval and re-ranking service.
type Ranker struct {
	embed  Embedder
	search Searcher
	opts   Options
	logger *slog.Logger
}

// New creates a Ranker.
func New(embed Embedder, search Searcher, opts Options, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{embed: embed, search: search, opts: opts, logger: logger}
}

// RankAndFilter returns at most k results ordered by final score. An empty
// result means "no relevant information", not an error.
func (r *Ranker) RankAndFilter(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	vector, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rank: embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
	defer cancel()

	// Over-fetch so the re-ranker has a larger pool than the final cut.
	raw, err := r.search.Query(searchCtx, vector, 2*k)
	if err != nil {
		return nil, fmt.Errorf("rank: search: %w", err)
	}

	filtered := raw[:0:0]
	for _, res := range raw {
		if res.SimilarityScore > r.opts.MinSimilarity {
			filtered = append(filtered, res)
		}
	}
	r.logger.Info("rank: candidates", "raw", len(raw), "filtered", len(filtered))
	if len(filtered) == 0 {
		return nil, nil
	}

	for i := range filtered {
		filtered[i].FinalScore = filtered[i].SimilarityScore +
			contentLengthBonus(filtered[i].Content) +
			titleBonus(filtered[i].Meta.SourceTitle, query)
	}

	// Stable: ties keep the index's original similarity order.
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].FinalScore > filtered[j].FinalScore
	})

	if len(filtered) > k {
		filtered = filtered[:k]
	}
	return filtered, nil
}

// HasRelevantInformation reports whether the top result clears the
// confidence bar. The raw similarity is compared, not the final score.
func (r *Ranker) HasRelevantInformation(results []domain.SearchResult) bool {
	return len(results) > 0 && results[0].SimilarityScore > r.opts.Confidence
}

// contentLengthBonus rewards longer chunks, capped so it cannot dominate
// the similarity term.
func contentLengthBonus(content string) float64 {
	bonus := float64(len(strings.Fields(content))) / 1000
	if bonus > 0.1 {
		return 0.1
	}
	return bonus
}

// titleBonus rewards lexical overlap between the source title and the query.
func titleBonus(title, query string) float64 {
	queryWords := wordSet(query)
	if len(queryWords) == 0 {
		return 0
	}
	titleWords := wordSet(title)

	overlap := 0
	for w := range queryWords {
		if titleWords[w] {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	return 0.2 * float64(overlap) / float64(len(queryWords))
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}
