package research

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// RankedCandidate pairs a candidate index with its similarity score.
type RankedCandidate struct {
	Index int
	Score float64
}

// Ranker orders candidate texts by embedding similarity to a query.
type Ranker struct {
	embedder Embedder
}

func NewRanker(embedder Embedder) *Ranker {
	return &Ranker{embedder: embedder}
}

// Rank embeds the query and all candidates in one batched call and
// returns candidates ordered by descending cosine similarity. Equal
// scores preserve the original candidate order. Zero candidates return
// an empty ranking.
func (r *Ranker) Rank(ctx context.Context, query string, candidates []string) ([]RankedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, query)
	texts = append(texts, candidates...)

	vecs, err := r.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding candidates: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(vecs))
	}

	queryVec := vecs[0]
	ranked := make([]RankedCandidate, len(candidates))
	for i := range candidates {
		ranked[i] = RankedCandidate{Index: i, Score: cosineSimilarity(queryVec, vecs[i+1])}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})
	return ranked, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
