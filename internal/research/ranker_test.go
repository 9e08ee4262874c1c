package research

import (
	"context"
	"errors"
	"testing"
)

func TestRankOrdersByCosineSimilarity(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"query":  {1, 0, 0},
		"close":  {0.9, 0.1, 0},
		"medium": {0.5, 0.5, 0},
		"far":    {0, 1, 0},
	}}
	r := NewRanker(emb)

	ranked, err := r.Rank(context.Background(), "query", []string{"far text", "close text", "medium text"})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked candidates, got %d", len(ranked))
	}
	if ranked[0].Index != 1 || ranked[1].Index != 2 || ranked[2].Index != 0 {
		t.Fatalf("unexpected order: %+v", ranked)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Fatalf("scores not non-increasing: %+v", ranked)
		}
	}
}

func TestRankStableForEqualScores(t *testing.T) {
	// Every candidate gets the same default vector, so all scores tie.
	emb := &stubEmbedder{}
	r := NewRanker(emb)

	ranked, err := r.Rank(context.Background(), "q", []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	for i, rc := range ranked {
		if rc.Index != i {
			t.Fatalf("tie-break must preserve candidate order, got %+v", ranked)
		}
	}
}

func TestRankEmptyCandidates(t *testing.T) {
	r := NewRanker(&stubEmbedder{})
	ranked, err := r.Rank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(ranked) != 0 {
		t.Fatalf("expected empty ranking, got %+v", ranked)
	}
}

func TestRankEmbeddingFailure(t *testing.T) {
	r := NewRanker(&stubEmbedder{err: errors.New("embed down")})
	if _, err := r.Rank(context.Background(), "q", []string{"a"}); err == nil {
		t.Fatalf("expected error when embedding fails")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("identical vectors should score ~1, got %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors should score 0, got %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 0, 1}); got != 0 {
		t.Fatalf("mismatched dimensions should score 0, got %f", got)
	}
}
