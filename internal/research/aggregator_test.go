package research

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestAggregateDeduplicatesHighestScoreWins(t *testing.T) {
	retr := &stubRetriever{byPosition: map[int][]SourceExcerpt{
		0: {{URL: "https://example.com/dup", Text: "a", Score: 0.9, SubQuery: 0}},
		1: {{URL: "https://example.com/dup?utm_source=rss", Text: "b", Score: 0.6, SubQuery: 1}},
	}}
	a := NewAggregator(retr, 0, 0, testLogger())

	rc := a.Aggregate(context.Background(), []SubQuery{{Position: 0}, {Position: 1}}, 5)
	if len(rc.Excerpts) != 1 {
		t.Fatalf("expected 1 excerpt after dedup, got %d", len(rc.Excerpts))
	}
	if rc.Excerpts[0].Score != 0.9 {
		t.Fatalf("expected highest-score instance retained, got score %f", rc.Excerpts[0].Score)
	}
}

func TestAggregateOrderingDescendingWithPositionTieBreak(t *testing.T) {
	retr := &stubRetriever{byPosition: map[int][]SourceExcerpt{
		0: {{URL: "https://a.example", Text: "a", Score: 0.5, SubQuery: 0}},
		1: {{URL: "https://b.example", Text: "b", Score: 0.9, SubQuery: 1}},
		2: {{URL: "https://c.example", Text: "c", Score: 0.5, SubQuery: 2}},
	}}
	a := NewAggregator(retr, 0, 0, testLogger())

	rc := a.Aggregate(context.Background(), []SubQuery{{Position: 0}, {Position: 1}, {Position: 2}}, 5)
	urls := rc.URLs()
	want := []string{"https://b.example", "https://a.example", "https://c.example"}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("unexpected order: got %v, want %v", urls, want)
		}
	}
	for i := 1; i < len(rc.Excerpts); i++ {
		if rc.Excerpts[i].Score > rc.Excerpts[i-1].Score {
			t.Fatalf("scores not non-increasing: %+v", rc.Excerpts)
		}
	}
}

func TestAggregateEnforcesCharBudget(t *testing.T) {
	big := strings.Repeat("x", 600)
	retr := &stubRetriever{byPosition: map[int][]SourceExcerpt{
		0: {
			{URL: "https://a.example", Text: big, Score: 0.9},
			{URL: "https://b.example", Text: big, Score: 0.8},
			{URL: "https://c.example", Text: big, Score: 0.7},
		},
	}}
	a := NewAggregator(retr, 0, 1300, testLogger())

	rc := a.Aggregate(context.Background(), []SubQuery{{Position: 0}}, 5)
	if len(rc.Excerpts) != 2 {
		t.Fatalf("expected tail truncation to 2 excerpts, got %d", len(rc.Excerpts))
	}
	if rc.TotalChars() > 1300 {
		t.Fatalf("budget exceeded: %d chars", rc.TotalChars())
	}
	if rc.Excerpts[0].URL != "https://a.example" || rc.Excerpts[1].URL != "https://b.example" {
		t.Fatalf("lowest-ranked excerpt should be dropped first: %v", rc.URLs())
	}
}

func TestAggregateOversizedSingleExcerptTruncated(t *testing.T) {
	retr := &stubRetriever{byPosition: map[int][]SourceExcerpt{
		0: {{URL: "https://a.example", Text: strings.Repeat("x", 5000), Score: 0.9}},
	}}
	a := NewAggregator(retr, 0, 1000, testLogger())

	rc := a.Aggregate(context.Background(), []SubQuery{{Position: 0}}, 5)
	if len(rc.Excerpts) != 1 || len(rc.Excerpts[0].Text) != 1000 {
		t.Fatalf("expected single truncated excerpt, got %d excerpts", len(rc.Excerpts))
	}
}

func TestAggregateOversizedTruncationKeepsRuneBoundary(t *testing.T) {
	retr := &stubRetriever{byPosition: map[int][]SourceExcerpt{
		0: {{URL: "https://a.example", Text: strings.Repeat("é", 600), Score: 0.9}},
	}}
	a := NewAggregator(retr, 0, 1001, testLogger())

	rc := a.Aggregate(context.Background(), []SubQuery{{Position: 0}}, 5)
	if len(rc.Excerpts) != 1 {
		t.Fatalf("expected single truncated excerpt, got %d", len(rc.Excerpts))
	}
	if len(rc.Excerpts[0].Text) != 1000 {
		t.Fatalf("expected truncation back to the rune boundary at 1000 bytes, got %d", len(rc.Excerpts[0].Text))
	}
	if !utf8.ValidString(rc.Excerpts[0].Text) {
		t.Fatalf("truncated excerpt is not valid UTF-8")
	}
}

func TestAggregateSlowSubQueryTimesOutAlone(t *testing.T) {
	retr := &stubRetriever{
		byPosition: map[int][]SourceExcerpt{
			0: {{URL: "https://fast.example", Text: "ok", Score: 0.9, SubQuery: 0}},
		},
		block: map[int]struct{}{1: {}},
	}
	a := NewAggregator(retr, 50*time.Millisecond, 0, testLogger())

	done := make(chan Context, 1)
	go func() {
		done <- a.Aggregate(context.Background(), []SubQuery{{Position: 0}, {Position: 1}}, 5)
	}()

	select {
	case rc := <-done:
		if len(rc.Excerpts) != 1 || rc.Excerpts[0].URL != "https://fast.example" {
			t.Fatalf("expected only the fast sub-query to contribute, got %v", rc.URLs())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("aggregate stalled on a slow sub-query")
	}
}

func TestAggregateAllEmptyIsNotAnError(t *testing.T) {
	a := NewAggregator(&stubRetriever{}, 0, 0, testLogger())
	rc := a.Aggregate(context.Background(), []SubQuery{{Position: 0}, {Position: 1}}, 5)
	if !rc.Empty() {
		t.Fatalf("expected empty context, got %d excerpts", len(rc.Excerpts))
	}
}
