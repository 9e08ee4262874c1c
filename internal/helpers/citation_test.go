package helpers

import "testing"

func TestFormatCitation(t *testing.T) {
	t.Parallel()
	c := Citation{
		Index: 1,
		Title: "Investigative Report",
		URL:   "https://example.com/news/report",
	}

	got := FormatCitation(c)
	want := `[1] Investigative Report (example.com) <https://example.com/news/report>`
	if got != want {
		t.Fatalf("FormatCitation() = %q, want %q", got, want)
	}
}

func TestFormatCitationSparseFields(t *testing.T) {
	t.Parallel()
	got := FormatCitation(Citation{Index: 3, URL: "https://news.example.org/a"})
	want := `[3] (news.example.org) <https://news.example.org/a>`
	if got != want {
		t.Fatalf("FormatCitation() = %q, want %q", got, want)
	}
}

func TestFormatCitationsEmpty(t *testing.T) {
	t.Parallel()
	if out := FormatCitations(nil); out != nil {
		t.Fatalf("expected nil for empty input, got %v", out)
	}
}
