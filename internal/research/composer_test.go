package research

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type identityRanker struct{}

func (identityRanker) Rank(ctx context.Context, query string, candidates []string) ([]RankedCandidate, error) {
	out := make([]RankedCandidate, len(candidates))
	for i := range candidates {
		out[i] = RankedCandidate{Index: i, Score: 1 - float64(i)*0.01}
	}
	return out, nil
}

func detailedRequest(maxSubtopics int) Request {
	return Request{
		Topic:              "electric aviation",
		ReportType:         ReportTypeDetailed,
		Tone:               ToneObjective,
		MaxSubQueries:      3,
		MaxSubtopics:       maxSubtopics,
		MaxResultsPerQuery: 5,
	}
}

func smallContext() Context {
	return Context{Excerpts: []SourceExcerpt{
		{URL: "https://a.example/1", Title: "Battery density", Text: "battery text", Score: 0.9},
		{URL: "https://b.example/2", Title: "Certification", Text: "cert text", Score: 0.8},
	}}
}

func TestComposeDirectSingleCall(t *testing.T) {
	llm := &stubLLM{respond: func(prompt, system, model string) (string, error) {
		return "summary body", nil
	}}
	c := NewComposer(llm, identityRanker{}, ComposerOptions{}, testLogger())

	req := detailedRequest(3)
	req.ReportType = ReportTypeSummary
	draft, err := c.Compose(context.Background(), req, PersonaByKey(DefaultPersonaKey), smallContext())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if llm.callCount() != 1 {
		t.Fatalf("direct report must take exactly one completion call, got %d", llm.callCount())
	}
	if len(draft.Sections) != 1 || draft.Sections[0].Body != "summary body" {
		t.Fatalf("unexpected draft: %+v", draft)
	}
}

func TestComposeDirectEmptyContextStatesInsufficientSources(t *testing.T) {
	var captured string
	llm := &stubLLM{respond: func(prompt, system, model string) (string, error) {
		captured = prompt
		return "best effort report", nil
	}}
	c := NewComposer(llm, identityRanker{}, ComposerOptions{}, testLogger())

	req := detailedRequest(3)
	req.ReportType = ReportTypeSummary
	draft, err := c.Compose(context.Background(), req, PersonaByKey(DefaultPersonaKey), Context{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(draft.Sections) != 1 {
		t.Fatalf("expected one section, got %d", len(draft.Sections))
	}
	if !strings.Contains(captured, "insufficient sources") {
		t.Fatalf("empty context must instruct the model to state insufficient sources")
	}
}

func TestComposeDirectTransientFailureDegrades(t *testing.T) {
	llm := &stubLLM{respond: func(prompt, system, model string) (string, error) {
		return "", errors.New("rate limited")
	}}
	c := NewComposer(llm, identityRanker{}, ComposerOptions{}, testLogger())

	req := detailedRequest(3)
	req.ReportType = ReportTypeSummary
	draft, err := c.Compose(context.Background(), req, PersonaByKey(DefaultPersonaKey), smallContext())
	if err != nil {
		t.Fatalf("transient failure must not abort: %v", err)
	}
	if len(draft.Sections) != 1 || !strings.Contains(draft.Sections[0].Body, "could not be generated") {
		t.Fatalf("expected degraded draft, got %+v", draft)
	}
}

func TestComposeDirectTerminalFailureAborts(t *testing.T) {
	llm := &stubLLM{respond: func(prompt, system, model string) (string, error) {
		return "", terminalErr()
	}}
	c := NewComposer(llm, identityRanker{}, ComposerOptions{}, testLogger())

	req := detailedRequest(3)
	req.ReportType = ReportTypeSummary
	if _, err := c.Compose(context.Background(), req, PersonaByKey(DefaultPersonaKey), smallContext()); err == nil {
		t.Fatalf("terminal provider failure must abort the compose")
	}
}

func detailedScript(t *testing.T, subtopicsJSON string, body func(title string) (string, error)) func(string, string, string) (string, error) {
	t.Helper()
	return func(prompt, system, model string) (string, error) {
		switch {
		case strings.Contains(prompt, "Write a Markdown introduction"):
			return "intro text", nil
		case strings.Contains(prompt, "Construct at most"):
			return subtopicsJSON, nil
		case strings.Contains(prompt, "section of a detailed research report"):
			start := strings.Index(prompt, "Write the \"") + len("Write the \"")
			end := strings.Index(prompt[start:], "\"")
			return body(prompt[start : start+end])
		default:
			t.Fatalf("unexpected prompt: %s", prompt)
			return "", nil
		}
	}
}

func TestComposeDetailedSectionOrderFollowsTableOfContents(t *testing.T) {
	toc := `[
		{"title": "History", "scope": "how it started"},
		{"title": "Technology", "scope": "how it works"},
		{"title": "Outlook", "scope": "where it goes"}
	]`
	llm := &stubLLM{respond: detailedScript(t, toc, func(title string) (string, error) {
		// First section finishes last.
		if title == "History" {
			time.Sleep(50 * time.Millisecond)
		}
		return "body of " + title, nil
	})}
	c := NewComposer(llm, identityRanker{}, ComposerOptions{}, testLogger())

	draft, err := c.Compose(context.Background(), detailedRequest(5), PersonaByKey(DefaultPersonaKey), smallContext())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	headings := make([]string, 0, len(draft.Sections))
	for _, s := range draft.Sections {
		headings = append(headings, s.Heading)
	}
	want := []string{"Introduction", "History", "Technology", "Outlook", "Sources"}
	if len(headings) != len(want) {
		t.Fatalf("unexpected sections: %v", headings)
	}
	for i := range want {
		if headings[i] != want[i] {
			t.Fatalf("section order %v, want %v", headings, want)
		}
	}
	if draft.Sections[1].Body != "body of History" {
		t.Fatalf("slot mixup: %q", draft.Sections[1].Body)
	}
}

func TestComposeDetailedSubtopicCapAndOverlapCollapse(t *testing.T) {
	toc := `[
		{"title": "Battery Technology Advances", "scope": "a"},
		{"title": "battery technology advances", "scope": "duplicate"},
		{"title": "Charging Infrastructure", "scope": "b"},
		{"title": "Flight Certification", "scope": "c"},
		{"title": "Market Adoption", "scope": "d"}
	]`
	llm := &stubLLM{respond: detailedScript(t, toc, func(title string) (string, error) {
		return "body", nil
	})}
	c := NewComposer(llm, identityRanker{}, ComposerOptions{}, testLogger())

	draft, err := c.Compose(context.Background(), detailedRequest(3), PersonaByKey(DefaultPersonaKey), smallContext())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	// intro + at most 3 subtopics + sources
	bodies := 0
	for _, s := range draft.Sections {
		if s.Heading != "Introduction" && s.Heading != "Sources" {
			bodies++
			if strings.EqualFold(s.Heading, "battery technology advances") && s.Heading != "Battery Technology Advances" {
				t.Fatalf("duplicate subtopic survived collapse: %q", s.Heading)
			}
		}
	}
	if bodies != 3 {
		t.Fatalf("expected 3 subtopic sections, got %d", bodies)
	}
}

func TestComposeDetailedPlaceholderOnBodyFailure(t *testing.T) {
	toc := `[
		{"title": "Working", "scope": "a"},
		{"title": "Broken", "scope": "b"}
	]`
	llm := &stubLLM{respond: detailedScript(t, toc, func(title string) (string, error) {
		if title == "Broken" {
			return "", errors.New("rate limited")
		}
		return "body of " + title, nil
	})}
	c := NewComposer(llm, identityRanker{}, ComposerOptions{}, testLogger())

	draft, err := c.Compose(context.Background(), detailedRequest(3), PersonaByKey(DefaultPersonaKey), smallContext())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	var broken *Section
	for i := range draft.Sections {
		if draft.Sections[i].Heading == "Broken" {
			broken = &draft.Sections[i]
		}
	}
	if broken == nil {
		t.Fatalf("failed subtopic missing from draft: %+v", draft.Sections)
	}
	if !strings.Contains(broken.Body, "omitted") {
		t.Fatalf("expected placeholder body, got %q", broken.Body)
	}
}

func TestComposeDetailedTerminalBodyFailureAborts(t *testing.T) {
	toc := `[{"title": "Only", "scope": "a"}]`
	llm := &stubLLM{respond: detailedScript(t, toc, func(title string) (string, error) {
		return "", terminalErr()
	})}
	c := NewComposer(llm, identityRanker{}, ComposerOptions{}, testLogger())

	if _, err := c.Compose(context.Background(), detailedRequest(3), PersonaByKey(DefaultPersonaKey), smallContext()); err == nil {
		t.Fatalf("terminal provider failure must abort the compose")
	}
}

func TestComposeDetailedMalformedTocFallsBackToSingleSection(t *testing.T) {
	llm := &stubLLM{respond: detailedScript(t, "sure, here are the subtopics", func(title string) (string, error) {
		return "body of " + title, nil
	})}
	c := NewComposer(llm, identityRanker{}, ComposerOptions{}, testLogger())

	draft, err := c.Compose(context.Background(), detailedRequest(3), PersonaByKey(DefaultPersonaKey), smallContext())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	bodies := 0
	for _, s := range draft.Sections {
		if s.Heading != "Introduction" && s.Heading != "Sources" {
			bodies++
		}
	}
	if bodies != 1 {
		t.Fatalf("expected single fallback section, got %d", bodies)
	}
}

func TestComposeDetailedSourcesSectionListsReferencedURLs(t *testing.T) {
	toc := `[{"title": "Only", "scope": "a"}]`
	llm := &stubLLM{respond: detailedScript(t, toc, func(title string) (string, error) {
		return "body", nil
	})}
	c := NewComposer(llm, identityRanker{}, ComposerOptions{}, testLogger())

	rc := smallContext()
	draft, err := c.Compose(context.Background(), detailedRequest(3), PersonaByKey(DefaultPersonaKey), rc)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	last := draft.Sections[len(draft.Sections)-1]
	if last.Heading != "Sources" {
		t.Fatalf("expected trailing sources section, got %q", last.Heading)
	}
	for _, e := range rc.Excerpts {
		if !strings.Contains(last.Body, e.URL) {
			t.Fatalf("sources section missing %s:\n%s", e.URL, last.Body)
		}
	}
}
