package research

import (
	"fmt"
	"strings"
)

// ReportType selects the composition strategy for the final report.
type ReportType string

const (
	ReportTypeSummary  ReportType = "summary"
	ReportTypeResource ReportType = "resource_report"
	ReportTypeOutline  ReportType = "outline_report"
	ReportTypeCustom   ReportType = "custom_report"
	ReportTypeDetailed ReportType = "detailed_report"
)

var reportTypes = map[ReportType]struct{}{
	ReportTypeSummary:  {},
	ReportTypeResource: {},
	ReportTypeOutline:  {},
	ReportTypeCustom:   {},
	ReportTypeDetailed: {},
}

// ParseReportType validates a report type string.
func ParseReportType(s string) (ReportType, error) {
	rt := ReportType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := reportTypes[rt]; !ok {
		return "", NewConfigError("report_type", "unknown report type %q", s)
	}
	return rt, nil
}

// Tone frames the voice of the generated report.
type Tone string

const (
	ToneObjective   Tone = "objective"
	ToneFormal      Tone = "formal"
	ToneAnalytical  Tone = "analytical"
	TonePersuasive  Tone = "persuasive"
	ToneInformative Tone = "informative"
	ToneExplanatory Tone = "explanatory"
	ToneDescriptive Tone = "descriptive"
	ToneCritical    Tone = "critical"
	ToneComparative Tone = "comparative"
	ToneSpeculative Tone = "speculative"
	ToneReflective  Tone = "reflective"
	ToneNarrative   Tone = "narrative"
	ToneHumorous    Tone = "humorous"
	ToneOptimistic  Tone = "optimistic"
	TonePessimistic Tone = "pessimistic"
)

var tones = map[Tone]struct{}{
	ToneObjective: {}, ToneFormal: {}, ToneAnalytical: {}, TonePersuasive: {},
	ToneInformative: {}, ToneExplanatory: {}, ToneDescriptive: {}, ToneCritical: {},
	ToneComparative: {}, ToneSpeculative: {}, ToneReflective: {}, ToneNarrative: {},
	ToneHumorous: {}, ToneOptimistic: {}, TonePessimistic: {},
}

// ParseTone validates a tone string. Empty input defaults to objective.
func ParseTone(s string) (Tone, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ToneObjective, nil
	}
	t := Tone(s)
	if _, ok := tones[t]; !ok {
		return "", NewConfigError("tone", "unknown tone %q", s)
	}
	return t, nil
}

// Request describes one research run. Immutable once the pipeline starts.
type Request struct {
	Topic              string     `json:"topic"`
	ReportType         ReportType `json:"report_type"`
	Tone               Tone       `json:"tone"`
	MaxSubQueries      int        `json:"max_subqueries"`
	MaxSubtopics       int        `json:"max_subtopics"`
	MaxResultsPerQuery int        `json:"max_results_per_query"`
}

// Validate checks every field before any external call is made.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return NewConfigError("topic", "topic must not be empty")
	}
	if _, ok := reportTypes[r.ReportType]; !ok {
		return NewConfigError("report_type", "unknown report type %q", string(r.ReportType))
	}
	if _, ok := tones[r.Tone]; !ok {
		return NewConfigError("tone", "unknown tone %q", string(r.Tone))
	}
	if r.MaxSubQueries < 1 || r.MaxSubQueries > 10 {
		return NewConfigError("max_subqueries", "must be within 1..10, got %d", r.MaxSubQueries)
	}
	if r.MaxSubtopics < 1 || r.MaxSubtopics > 10 {
		return NewConfigError("max_subtopics", "must be within 1..10, got %d", r.MaxSubtopics)
	}
	if r.MaxResultsPerQuery < 1 || r.MaxResultsPerQuery > 20 {
		return NewConfigError("max_results_per_query", "must be within 1..20, got %d", r.MaxResultsPerQuery)
	}
	return nil
}

// AgentProfile is a named expert role whose system prompt frames the
// model's voice and focus for the whole run.
type AgentProfile struct {
	Key        string
	Name       string
	RolePrompt string
}

// SubQuery is one search query derived from the topic.
type SubQuery struct {
	Position int
	Text     string
}

// SourceExcerpt is a bounded span of text extracted from a fetched page,
// attributed to its source URL. Never mutated after creation.
type SourceExcerpt struct {
	URL      string
	Title    string
	Text     string
	Score    float64
	SubQuery int
}

// Context is the frozen, deduplicated excerpt sequence handed to the
// composer. Excerpts are unique by canonical URL and ordered by
// descending relevance.
type Context struct {
	Excerpts []SourceExcerpt
}

func (c Context) Empty() bool { return len(c.Excerpts) == 0 }

// TotalChars returns the combined excerpt text length.
func (c Context) TotalChars() int {
	n := 0
	for _, e := range c.Excerpts {
		n += len(e.Text)
	}
	return n
}

// URLs returns the excerpt source URLs in context order.
func (c Context) URLs() []string {
	out := make([]string, 0, len(c.Excerpts))
	for _, e := range c.Excerpts {
		out = append(out, e.URL)
	}
	return out
}

// Serialize renders the context as numbered source blocks for grounding
// prompts.
func (c Context) Serialize() string {
	if len(c.Excerpts) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range c.Excerpts {
		fmt.Fprintf(&b, "Source [%d]: %s (%s)\n%s\n\n", i+1, e.Title, e.URL, e.Text)
	}
	return strings.TrimSpace(b.String())
}

// Subtopic is one table-of-contents entry of a deep report.
type Subtopic struct {
	Position int
	Title    string
	Scope    string
}

// Section is a single report section.
type Section struct {
	Heading string
	Body    string
}

// ReportDraft is the final artifact: ordered sections assembled by
// concatenation, never mutated once returned.
type ReportDraft struct {
	Sections []Section
}

// Markdown renders the draft. Headings become H2; a draft with a single
// unheaded section renders as plain body text.
func (d ReportDraft) Markdown() string {
	var b strings.Builder
	for i, s := range d.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if s.Heading != "" {
			fmt.Fprintf(&b, "## %s\n\n", s.Heading)
		}
		b.WriteString(strings.TrimSpace(s.Body))
	}
	return strings.TrimSpace(b.String())
}
