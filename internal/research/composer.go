package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/literesearch/internal/helpers"
	"github.com/mohammad-safakhou/literesearch/provider"
)

// SubtopicRanker re-ranks context excerpts for one subtopic. Satisfied
// by *Ranker.
type SubtopicRanker interface {
	Rank(ctx context.Context, query string, candidates []string) ([]RankedCandidate, error)
}

// Composer turns an aggregated context into the final report draft.
// Direct report types take a single completion; the detailed type runs
// the multi-stage flow (intro, table of contents, concurrent subtopic
// bodies, assembly).
type Composer struct {
	llm    provider.LLMProvider
	ranker SubtopicRanker
	logger *log.Logger

	model           string
	totalWords      int
	reportFormat    string
	subtopicTopK    int
	placeholderText string
}

type ComposerOptions struct {
	Model        string
	TotalWords   int
	ReportFormat string
	SubtopicTopK int
}

func NewComposer(llm provider.LLMProvider, ranker SubtopicRanker, opts ComposerOptions, logger *log.Logger) *Composer {
	if logger == nil {
		logger = log.New(log.Writer(), "[COMPOSER] ", log.LstdFlags)
	}
	if opts.TotalWords <= 0 {
		opts.TotalWords = 1000
	}
	if opts.ReportFormat == "" {
		opts.ReportFormat = "APA"
	}
	if opts.SubtopicTopK <= 0 {
		opts.SubtopicTopK = 5
	}
	return &Composer{
		llm:             llm,
		ranker:          ranker,
		logger:          logger,
		model:           opts.Model,
		totalWords:      opts.TotalWords,
		reportFormat:    opts.ReportFormat,
		subtopicTopK:    opts.SubtopicTopK,
		placeholderText: "This section could not be generated from the available sources and was omitted.",
	}
}

// Compose builds the report draft for the request. Only terminal
// provider failures abort; everything else degrades to placeholders or
// a best-effort draft.
func (c *Composer) Compose(ctx context.Context, req Request, agent AgentProfile, rc Context) (ReportDraft, error) {
	if req.ReportType == ReportTypeDetailed {
		return c.composeDetailed(ctx, req, agent, rc)
	}
	return c.composeDirect(ctx, req, agent, rc)
}

func (c *Composer) composeDirect(ctx context.Context, req Request, agent AgentProfile, rc Context) (ReportDraft, error) {
	prompt := directReportPrompt(req.Topic, req.ReportType, req.Tone, rc, c.totalWords, c.reportFormat)
	body, err := c.llm.Generate(ctx, prompt, agent.RolePrompt, c.model)
	if err != nil {
		if provider.IsTerminal(err) {
			return ReportDraft{}, fmt.Errorf("generating %s report: %w", req.ReportType, err)
		}
		c.logger.Printf("%s report generation failed, emitting degraded draft: %v", req.ReportType, err)
		return ReportDraft{Sections: []Section{{Body: c.degradedBody(req.Topic, rc)}}}, nil
	}
	return ReportDraft{Sections: []Section{{Body: body}}}, nil
}

// degradedBody is the last-resort draft when completion retries are
// exhausted: the run still yields the collected sources instead of an
// error.
func (c *Composer) degradedBody(topic string, rc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The report for %q could not be generated because the language model was unavailable.", topic)
	if !rc.Empty() {
		b.WriteString(" The following sources were collected and may be consulted directly:\n")
		citations := make([]helpers.Citation, 0, len(rc.Excerpts))
		for i, e := range rc.Excerpts {
			citations = append(citations, helpers.Citation{Index: i + 1, Title: e.Title, URL: e.URL})
		}
		b.WriteString(strings.Join(helpers.FormatCitations(citations), "\n"))
	}
	return b.String()
}

func (c *Composer) composeDetailed(ctx context.Context, req Request, agent AgentProfile, rc Context) (ReportDraft, error) {
	intro, err := c.generateIntro(ctx, req, agent, rc)
	if err != nil {
		return ReportDraft{}, err
	}

	subtopics, err := c.generateSubtopics(ctx, req, agent, rc)
	if err != nil {
		return ReportDraft{}, err
	}

	sectionWords := c.totalWords / (len(subtopics) + 1)
	if sectionWords < 150 {
		sectionWords = 150
	}

	// Slot array indexed by table-of-contents position: bodies may
	// finish in any order, the draft may not.
	bodies := make([]Section, len(subtopics))
	usedURLs := make([][]string, len(subtopics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(subtopics))
	for i, st := range subtopics {
		i, st := i, st
		g.Go(func() error {
			slice := c.sliceForSubtopic(gctx, st, rc)
			body, err := c.llm.Generate(gctx, subtopicBodyPrompt(req.Topic, st, req.Tone, slice, sectionWords, c.reportFormat), agent.RolePrompt, c.model)
			if err != nil {
				if provider.IsTerminal(err) {
					return err
				}
				c.logger.Printf("subtopic %q failed, substituting placeholder: %v", st.Title, err)
				bodies[i] = Section{Heading: st.Title, Body: c.placeholderText}
				return nil
			}
			bodies[i] = Section{Heading: st.Title, Body: body}
			usedURLs[i] = slice.URLs()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReportDraft{}, fmt.Errorf("generating subtopic bodies: %w", err)
	}

	sections := make([]Section, 0, len(bodies)+2)
	sections = append(sections, Section{Heading: "Introduction", Body: intro})
	sections = append(sections, bodies...)
	if src := c.sourcesSection(rc, usedURLs); src != nil {
		sections = append(sections, *src)
	}
	return ReportDraft{Sections: sections}, nil
}

func (c *Composer) generateIntro(ctx context.Context, req Request, agent AgentProfile, rc Context) (string, error) {
	intro, err := c.llm.Generate(ctx, introPrompt(req.Topic, req.Tone, rc), agent.RolePrompt, c.model)
	if err != nil {
		if provider.IsTerminal(err) {
			return "", fmt.Errorf("generating introduction: %w", err)
		}
		c.logger.Printf("introduction failed, substituting placeholder: %v", err)
		return fmt.Sprintf("This report examines %s.", req.Topic), nil
	}
	return intro, nil
}

// generateSubtopics builds the table of contents: an LLM call returning
// a JSON array, collapsed for near-duplicate titles and capped at
// MaxSubtopics. Degrades to a single topic-wide subtopic on failure.
func (c *Composer) generateSubtopics(ctx context.Context, req Request, agent AgentProfile, rc Context) ([]Subtopic, error) {
	fallback := []Subtopic{{Position: 0, Title: req.Topic, Scope: "All findings on the topic."}}

	system, user := subtopicsPrompt(req.Topic, req.MaxSubtopics, rc)
	out, err := c.llm.Generate(ctx, user, agent.RolePrompt+"\n\n"+system, c.model)
	if err != nil {
		if provider.IsTerminal(err) {
			return nil, fmt.Errorf("constructing subtopics: %w", err)
		}
		c.logger.Printf("subtopic construction failed, using single section: %v", err)
		return fallback, nil
	}

	var raw []struct {
		Title string `json:"title"`
		Scope string `json:"scope"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSONArray(out)), &raw); err != nil {
		c.logger.Printf("subtopic construction returned malformed output, using single section")
		return fallback, nil
	}

	subtopics := make([]Subtopic, 0, req.MaxSubtopics)
	for _, r := range raw {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			continue
		}
		if overlapsExisting(title, subtopics) {
			continue
		}
		subtopics = append(subtopics, Subtopic{Position: len(subtopics), Title: title, Scope: strings.TrimSpace(r.Scope)})
		if len(subtopics) == req.MaxSubtopics {
			break
		}
	}
	if len(subtopics) == 0 {
		return fallback, nil
	}
	return subtopics, nil
}

// overlapsExisting collapses near-duplicate subtopics by normalised
// title token overlap.
func overlapsExisting(title string, existing []Subtopic) bool {
	a := titleTokens(title)
	for _, st := range existing {
		b := titleTokens(st.Title)
		common := 0
		for tok := range a {
			if _, ok := b[tok]; ok {
				common++
			}
		}
		smaller := len(a)
		if len(b) < smaller {
			smaller = len(b)
		}
		if smaller > 0 && float64(common)/float64(smaller) >= 0.8 {
			return true
		}
	}
	return false
}

func titleTokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,:;!?()[]\"'")
		if len(tok) > 2 {
			out[tok] = struct{}{}
		}
	}
	return out
}

// sliceForSubtopic re-ranks the context against the subtopic and keeps
// the most relevant excerpts. Ranking failure degrades to the context
// head, which is already ordered by relevance to the overall topic.
func (c *Composer) sliceForSubtopic(ctx context.Context, st Subtopic, rc Context) Context {
	if rc.Empty() {
		return rc
	}
	if len(rc.Excerpts) <= c.subtopicTopK {
		return rc
	}

	texts := make([]string, len(rc.Excerpts))
	for i, e := range rc.Excerpts {
		texts[i] = e.Text
	}
	query := st.Title
	if st.Scope != "" {
		query += ": " + st.Scope
	}
	ranked, err := c.ranker.Rank(ctx, query, texts)
	if err != nil {
		c.logger.Printf("re-ranking for subtopic %q failed, using context head: %v", st.Title, err)
		return Context{Excerpts: rc.Excerpts[:c.subtopicTopK]}
	}

	picked := ranked[:c.subtopicTopK]
	sort.Slice(picked, func(a, b int) bool { return picked[a].Index < picked[b].Index })
	excerpts := make([]SourceExcerpt, 0, len(picked))
	for _, p := range picked {
		excerpts = append(excerpts, rc.Excerpts[p.Index])
	}
	return Context{Excerpts: excerpts}
}

// sourcesSection lists every context URL that grounded at least one
// generated section, in context order.
func (c *Composer) sourcesSection(rc Context, usedURLs [][]string) *Section {
	used := make(map[string]struct{})
	for _, urls := range usedURLs {
		for _, u := range urls {
			used[u] = struct{}{}
		}
	}
	if len(used) == 0 {
		return nil
	}

	citations := make([]helpers.Citation, 0, len(used))
	for _, e := range rc.Excerpts {
		if _, ok := used[e.URL]; !ok {
			continue
		}
		delete(used, e.URL)
		citations = append(citations, helpers.Citation{Index: len(citations) + 1, Title: e.Title, URL: e.URL})
	}
	return &Section{Heading: "Sources", Body: strings.Join(helpers.FormatCitations(citations), "\n")}
}
