package research

import (
	"fmt"
	"sort"
	"strings"
)

const noSourcesNote = "No source material could be retrieved for this topic. State clearly that " +
	"the report is based on general knowledge because insufficient sources were found, then " +
	"provide the best possible answer."

func personaSelectionPrompt(topic string) (system, user string) {
	keys := PersonaKeys()
	sort.Strings(keys)
	system = "You classify research topics against a fixed catalog of expert personas. " +
		"Respond ONLY with valid JSON: {\"persona\": \"<catalog_key>\"}. " +
		"The key MUST be one of: " + strings.Join(keys, ", ") + ". No other text."
	user = fmt.Sprintf("Research topic: %q", topic)
	return system, user
}

func subQueryPrompt(topic string, maxSubQueries int) (system, user string) {
	system = "You expand a research topic into distinct, non-overlapping web search queries " +
		"covering different facets of the topic. Respond ONLY with a JSON array of strings. No other text."
	user = fmt.Sprintf(
		"Write at most %d google search queries to research this topic: %q\n"+
			"Each query must target a different facet. Respond with a JSON array of strings only.",
		maxSubQueries, topic)
	return system, user
}

// reportInstructions maps each direct report type to its task framing.
// Closed dispatch: unknown types are rejected during validation, long
// before this table is consulted.
var reportInstructions = map[ReportType]string{
	ReportTypeSummary: "Write a concise summary report answering the topic. Synthesize the key " +
		"findings across sources into a coherent narrative.",
	ReportTypeResource: "Write a resource recommendation report: for each relevant source, explain " +
		"what it covers and why it is useful for researching the topic. Include the source URL with each entry.",
	ReportTypeOutline: "Write a detailed outline for a research report on the topic, as a Markdown " +
		"skeleton of headers and bullet points. Do not write the report itself.",
	ReportTypeCustom: "Write a research report on the topic, structured however best serves the " +
		"material. Use your judgement on depth and organisation.",
}

func directReportPrompt(topic string, rt ReportType, tone Tone, rc Context, totalWords int, reportFormat string) string {
	var b strings.Builder
	if rc.Empty() {
		b.WriteString(noSourcesNote)
		b.WriteString("\n\n")
	} else {
		b.WriteString("Information sources:\n\"\"\"\n")
		b.WriteString(rc.Serialize())
		b.WriteString("\n\"\"\"\n\n")
	}
	fmt.Fprintf(&b, "Using the information above, complete the following task for the topic: %q.\n\n", topic)
	b.WriteString(reportInstructions[rt])
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Requirements:\n"+
		"- Write in a %s tone.\n"+
		"- Aim for roughly %d words.\n"+
		"- Format the report in Markdown following %s citation conventions.\n"+
		"- Ground every claim in the numbered sources where possible, citing them as [n].\n"+
		"- Do not fabricate sources.",
		tone, totalWords, reportFormat)
	return b.String()
}

func introPrompt(topic string, tone Tone, rc Context) string {
	var b strings.Builder
	if rc.Empty() {
		b.WriteString(noSourcesNote)
		b.WriteString("\n\n")
	} else {
		b.WriteString("Information sources:\n\"\"\"\n")
		b.WriteString(rc.Serialize())
		b.WriteString("\n\"\"\"\n\n")
	}
	fmt.Fprintf(&b,
		"Write a Markdown introduction for a detailed research report on the topic %q. "+
			"Use a %s tone. Summarise what the report will cover without going into detail. "+
			"Do not include a table of contents or headers.", topic, tone)
	return b.String()
}

func subtopicsPrompt(topic string, maxSubtopics int, rc Context) (system, user string) {
	system = "You construct the table of contents for a detailed research report. " +
		"Respond ONLY with a JSON array of objects of the form " +
		"{\"title\": \"...\", \"scope\": \"...\"}. No other text."
	var b strings.Builder
	if !rc.Empty() {
		b.WriteString("Research findings:\n\"\"\"\n")
		b.WriteString(rc.Serialize())
		b.WriteString("\n\"\"\"\n\n")
	}
	fmt.Fprintf(&b,
		"Construct at most %d distinct subtopics for a detailed report on the topic %q. "+
			"Subtopics must not overlap; each scope describes what its section will cover. "+
			"Order them as they should appear in the report.", maxSubtopics, topic)
	return system, b.String()
}

func subtopicBodyPrompt(topic string, st Subtopic, tone Tone, slice Context, totalWords int, reportFormat string) string {
	var b strings.Builder
	if slice.Empty() {
		b.WriteString(noSourcesNote)
		b.WriteString("\n\n")
	} else {
		b.WriteString("Information sources:\n\"\"\"\n")
		b.WriteString(slice.Serialize())
		b.WriteString("\n\"\"\"\n\n")
	}
	fmt.Fprintf(&b,
		"Write the %q section of a detailed research report on the topic %q.\n"+
			"Section scope: %s\n\n"+
			"Requirements:\n"+
			"- Write in a %s tone.\n"+
			"- Aim for roughly %d words for this section.\n"+
			"- Format in Markdown following %s citation conventions, citing sources as [n].\n"+
			"- Cover only this section's scope; other sections are written separately.\n"+
			"- Do not write an introduction or conclusion, and do not repeat the section title.",
		st.Title, topic, st.Scope, tone, totalWords, reportFormat)
	return b.String()
}
