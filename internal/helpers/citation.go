package helpers

import (
	"fmt"
	"net/url"
	"strings"
)

// Citation models metadata for a single referenced source.
type Citation struct {
	Index int
	Title string
	URL   string
}

// FormatCitation renders a single citation line:
// [n] Title (domain) <URL>
func FormatCitation(c Citation) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%d]", c.Index))

	if title := strings.TrimSpace(c.Title); title != "" {
		parts = append(parts, title)
	}
	if domain := extractDomain(c.URL); domain != "" {
		parts = append(parts, "("+domain+")")
	}
	if link := strings.TrimSpace(c.URL); link != "" {
		parts = append(parts, "<"+link+">")
	}
	return strings.Join(parts, " ")
}

// FormatCitations renders a collection of citations, one line each.
func FormatCitations(citations []Citation) []string {
	if len(citations) == 0 {
		return nil
	}
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		out = append(out, FormatCitation(c))
	}
	return out
}

func extractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return host
}
