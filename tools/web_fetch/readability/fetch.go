package readability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/mohammad-safakhou/literesearch/tools/web_fetch/models"
)

// Fetch retrieves pages over plain HTTP and extracts the readable
// article text. Suitable for static pages; JS-heavy sites need the
// chromedp fetcher.
type Fetch struct {
	Timeout   time.Duration
	MaxChars  int
	UserAgent string
	Client    *http.Client
}

func (f *Fetch) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Result{}, errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	t0 := time.Now()

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return models.Result{}, fmt.Errorf("creating request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Result{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Result{}, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return models.Result{}, fmt.Errorf("extracting %s: %w", rawURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > f.MaxChars {
		cut := f.MaxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	return models.Result{
		URL:      rawURL,
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		Text:     text,
		Status:   resp.StatusCode,
		RenderMS: int(time.Since(t0) / time.Millisecond),
	}, nil
}
