package chromedp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
	"github.com/mohammad-safakhou/literesearch/tools/web_fetch/models"
)

// Fetch renders pages in a headless browser before extraction, for
// sites that build their content with JavaScript.
type Fetch struct {
	Timeout   time.Duration
	MaxChars  int
	UserAgent string
}

func (f *Fetch) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Result{}, errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	t0 := time.Now()

	html, err := f.fetchHTML(ctx, rawURL)
	if err != nil {
		return models.Result{}, fmt.Errorf("rendering %s: %w", rawURL, err)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
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
		Status:   200,
		RenderMS: int(time.Since(t0) / time.Millisecond),
	}, nil
}

func (f *Fetch) fetchHTML(ctx context.Context, rawURL string) (string, error) {
	ua := f.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; literesearch/1.0)"
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(ua),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
