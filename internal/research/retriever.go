package research

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/literesearch/internal/helpers"
	fetchmodels "github.com/mohammad-safakhou/literesearch/tools/web_fetch/models"
)

const (
	fetchConcurrency    = 5
	defaultFetchRetries = 3
	defaultFetchBackoff = 500 * time.Millisecond
)

// Retriever turns one sub-query into a bounded, ordered set of relevant
// source excerpts: search, fetch candidates concurrently, rank by
// embedding similarity, keep the top slice. It never returns an error;
// a sub-query contributing nothing must not abort the aggregate.
type Retriever struct {
	searcher Searcher
	fetcher  Fetcher
	ranker   *Ranker
	logger   *log.Logger

	topK                int
	minContentLength    int
	excerptMaxChars     int
	similarityThreshold float64
	fetchRetries        int
	fetchBackoff        time.Duration
}

type RetrieverOptions struct {
	TopK                int
	MinContentLength    int
	ExcerptMaxChars     int
	SimilarityThreshold float64
	FetchRetries        int
	FetchBackoff        time.Duration
}

func NewRetriever(searcher Searcher, fetcher Fetcher, ranker *Ranker, opts RetrieverOptions, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVER] ", log.LstdFlags)
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.FetchRetries <= 0 {
		opts.FetchRetries = defaultFetchRetries
	}
	if opts.FetchBackoff <= 0 {
		opts.FetchBackoff = defaultFetchBackoff
	}
	return &Retriever{
		searcher:            searcher,
		fetcher:             fetcher,
		ranker:              ranker,
		logger:              logger,
		topK:                opts.TopK,
		minContentLength:    opts.MinContentLength,
		excerptMaxChars:     opts.ExcerptMaxChars,
		similarityThreshold: opts.SimilarityThreshold,
		fetchRetries:        opts.FetchRetries,
		fetchBackoff:        opts.FetchBackoff,
	}
}

type candidate struct {
	url   string
	title string
	text  string
}

// Retrieve executes the search-fetch-rank chain for one sub-query.
// Every failure degrades: search errors, fetch errors and too-short
// pages drop candidates, ranking errors fall back to search order.
func (r *Retriever) Retrieve(ctx context.Context, sq SubQuery, maxResults int) []SourceExcerpt {
	results, err := r.searcher.Discover(ctx, sq.Text, maxResults)
	if err != nil {
		r.logger.Printf("search failed for %q: %v", sq.Text, err)
		return nil
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	if len(results) == 0 {
		return nil
	}

	// Slot array indexed by search-result position so provider ordering
	// survives concurrent fetching.
	slots := make([]*candidate, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, res := range results {
		i, res := i, res
		g.Go(func() error {
			page, err := r.fetchWithRetry(gctx, res.URL)
			if err != nil {
				r.logger.Printf("fetch dropped %s: %v", res.URL, err)
				return nil
			}
			text := strings.TrimSpace(page.Text)
			if len(text) < r.minContentLength {
				r.logger.Printf("fetch dropped %s: content too short (%d chars)", res.URL, len(text))
				return nil
			}
			title := helpers.SanitizeHTMLStrict(page.Title)
			if title == "" {
				title = helpers.SanitizeHTMLStrict(res.Title)
			}
			slots[i] = &candidate{url: res.URL, title: title, text: text}
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]candidate, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	return r.compress(ctx, sq, candidates)
}

// fetchWithRetry retries transient fetch failures with exponential
// backoff, mirroring the completion client. Exhaustion degrades to
// dropping the URL at the call site.
func (r *Retriever) fetchWithRetry(ctx context.Context, url string) (fetchmodels.Result, error) {
	var lastErr error
	for attempt := 0; attempt < r.fetchRetries; attempt++ {
		if attempt > 0 {
			delay := r.fetchBackoff * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return fetchmodels.Result{}, ctx.Err()
			case <-time.After(delay):
			}
		}
		page, err := r.fetcher.Exec(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return fetchmodels.Result{}, lastErr
}

// compress keeps the topK candidates most similar to the sub-query and
// emits them as bounded excerpts.
func (r *Retriever) compress(ctx context.Context, sq SubQuery, candidates []candidate) []SourceExcerpt {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.text
	}

	ranked, err := r.ranker.Rank(ctx, sq.Text, texts)
	scored := true
	if err != nil {
		r.logger.Printf("ranking failed for %q, keeping search order: %v", sq.Text, err)
		scored = false
		ranked = make([]RankedCandidate, len(candidates))
		for i := range candidates {
			ranked[i] = RankedCandidate{Index: i}
		}
	}

	out := make([]SourceExcerpt, 0, r.topK)
	for _, rc := range ranked {
		if len(out) == r.topK {
			break
		}
		// The floor applies to every real score, including negative
		// ones; only the unranked fallback above is exempt.
		if scored && r.similarityThreshold > 0 && rc.Score < r.similarityThreshold {
			continue
		}
		c := candidates[rc.Index]
		text := clipText(c.text, r.excerptMaxChars)
		out = append(out, SourceExcerpt{
			URL:      c.url,
			Title:    c.title,
			Text:     text,
			Score:    rc.Score,
			SubQuery: sq.Position,
		})
	}
	return out
}

// clipText truncates s to at most max bytes without splitting a rune.
func clipText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
