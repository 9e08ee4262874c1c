package research

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/literesearch/provider"
	openai_provider "github.com/mohammad-safakhou/literesearch/provider/openai"
	fetchmodels "github.com/mohammad-safakhou/literesearch/tools/web_fetch/models"
	searchmodels "github.com/mohammad-safakhou/literesearch/tools/web_search/models"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func terminalErr() error {
	return &openai_provider.APIError{StatusCode: 401, Terminal: true, Body: "invalid api key"}
}

// stubLLM scripts completions by matching a substring of the prompt.
type stubLLM struct {
	mu      sync.Mutex
	calls   []string
	respond func(prompt, system, model string) (string, error)
}

func (s *stubLLM) Generate(ctx context.Context, prompt, system, model string) (string, error) {
	text, _, err := s.GenerateWithTokens(ctx, prompt, system, model)
	return text, err
}

func (s *stubLLM) GenerateWithTokens(ctx context.Context, prompt, system, model string) (string, provider.TokenUsage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, prompt)
	s.mu.Unlock()
	if s.respond == nil {
		return "", provider.TokenUsage{}, errors.New("no script")
	}
	text, err := s.respond(prompt, system, model)
	return text, provider.TokenUsage{}, err
}

func (s *stubLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("stubLLM does not embed")
}

func (s *stubLLM) CalculateCost(promptTokens, completionTokens int, model string) float64 { return 0 }

func (s *stubLLM) GetModelInfo(model string) (provider.ModelInfo, error) {
	return provider.ModelInfo{}, nil
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// stubEmbedder returns fixed vectors per text, by substring match.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := []float32{1, 0, 0}
		for key, v := range s.vectors {
			if strings.Contains(t, key) {
				vec = v
				break
			}
		}
		out[i] = vec
	}
	return out, nil
}

type stubSearcher struct {
	results map[string][]searchmodels.Result
	err     error
}

func (s *stubSearcher) Discover(ctx context.Context, q string, k int) ([]searchmodels.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	res := s.results[q]
	if len(res) > k {
		res = res[:k]
	}
	return res, nil
}

// stubFetcher serves canned pages; failures[url] transient errors are
// served before the page succeeds.
type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]int
	attempts map[string]int
}

func (s *stubFetcher) Exec(ctx context.Context, url string) (fetchmodels.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts == nil {
		s.attempts = make(map[string]int)
	}
	s.attempts[url]++
	if s.failures[url] > 0 {
		s.failures[url]--
		return fetchmodels.Result{}, errors.New("fetch failed")
	}
	text, ok := s.pages[url]
	if !ok {
		return fetchmodels.Result{}, errors.New("fetch failed")
	}
	return fetchmodels.Result{URL: url, Title: "Page " + url, Text: text, Status: 200}, nil
}

func (s *stubFetcher) attemptCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[url]
}

// stubRetriever serves canned excerpts per sub-query position.
type stubRetriever struct {
	byPosition map[int][]SourceExcerpt
	block      map[int]struct{} // positions that wait for ctx cancellation
}

func (s *stubRetriever) Retrieve(ctx context.Context, sq SubQuery, maxResults int) []SourceExcerpt {
	if _, blocked := s.block[sq.Position]; blocked {
		<-ctx.Done()
		return nil
	}
	return s.byPosition[sq.Position]
}
