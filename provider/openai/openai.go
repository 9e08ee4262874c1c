package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/literesearch/config"
)

const defaultBaseURL = "https://api.openai.com/v1"

// APIError is a classified failure from the OpenAI API. Terminal errors
// (invalid key, forbidden, malformed request) must not be retried.
type APIError struct {
	StatusCode int
	Terminal   bool
	Body       string
}

func (e *APIError) Error() string {
	kind := "retryable"
	if e.Terminal {
		kind = "terminal"
	}
	return fmt.Sprintf("openai: %s error, status %d: %s", kind, e.StatusCode, e.Body)
}

// Usage reports token consumption as returned by the API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client is a thin HTTP client for the chat completions and embeddings
// endpoints with bounded retry and exponential backoff.
type Client struct {
	apiKey         string
	baseURL        string
	embeddingModel string
	maxRetries     int
	backoff        time.Duration
	httpClient     *http.Client
	logger         *log.Logger
}

// NewClient creates an OpenAI client from LLM configuration.
func NewClient(cfg config.LLMConfig, logger *log.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        baseURL,
		embeddingModel: cfg.Routing.Embedding,
		maxRetries:     retries,
		backoff:        backoff,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         logger,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends one chat completion request for the given model.
func (c *Client) Complete(ctx context.Context, prompt, systemPrompt string, model config.LLMModel) (string, Usage, error) {
	messages := make([]message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, message{Role: "user", Content: prompt})

	body := map[string]interface{}{
		"model":       model.APIName,
		"messages":    messages,
		"temperature": model.Temperature,
	}
	if model.MaxTokens > 0 {
		body["max_tokens"] = model.MaxTokens
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := c.doJSON(ctx, "/chat/completions", body, &resp); err != nil {
		return "", Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("openai: no choices in completion response")
	}
	return resp.Choices[0].Message.Content, resp.Usage, nil
}

// Embed returns one embedding vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body := map[string]interface{}{
		"model": c.embeddingModel,
		"input": texts,
	}
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, "/embeddings", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vecs := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// doJSON posts a JSON body and decodes the JSON response, retrying
// retryable failures with exponential backoff.
func (c *Client) doJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff * (1 << (attempt - 1))
			c.logger.Printf("retrying %s after %s (attempt %d/%d): %v", path, delay, attempt+1, c.maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = c.once(ctx, path, jsonData, out)
		if lastErr == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && apiErr.Terminal {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, path string, jsonData []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Terminal:   isTerminalStatus(resp.StatusCode),
			Body:       strings.TrimSpace(string(data)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// isTerminalStatus classifies HTTP statuses: auth and malformed-request
// failures are terminal, throttling and server errors are retryable.
func isTerminalStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
