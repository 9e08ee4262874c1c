package provider

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/literesearch/config"
	openai_provider "github.com/mohammad-safakhou/literesearch/provider/openai"
)

// ModelInfo describes a configured completion model.
type ModelInfo struct {
	Name            string
	APIName         string
	MaxTokens       int
	Temperature     float64
	CostPer1KInput  float64
	CostPer1KOutput float64
}

// TokenUsage reports token consumption for a single completion call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
}

// LLMProvider is the capability boundary for language model completion
// and embedding. Model arguments are keys into the configured model
// table (the values of llm.routing.*), not raw API model names.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, systemPrompt string, model string) (string, error)
	GenerateWithTokens(ctx context.Context, prompt string, systemPrompt string, model string) (string, TokenUsage, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	CalculateCost(promptTokens, completionTokens int, model string) float64
	GetModelInfo(model string) (ModelInfo, error)
}

// IsTerminal reports whether err is a provider failure that retrying
// cannot fix (invalid credentials, malformed request).
func IsTerminal(err error) bool {
	var apiErr *openai_provider.APIError
	return errors.As(err, &apiErr) && apiErr.Terminal
}

// NewLLMProvider creates a provider from configuration.
func NewLLMProvider(cfg config.LLMConfig, logger *log.Logger) (LLMProvider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key is not set")
		}
		return &routedProvider{cfg: cfg, client: openai_provider.NewClient(cfg, logger)}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

// routedProvider resolves routing keys against the configured model table
// before delegating to the OpenAI client.
type routedProvider struct {
	cfg    config.LLMConfig
	client *openai_provider.Client
}

func (p *routedProvider) resolve(key string) (config.LLMModel, error) {
	m, err := p.cfg.ModelFor(key)
	if err != nil {
		return config.LLMModel{}, err
	}
	return m, nil
}

func (p *routedProvider) Generate(ctx context.Context, prompt, systemPrompt, model string) (string, error) {
	text, _, err := p.GenerateWithTokens(ctx, prompt, systemPrompt, model)
	return text, err
}

func (p *routedProvider) GenerateWithTokens(ctx context.Context, prompt, systemPrompt, model string) (string, TokenUsage, error) {
	m, err := p.resolve(model)
	if err != nil {
		return "", TokenUsage{}, err
	}
	text, usage, err := p.client.Complete(ctx, prompt, systemPrompt, m)
	if err != nil {
		return "", TokenUsage{}, err
	}
	tu := TokenUsage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
	tu.Cost = costOf(m, usage.PromptTokens, usage.CompletionTokens)
	return text, tu, nil
}

func (p *routedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.client.Embed(ctx, texts)
}

func (p *routedProvider) CalculateCost(promptTokens, completionTokens int, model string) float64 {
	m, err := p.resolve(model)
	if err != nil {
		return 0
	}
	return costOf(m, promptTokens, completionTokens)
}

func (p *routedProvider) GetModelInfo(model string) (ModelInfo, error) {
	m, err := p.resolve(model)
	if err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{
		Name:            m.Name,
		APIName:         m.APIName,
		MaxTokens:       m.MaxTokens,
		Temperature:     m.Temperature,
		CostPer1KInput:  m.CostPer1K,
		CostPer1KOutput: m.CostPer1KOutput,
	}, nil
}

func costOf(m config.LLMModel, promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*m.CostPer1K + float64(completionTokens)/1000*m.CostPer1KOutput
}
