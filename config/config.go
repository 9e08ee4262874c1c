package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research engine
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Research  ResearchConfig  `mapstructure:"research"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains LLM provider configuration
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"` // openai
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	Routing    LLMRoutingConfig    `mapstructure:"routing"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Backoff    time.Duration       `mapstructure:"backoff"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for each pipeline stage
type LLMRoutingConfig struct {
	Planning  string `mapstructure:"planning"`  // persona selection + sub-query expansion
	Writing   string `mapstructure:"writing"`   // report and section generation
	Embedding string `mapstructure:"embedding"` // embedding model API name
	Fallback  string `mapstructure:"fallback"`
}

func (l LLMConfig) Validate() error {
	if l.Provider != "openai" {
		return fmt.Errorf("llm.provider must be openai, got %q", l.Provider)
	}
	if len(l.Models) == 0 {
		return fmt.Errorf("llm.models must declare at least one model")
	}
	for _, key := range []string{l.Routing.Planning, l.Routing.Writing, l.Routing.Fallback} {
		if key == "" {
			continue
		}
		if _, ok := l.Models[key]; !ok {
			return fmt.Errorf("llm.routing references unknown model %q", key)
		}
	}
	if strings.TrimSpace(l.Routing.Embedding) == "" {
		return fmt.Errorf("llm.routing.embedding is required")
	}
	return nil
}

// ModelFor resolves a routing key to its model config, falling back to
// llm.routing.fallback when the key is unset.
func (l LLMConfig) ModelFor(key string) (LLMModel, error) {
	if key == "" {
		key = l.Routing.Fallback
	}
	m, ok := l.Models[key]
	if !ok {
		return LLMModel{}, fmt.Errorf("no model configured for routing key %q", key)
	}
	return m, nil
}

// SearchConfig contains web search provider settings
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper or brave
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "serper", "brave":
		return nil
	default:
		return fmt.Errorf("search.provider must be serper or brave, got %q", s.Provider)
	}
}

// FetchConfig contains page fetch and extraction settings
type FetchConfig struct {
	Fetcher          string        `mapstructure:"fetcher"` // readability or chromedp
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxChars         int           `mapstructure:"max_chars"`
	MinContentLength int           `mapstructure:"min_content_length"`
	UserAgent        string        `mapstructure:"user_agent"`
}

func (f FetchConfig) Validate() error {
	switch f.Fetcher {
	case "readability", "chromedp":
		return nil
	default:
		return fmt.Errorf("fetch.fetcher must be readability or chromedp, got %q", f.Fetcher)
	}
}

// EmbeddingConfig contains embedding batching settings
type EmbeddingConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// ResearchConfig contains pipeline caps and budgets
type ResearchConfig struct {
	MaxSubQueries       int           `mapstructure:"max_subqueries"`
	MaxSubtopics        int           `mapstructure:"max_subtopics"`
	MaxResultsPerQuery  int           `mapstructure:"max_results_per_query"`
	CompressionTopK     int           `mapstructure:"compression_top_k"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	ExcerptMaxChars     int           `mapstructure:"excerpt_max_chars"`
	ContextCharBudget   int           `mapstructure:"context_char_budget"`
	SubQueryTimeout     time.Duration `mapstructure:"subquery_timeout"`
	MaxConcurrentRuns   int           `mapstructure:"max_concurrent_runs"`
	TotalWords          int           `mapstructure:"total_words"`
	ReportFormat        string        `mapstructure:"report_format"`
}

func (r ResearchConfig) Validate() error {
	if r.MaxSubQueries < 1 || r.MaxSubQueries > 10 {
		return fmt.Errorf("research.max_subqueries must be within 1..10, got %d", r.MaxSubQueries)
	}
	if r.MaxSubtopics < 1 || r.MaxSubtopics > 10 {
		return fmt.Errorf("research.max_subtopics must be within 1..10, got %d", r.MaxSubtopics)
	}
	if r.MaxResultsPerQuery < 1 || r.MaxResultsPerQuery > 20 {
		return fmt.Errorf("research.max_results_per_query must be within 1..20, got %d", r.MaxResultsPerQuery)
	}
	if r.CompressionTopK <= 0 {
		return fmt.Errorf("research.compression_top_k must be positive, got %d", r.CompressionTopK)
	}
	if r.ContextCharBudget <= 0 {
		return fmt.Errorf("research.context_char_budget must be positive, got %d", r.ContextCharBudget)
	}
	if r.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("research.max_concurrent_runs must be positive, got %d", r.MaxConcurrentRuns)
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	TraceSinkURL string `mapstructure:"trace_sink_url"`
}

// Validate runs every per-section validator
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Fetch.Validate(); err != nil {
		return err
	}
	return c.Research.Validate()
}

// LoadConfig reads configuration from a JSON file plus environment
// overrides. Env vars use the LITERESEARCH_ prefix with underscores,
// e.g. LITERESEARCH_LLM_API_KEY overrides llm.api_key.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("LITERESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// defaults plus env only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.max_processing_time", "10m")
	v.SetDefault("general.default_timeout", "30s")

	v.SetDefault("server.address", ":10011")

	v.SetDefault("llm.provider", "openai")
	// Keys must carry a default for AutomaticEnv to surface them
	// during Unmarshal.
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.backoff", "2s")
	v.SetDefault("llm.timeout", "90s")
	v.SetDefault("llm.models.fast.name", "gpt-4o-mini")
	v.SetDefault("llm.models.fast.api_name", "gpt-4o-mini")
	v.SetDefault("llm.models.fast.max_tokens", 2000)
	v.SetDefault("llm.models.fast.temperature", 0.4)
	v.SetDefault("llm.models.fast.cost_per_1k_input", 0.00015)
	v.SetDefault("llm.models.fast.cost_per_1k_output", 0.0006)
	v.SetDefault("llm.models.smart.name", "gpt-4o")
	v.SetDefault("llm.models.smart.api_name", "gpt-4o")
	v.SetDefault("llm.models.smart.max_tokens", 4000)
	v.SetDefault("llm.models.smart.temperature", 0.4)
	v.SetDefault("llm.models.smart.cost_per_1k_input", 0.0025)
	v.SetDefault("llm.models.smart.cost_per_1k_output", 0.01)
	v.SetDefault("llm.routing.planning", "fast")
	v.SetDefault("llm.routing.writing", "smart")
	v.SetDefault("llm.routing.fallback", "fast")
	v.SetDefault("llm.routing.embedding", "text-embedding-3-small")

	v.SetDefault("search.provider", "serper")
	v.SetDefault("search.serper_api_key", "")
	v.SetDefault("search.brave_api_key", "")
	v.SetDefault("search.timeout", "15s")

	v.SetDefault("fetch.fetcher", "readability")
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.max_chars", 20000)
	v.SetDefault("fetch.min_content_length", 100)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; literesearch/1.0)")

	v.SetDefault("embedding.batch_size", 64)

	v.SetDefault("research.max_subqueries", 3)
	v.SetDefault("research.max_subtopics", 3)
	v.SetDefault("research.max_results_per_query", 5)
	v.SetDefault("research.compression_top_k", 5)
	v.SetDefault("research.similarity_threshold", 0.38)
	v.SetDefault("research.excerpt_max_chars", 4000)
	v.SetDefault("research.context_char_budget", 40000)
	v.SetDefault("research.subquery_timeout", "60s")
	v.SetDefault("research.max_concurrent_runs", 4)
	v.SetDefault("research.total_words", 1000)
	v.SetDefault("research.report_format", "APA")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.cost_tracking", true)
	v.SetDefault("telemetry.trace_sink_url", "")
}
