package web_search

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/literesearch/config"
	"github.com/mohammad-safakhou/literesearch/tools/web_search/brave"
	"github.com/mohammad-safakhou/literesearch/tools/web_search/models"
	"github.com/mohammad-safakhou/literesearch/tools/web_search/serper"
)

const DefaultTimeout = 15 * time.Second

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

func NewWebSearcher(cfg config.SearchConfig) (WebSearcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	switch Provider(cfg.Provider) {
	case SerperProvider:
		if cfg.SerperAPIKey == "" {
			return nil, errors.New("search.serper_api_key is not set")
		}
		return serper.Search{ApiKey: cfg.SerperAPIKey, Client: client}, nil
	case BraveProvider:
		if cfg.BraveAPIKey == "" {
			return nil, errors.New("search.brave_api_key is not set")
		}
		return brave.Search{ApiKey: cfg.BraveAPIKey, Client: client}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
