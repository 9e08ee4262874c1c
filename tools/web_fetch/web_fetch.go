package web_fetch

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/literesearch/config"
	"github.com/mohammad-safakhou/literesearch/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/literesearch/tools/web_fetch/models"
	"github.com/mohammad-safakhou/literesearch/tools/web_fetch/readability"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	ReadabilityFetcherType FetcherType = "readability"
	ChromedpFetcherType    FetcherType = "chromedp"
)

var ErrUnsupportedFetcher = errors.New("unsupported fetcher type")

func NewWebFetcher(cfg config.FetchConfig) (WebFetcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch FetcherType(cfg.Fetcher) {
	case ReadabilityFetcherType:
		return &readability.Fetch{Timeout: timeout, MaxChars: maxChars, UserAgent: cfg.UserAgent}, nil
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, MaxChars: maxChars, UserAgent: cfg.UserAgent}, nil
	default:
		return nil, ErrUnsupportedFetcher
	}
}
