package research

import (
	"context"

	fetchmodels "github.com/mohammad-safakhou/literesearch/tools/web_fetch/models"
	searchmodels "github.com/mohammad-safakhou/literesearch/tools/web_search/models"
)

// Embedder turns texts into vectors. Satisfied by tools/embedding.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher discovers candidate URLs for a query. Satisfied by
// tools/web_search implementations.
type Searcher interface {
	Discover(ctx context.Context, q string, k int) ([]searchmodels.Result, error)
}

// Fetcher retrieves and extracts one page. Satisfied by tools/web_fetch
// implementations.
type Fetcher interface {
	Exec(ctx context.Context, url string) (fetchmodels.Result, error)
}
