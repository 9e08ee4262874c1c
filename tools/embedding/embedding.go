package embedding

import (
	"context"

	"github.com/mohammad-safakhou/literesearch/provider"
)

const DefaultBatchSize = 64

type Embedding struct {
	provider  provider.LLMProvider
	batchSize int
}

func NewEmbedding(p provider.LLMProvider, batchSize int) *Embedding {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedding{provider: p, batchSize: batchSize}
}

// EmbedMany embeds all texts, chunking requests to the batch size.
// Output order matches input order.
func (e *Embedding) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.provider.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}
