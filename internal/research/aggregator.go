package research

import (
	"context"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/literesearch/internal/helpers"
)

// SubQueryRetriever is the aggregator's view of the retriever.
type SubQueryRetriever interface {
	Retrieve(ctx context.Context, sq SubQuery, maxResults int) []SourceExcerpt
}

// Aggregator fans sub-queries out to the retriever concurrently and
// merges the results into one frozen Context.
type Aggregator struct {
	retriever       SubQueryRetriever
	subQueryTimeout time.Duration
	charBudget      int
	logger          *log.Logger
}

func NewAggregator(retriever SubQueryRetriever, subQueryTimeout time.Duration, charBudget int, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(log.Writer(), "[AGGREGATOR] ", log.LstdFlags)
	}
	return &Aggregator{
		retriever:       retriever,
		subQueryTimeout: subQueryTimeout,
		charBudget:      charBudget,
		logger:          logger,
	}
}

// Aggregate runs one retrieval per sub-query, each under its own
// timeout so a slow sub-query cannot stall its siblings. Results land
// in a slot array indexed by sub-query position; completion order never
// affects output ordering. An all-empty result is not an error.
func (a *Aggregator) Aggregate(ctx context.Context, subs []SubQuery, maxResultsPerQuery int) Context {
	slots := make([][]SourceExcerpt, len(subs))

	g := new(errgroup.Group)
	g.SetLimit(len(subs))
	for i, sq := range subs {
		i, sq := i, sq
		g.Go(func() error {
			sctx := ctx
			if a.subQueryTimeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, a.subQueryTimeout)
				defer cancel()
			}
			slots[i] = a.retriever.Retrieve(sctx, sq, maxResultsPerQuery)
			return nil
		})
	}
	_ = g.Wait()

	return a.merge(slots)
}

// merge deduplicates by canonical URL (highest score wins), orders by
// descending score with sub-query position breaking ties, then enforces
// the total character budget by dropping tail excerpts.
func (a *Aggregator) merge(slots [][]SourceExcerpt) Context {
	type kept struct {
		excerpt SourceExcerpt
		seenPos int
	}
	byURL := make(map[string]kept)
	var order []string

	for pos, excerpts := range slots {
		for _, e := range excerpts {
			key, err := helpers.CanonicalURL(e.URL)
			if err != nil {
				key = e.URL
			}
			prev, ok := byURL[key]
			if !ok {
				byURL[key] = kept{excerpt: e, seenPos: pos}
				order = append(order, key)
				continue
			}
			if e.Score > prev.excerpt.Score {
				// Keep the higher-scoring instance but remember where the
				// URL was first seen, for stable tie-breaking.
				byURL[key] = kept{excerpt: e, seenPos: prev.seenPos}
			}
		}
	}

	merged := make([]kept, 0, len(order))
	for _, key := range order {
		merged = append(merged, byURL[key])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].excerpt.Score != merged[j].excerpt.Score {
			return merged[i].excerpt.Score > merged[j].excerpt.Score
		}
		return merged[i].seenPos < merged[j].seenPos
	})

	excerpts := make([]SourceExcerpt, 0, len(merged))
	total := 0
	for _, k := range merged {
		if a.charBudget > 0 && total+len(k.excerpt.Text) > a.charBudget {
			if len(excerpts) == 0 {
				// A single oversized excerpt is truncated rather than
				// dropped so the context is never empty by accident.
				e := k.excerpt
				e.Text = clipText(e.Text, a.charBudget)
				excerpts = append(excerpts, e)
			}
			break
		}
		total += len(k.excerpt.Text)
		excerpts = append(excerpts, k.excerpt)
	}

	if len(excerpts) == 0 {
		a.logger.Printf("aggregation produced an empty context")
	}
	return Context{Excerpts: excerpts}
}
