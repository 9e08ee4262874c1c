package research

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/literesearch/config"
	"github.com/mohammad-safakhou/literesearch/internal/telemetry"
	"github.com/mohammad-safakhou/literesearch/provider"
	"github.com/mohammad-safakhou/literesearch/tools/embedding"
	"github.com/mohammad-safakhou/literesearch/tools/web_fetch"
	"github.com/mohammad-safakhou/literesearch/tools/web_search"
)

type topicPlanner interface {
	Plan(ctx context.Context, topic string, maxSubQueries int) (AgentProfile, []SubQuery, error)
}

type contextAggregator interface {
	Aggregate(ctx context.Context, subs []SubQuery, maxResultsPerQuery int) Context
}

type reportComposer interface {
	Compose(ctx context.Context, req Request, agent AgentProfile, rc Context) (ReportDraft, error)
}

// RunStatus is the externally visible progress of an in-flight run.
type RunStatus struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Stage     string    `json:"stage"`
	StartedAt time.Time `json:"started_at"`
}

// Orchestrator sequences planner, aggregator and composer, owns the
// request for the run's lifetime and is the only component whose errors
// reach the caller.
type Orchestrator struct {
	planner    topicPlanner
	aggregator contextAggregator
	composer   reportComposer
	telemetry  *telemetry.Telemetry
	logger     *log.Logger

	maxProcessingTime time.Duration
	sem               chan struct{}

	mu   sync.RWMutex
	runs map[string]RunStatus
}

// NewOrchestrator builds the full pipeline from configuration.
func NewOrchestrator(cfg *config.Config, logger *log.Logger, tele *telemetry.Telemetry) (*Orchestrator, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	if tele == nil {
		tele = telemetry.NewTelemetry(cfg.Telemetry, nil)
	}

	llm, err := provider.NewLLMProvider(cfg.LLM, log.New(log.Writer(), "[LLM] ", log.LstdFlags))
	if err != nil {
		return nil, fmt.Errorf("creating llm provider: %w", err)
	}
	llm = &instrumentedLLM{inner: llm, tele: tele}

	searcher, err := web_search.NewWebSearcher(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("creating web searcher: %w", err)
	}
	fetcher, err := web_fetch.NewWebFetcher(cfg.Fetch)
	if err != nil {
		return nil, fmt.Errorf("creating web fetcher: %w", err)
	}

	embedder := embedding.NewEmbedding(llm, cfg.Embedding.BatchSize)
	ranker := NewRanker(embedder)

	retriever := NewRetriever(searcher, fetcher, ranker, RetrieverOptions{
		TopK:                cfg.Research.CompressionTopK,
		MinContentLength:    cfg.Fetch.MinContentLength,
		ExcerptMaxChars:     cfg.Research.ExcerptMaxChars,
		SimilarityThreshold: cfg.Research.SimilarityThreshold,
	}, log.New(log.Writer(), "[RETRIEVER] ", log.LstdFlags))

	aggregator := NewAggregator(retriever, cfg.Research.SubQueryTimeout, cfg.Research.ContextCharBudget,
		log.New(log.Writer(), "[AGGREGATOR] ", log.LstdFlags))

	planner := NewPlanner(llm, cfg.LLM.Routing.Planning, log.New(log.Writer(), "[PLANNER] ", log.LstdFlags))

	composer := NewComposer(llm, ranker, ComposerOptions{
		Model:        cfg.LLM.Routing.Writing,
		TotalWords:   cfg.Research.TotalWords,
		ReportFormat: cfg.Research.ReportFormat,
		SubtopicTopK: cfg.Research.CompressionTopK,
	}, log.New(log.Writer(), "[COMPOSER] ", log.LstdFlags))

	maxRuns := cfg.Research.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = 1
	}
	return &Orchestrator{
		planner:           planner,
		aggregator:        aggregator,
		composer:          composer,
		telemetry:         tele,
		logger:            logger,
		maxProcessingTime: cfg.General.MaxProcessingTime,
		sem:               make(chan struct{}, maxRuns),
		runs:              make(map[string]RunStatus),
	}, nil
}

// Run executes one research request end to end. Configuration errors
// fail before any external call; terminal provider errors abort the
// run; everything else degrades inside the pipeline.
func (o *Orchestrator) Run(ctx context.Context, req Request) (ReportDraft, error) {
	if err := req.Validate(); err != nil {
		return ReportDraft{}, err
	}

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return ReportDraft{}, ctx.Err()
	}

	runID := uuid.NewString()
	o.setStage(runID, req.Topic, "planning")
	defer o.clear(runID)

	if o.maxProcessingTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.maxProcessingTime)
		defer cancel()
	}

	o.logger.Printf("[%s] run started: topic=%q type=%s", runID, req.Topic, req.ReportType)

	t0 := time.Now()
	agent, subs, err := o.planner.Plan(ctx, req.Topic, req.MaxSubQueries)
	o.recordStage(runID, "planning", t0, err)
	if err != nil {
		o.telemetry.RecordRun("error")
		return ReportDraft{}, fmt.Errorf("planning: %w", err)
	}
	o.logger.Printf("[%s] persona=%s subqueries=%d", runID, agent.Key, len(subs))

	o.setStage(runID, req.Topic, "retrieval")
	t0 = time.Now()
	rc := o.aggregator.Aggregate(ctx, subs, req.MaxResultsPerQuery)
	o.recordStage(runID, "retrieval", t0, nil)
	o.logger.Printf("[%s] context: %d excerpts, %d chars", runID, len(rc.Excerpts), rc.TotalChars())

	o.setStage(runID, req.Topic, "composition")
	t0 = time.Now()
	draft, err := o.composer.Compose(ctx, req, agent, rc)
	o.recordStage(runID, "composition", t0, err)
	if err != nil {
		o.telemetry.RecordRun("error")
		return ReportDraft{}, fmt.Errorf("composing report: %w", err)
	}

	o.telemetry.RecordRun("success")
	o.logger.Printf("[%s] run finished: %d sections", runID, len(draft.Sections))
	return draft, nil
}

// Status returns the progress of an in-flight run.
func (o *Orchestrator) Status(runID string) (RunStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.runs[runID]
	return st, ok
}

// ActiveRuns lists all in-flight runs.
func (o *Orchestrator) ActiveRuns() []RunStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]RunStatus, 0, len(o.runs))
	for _, st := range o.runs {
		out = append(out, st)
	}
	return out
}

func (o *Orchestrator) setStage(runID, topic, stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.runs[runID]
	if !ok {
		st = RunStatus{ID: runID, Topic: topic, StartedAt: time.Now()}
	}
	st.Stage = stage
	o.runs[runID] = st
}

func (o *Orchestrator) clear(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.runs, runID)
}

func (o *Orchestrator) recordStage(runID, stage string, t0 time.Time, err error) {
	ev := telemetry.StageEvent{RunID: runID, Stage: stage, Duration: time.Since(t0)}
	if err != nil {
		ev.Err = err.Error()
	}
	o.telemetry.RecordStageEvent(ev)
}

// instrumentedLLM records token usage and cost for every completion.
type instrumentedLLM struct {
	inner provider.LLMProvider
	tele  *telemetry.Telemetry
}

func (l *instrumentedLLM) Generate(ctx context.Context, prompt, systemPrompt, model string) (string, error) {
	text, _, err := l.GenerateWithTokens(ctx, prompt, systemPrompt, model)
	return text, err
}

func (l *instrumentedLLM) GenerateWithTokens(ctx context.Context, prompt, systemPrompt, model string) (string, provider.TokenUsage, error) {
	t0 := time.Now()
	text, usage, err := l.inner.GenerateWithTokens(ctx, prompt, systemPrompt, model)
	if err == nil {
		l.tele.RecordLLMEvent(telemetry.LLMEvent{
			Model:            model,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			Cost:             usage.Cost,
			Duration:         time.Since(t0),
		})
	}
	return text, usage, err
}

func (l *instrumentedLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return l.inner.Embed(ctx, texts)
}

func (l *instrumentedLLM) CalculateCost(promptTokens, completionTokens int, model string) float64 {
	return l.inner.CalculateCost(promptTokens, completionTokens, model)
}

func (l *instrumentedLLM) GetModelInfo(model string) (provider.ModelInfo, error) {
	return l.inner.GetModelInfo(model)
}
