package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/literesearch/config"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "literesearch",
		Name:      "runs_total",
		Help:      "Research runs by outcome.",
	}, []string{"status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "literesearch",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage latency.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	llmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "literesearch",
		Name:      "llm_tokens_total",
		Help:      "LLM tokens consumed by model.",
	}, []string{"model", "kind"})

	llmCostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "literesearch",
		Name:      "llm_cost_usd_total",
		Help:      "Estimated LLM spend in USD.",
	})
)

// StageEvent describes one completed pipeline stage of a run.
type StageEvent struct {
	RunID    string        `json:"run_id"`
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail,omitempty"`
	Err      string        `json:"error,omitempty"`
}

// LLMEvent describes one completed LLM call of a run.
type LLMEvent struct {
	RunID            string        `json:"run_id"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Cost             float64       `json:"cost"`
	Duration         time.Duration `json:"duration"`
}

// CostSummary is a snapshot of accumulated spend.
type CostSummary struct {
	TotalCost   float64
	TotalTokens int64
	ModelCosts  map[string]float64
}

// Telemetry records stage and LLM events to prometheus, an in-memory
// cost tracker and an optional fire-and-forget trace sink. Sink
// failures are logged and never affect pipeline outcomes.
type Telemetry struct {
	cfg    config.TelemetryConfig
	logger *log.Logger

	mu          sync.RWMutex
	totalCost   float64
	totalTokens int64
	modelCosts  map[string]float64

	sinkClient *http.Client
}

func NewTelemetry(cfg config.TelemetryConfig, logger *log.Logger) *Telemetry {
	if logger == nil {
		logger = log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags)
	}
	return &Telemetry{
		cfg:        cfg,
		logger:     logger,
		modelCosts: make(map[string]float64),
		sinkClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// RecordRun counts one finished run. Status is "success" or "error".
func (t *Telemetry) RecordRun(status string) {
	if !t.cfg.Enabled {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
}

// RecordStageEvent records stage latency and forwards the event to the
// trace sink when one is configured.
func (t *Telemetry) RecordStageEvent(ev StageEvent) {
	if !t.cfg.Enabled {
		return
	}
	stageDuration.WithLabelValues(ev.Stage).Observe(ev.Duration.Seconds())
	t.emit("stage", ev)
}

// RecordLLMEvent records token and cost usage for one LLM call.
func (t *Telemetry) RecordLLMEvent(ev LLMEvent) {
	if !t.cfg.Enabled {
		return
	}
	llmTokensTotal.WithLabelValues(ev.Model, "prompt").Add(float64(ev.PromptTokens))
	llmTokensTotal.WithLabelValues(ev.Model, "completion").Add(float64(ev.CompletionTokens))

	if t.cfg.CostTracking {
		llmCostTotal.Add(ev.Cost)
		t.mu.Lock()
		t.totalCost += ev.Cost
		t.totalTokens += int64(ev.PromptTokens + ev.CompletionTokens)
		t.modelCosts[ev.Model] += ev.Cost
		t.mu.Unlock()
	}
	t.emit("llm", ev)
}

// GetCostSummary returns a copy of the accumulated cost state.
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	models := make(map[string]float64, len(t.modelCosts))
	for k, v := range t.modelCosts {
		models[k] = v
	}
	return CostSummary{TotalCost: t.totalCost, TotalTokens: t.totalTokens, ModelCosts: models}
}

// emit posts one trace event to the sink in the background.
func (t *Telemetry) emit(kind string, payload interface{}) {
	if t.cfg.TraceSinkURL == "" {
		return
	}
	go func() {
		body, err := json.Marshal(map[string]interface{}{"kind": kind, "event": payload, "ts": time.Now().UTC()})
		if err != nil {
			t.logger.Printf("trace sink marshal failed: %v", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, "POST", t.cfg.TraceSinkURL, bytes.NewReader(body))
		if err != nil {
			t.logger.Printf("trace sink request failed: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.sinkClient.Do(req)
		if err != nil {
			t.logger.Printf("trace sink unreachable: %v", err)
			return
		}
		_ = resp.Body.Close()
	}()
}
