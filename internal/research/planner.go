package research

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/mohammad-safakhou/literesearch/provider"
)

// Planner selects an agent persona for the topic and expands it into a
// bounded set of search sub-queries.
type Planner struct {
	llm    provider.LLMProvider
	model  string
	logger *log.Logger
}

func NewPlanner(llm provider.LLMProvider, model string, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{llm: llm, model: model, logger: logger}
}

// Plan classifies the topic against the persona catalog and expands it
// into 1..maxSubQueries sub-queries. Persona selection never aborts the
// run; sub-query expansion aborts only on terminal provider failures.
func (p *Planner) Plan(ctx context.Context, topic string, maxSubQueries int) (AgentProfile, []SubQuery, error) {
	agent := p.choosePersona(ctx, topic)

	subs, err := p.expandSubQueries(ctx, topic, maxSubQueries)
	if err != nil {
		return AgentProfile{}, nil, err
	}
	return agent, subs, nil
}

func (p *Planner) choosePersona(ctx context.Context, topic string) AgentProfile {
	system, user := personaSelectionPrompt(topic)
	out, err := p.llm.Generate(ctx, user, system, p.model)
	if err != nil {
		p.logger.Printf("persona selection failed, using default researcher: %v", err)
		return PersonaByKey(DefaultPersonaKey)
	}

	var parsed struct {
		Persona string `json:"persona"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(out)), &parsed); err != nil {
		p.logger.Printf("persona selection returned malformed output, using default researcher")
		return PersonaByKey(DefaultPersonaKey)
	}
	key := strings.ToLower(strings.TrimSpace(parsed.Persona))
	if _, ok := personaCatalog[key]; !ok && key != "" {
		p.logger.Printf("persona selection returned unknown key %q, using default researcher", key)
	}
	return PersonaByKey(key)
}

// expandSubQueries asks the model for facet queries and always returns
// at least one query. The raw topic is kept as an implicit candidate:
// it becomes the sole query when expansion fails or yields nothing, and
// is appended when missing from the expansion and capacity allows.
func (p *Planner) expandSubQueries(ctx context.Context, topic string, maxSubQueries int) ([]SubQuery, error) {
	system, user := subQueryPrompt(topic, maxSubQueries)
	out, err := p.llm.Generate(ctx, user, system, p.model)
	if err != nil {
		if provider.IsTerminal(err) {
			return nil, err
		}
		p.logger.Printf("sub-query expansion failed, falling back to raw topic: %v", err)
		return []SubQuery{{Position: 0, Text: topic}}, nil
	}

	var raw []string
	if err := json.Unmarshal([]byte(extractFirstJSONArray(out)), &raw); err != nil {
		p.logger.Printf("sub-query expansion returned malformed output, falling back to raw topic")
		return []SubQuery{{Position: 0, Text: topic}}, nil
	}

	texts := make([]string, 0, maxSubQueries)
	seen := make(map[string]struct{})
	hasTopic := false
	for _, q := range raw {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		lower := strings.ToLower(q)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		if lower == strings.ToLower(strings.TrimSpace(topic)) {
			hasTopic = true
		}
		texts = append(texts, q)
		if len(texts) == maxSubQueries {
			break
		}
	}
	if len(texts) == 0 {
		texts = append(texts, topic)
	} else if !hasTopic && len(texts) < maxSubQueries {
		texts = append(texts, topic)
	}

	subs := make([]SubQuery, len(texts))
	for i, t := range texts {
		subs[i] = SubQuery{Position: i, Text: t}
	}
	return subs, nil
}
