package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/markhazleton/MuseumSpark-sub000/internal/cost"
	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
	"github.com/markhazleton/MuseumSpark-sub000/pkg/anthropic"
)

// JudgmentSource produces qualitative ratings via a language model. Its
// candidates land at the lowest citable trust so any sourced value beats
// them.
type JudgmentSource struct {
	client  anthropic.Client
	model   string
	tracker *cost.Tracker
}

// NewJudgmentSource builds a judgment source. tracker meters spend and may
// be nil in dry runs.
func NewJudgmentSource(client anthropic.Client, model string, tracker *cost.Tracker) *JudgmentSource {
	return &JudgmentSource{client: client, model: model, tracker: tracker}
}

func (s *JudgmentSource) Phase() string { return "llm_judgment" }

// UpstreamSignature covers the fact sheet the model sees. Unchanged facts
// mean an unchanged judgment request.
func (s *JudgmentSource) UpstreamSignature(ctx context.Context, m model.Museum) (string, error) {
	facts := factsFor(m)
	b, err := json.Marshal(facts)
	if err != nil {
		return "", err
	}
	return "facts:" + string(b), nil
}

func (s *JudgmentSource) Fetch(ctx context.Context, m model.Museum) (*Result, error) {
	judgment, usage, err := anthropic.Judge(ctx, s.client, s.model, factsFor(m))
	if err != nil {
		return nil, err
	}
	usage.LogUsage(s.model, m.Key)

	if s.tracker != nil {
		if err := s.tracker.Claude(s.model, int(usage.InputTokens), int(usage.OutputTokens)); err != nil {
			if eris.Is(err, cost.ErrBudgetExceeded) {
				// The response is already paid for; commit it and let the
				// budget error abort the run afterwards.
				res := s.toResult(m, judgment)
				return res, err
			}
			return nil, err
		}
	}

	return s.toResult(m, judgment), nil
}

func (s *JudgmentSource) toResult(m model.Museum, j *anthropic.Judgment) *Result {
	now := time.Now().UTC()
	add := func(out []model.CandidateUpdate, field string, v *int) []model.CandidateUpdate {
		if v == nil {
			return out
		}
		return append(out, model.CandidateUpdate{
			Field:       field,
			Value:       *v,
			Origin:      "llm_judgment",
			Trust:       trust.LLMInference,
			Confidence:  3,
			RetrievedAt: now,
		})
	}

	var candidates []model.CandidateUpdate
	candidates = add(candidates, "art_strength", j.ArtStrength)
	candidates = add(candidates, "history_strength", j.HistoryStrength)
	candidates = add(candidates, "historical_context", j.HistoricalContext)
	candidates = add(candidates, "collection_strength", j.CollectionStrength)
	candidates = add(candidates, "curatorial_authority", j.CuratorialAuthority)
	candidates = add(candidates, "reputation_tier", j.ReputationTier)
	if j.Description != "" {
		candidates = append(candidates, model.CandidateUpdate{
			Field:       "description",
			Value:       j.Description,
			Origin:      "llm_judgment",
			Trust:       trust.LLMInference,
			Confidence:  3,
			RetrievedAt: now,
		})
	}

	res := &Result{Outcome: OutcomeFound, Candidates: candidates}
	if sig, err := s.UpstreamSignature(context.Background(), m); err == nil {
		res.Signature = sig
	}
	if payload, err := json.Marshal(j); err == nil {
		res.Payload = payload
	}
	return res
}

// factsFor assembles the model's fact sheet from the merged record.
func factsFor(m model.Museum) anthropic.MuseumFacts {
	facts := anthropic.MuseumFacts{
		Name:        m.Name,
		City:        m.StringField("city"),
		State:       m.StringField("state"),
		MuseumType:  m.StringField("museum_type"),
		Website:     m.StringField("website"),
		FoundedYear: m.IntField("founded_year"),
	}
	if env, ok := m.Field("collections"); ok {
		switch v := env.Value.(type) {
		case []string:
			facts.Collections = v
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					facts.Collections = append(facts.Collections, s)
				}
			}
		}
	}
	return facts
}
