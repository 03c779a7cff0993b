package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
	"github.com/markhazleton/MuseumSpark-sub000/pkg/wikidata"
)

// WikidataAPI is the slice of the wikidata client this source needs.
type WikidataAPI interface {
	SearchEntity(ctx context.Context, name, city string) (string, error)
	GetEntity(ctx context.Context, qid string) (*wikidata.Entity, error)
}

// WikidataSource enriches museums from their knowledge-base items.
type WikidataSource struct {
	client WikidataAPI
}

// NewWikidataSource wraps a wikidata client as a pipeline source.
func NewWikidataSource(client WikidataAPI) *WikidataSource {
	return &WikidataSource{client: client}
}

func (s *WikidataSource) Phase() string { return "wikidata" }

// UpstreamSignature returns the empty signature: learning the item's current
// revision costs the same two round-trips as fetching it, so change detection
// is left to the cache layer and prior results stand until --force.
func (s *WikidataSource) UpstreamSignature(ctx context.Context, m model.Museum) (string, error) {
	return "", nil
}

func (s *WikidataSource) Fetch(ctx context.Context, m model.Museum) (*Result, error) {
	qid, err := s.client.SearchEntity(ctx, m.Name, m.StringField("city"))
	if err != nil {
		return nil, eris.Wrapf(err, "wikidata: search %s", m.Key)
	}
	if qid == "" {
		return &Result{Outcome: OutcomeNotFound}, nil
	}

	entity, err := s.client.GetEntity(ctx, qid)
	if err != nil {
		return nil, eris.Wrapf(err, "wikidata: get %s", qid)
	}
	if entity == nil {
		return &Result{Outcome: OutcomeNotFound}, nil
	}

	zap.L().Debug("wikidata item matched",
		zap.String("museum", m.Key), zap.String("qid", entity.QID))

	now := time.Now().UTC()
	add := func(out []model.CandidateUpdate, field string, value any, confidence int) []model.CandidateUpdate {
		return append(out, model.CandidateUpdate{
			Field:       field,
			Value:       value,
			Origin:      "wikidata",
			Trust:       trust.KnowledgeBase,
			Confidence:  confidence,
			RetrievedAt: now,
		})
	}

	var candidates []model.CandidateUpdate
	if entity.FoundedYear != nil {
		candidates = add(candidates, "founded_year", *entity.FoundedYear, 4)
	}
	if entity.AnnualVisitors != nil {
		candidates = add(candidates, "annual_visitors", *entity.AnnualVisitors, 3)
	}
	if entity.Website != "" {
		candidates = add(candidates, "website", entity.Website, 4)
	}
	if entity.Latitude != nil && entity.Longitude != nil {
		candidates = add(candidates, "latitude", *entity.Latitude, 4)
		candidates = add(candidates, "longitude", *entity.Longitude, 4)
	}
	if entity.Description != "" {
		candidates = add(candidates, "description", entity.Description, 3)
	}

	res := &Result{
		Outcome:    OutcomeFound,
		Candidates: candidates,
		Signature:  entity.Signature(),
	}
	if payload, err := json.Marshal(entity); err == nil {
		res.Payload = payload
	}
	return res, nil
}
