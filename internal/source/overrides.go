package source

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
	"github.com/markhazleton/MuseumSpark-sub000/pkg/notion"
)

// OverridesSource applies curator corrections from a Notion database. Rows
// arrive at manual trust, so they beat every automated source.
type OverridesSource struct {
	client     notion.Client
	databaseID string

	mu      sync.Mutex
	loaded  bool
	byKey   map[string][]notion.Override
	pending []notion.Override
}

// NewOverridesSource builds a source over the overrides database.
func NewOverridesSource(client notion.Client, databaseID string) *OverridesSource {
	return &OverridesSource{client: client, databaseID: databaseID}
}

func (s *OverridesSource) Phase() string { return "overrides" }

// UpstreamSignature summarizes the pending override set; it is shared by
// every museum in the run.
func (s *OverridesSource) UpstreamSignature(ctx context.Context, m model.Museum) (string, error) {
	if err := s.load(ctx); err != nil {
		return "", err
	}
	return notion.Signature(s.pending), nil
}

func (s *OverridesSource) Fetch(ctx context.Context, m model.Museum) (*Result, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}

	rows := s.byKey[m.Key]
	if len(rows) == 0 {
		return &Result{Outcome: OutcomeNotFound, Signature: notion.Signature(s.pending)}, nil
	}

	candidates := make([]model.CandidateUpdate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, model.CandidateUpdate{
			Field:       row.Field,
			Value:       row.Value,
			Origin:      "curator_override",
			Trust:       trust.Manual,
			Confidence:  5,
			RetrievedAt: row.EditedAt,
		})
	}

	res := &Result{
		Outcome:    OutcomeFound,
		Candidates: candidates,
		Signature:  notion.Signature(s.pending),
	}
	if payload, err := json.Marshal(rows); err == nil {
		res.Payload = payload
	}
	return res, nil
}

// Acknowledge marks this museum's override rows applied. The caller invokes
// it only after the merge actually committed.
func (s *OverridesSource) Acknowledge(ctx context.Context, museumKey string) error {
	s.mu.Lock()
	rows := s.byKey[museumKey]
	s.mu.Unlock()

	for _, row := range rows {
		if err := notion.MarkApplied(ctx, s.client, row.PageID); err != nil {
			return eris.Wrapf(err, "overrides: mark applied %s", row.PageID)
		}
	}
	return nil
}

func (s *OverridesSource) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	pending, err := notion.QueryPendingOverrides(ctx, s.client, s.databaseID)
	if err != nil {
		return eris.Wrap(err, "overrides: query pending")
	}

	s.pending = pending
	s.byKey = make(map[string][]notion.Override)
	for _, row := range pending {
		s.byKey[row.MuseumKey] = append(s.byKey[row.MuseumKey], row)
	}
	s.loaded = true

	zap.L().Info("pending overrides loaded",
		zap.String("database", s.databaseID),
		zap.Int("rows", len(pending)))
	return nil
}
