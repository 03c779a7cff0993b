package source

import (
	"context"
	"fmt"
	"time"

	"github.com/markhazleton/MuseumSpark-sub000/internal/geo"
	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

// RegionSource assigns the census region. When coordinates exist it does a
// point-in-polygon lookup against the region boundaries; otherwise it falls
// back to the state-to-region table.
type RegionSource struct {
	index *geo.Index
}

// NewRegionSource builds a region source. A nil index disables the spatial
// lookup and leaves only the state fallback.
func NewRegionSource(index *geo.Index) *RegionSource {
	return &RegionSource{index: index}
}

func (s *RegionSource) Phase() string { return "region" }

// UpstreamSignature covers both lookup inputs: coordinates and state.
func (s *RegionSource) UpstreamSignature(ctx context.Context, m model.Museum) (string, error) {
	lat, lon := m.FloatField("latitude"), m.FloatField("longitude")
	if lat != nil && lon != nil {
		return fmt.Sprintf("pt:%.6f,%.6f", *lat, *lon), nil
	}
	return "st:" + m.StringField("state"), nil
}

func (s *RegionSource) Fetch(ctx context.Context, m model.Museum) (*Result, error) {
	sig, _ := s.UpstreamSignature(ctx, m)

	region, origin := s.resolve(m)
	if region == "" {
		return &Result{Outcome: OutcomeNotFound, Signature: sig}, nil
	}

	return &Result{
		Outcome: OutcomeFound,
		Candidates: []model.CandidateUpdate{{
			Field:       "region",
			Value:       region,
			Origin:      origin,
			Trust:       trust.StructuredSite,
			Confidence:  5,
			RetrievedAt: time.Now().UTC(),
		}},
		Signature: sig,
	}, nil
}

func (s *RegionSource) resolve(m model.Museum) (region, origin string) {
	if s.index != nil {
		lat, lon := m.FloatField("latitude"), m.FloatField("longitude")
		if lat != nil && lon != nil {
			if name, ok := s.index.Locate(*lat, *lon); ok {
				return name, "region_boundary"
			}
		}
	}
	if r := geo.RegionForState(m.StringField("state")); r != "" {
		return r, "region_state_table"
	}
	return "", ""
}
