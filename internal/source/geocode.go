package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/markhazleton/MuseumSpark-sub000/internal/cost"
	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
	"github.com/markhazleton/MuseumSpark-sub000/pkg/geocode"
)

// GeocodeSource resolves coordinates for museums with a street address.
type GeocodeSource struct {
	client  geocode.Client
	tracker *cost.Tracker
}

// NewGeocodeSource wraps a geocoding client as a pipeline source. A nil
// tracker leaves queries unmetered, which is fine for the free Census
// endpoint.
func NewGeocodeSource(client geocode.Client, tracker *cost.Tracker) *GeocodeSource {
	return &GeocodeSource{client: client, tracker: tracker}
}

func (s *GeocodeSource) Phase() string { return "geocode" }

// UpstreamSignature hashes the address inputs: a museum only needs
// re-geocoding when its address changed.
func (s *GeocodeSource) UpstreamSignature(ctx context.Context, m model.Museum) (string, error) {
	return addressSignature(m), nil
}

func (s *GeocodeSource) Fetch(ctx context.Context, m model.Museum) (*Result, error) {
	// Coordinates already asserted at geocoder trust or above are settled;
	// spending a geocoder query cannot improve them.
	if lat, ok := m.Field("latitude"); ok && lat.Value != nil && lat.Trust >= trust.KnowledgeBase {
		if lon, ok := m.Field("longitude"); ok && lon.Value != nil && lon.Trust >= trust.KnowledgeBase {
			return &Result{Outcome: OutcomeNotFound, Signature: addressSignature(m)}, nil
		}
	}

	addr := geocode.AddressInput{
		ID:      m.Key,
		Street:  m.StringField("address"),
		City:    m.StringField("city"),
		State:   m.StringField("state"),
		ZipCode: m.StringField("postal_code"),
	}
	if addr.Street == "" || addr.City == "" || addr.State == "" {
		zap.L().Debug("geocode skipped, address incomplete", zap.String("museum", m.Key))
		return &Result{Outcome: OutcomeNotFound, Signature: addressSignature(m)}, nil
	}

	res, err := s.client.Geocode(ctx, addr)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: %s", m.Key)
	}

	// The query was spent whether or not it matched. A budget crossing is
	// reported after the paid-for result is assembled so it still commits.
	var budgetErr error
	if s.tracker != nil {
		budgetErr = s.tracker.GeocodeQuery()
	}

	if !res.Matched {
		return &Result{Outcome: OutcomeNotFound, Signature: addressSignature(m)}, budgetErr
	}

	now := time.Now().UTC()
	confidence := 4
	if res.Quality == "rooftop" {
		confidence = 5
	}
	origin := "geocode_" + res.Source

	out := &Result{
		Outcome: OutcomeFound,
		Candidates: []model.CandidateUpdate{
			{Field: "latitude", Value: res.Latitude, Origin: origin, Trust: trust.KnowledgeBase, Confidence: confidence, RetrievedAt: now},
			{Field: "longitude", Value: res.Longitude, Origin: origin, Trust: trust.KnowledgeBase, Confidence: confidence, RetrievedAt: now},
		},
		Signature: addressSignature(m),
	}
	if payload, err := json.Marshal(res); err == nil {
		out.Payload = payload
	}
	return out, budgetErr
}

// addressSignature characterizes the geocoder inputs for change detection.
func addressSignature(m model.Museum) string {
	return fmt.Sprintf("addr:%s|%s|%s|%s",
		m.StringField("address"), m.StringField("city"),
		m.StringField("state"), m.StringField("postal_code"))
}
