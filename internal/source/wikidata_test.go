package source

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
	"github.com/markhazleton/MuseumSpark-sub000/pkg/wikidata"
)

type fakeWikidata struct {
	qid       string
	entity    *wikidata.Entity
	searchErr error
	getErr    error
	calls     int
}

func (f *fakeWikidata) SearchEntity(ctx context.Context, name, city string) (string, error) {
	f.calls++
	return f.qid, f.searchErr
}

func (f *fakeWikidata) GetEntity(ctx context.Context, qid string) (*wikidata.Entity, error) {
	f.calls++
	return f.entity, f.getErr
}

func momaEntity() *wikidata.Entity {
	year := 1929
	visitors := 2800000
	lat, lon := 40.7614, -73.9776
	return &wikidata.Entity{
		QID:            "Q188740",
		Label:          "Museum of Modern Art",
		Description:    "art museum in New York City",
		FoundedYear:    &year,
		AnnualVisitors: &visitors,
		Website:        "https://www.moma.org/",
		Latitude:       &lat,
		Longitude:      &lon,
		LastRevisionID: 2099415903,
	}
}

func TestWikidataSource_Match(t *testing.T) {
	s := NewWikidataSource(&fakeWikidata{qid: "Q188740", entity: momaEntity()})
	m := testMuseum("ny-nyc-moma", "Museum of Modern Art", map[string]any{"city": "New York"})

	res, err := s.Fetch(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, "rev:2099415903", res.Signature)

	year, ok := candidateByField(res.Candidates, "founded_year")
	require.True(t, ok)
	assert.Equal(t, 1929, year.Value)
	assert.Equal(t, trust.KnowledgeBase, year.Trust)
	assert.Equal(t, "wikidata", year.Origin)

	visitors, ok := candidateByField(res.Candidates, "annual_visitors")
	require.True(t, ok)
	assert.Equal(t, 2800000, visitors.Value)
	assert.Equal(t, 3, visitors.Confidence)

	lat, ok := candidateByField(res.Candidates, "latitude")
	require.True(t, ok)
	assert.Equal(t, 40.7614, lat.Value)

	desc, ok := candidateByField(res.Candidates, "description")
	require.True(t, ok)
	assert.Equal(t, "art museum in New York City", desc.Value)
}

func TestWikidataSource_SparseEntity(t *testing.T) {
	entity := &wikidata.Entity{QID: "Q999", Label: "Obscure Museum", LastRevisionID: 7}
	s := NewWikidataSource(&fakeWikidata{qid: "Q999", entity: entity})

	res, err := s.Fetch(context.Background(), testMuseum("k", "Obscure Museum", nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, "rev:7", res.Signature)
}

func TestWikidataSource_NoMatch(t *testing.T) {
	s := NewWikidataSource(&fakeWikidata{qid: ""})

	res, err := s.Fetch(context.Background(), testMuseum("k", "Nonexistent", nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)

	sig, err := s.UpstreamSignature(context.Background(), testMuseum("k", "Nonexistent", nil))
	require.NoError(t, err)
	assert.Empty(t, sig)
}

func TestWikidataSource_SearchError(t *testing.T) {
	s := NewWikidataSource(&fakeWikidata{searchErr: eris.New("api down")})

	_, err := s.Fetch(context.Background(), testMuseum("k", "X", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wikidata: search")
}

func TestWikidataSource_UpstreamSignatureCostsNoRoundTrips(t *testing.T) {
	fake := &fakeWikidata{qid: "Q188740", entity: momaEntity()}
	s := NewWikidataSource(fake)

	sig, err := s.UpstreamSignature(context.Background(), testMuseum("ny-nyc-moma", "Museum of Modern Art", nil))
	require.NoError(t, err)
	assert.Empty(t, sig)
	assert.Zero(t, fake.calls)
}
