package merge

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

var (
	t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
)

func newEngine() *Engine {
	return NewEngine(model.DefaultSchema(), trust.DefaultPolicy())
}

func museum() model.Museum {
	return model.Museum{Key: "co-denver-art", Name: "Denver Art Museum", Partition: "co"}
}

func candidate(field string, value any, level trust.Level, at time.Time) model.CandidateUpdate {
	return model.CandidateUpdate{
		Field:       field,
		Value:       value,
		Origin:      "test-" + level.String(),
		Trust:       level,
		Confidence:  3,
		RetrievedAt: at,
	}
}

func TestMerge_FillsEmptyField(t *testing.T) {
	e := newEngine()
	m := museum()

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("latitude", 39.7385, trust.KnowledgeBase, t0),
	})

	require.Empty(t, rejs)
	env, ok := next.Field("latitude")
	require.True(t, ok)
	assert.Equal(t, 39.7385, env.Value)
	assert.Equal(t, trust.KnowledgeBase, env.Trust)
	// Source record is untouched.
	_, ok = m.Field("latitude")
	assert.False(t, ok)
}

func TestMerge_NonRegression_NullNeverClearsKnown(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("latitude", model.FieldEnvelope{Value: 39.1909, Trust: trust.StructuredSite, RetrievedAt: t0})

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("latitude", nil, trust.LLMInference, t1),
	})

	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonCannotReplaceKnownWithNull, rejs[0].Reason)
	assert.Equal(t, "latitude", rejs[0].Field)
	assert.Equal(t, "co-denver-art", rejs[0].MuseumKey)
	env, _ := next.Field("latitude")
	assert.Equal(t, 39.1909, env.Value)
}

func TestMerge_NullNeverClearsKnown_EvenAtHigherTrust(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("phone", model.FieldEnvelope{Value: "(303) 555-0100", Trust: trust.LLMInference, RetrievedAt: t0})

	_, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("phone", nil, trust.Manual, t1),
	})

	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonCannotReplaceKnownWithNull, rejs[0].Reason)
}

func TestMerge_TrustPrecedence_LowerTrustRejected(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("phone", model.FieldEnvelope{Value: "(303) 555-0100", Trust: trust.StructuredSite, RetrievedAt: t0})

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("phone", "303-555-0199", trust.LLMInference, t1),
	})

	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonInsufficientTrust, rejs[0].Reason)
	env, _ := next.Field("phone")
	assert.Equal(t, "(303) 555-0100", env.Value)
}

func TestMerge_HigherTrustWins(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("website", model.FieldEnvelope{Value: "http://old.example.org", Trust: trust.Encyclopedia, RetrievedAt: t0})

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("website", "https://denverartmuseum.org", trust.StructuredSite, t0),
	})

	require.Empty(t, rejs)
	env, _ := next.Field("website")
	assert.Equal(t, "https://denverartmuseum.org", env.Value)
	assert.Equal(t, trust.StructuredSite, env.Trust)
}

func TestMerge_EqualTrust_NewerWins(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("annual_visitors", model.FieldEnvelope{Value: 700000, Trust: trust.KnowledgeBase, RetrievedAt: t0})

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("annual_visitors", 815000, trust.KnowledgeBase, t1),
	})

	require.Empty(t, rejs)
	env, _ := next.Field("annual_visitors")
	assert.Equal(t, 815000, env.Value)
}

func TestMerge_EqualTrust_OlderRejected(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("annual_visitors", model.FieldEnvelope{Value: 815000, Trust: trust.KnowledgeBase, RetrievedAt: t1})

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("annual_visitors", 700000, trust.KnowledgeBase, t0),
	})

	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonInsufficientTrust, rejs[0].Reason)
	env, _ := next.Field("annual_visitors")
	assert.Equal(t, 815000, env.Value)
}

func TestMerge_PlaceholderNormalization(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("description", model.FieldEnvelope{Value: "TBD", Trust: trust.StructuredSite, RetrievedAt: t0})

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("description", nil, trust.LLMInference, t1),
	})

	require.Empty(t, rejs)
	env, _ := next.Field("description")
	assert.Nil(t, env.Value)
}

func TestMerge_PlaceholderExistingAcceptsAnyTrust(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("description", model.FieldEnvelope{Value: "N/A", Trust: trust.StructuredSite, RetrievedAt: t0})

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("description", "Largest art museum between Chicago and the West Coast.", trust.LLMInference, t1),
	})

	require.Empty(t, rejs)
	env, _ := next.Field("description")
	assert.Equal(t, "Largest art museum between Chicago and the West Coast.", env.Value)
	assert.Equal(t, trust.LLMInference, env.Trust)
}

func TestMerge_PlaceholderCandidateIsAbsence(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("city", model.FieldEnvelope{Value: "Denver", Trust: trust.KnowledgeBase, RetrievedAt: t0})

	_, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("city", "  TBD ", trust.Manual, t1),
	})

	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonCannotReplaceKnownWithNull, rejs[0].Reason)
}

func TestMerge_ZeroAndFalseAreConcrete(t *testing.T) {
	e := newEngine()
	m := museum()

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("annual_visitors", 0, trust.KnowledgeBase, t0),
		candidate("admission_free", false, trust.KnowledgeBase, t0),
	})
	require.Empty(t, rejs)

	// Zero and false are knowledge: nulls must not clear them.
	next, rejs = e.Merge(next, []model.CandidateUpdate{
		candidate("annual_visitors", nil, trust.StructuredSite, t1),
		candidate("admission_free", nil, trust.StructuredSite, t1),
	})
	require.Len(t, rejs, 2)
	for _, r := range rejs {
		assert.Equal(t, model.ReasonCannotReplaceKnownWithNull, r.Reason)
	}
	assert.Equal(t, 0, next.Fields["annual_visitors"].Value)
	assert.Equal(t, false, next.Fields["admission_free"].Value)
}

func TestMerge_EmptyCollectionCollapsesOnlyWhenMarked(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("collections", model.FieldEnvelope{Value: []string{"impressionism"}, Trust: trust.KnowledgeBase, RetrievedAt: t0})

	// collections is nullable-collapsing: an empty list is absence and must
	// not clear a populated list.
	_, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("collections", []string{}, trust.StructuredSite, t1),
	})
	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonCannotReplaceKnownWithNull, rejs[0].Reason)
}

func TestMerge_UnknownFieldRejected(t *testing.T) {
	e := newEngine()
	m := museum()

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("favorite_color", "teal", trust.Manual, t0),
	})

	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonUnknownField, rejs[0].Reason)
	assert.Empty(t, next.Fields)
}

func TestMerge_TypeMismatchRejected(t *testing.T) {
	e := newEngine()
	m := museum()

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("founded_year", "circa 1900", trust.StructuredSite, t0),
	})

	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonTypeMismatch, rejs[0].Reason)
	_, ok := next.Field("founded_year")
	assert.False(t, ok)
}

func TestMerge_CoercesStringNumbers(t *testing.T) {
	e := newEngine()
	m := museum()

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("annual_visitors", "1,200,000", trust.KnowledgeBase, t0),
		candidate("latitude", "39.1909", trust.KnowledgeBase, t0),
	})

	require.Empty(t, rejs)
	assert.Equal(t, 1200000, next.Fields["annual_visitors"].Value)
	assert.Equal(t, 39.1909, next.Fields["latitude"].Value)
}

func TestMerge_CommutativeWithinBatch(t *testing.T) {
	e := newEngine()
	m := museum()
	m.SetField("founded_year", model.FieldEnvelope{Value: 1893, Trust: trust.Encyclopedia, RetrievedAt: t0})

	batch := []model.CandidateUpdate{
		candidate("founded_year", 1905, trust.KnowledgeBase, t0),
		candidate("founded_year", 1899, trust.LLMInference, t1),
		candidate("founded_year", nil, trust.Manual, t1),
		candidate("website", "https://denverartmuseum.org", trust.StructuredSite, t0),
		candidate("website", "http://dam.org", trust.TextExtract, t1),
	}

	base, baseRejs := e.Merge(m, batch)

	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 20; i++ {
		shuffled := make([]model.CandidateUpdate, len(batch))
		copy(shuffled, batch)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, gotRejs := e.Merge(m, shuffled)
		assert.Equal(t, base.Fields, got.Fields)
		assert.Equal(t, baseRejs, gotRejs)
	}

	// The knowledge-base candidate beats the encyclopedia snapshot.
	assert.Equal(t, 1905, base.Fields["founded_year"].Value)
	assert.Equal(t, "https://denverartmuseum.org", base.Fields["website"].Value)
}

func TestMerge_ResolvesAgainstPreBatchSnapshot(t *testing.T) {
	e := newEngine()
	m := museum()

	// Two same-trust candidates for one field: only the newer applies; the
	// older is rejected against the snapshot rules, not double-applied.
	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("city", "Denver", trust.KnowledgeBase, t1),
		candidate("city", "Denverr", trust.KnowledgeBase, t0),
	})

	assert.Equal(t, "Denver", next.Fields["city"].Value)
	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonInsufficientTrust, rejs[0].Reason)
}

func TestMerge_IdentityNameCorrection(t *testing.T) {
	e := newEngine()
	m := museum()
	m.Name = "Denver Art Musuem" // typo from the seed import

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("name", "Denver Art Museum", trust.Manual, t0),
	})

	require.Empty(t, rejs)
	assert.Equal(t, "Denver Art Museum", next.Name)
	// Identity fields carry no envelope.
	_, ok := next.Field("name")
	assert.False(t, ok)
}

func TestMerge_IdentityNameProtected(t *testing.T) {
	e := newEngine()
	m := museum()

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("name", "Denver Museum of Art", trust.LLMInference, t0),
	})
	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonInsufficientTrust, rejs[0].Reason)
	assert.Equal(t, "Denver Art Museum", next.Name)

	_, rejs = e.Merge(m, []model.CandidateUpdate{
		candidate("name", nil, trust.Manual, t0),
	})
	require.Len(t, rejs, 1)
	assert.Equal(t, model.ReasonCannotReplaceKnownWithNull, rejs[0].Reason)
}

func TestMerge_NoRejectionsOnCleanBatch(t *testing.T) {
	e := newEngine()
	m := museum()

	next, rejs := e.Merge(m, []model.CandidateUpdate{
		candidate("address", "100 W 14th Ave Pkwy", trust.StructuredSite, t0),
		candidate("city", "Denver", trust.StructuredSite, t0),
		candidate("state", "CO", trust.StructuredSite, t0),
	})

	assert.Empty(t, rejs)
	assert.Len(t, next.Fields, 3)
}
