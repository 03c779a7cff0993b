package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

func f(v float64) *float64 { return &v }

func TestCompute_KnownLiteral(t *testing.T) {
	// primary = max(4,5) = 5 → no primary deficiency; historical and
	// collection perfect; tier 0; both strengths >= 4 → -2.0; curatorial
	// 4 → -1.0. Total: -3.0.
	in := Inputs{
		ArtStrength:        f(4),
		HistoryStrength:    f(5),
		HistoricalContext:  f(5),
		CollectionStrength: f(5),
		ReputationTier:     f(0),
		CuratorialAuth:     f(4),
	}

	got := Compute(in, DefaultWeights())
	require.NotNil(t, got)
	assert.Equal(t, -3.0, *got)
}

func TestCompute_Deterministic(t *testing.T) {
	in := Inputs{
		ArtStrength:        f(3),
		HistoryStrength:    f(2),
		HistoricalContext:  f(4),
		CollectionStrength: f(3),
		ReputationTier:     f(2),
		CuratorialAuth:     f(1),
	}
	w := DefaultWeights()

	first := Compute(in, w)
	require.NotNil(t, first)
	for i := 0; i < 100; i++ {
		again := Compute(in, w)
		require.NotNil(t, again)
		assert.Equal(t, *first, *again)
	}
	// 3*(5-3) + 2*(5-4) + 2*(5-3) + 1.5*2 = 6+2+4+3 = 15, no bonuses.
	assert.Equal(t, 15.0, *first)
}

func TestCompute_NullInputYieldsNull(t *testing.T) {
	base := Inputs{
		ArtStrength:        f(4),
		HistoryStrength:    f(5),
		HistoricalContext:  f(5),
		CollectionStrength: f(5),
		ReputationTier:     f(0),
		CuratorialAuth:     f(4),
	}

	nilEach := []func(*Inputs){
		func(in *Inputs) { in.ArtStrength = nil },
		func(in *Inputs) { in.HistoryStrength = nil },
		func(in *Inputs) { in.HistoricalContext = nil },
		func(in *Inputs) { in.CollectionStrength = nil },
		func(in *Inputs) { in.ReputationTier = nil },
		func(in *Inputs) { in.CuratorialAuth = nil },
	}
	for i, blank := range nilEach {
		in := base
		blank(&in)
		assert.Nil(t, Compute(in, DefaultWeights()), "input %d", i)
	}
}

func TestCompute_ReputationPenalty(t *testing.T) {
	in := Inputs{
		ArtStrength:        f(5),
		HistoryStrength:    f(5),
		HistoricalContext:  f(5),
		CollectionStrength: f(5),
		ReputationTier:     f(3),
		CuratorialAuth:     f(5),
	}
	got := Compute(in, DefaultWeights())
	require.NotNil(t, got)
	// Perfect everywhere, but tier 3: 1.5*3 - 2.0 - 1.0 = 1.5.
	assert.Equal(t, 1.5, *got)
}

func TestCompute_NoBonusBelowThreshold(t *testing.T) {
	in := Inputs{
		ArtStrength:        f(5),
		HistoryStrength:    f(3), // below dual threshold
		HistoricalContext:  f(5),
		CollectionStrength: f(5),
		ReputationTier:     f(0),
		CuratorialAuth:     f(3), // below curatorial threshold
	}
	got := Compute(in, DefaultWeights())
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}

func TestInputsFrom_Museum(t *testing.T) {
	m := model.Museum{Key: "co-denver-art"}
	m.SetField("art_strength", model.FieldEnvelope{Value: 4, Trust: trust.LLMInference})
	m.SetField("history_strength", model.FieldEnvelope{Value: float64(5), Trust: trust.LLMInference})
	m.SetField("historical_context", model.FieldEnvelope{Value: 5})
	m.SetField("collection_strength", model.FieldEnvelope{Value: 5})
	m.SetField("reputation_tier", model.FieldEnvelope{Value: 0})
	// curatorial_authority intentionally absent.

	in := InputsFrom(m)
	assert.False(t, in.Complete())
	assert.Nil(t, in.CuratorialAuth)
	require.NotNil(t, in.ArtStrength)
	assert.Equal(t, 4.0, *in.ArtStrength)

	m.SetField("curatorial_authority", model.FieldEnvelope{Value: 4})
	in = InputsFrom(m)
	assert.True(t, in.Complete())
	got := Compute(in, DefaultWeights())
	require.NotNil(t, got)
	assert.Equal(t, -3.0, *got)
}

func TestValidateWeights(t *testing.T) {
	assert.NoError(t, ValidateWeights(DefaultWeights()))

	bad := DefaultWeights()
	bad.MaxScale = 0
	assert.Error(t, ValidateWeights(bad))

	bad = DefaultWeights()
	bad.PrimaryWeight = -1
	assert.Error(t, ValidateWeights(bad))

	bad = DefaultWeights()
	bad.DualThreshold = 9
	assert.Error(t, ValidateWeights(bad))
}
