// Package scorer computes the derived rank score for a museum from its
// merged scoring inputs. Lower scores rank higher: the score accumulates
// deficiency points against a perfect 5 on each input, so a flagship museum
// lands at or below zero once bonuses apply.
package scorer

import (
	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
)

// ScoringVersion tags the weight constants used to compute rank_score.
// Bump when Weights change so stored scores can be told apart.
const ScoringVersion = "v2"

// Weights holds the versioned scoring constants. All of v2 is fixed here;
// Compute never reads anything else.
type Weights struct {
	MaxScale           float64
	PrimaryWeight      float64
	HistoricalWeight   float64
	CollectionWeight   float64
	ReputationPenalty  float64 // per reputation tier
	DualStrengthBonus  float64 // both strengths at or above DualThreshold
	DualThreshold      float64
	CuratorialBonus    float64
	CuratorialMinLevel float64
}

// DefaultWeights returns the v2 scoring constants.
func DefaultWeights() Weights {
	return Weights{
		MaxScale:           5,
		PrimaryWeight:      3.0,
		HistoricalWeight:   2.0,
		CollectionWeight:   2.0,
		ReputationPenalty:  1.5,
		DualStrengthBonus:  2.0,
		DualThreshold:      4,
		CuratorialBonus:    1.0,
		CuratorialMinLevel: 4,
	}
}

// Inputs are the declared scoring inputs. A nil pointer means the input is
// unknown; any nil input makes the derived score nil.
type Inputs struct {
	ArtStrength        *float64
	HistoryStrength    *float64
	HistoricalContext  *float64
	CollectionStrength *float64
	CuratorialAuth     *float64
	ReputationTier     *float64
}

// InputsFrom extracts the scoring inputs from a merged record. Placeholder
// and absent fields surface as nil.
func InputsFrom(m model.Museum) Inputs {
	return Inputs{
		ArtStrength:        m.FloatField("art_strength"),
		HistoryStrength:    m.FloatField("history_strength"),
		HistoricalContext:  m.FloatField("historical_context"),
		CollectionStrength: m.FloatField("collection_strength"),
		CuratorialAuth:     m.FloatField("curatorial_authority"),
		ReputationTier:     m.FloatField("reputation_tier"),
	}
}

// Complete reports whether every declared input is present.
func (in Inputs) Complete() bool {
	return in.ArtStrength != nil && in.HistoryStrength != nil &&
		in.HistoricalContext != nil && in.CollectionStrength != nil &&
		in.CuratorialAuth != nil && in.ReputationTier != nil
}

// Compute derives the rank score from the inputs. Returns nil when any
// required input is nil; never substitutes defaults. Pure: same inputs,
// bit-identical output, regardless of call order.
func Compute(in Inputs, w Weights) *float64 {
	if !in.Complete() {
		return nil
	}

	primary := *in.ArtStrength
	if *in.HistoryStrength > primary {
		primary = *in.HistoryStrength
	}

	score := w.PrimaryWeight*(w.MaxScale-primary) +
		w.HistoricalWeight*(w.MaxScale-*in.HistoricalContext) +
		w.CollectionWeight*(w.MaxScale-*in.CollectionStrength) +
		w.ReputationPenalty**in.ReputationTier

	if *in.ArtStrength >= w.DualThreshold && *in.HistoryStrength >= w.DualThreshold {
		score -= w.DualStrengthBonus
	}
	if *in.CuratorialAuth >= w.CuratorialMinLevel {
		score -= w.CuratorialBonus
	}

	return &score
}
