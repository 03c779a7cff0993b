package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/scorer"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

// Scorer computes the derived ranking fields for one record. Implementations
// must be pure: no clock, no I/O, identical output for identical input.
type Scorer interface {
	Score(m model.Museum) (rank *float64, version string)
}

type weightScorer struct {
	weights scorer.Weights
}

// DefaultScorer scores with the current weight set.
func DefaultScorer() Scorer {
	return weightScorer{weights: scorer.DefaultWeights()}
}

// NewScorer scores with explicit weights.
func NewScorer(w scorer.Weights) Scorer {
	return weightScorer{weights: w}
}

func (s weightScorer) Score(m model.Museum) (*float64, string) {
	return scorer.Compute(scorer.InputsFrom(m), s.weights), scorer.ScoringVersion
}

// runScore executes the built-in score phase. Unlike the evidence phases it
// never touches the cache or the network; it recomputes derived fields for
// every museum and writes them directly, since derived fields are owned by
// this phase alone.
func (p *Pipeline) runScore(rs *runState, phase Phase) error {
	log := zap.L().With(zap.String("run_id", rs.summary.RunID), zap.String("phase", phase.Name))
	log.Info("phase starting")

	now := time.Now().UTC()
	scored := 0

	rs.mu.Lock()
	defer rs.mu.Unlock()

	for _, m := range rs.museums {
		rank, version := p.scorer.Score(*m)
		if rank == nil {
			// Incomplete scoring inputs: leave any previously derived score
			// untouched rather than fabricating one.
			continue
		}
		prev := m.FloatField("rank_score")
		if prev != nil && *prev == *rank && m.StringField("scoring_version") == version {
			continue
		}

		env := model.FieldEnvelope{
			Origin:      phase.Name,
			Trust:       trust.StructuredSite,
			Confidence:  5,
			RetrievedAt: now,
		}
		env.Value = *rank
		m.SetField("rank_score", env)
		env.Value = version
		m.SetField("scoring_version", env)
		m.UpdatedAt = now

		rs.dirty[m.Partition] = true
		rs.summary.Updated++
		scored++
	}
	rs.summary.Processed += len(rs.museums)

	log.Info("phase complete", zap.Int("scored", scored))
	return nil
}
