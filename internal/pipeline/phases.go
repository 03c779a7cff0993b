package pipeline

import (
	"time"

	"github.com/markhazleton/MuseumSpark-sub000/internal/source"
)

// judgmentDelay paces model API calls between museums.
const judgmentDelay = 500 * time.Millisecond

// Sources bundles the evidence sources behind the standard phase order. A
// nil source drops its phase from the run, which lets a deployment omit
// integrations it has no credentials for.
type Sources struct {
	Registry  source.Source
	Geocode   source.Source
	Region    source.Source
	Wikidata  source.Source
	Judgment  source.Source
	Overrides source.Source
}

// DefaultPhases returns the standard phase order:
// registry, geocode, region, wikidata, llm_judgment, overrides, score.
// Registry is required because every later phase builds on its identity and
// address fields; the rest degrade to partial enrichment on failure.
func DefaultPhases(s Sources) []Phase {
	var phases []Phase
	add := func(name string, src source.Source, required bool) {
		if src != nil {
			phases = append(phases, Phase{Name: name, Required: required, Source: src})
		}
	}
	add("registry", s.Registry, true)
	add("geocode", s.Geocode, false)
	add("region", s.Region, false)
	add("wikidata", s.Wikidata, false)
	if s.Judgment != nil {
		// The model API has no client-side limiter; pace calls instead.
		phases = append(phases, Phase{Name: "llm_judgment", Source: s.Judgment, Delay: judgmentDelay})
	}
	add("overrides", s.Overrides, false)
	phases = append(phases, Phase{Name: PhaseScore, Required: true})
	return phases
}
