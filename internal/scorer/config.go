package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ValidateWeights checks that a Weights set is internally consistent.
func ValidateWeights(w Weights) error {
	var errs []string

	if w.MaxScale <= 0 {
		errs = append(errs, "max_scale must be > 0")
	}
	for name, v := range map[string]float64{
		"primary_weight":     w.PrimaryWeight,
		"historical_weight":  w.HistoricalWeight,
		"collection_weight":  w.CollectionWeight,
		"reputation_penalty": w.ReputationPenalty,
		"dual_bonus":         w.DualStrengthBonus,
		"curatorial_bonus":   w.CuratorialBonus,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	if w.DualThreshold < 0 || w.DualThreshold > w.MaxScale {
		errs = append(errs, "dual_threshold must be within [0, max_scale]")
	}
	if w.CuratorialMinLevel < 0 || w.CuratorialMinLevel > w.MaxScale {
		errs = append(errs, "curatorial_min_level must be within [0, max_scale]")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: weight validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
