// Package cost meters paid API usage during a run and enforces the run
// budget.
package cost

import (
	"sync"

	"github.com/rotisserie/eris"
)

// ErrBudgetExceeded aborts a run once spend reaches the configured ceiling.
// Callers match it with eris.Is.
var ErrBudgetExceeded = eris.New("budget_exceeded")

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode   GeocodeRate          `yaml:"geocode" mapstructure:"geocode"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// GeocodeRate holds per-query geocoding pricing. The Census endpoint is
// free, so the default is zero; paid fallbacks override it in config.
type GeocodeRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Geocode: GeocodeRate{PerQuery: 0},
	}
}

// Tracker accumulates spend across a run. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	rates Rates
	limit float64 // USD; <= 0 disables the ceiling
	spent float64
}

// NewTracker creates a tracker with a budget ceiling in USD. A non-positive
// limit means unmetered.
func NewTracker(rates Rates, limitUSD float64) *Tracker {
	return &Tracker{rates: rates, limit: limitUSD}
}

// Claude records the cost of one Claude API call and returns
// ErrBudgetExceeded once cumulative spend reaches the ceiling. The call that
// crosses the line is still recorded; its result is kept.
func (t *Tracker) Claude(model string, inputTokens, outputTokens int) error {
	rate, ok := t.rates.Anthropic[model]
	if !ok {
		return eris.Errorf("cost: no rate for model %s", model)
	}
	usd := (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
	return t.add(usd)
}

// GeocodeQuery records one geocoding query.
func (t *Tracker) GeocodeQuery() error {
	return t.add(t.rates.Geocode.PerQuery)
}

func (t *Tracker) add(usd float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent += usd
	if t.limit > 0 && t.spent >= t.limit {
		return ErrBudgetExceeded
	}
	return nil
}

// Spent returns cumulative spend in USD.
func (t *Tracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// Exceeded reports whether the ceiling has been reached.
func (t *Tracker) Exceeded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit > 0 && t.spent >= t.limit
}
