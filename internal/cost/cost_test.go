package cost

import (
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_ClaudeAccumulates(t *testing.T) {
	tr := NewTracker(DefaultRates(), 0)

	require.NoError(t, tr.Claude("claude-haiku-4-5-20251001", 1_000_000, 500_000))
	assert.InDelta(t, 0.80+2.00, tr.Spent(), 1e-9)

	require.NoError(t, tr.Claude("claude-haiku-4-5-20251001", 1_000_000, 0))
	assert.InDelta(t, 0.80+2.00+0.80, tr.Spent(), 1e-9)
}

func TestTracker_UnknownModel(t *testing.T) {
	tr := NewTracker(DefaultRates(), 0)
	err := tr.Claude("claude-nonexistent", 1000, 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rate for model")
}

func TestTracker_BudgetExceeded(t *testing.T) {
	tr := NewTracker(DefaultRates(), 1.00)

	// 0.80 USD, under the 1.00 ceiling.
	require.NoError(t, tr.Claude("claude-haiku-4-5-20251001", 1_000_000, 0))
	assert.False(t, tr.Exceeded())

	// Crosses the ceiling; the crossing call reports the error but is
	// still recorded.
	err := tr.Claude("claude-haiku-4-5-20251001", 1_000_000, 0)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrBudgetExceeded))
	assert.True(t, tr.Exceeded())
	assert.InDelta(t, 1.60, tr.Spent(), 1e-9)
}

func TestTracker_ZeroLimitUnmetered(t *testing.T) {
	tr := NewTracker(DefaultRates(), 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, tr.Claude("claude-sonnet-4-5-20250929", 1_000_000, 1_000_000))
	}
	assert.False(t, tr.Exceeded())
}

func TestTracker_ConcurrentAdds(t *testing.T) {
	tr := NewTracker(DefaultRates(), 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Claude("claude-haiku-4-5-20251001", 1_000_000, 0)
		}()
	}
	wg.Wait()
	assert.InDelta(t, 50*0.80, tr.Spent(), 1e-9)
}
