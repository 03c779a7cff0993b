// Package cache decides whether a source phase needs to run again for a
// museum, based on the recorded upstream signature of its last successful
// fetch.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/store"
)

// Decision says what the orchestrator should do with a (museum, phase) pair.
type Decision string

const (
	// DecisionProcess means the phase must execute: no prior success, the
	// upstream changed, or force was requested.
	DecisionProcess Decision = "process"
	// DecisionSkipCached means a prior result exists and the source reports
	// no signature, so the cached payload stands.
	DecisionSkipCached Decision = "skipped_cached"
	// DecisionSkipUnchanged means the upstream signature matches the
	// watermark recorded at the last success.
	DecisionSkipUnchanged Decision = "skipped_unchanged"
)

// Status converts a skip decision into its phase run status. DecisionProcess
// has no skip status and maps to running.
func (d Decision) Status() model.PhaseStatus {
	switch d {
	case DecisionSkipCached:
		return model.PhaseStatusSkippedCached
	case DecisionSkipUnchanged:
		return model.PhaseStatusSkippedUnchanged
	default:
		return model.PhaseStatusRunning
	}
}

// Manager wraps the store's source_cache table with skip semantics.
type Manager struct {
	store store.Store
}

func NewManager(st store.Store) *Manager {
	return &Manager{store: st}
}

// ShouldProcess returns the decision for one (museum, phase) pair together
// with the cached entry, when one exists. upstreamSig is the signature the
// source reports for its current upstream state; an empty signature means
// the source cannot cheaply tell whether upstream changed.
func (m *Manager) ShouldProcess(ctx context.Context, museumKey, phase, upstreamSig string, force bool) (Decision, *model.CacheEntry, error) {
	if force {
		return DecisionProcess, nil, nil
	}

	entry, err := m.store.GetCacheEntry(ctx, museumKey, phase)
	if err != nil {
		return DecisionProcess, nil, eris.Wrapf(err, "cache: lookup %s/%s", museumKey, phase)
	}
	if entry == nil {
		return DecisionProcess, nil, nil
	}

	if upstreamSig == "" {
		zap.L().Debug("cache hit without upstream signature",
			zap.String("museum", museumKey),
			zap.String("phase", phase))
		return DecisionSkipCached, entry, nil
	}
	if entry.UpstreamSignature == upstreamSig {
		zap.L().Debug("upstream unchanged",
			zap.String("museum", museumKey),
			zap.String("phase", phase),
			zap.String("signature", upstreamSig))
		return DecisionSkipUnchanged, entry, nil
	}
	return DecisionProcess, entry, nil
}

// RecordSuccess stores the payload and signature produced by a successful
// phase execution. Failed executions never touch the watermark, so the next
// run retries them.
func (m *Manager) RecordSuccess(ctx context.Context, museumKey, phase string, payload []byte, upstreamSig string) error {
	err := m.store.PutCacheEntry(ctx, model.CacheEntry{
		MuseumKey:         museumKey,
		Phase:             phase,
		Payload:           payload,
		UpstreamSignature: upstreamSig,
		RetrievedAt:       time.Now().UTC(),
	})
	return eris.Wrapf(err, "cache: record %s/%s", museumKey, phase)
}
