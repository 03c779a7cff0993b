// Package store persists run history, phase-run state, the per-(museum,
// phase) source cache, and the rejection log. Two backends: sqlite (default,
// local file) and postgres.
package store

import (
	"context"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
)

// Store is the persistence boundary used by the orchestrator and the cache
// layer.
type Store interface {
	Migrate(ctx context.Context) error
	Close() error

	// Run summaries. Summaries are write-once: SaveSummary inserts, never
	// updates.
	SaveSummary(ctx context.Context, s model.RunSummary) error
	ListSummaries(ctx context.Context, limit int) ([]model.RunSummary, error)

	// Phase runs. Terminal rows are immutable; re-running a phase inserts a
	// fresh row with a new ID.
	InsertPhaseRun(ctx context.Context, pr model.PhaseRun) error
	FinishPhaseRun(ctx context.Context, id string, status model.PhaseStatus, errMsg string) error
	ListPhaseRuns(ctx context.Context, runID string) ([]model.PhaseRun, error)

	// Source cache, keyed (museum_key, phase).
	GetCacheEntry(ctx context.Context, museumKey, phase string) (*model.CacheEntry, error)
	PutCacheEntry(ctx context.Context, e model.CacheEntry) error

	// Rejection log, appended per run.
	AppendRejections(ctx context.Context, runID string, rejs []model.Rejection) error
	ListRejections(ctx context.Context, runID string) ([]model.Rejection, error)
}
