package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetCacheEntry_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT museum_key, phase, payload, upstream_signature, retrieved_at`).
		WithArgs("mo-stl-artmuseum", "wikidata").
		WillReturnError(pgx.ErrNoRows)

	entry, err := s.GetCacheEntry(context.Background(), "mo-stl-artmuseum", "wikidata")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutCacheEntry_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("mo-stl-artmuseum", "geocode", pgxmock.AnyArg(), "etag:abc123", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutCacheEntry(context.Background(), model.CacheEntry{
		MuseumKey:         "mo-stl-artmuseum",
		Phase:             "geocode",
		Payload:           []byte(`{"lat":38.6396}`),
		UpstreamSignature: "etag:abc123",
		RetrievedAt:       time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishPhaseRun_AlreadyTerminal(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE phase_runs SET status`).
		WithArgs("success", nil, "pr-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishPhaseRun(context.Background(), "pr-1", model.PhaseStatusSuccess, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already terminal")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishPhaseRun_Success(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE phase_runs SET status`).
		WithArgs("failed", "census geocoder unavailable", "pr-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishPhaseRun(context.Background(), "pr-2", model.PhaseStatusFailed, "census geocoder unavailable")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSummary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO run_summaries`).
		WithArgs("run-20260830", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveSummary(context.Background(), model.RunSummary{
		RunID:      "run-20260830",
		Processed:  12,
		Updated:    4,
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
