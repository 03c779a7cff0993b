package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS run_summaries (
	run_id      TEXT PRIMARY KEY,
	summary     JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS phase_runs (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	phase       TEXT NOT NULL,
	museum_key  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS source_cache (
	museum_key         TEXT NOT NULL,
	phase              TEXT NOT NULL,
	payload            BYTEA,
	upstream_signature TEXT NOT NULL,
	retrieved_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (museum_key, phase)
);

CREATE TABLE IF NOT EXISTS rejections (
	id             BIGSERIAL PRIMARY KEY,
	run_id         TEXT NOT NULL,
	museum_key     TEXT NOT NULL,
	field          TEXT NOT NULL,
	proposed_value JSONB,
	origin         TEXT,
	reason         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_phase_runs_run_id ON phase_runs(run_id);
CREATE INDEX IF NOT EXISTS idx_phase_runs_museum ON phase_runs(museum_key, phase);
CREATE INDEX IF NOT EXISTS idx_rejections_run_id ON rejections(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, sum model.RunSummary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_summaries (run_id, summary, started_at, finished_at) VALUES ($1, $2, $3, $4)`,
		sum.RunID, raw, sum.StartedAt.UTC(), sum.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save summary %s", sum.RunID)
}

func (s *PostgresStore) ListSummaries(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT summary FROM run_summaries ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list summaries")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		var sum model.RunSummary
		if err := json.Unmarshal(raw, &sum); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list summaries iterate")
}

func (s *PostgresStore) InsertPhaseRun(ctx context.Context, pr model.PhaseRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO phase_runs (id, run_id, phase, museum_key, status, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pr.ID, pr.RunID, pr.Phase, pr.MuseumKey, string(pr.Status), nullable(pr.Error), pr.StartedAt.UTC(), pr.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: insert phase run %s", pr.ID)
}

func (s *PostgresStore) FinishPhaseRun(ctx context.Context, id string, status model.PhaseStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE phase_runs SET status = $1, error = $2, finished_at = now()
		 WHERE id = $3 AND status IN ('pending', 'running')`,
		string(status), nullable(errMsg), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish phase run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("phase run not found or already terminal: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListPhaseRuns(ctx context.Context, runID string) ([]model.PhaseRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, phase, museum_key, status, error, started_at, finished_at
		 FROM phase_runs WHERE run_id = $1 ORDER BY started_at, phase, museum_key`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list phase runs")
	}
	defer rows.Close()

	var out []model.PhaseRun
	for rows.Next() {
		var pr model.PhaseRun
		var errMsg *string
		var finished *time.Time
		if err := rows.Scan(&pr.ID, &pr.RunID, &pr.Phase, &pr.MuseumKey, &pr.Status, &errMsg, &pr.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan phase run")
		}
		if errMsg != nil {
			pr.Error = *errMsg
		}
		pr.FinishedAt = finished
		out = append(out, pr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list phase runs iterate")
}

func (s *PostgresStore) GetCacheEntry(ctx context.Context, museumKey, phase string) (*model.CacheEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT museum_key, phase, payload, upstream_signature, retrieved_at
		 FROM source_cache WHERE museum_key = $1 AND phase = $2`,
		museumKey, phase,
	)
	var e model.CacheEntry
	err := row.Scan(&e.MuseumKey, &e.Phase, &e.Payload, &e.UpstreamSignature, &e.RetrievedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cache entry")
	}
	return &e, nil
}

func (s *PostgresStore) PutCacheEntry(ctx context.Context, e model.CacheEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_cache (museum_key, phase, payload, upstream_signature, retrieved_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (museum_key, phase) DO UPDATE SET
			payload = EXCLUDED.payload,
			upstream_signature = EXCLUDED.upstream_signature,
			retrieved_at = EXCLUDED.retrieved_at`,
		e.MuseumKey, e.Phase, e.Payload, e.UpstreamSignature, e.RetrievedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: put cache entry")
}

func (s *PostgresStore) AppendRejections(ctx context.Context, runID string, rejs []model.Rejection) error {
	for _, r := range rejs {
		proposed, err := json.Marshal(r.ProposedValue)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal proposed value")
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO rejections (run_id, museum_key, field, proposed_value, origin, reason)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			runID, r.MuseumKey, r.Field, proposed, nullable(r.Origin), string(r.Reason),
		); err != nil {
			return eris.Wrap(err, "postgres: insert rejection")
		}
	}
	return nil
}

func (s *PostgresStore) ListRejections(ctx context.Context, runID string) ([]model.Rejection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT museum_key, field, proposed_value, origin, reason
		 FROM rejections WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rejections")
	}
	defer rows.Close()

	var out []model.Rejection
	for rows.Next() {
		var r model.Rejection
		var proposed []byte
		var origin *string
		if err := rows.Scan(&r.MuseumKey, &r.Field, &proposed, &origin, &r.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rejection")
		}
		if proposed != nil {
			_ = json.Unmarshal(proposed, &r.ProposedValue)
		}
		if origin != nil {
			r.Origin = *origin
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rejections iterate")
}
