package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS run_summaries (
	run_id      TEXT PRIMARY KEY,
	summary     TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS phase_runs (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	phase       TEXT NOT NULL,
	museum_key  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	error       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS source_cache (
	museum_key         TEXT NOT NULL,
	phase              TEXT NOT NULL,
	payload            BLOB,
	upstream_signature TEXT NOT NULL,
	retrieved_at       DATETIME NOT NULL,
	PRIMARY KEY (museum_key, phase)
);

CREATE TABLE IF NOT EXISTS rejections (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	museum_key     TEXT NOT NULL,
	field          TEXT NOT NULL,
	proposed_value TEXT,
	origin         TEXT,
	reason         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_phase_runs_run_id ON phase_runs(run_id);
CREATE INDEX IF NOT EXISTS idx_phase_runs_museum ON phase_runs(museum_key, phase);
CREATE INDEX IF NOT EXISTS idx_rejections_run_id ON rejections(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, sum model.RunSummary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_summaries (run_id, summary, started_at, finished_at) VALUES (?, ?, ?, ?)`,
		sum.RunID, string(raw), sum.StartedAt.UTC(), sum.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save summary %s", sum.RunID)
}

func (s *SQLiteStore) ListSummaries(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT summary FROM run_summaries ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list summaries")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		var sum model.RunSummary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list summaries iterate")
}

func (s *SQLiteStore) InsertPhaseRun(ctx context.Context, pr model.PhaseRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO phase_runs (id, run_id, phase, museum_key, status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pr.ID, pr.RunID, pr.Phase, pr.MuseumKey, string(pr.Status), nullable(pr.Error), pr.StartedAt.UTC(), pr.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: insert phase run %s", pr.ID)
}

func (s *SQLiteStore) FinishPhaseRun(ctx context.Context, id string, status model.PhaseStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE phase_runs SET status = ?, error = ?, finished_at = ?
		 WHERE id = ? AND status IN ('pending', 'running')`,
		string(status), nullable(errMsg), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish phase run %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("phase run not found or already terminal: %s", id)
	}
	return nil
}

func (s *SQLiteStore) ListPhaseRuns(ctx context.Context, runID string) ([]model.PhaseRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, phase, museum_key, status, error, started_at, finished_at
		 FROM phase_runs WHERE run_id = ? ORDER BY started_at, phase, museum_key`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list phase runs")
	}
	defer rows.Close()

	var out []model.PhaseRun
	for rows.Next() {
		var pr model.PhaseRun
		var errMsg sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&pr.ID, &pr.RunID, &pr.Phase, &pr.MuseumKey, &pr.Status, &errMsg, &pr.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan phase run")
		}
		pr.Error = errMsg.String
		if finished.Valid {
			t := finished.Time
			pr.FinishedAt = &t
		}
		out = append(out, pr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list phase runs iterate")
}

func (s *SQLiteStore) GetCacheEntry(ctx context.Context, museumKey, phase string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT museum_key, phase, payload, upstream_signature, retrieved_at
		 FROM source_cache WHERE museum_key = ? AND phase = ?`,
		museumKey, phase,
	)
	var e model.CacheEntry
	err := row.Scan(&e.MuseumKey, &e.Phase, &e.Payload, &e.UpstreamSignature, &e.RetrievedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cache entry")
	}
	return &e, nil
}

func (s *SQLiteStore) PutCacheEntry(ctx context.Context, e model.CacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_cache (museum_key, phase, payload, upstream_signature, retrieved_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (museum_key, phase) DO UPDATE SET
			payload = excluded.payload,
			upstream_signature = excluded.upstream_signature,
			retrieved_at = excluded.retrieved_at`,
		e.MuseumKey, e.Phase, e.Payload, e.UpstreamSignature, e.RetrievedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: put cache entry")
}

func (s *SQLiteStore) AppendRejections(ctx context.Context, runID string, rejs []model.Rejection) error {
	if len(rejs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin rejections tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rejections (run_id, museum_key, field, proposed_value, origin, reason)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare rejection insert")
	}
	defer stmt.Close()

	for _, r := range rejs {
		proposed, err := json.Marshal(r.ProposedValue)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal proposed value")
		}
		if _, err := stmt.ExecContext(ctx, runID, r.MuseumKey, r.Field, string(proposed), r.Origin, string(r.Reason)); err != nil {
			return eris.Wrap(err, "sqlite: insert rejection")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit rejections")
}

func (s *SQLiteStore) ListRejections(ctx context.Context, runID string) ([]model.Rejection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT museum_key, field, proposed_value, origin, reason
		 FROM rejections WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rejections")
	}
	defer rows.Close()

	var out []model.Rejection
	for rows.Next() {
		var r model.Rejection
		var proposed sql.NullString
		var origin sql.NullString
		if err := rows.Scan(&r.MuseumKey, &r.Field, &proposed, &origin, &r.Reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rejection")
		}
		if proposed.Valid {
			_ = json.Unmarshal([]byte(proposed.String), &r.ProposedValue)
		}
		r.Origin = origin.String
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rejections iterate")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
