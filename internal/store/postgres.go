package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sisplade-cli/internal/model"
)

// Pool is the subset of *pgxpool.Pool the Postgres store uses. pgxmock
// pools satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
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

	applyPoolConfig(pgxCfg, poolCfg)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// applyPoolConfig sets pool limits on cfg. Zero fields in poolCfg keep the
// defaults.
func applyPoolConfig(cfg *pgxpool.Config, poolCfg *PoolConfig) {
	// A run writes from a single goroutine; a small pool is enough.
	cfg.MaxConns = 4
	cfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			cfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			cfg.MinConns = poolCfg.MinConns
		}
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status      TEXT NOT NULL DEFAULT 'running',
	id_start    INTEGER NOT NULL,
	id_end      INTEGER NOT NULL,
	start_year  INTEGER NOT NULL,
	end_year    INTEGER NOT NULL,
	collected   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	absent      INTEGER NOT NULL DEFAULT 0,
	output_path TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS records (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	municipio_id INTEGER NOT NULL,
	municipio    TEXT,
	PRIMARY KEY (run_id, municipio_id)
);

CREATE TABLE IF NOT EXISTS incomes (
	run_id       TEXT NOT NULL,
	municipio_id INTEGER NOT NULL,
	year         INTEGER NOT NULL,
	amount       TEXT,
	PRIMARY KEY (run_id, municipio_id, year),
	FOREIGN KEY (run_id, municipio_id) REFERENCES records(run_id, municipio_id)
);

CREATE TABLE IF NOT EXISTS failures (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	municipio_id INTEGER NOT NULL,
	year         INTEGER,
	kind         TEXT NOT NULL,
	message      TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_failures_run_id ON failures(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, scope model.RunScope) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, id_start, id_end, start_year, end_year, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, string(model.RunStatusRunning), scope.IDStart, scope.IDEnd, scope.StartYear, scope.EndYear, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		IDStart:   scope.IDStart,
		IDEnd:     scope.IDEnd,
		StartYear: scope.StartYear,
		EndYear:   scope.EndYear,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary model.RunSummary) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, collected = $2, failed = $3, absent = $4, output_path = $5, error = $6, updated_at = $7
		 WHERE id = $8`,
		string(status), summary.Collected, summary.Failed, summary.Absent, summary.OutputPath, summary.Error,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, status, id_start, id_end, start_year, end_year, collected, failed, absent, output_path, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` WHERE status = $1`
	}
	args = append(args, defaultLimit(filter.Limit), max(filter.Offset, 0))
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveRecord upserts a record and replaces its income cells in one
// transaction.
func (s *PostgresStore) SaveRecord(ctx context.Context, runID string, rec model.MunicipalityRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save record")
	}
	if err := s.saveRecordTx(ctx, tx, runID, rec); err != nil {
		_ = tx.Rollback(ctx)
		return eris.Wrapf(err, "postgres: save record %d", rec.ID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit record")
}

func (s *PostgresStore) saveRecordTx(ctx context.Context, tx pgx.Tx, runID string, rec model.MunicipalityRecord) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO records (run_id, municipio_id, municipio) VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, municipio_id) DO UPDATE SET municipio = EXCLUDED.municipio`,
		runID, rec.ID, nullableText(rec.Municipio),
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM incomes WHERE run_id = $1 AND municipio_id = $2`, runID, rec.ID,
	); err != nil {
		return err
	}

	years := rec.Years()
	amounts := make([]*string, len(years))
	for i, y := range years {
		amounts[i] = nullableText(rec.Income[y])
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO incomes (run_id, municipio_id, year, amount)
		 SELECT $1, $2, y, a FROM unnest($3::int[], $4::text[]) AS t(y, a)`,
		runID, rec.ID, years, amounts,
	)
	return err
}

// LoadRecords returns the run's records ordered by municipality id.
func (s *PostgresStore) LoadRecords(ctx context.Context, runID string) ([]model.MunicipalityRecord, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	years := run.Scope().Years()

	rows, err := s.pool.Query(ctx,
		`SELECT r.municipio_id, r.municipio, i.year, i.amount
		 FROM records r LEFT JOIN incomes i ON i.run_id = r.run_id AND i.municipio_id = r.municipio_id
		 WHERE r.run_id = $1
		 ORDER BY r.municipio_id, i.year`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load records")
	}
	defer rows.Close()

	var recs []model.MunicipalityRecord
	for rows.Next() {
		var id int
		var municipio, amount *string
		var year *int
		if err := rows.Scan(&id, &municipio, &year, &amount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		if len(recs) == 0 || recs[len(recs)-1].ID != id {
			rec := model.NewMunicipalityRecord(id, years)
			rec.Municipio = cellFromNullable(municipio)
			recs = append(recs, rec)
		}
		if year == nil {
			continue
		}
		cur := &recs[len(recs)-1]
		if _, tracked := cur.Income[*year]; tracked {
			cur.Income[*year] = cellFromNullable(amount)
		}
	}
	return recs, eris.Wrap(rows.Err(), "postgres: load records iterate")
}

func (s *PostgresStore) SaveFailure(ctx context.Context, f model.Failure) error {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO failures (id, run_id, municipio_id, year, kind, message, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), f.RunID, f.MunicipioID, nullableYear(f.Year), f.Kind, f.Message, createdAt,
	)
	return eris.Wrapf(err, "postgres: save failure for municipio %d", f.MunicipioID)
}

func (s *PostgresStore) ListFailures(ctx context.Context, runID string) ([]model.Failure, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, municipio_id, year, kind, message, created_at FROM failures
		 WHERE run_id = $1 ORDER BY municipio_id, year NULLS FIRST`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failures")
	}
	defer rows.Close()

	var out []model.Failure
	for rows.Next() {
		f, err := scanFailure(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list failures iterate")
}
