package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sisplade-cli/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
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
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
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
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	municipio_id INTEGER NOT NULL,
	year         INTEGER,
	kind         TEXT NOT NULL,
	message      TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_failures_run_id ON failures(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, scope model.RunScope) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, id_start, id_end, start_year, end_year, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), scope.IDStart, scope.IDEnd, scope.StartYear, scope.EndYear, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary model.RunSummary) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, collected = ?, failed = ?, absent = ?, output_path = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		string(status), summary.Collected, summary.Failed, summary.Absent, summary.OutputPath, summary.Error,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunColumns = `id, status, id_start, id_end, start_year, end_year, collected, failed, absent, output_path, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveRecord upserts a record and replaces its income cells.
func (s *SQLiteStore) SaveRecord(ctx context.Context, runID string, rec model.MunicipalityRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save record")
	}
	if err := saveRecordTx(ctx, tx, runID, rec); err != nil {
		tx.Rollback() //nolint:errcheck
		return eris.Wrapf(err, "sqlite: save record %d", rec.ID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit record")
}

func saveRecordTx(ctx context.Context, tx *sql.Tx, runID string, rec model.MunicipalityRecord) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records (run_id, municipio_id, municipio) VALUES (?, ?, ?)
		 ON CONFLICT (run_id, municipio_id) DO UPDATE SET municipio = excluded.municipio`,
		runID, rec.ID, nullableText(rec.Municipio),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM incomes WHERE run_id = ? AND municipio_id = ?`, runID, rec.ID,
	); err != nil {
		return err
	}
	for _, y := range rec.Years() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO incomes (run_id, municipio_id, year, amount) VALUES (?, ?, ?, ?)`,
			runID, rec.ID, y, nullableText(rec.Income[y]),
		); err != nil {
			return err
		}
	}
	return nil
}

// LoadRecords returns the run's records ordered by municipality id. Every
// year of the run's scope is present; years with no stored cell are absent.
func (s *SQLiteStore) LoadRecords(ctx context.Context, runID string) ([]model.MunicipalityRecord, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	years := run.Scope().Years()

	rows, err := s.db.QueryContext(ctx,
		`SELECT municipio_id, municipio FROM records WHERE run_id = ? ORDER BY municipio_id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load records")
	}
	var recs []model.MunicipalityRecord
	index := map[int]int{}
	for rows.Next() {
		var id int
		var municipio *string
		if err := rows.Scan(&id, &municipio); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		rec := model.NewMunicipalityRecord(id, years)
		rec.Municipio = cellFromNullable(municipio)
		index[id] = len(recs)
		recs = append(recs, rec)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load records iterate")
	}

	incomes, err := s.db.QueryContext(ctx,
		`SELECT municipio_id, year, amount FROM incomes WHERE run_id = ?`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load incomes")
	}
	defer incomes.Close() //nolint:errcheck
	for incomes.Next() {
		var id, year int
		var amount *string
		if err := incomes.Scan(&id, &year, &amount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan income")
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		if _, tracked := recs[i].Income[year]; tracked {
			recs[i].Income[year] = cellFromNullable(amount)
		}
	}
	return recs, eris.Wrap(incomes.Err(), "sqlite: load incomes iterate")
}

func (s *SQLiteStore) SaveFailure(ctx context.Context, f model.Failure) error {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures (id, run_id, municipio_id, year, kind, message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), f.RunID, f.MunicipioID, nullableYear(f.Year), f.Kind, f.Message, createdAt,
	)
	return eris.Wrapf(err, "sqlite: save failure for municipio %d", f.MunicipioID)
}

func (s *SQLiteStore) ListFailures(ctx context.Context, runID string) ([]model.Failure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, municipio_id, year, kind, message, created_at FROM failures
		 WHERE run_id = ? ORDER BY municipio_id, year`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failures")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Failure
	for rows.Next() {
		f, err := scanFailure(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list failures iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	err := row.Scan(&r.ID, &r.Status, &r.IDStart, &r.IDEnd, &r.StartYear, &r.EndYear,
		&r.Collected, &r.Failed, &r.Absent, &r.OutputPath, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanFailure(row scannable) (model.Failure, error) {
	var f model.Failure
	var year *int
	if err := row.Scan(&f.RunID, &f.MunicipioID, &year, &f.Kind, &f.Message, &f.CreatedAt); err != nil {
		return f, err
	}
	if year != nil {
		f.Year = *year
	}
	return f, nil
}
