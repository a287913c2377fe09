// Package store persists experiment results to a SQLite database so that
// runs from separate invocations can be listed and compared.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/sim"
)

// DB wraps a SQLite connection for experiment persistence.
type DB struct {
	conn *sqlx.DB
}

// RunRow is one stored run.
type RunRow struct {
	RunID        string `db:"run_id"`
	Experiment   string `db:"experiment"`
	Run          int    `db:"run"`
	Seed         int64  `db:"seed"`
	Interactions int    `db:"interactions"`
	DurationMS   int64  `db:"duration_ms"`
	SavedAt      string `db:"saved_at"`
	Alerts       int    `db:"alerts"`
	Removals     int    `db:"removals"`
	Deaths       int    `db:"deaths"`
}

// FinalRow is one stored end-of-run V2 fraction.
type FinalRow struct {
	RunID      string  `db:"run_id"`
	Location   int     `db:"location"`
	Variant    int     `db:"variant"`
	Utterances int     `db:"utterances"`
	V2Fraction float64 `db:"v2_fraction"`
}

// Open opens (or creates) a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps writes from separate goroutines serialized.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		experiment TEXT NOT NULL,
		run INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		interactions INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		saved_at TEXT NOT NULL,
		alerts INTEGER NOT NULL DEFAULT 0,
		removals INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		params TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS series (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		interaction INTEGER NOT NULL,
		location INTEGER NOT NULL,
		variant INTEGER NOT NULL,
		v2_fraction REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS finals (
		run_id TEXT NOT NULL,
		location INTEGER NOT NULL,
		variant INTEGER NOT NULL,
		utterances INTEGER NOT NULL,
		v2_fraction REAL NOT NULL,
		PRIMARY KEY (run_id, location, variant)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment);
	CREATE INDEX IF NOT EXISTS idx_series_run ON series(run_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveResult stores a finished run, its series and its final fractions in one
// transaction. experiment groups the runs of one invocation.
func (db *DB) SaveResult(experiment string, res sim.Result, params []byte) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c := res.Counts
	_, err = tx.Exec(`INSERT OR REPLACE INTO runs
		(run_id, experiment, run, seed, interactions, duration_ms, saved_at, alerts, removals, deaths, params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, experiment, res.Run, res.Seed, res.Interactions,
		res.Duration.Milliseconds(), time.Now().UTC().Format(time.RFC3339),
		c.Alerts, c.Removals, c.Deaths(), string(params),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM series WHERE run_id = ?", res.RunID); err != nil {
		return err
	}
	series, err := tx.Preparex(`INSERT INTO series
		(run_id, interaction, location, variant, v2_fraction) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer series.Close()
	for _, p := range res.Series {
		if _, err := series.Exec(res.RunID, p.Interaction, p.Location, int(p.Variant), p.V2Fraction); err != nil {
			return fmt.Errorf("insert series point: %w", err)
		}
	}

	finals, err := tx.Preparex(`INSERT OR REPLACE INTO finals
		(run_id, location, variant, utterances, v2_fraction) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer finals.Close()
	for _, f := range res.Finals {
		if _, err := finals.Exec(res.RunID, f.Location, int(f.Variant), f.Utterances, f.V2Fraction); err != nil {
			return fmt.Errorf("insert final: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("run saved", "run_id", res.RunID, "series", len(res.Series), "finals", len(res.Finals))
	return nil
}

// SaveResults stores every run of an experiment and records it as the latest.
func (db *DB) SaveResults(experiment string, results []sim.Result, params []byte) error {
	for _, res := range results {
		if err := db.SaveResult(experiment, res, params); err != nil {
			return fmt.Errorf("save run %d: %w", res.Run, err)
		}
	}
	return db.SaveMeta("last_experiment", experiment)
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// ListRuns returns the stored runs, most recent first. A limit of 0 returns all.
func (db *DB) ListRuns(limit int) ([]RunRow, error) {
	q := `SELECT run_id, experiment, run, seed, interactions, duration_ms, saved_at,
		alerts, removals, deaths FROM runs ORDER BY saved_at DESC, experiment, run`
	var rows []RunRow
	var err error
	if limit > 0 {
		err = db.conn.Select(&rows, q+" LIMIT ?", limit)
	} else {
		err = db.conn.Select(&rows, q)
	}
	return rows, err
}

// Params returns the YAML parameters a run was started with.
func (db *DB) Params(runID string) (string, error) {
	var params string
	err := db.conn.Get(&params, "SELECT params FROM runs WHERE run_id = ?", runID)
	return params, err
}

// Finals returns the final fractions of one run ordered by location and variant.
func (db *DB) Finals(runID string) ([]FinalRow, error) {
	var rows []FinalRow
	err := db.conn.Select(&rows,
		`SELECT run_id, location, variant, utterances, v2_fraction FROM finals
		WHERE run_id = ? ORDER BY location, variant`, runID)
	return rows, err
}

// SeriesLen returns the number of stored series points of one run.
func (db *DB) SeriesLen(runID string) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM series WHERE run_id = ?", runID)
	return n, err
}

// VariantOf converts a stored variant back to its component value.
func (r FinalRow) VariantOf() components.Variant {
	return components.Variant(r.Variant)
}
