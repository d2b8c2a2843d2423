// Package history records generator runs in a DuckDB database so ordinal
// drift and dispatch coverage can be compared across runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/jcdickinson/eguinet/internal/pipeline"
)

type DB struct {
	conn *sql.DB
}

func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL UNIQUE,
			started_at TIMESTAMP NOT NULL,
			inputs TEXT NOT NULL,
			state TEXT NOT NULL,
			failure TEXT NOT NULL,
			ordinals INTEGER NOT NULL,
			reserved INTEGER NOT NULL,
			diagnostics INTEGER NOT NULL,
			changed INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS functions (
			run_id TEXT NOT NULL REFERENCES runs(id),
			ordinal INTEGER NOT NULL,
			key TEXT NOT NULL,
			bound BOOLEAN NOT NULL,
			reserved BOOLEAN NOT NULL,
			signature TEXT NOT NULL,
			PRIMARY KEY (run_id, ordinal)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_functions_key ON functions (key)`,

		`CREATE TABLE IF NOT EXISTS diagnostics (
			run_id TEXT NOT NULL REFERENCES runs(id),
			kind TEXT NOT NULL,
			subject TEXT NOT NULL,
			detail TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics (run_id)`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("executing %q: %w", q, err)
		}
	}
	return nil
}

// --- Run operations ---

type Run struct {
	ID          uuid.UUID
	Seq         int
	StartedAt   time.Time
	Inputs      []string
	State       string
	Failure     string
	Ordinals    int
	Reserved    int
	Diagnostics int
	Changed     int
}

// Function is one ordinal slot as a run assigned it. Reserved slots carry
// the key they were reserved for, or their placeholder variant name.
type Function struct {
	Ordinal   uint32
	Key       string
	Bound     bool
	Reserved  bool
	Signature string
}

// Diagnostic is a recorded non-fatal error.
type Diagnostic struct {
	Kind    string
	Subject string
	Detail  string
}

// Record stores a finished or failed run. res may be partial; only what
// the run produced is stored.
func (db *DB) Record(ctx context.Context, inputs []string, p *pipeline.Pipeline, res *pipeline.Result) (*Run, error) {
	run := &Run{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
		Inputs:    inputs,
		State:     p.State().String(),
		Failure:   string(p.Failure()),
	}

	var fns []Function
	var diags []Diagnostic
	if res != nil {
		fns = functionsOf(res)
		for _, d := range res.Diagnostics {
			diags = append(diags, Diagnostic{Kind: string(d.Kind), Subject: d.Subject, Detail: d.Detail})
		}
		for _, c := range res.Changes {
			if c.Change != pipeline.Unchanged {
				run.Changed++
			}
		}
		if res.Enumeration != nil {
			run.Ordinals = res.Enumeration.Len()
			run.Reserved = len(res.Enumeration.Reserved)
		}
	}
	run.Diagnostics = len(diags)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return nil, fmt.Errorf("allocating run sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, seq, started_at, inputs, state, failure, ordinals, reserved, diagnostics, changed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Seq, run.StartedAt, strings.Join(inputs, "\n"), run.State, run.Failure,
		run.Ordinals, run.Reserved, run.Diagnostics, run.Changed,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}

	for _, f := range fns {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO functions (run_id, ordinal, key, bound, reserved, signature) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID.String(), int64(f.Ordinal), f.Key, f.Bound, f.Reserved, f.Signature,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting function %s: %w", f.Key, err)
		}
	}
	for _, d := range diags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO diagnostics (run_id, kind, subject, detail) VALUES (?, ?, ?, ?)`,
			run.ID.String(), d.Kind, d.Subject, d.Detail,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing run: %w", err)
	}
	return run, nil
}

func functionsOf(res *pipeline.Result) []Function {
	if res.Enumeration == nil {
		return nil
	}
	var out []Function
	for _, slot := range res.Enumeration.Slots() {
		if d := slot.Descriptor; d != nil {
			out = append(out, Function{
				Ordinal:   d.Ordinal,
				Key:       d.Key,
				Bound:     d.Bound,
				Signature: d.Signature(),
			})
			continue
		}
		out = append(out, Function{Ordinal: slot.Ordinal, Key: slot.Variant, Reserved: true})
	}
	// Reserved slots that remember their key are recorded under it so drift
	// can follow a function into retirement.
	keys := make(map[uint32]string, len(res.Enumeration.Reserved))
	for _, r := range res.Enumeration.Reserved {
		if r.Key != "" {
			keys[r.Ordinal] = r.Key
		}
	}
	for i := range out {
		if k, ok := keys[out[i].Ordinal]; ok && out[i].Reserved {
			out[i].Key = k
		}
	}
	return out
}

const runColumns = `id, seq, started_at, inputs, state, failure, ordinals, reserved, diagnostics, changed`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var id, inputs string
	if err := row.Scan(&id, &r.Seq, &r.StartedAt, &inputs, &r.State, &r.Failure,
		&r.Ordinals, &r.Reserved, &r.Diagnostics, &r.Changed); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing run id %q: %w", id, err)
	}
	r.ID = parsed
	if inputs != "" {
		r.Inputs = strings.Split(inputs, "\n")
	}
	return &r, nil
}

// Runs lists the most recent runs, newest first.
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given id, or nil.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	r, err := scanRun(db.conn.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// LatestComplete returns the newest run that reached the done state and is
// older than before (zero means any), or nil.
func (db *DB) LatestComplete(ctx context.Context, before int) (*Run, error) {
	if before <= 0 {
		before = int(^uint32(0) >> 1)
	}
	r, err := scanRun(db.conn.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE state = ? AND seq < ? ORDER BY seq DESC LIMIT 1`,
		pipeline.Done.String(), before))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// Functions lists a run's ordinal slots in order.
func (db *DB) Functions(ctx context.Context, runID uuid.UUID) ([]Function, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT ordinal, key, bound, reserved, signature FROM functions WHERE run_id = ? ORDER BY ordinal`,
		runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fns []Function
	for rows.Next() {
		var f Function
		var ordinal int64
		if err := rows.Scan(&ordinal, &f.Key, &f.Bound, &f.Reserved, &f.Signature); err != nil {
			return nil, err
		}
		f.Ordinal = uint32(ordinal)
		fns = append(fns, f)
	}
	return fns, rows.Err()
}

// Diagnostics lists a run's recorded diagnostics.
func (db *DB) Diagnostics(ctx context.Context, runID uuid.UUID) ([]Diagnostic, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT kind, subject, detail FROM diagnostics WHERE run_id = ? ORDER BY kind, subject`,
		runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.Kind, &d.Subject, &d.Detail); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
