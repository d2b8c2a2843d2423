package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// DriftKind classifies how one key changed between two runs.
type DriftKind string

const (
	// Added keys are new in the later run.
	Added DriftKind = "added"
	// Dropped keys are gone from the later run entirely, reserved slot
	// included. This happens when the ordinal lock was lost.
	Dropped DriftKind = "dropped"
	// Moved keys changed ordinal. Consumers compiled against the earlier
	// run dispatch to the wrong function.
	Moved DriftKind = "moved"
	// Retired keys kept their ordinal as a reserved slot.
	Retired DriftKind = "retired"
	// Restored keys came back into a slot they had reserved.
	Restored DriftKind = "restored"
)

// Drift is one key whose slot differs between two runs. Before and After
// are nil when the key is absent from that run.
type Drift struct {
	Key    string
	Kind   DriftKind
	Before *uint32
	After  *uint32
}

// Breaking reports whether the change invalidates consumers built against
// the earlier run.
func (d Drift) Breaking() bool {
	return d.Kind == Moved || d.Kind == Dropped
}

// Drift compares the function slots of two runs, sorted by key.
func (db *DB) Drift(ctx context.Context, from, to uuid.UUID) ([]Drift, error) {
	rows, err := db.conn.QueryContext(ctx, `
		WITH a AS (SELECT key, ordinal, reserved FROM functions WHERE run_id = ?),
		     b AS (SELECT key, ordinal, reserved FROM functions WHERE run_id = ?)
		SELECT COALESCE(a.key, b.key) AS k, a.ordinal, b.ordinal, a.reserved, b.reserved
		FROM a FULL OUTER JOIN b ON a.key = b.key
		WHERE a.key IS NULL OR b.key IS NULL
		   OR a.ordinal != b.ordinal OR a.reserved != b.reserved
		ORDER BY k`,
		from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("comparing runs: %w", err)
	}
	defer rows.Close()

	var out []Drift
	for rows.Next() {
		var key string
		var before, after sql.NullInt64
		var wasReserved, isReserved sql.NullBool
		if err := rows.Scan(&key, &before, &after, &wasReserved, &isReserved); err != nil {
			return nil, err
		}
		d := Drift{Key: key, Before: ordinalPtr(before), After: ordinalPtr(after)}
		switch {
		case !before.Valid:
			d.Kind = Added
		case !after.Valid:
			d.Kind = Dropped
		case before.Int64 != after.Int64:
			d.Kind = Moved
		case isReserved.Bool:
			d.Kind = Retired
		default:
			d.Kind = Restored
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func ordinalPtr(n sql.NullInt64) *uint32 {
	if !n.Valid {
		return nil
	}
	v := uint32(n.Int64)
	return &v
}

// Coverage summarises a run's dispatch table.
type Coverage struct {
	Bound    int
	Unbound  int
	Reserved int
	// UnboundKeys are the functions with an ordinal but no invoker, sorted.
	UnboundKeys []string
}

// Coverage counts the bound, unbound and reserved slots of a run.
func (db *DB) Coverage(ctx context.Context, runID uuid.UUID) (*Coverage, error) {
	var c Coverage
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE bound AND NOT reserved),
		       COUNT(*) FILTER (WHERE NOT bound AND NOT reserved),
		       COUNT(*) FILTER (WHERE reserved)
		FROM functions WHERE run_id = ?`, runID.String(),
	).Scan(&c.Bound, &c.Unbound, &c.Reserved)
	if err != nil {
		return nil, fmt.Errorf("counting coverage: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT key FROM functions WHERE run_id = ? AND NOT bound AND NOT reserved ORDER BY key`,
		runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		c.UnboundKeys = append(c.UnboundKeys, key)
	}
	return &c, rows.Err()
}
