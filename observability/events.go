// Package observability records per-audit run events and worker
// heartbeats into SQLite. Everything here is best effort: a failing
// observability store logs a warning and never blocks the pipeline.
package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/storeaudit/idgen"
)

// RunEvent is one state transition of an audit run.
type RunEvent struct {
	EventID   string
	AuditKey  string
	State     string
	Detail    string
	CreatedAt time.Time
}

// Recorder writes run events.
type Recorder struct {
	db    *sql.DB
	newID idgen.Generator
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) RecorderOption {
	return func(r *Recorder) { r.newID = gen }
}

// NewRecorder creates a recorder backed by the given database.
func NewRecorder(db *sql.DB, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Record persists one transition. Errors are logged via slog but do not
// propagate.
func (r *Recorder) Record(ctx context.Context, auditKey, state, detail string) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO run_events (event_id, audit_key, state, detail, created_at)
		VALUES (?,?,?,?,?)`,
		r.newID(), auditKey, state, detail, time.Now().Unix())
	if err != nil {
		slog.Warn("run event insert failed", "error", err, "audit_key", auditKey, "state", state)
	}
}

// Events returns the transitions of one audit in insertion order.
func (r *Recorder) Events(ctx context.Context, auditKey string) ([]RunEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, audit_key, state, detail, created_at
		FROM run_events WHERE audit_key = ?
		ORDER BY created_at, event_id`, auditKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunEvent
	for rows.Next() {
		var ev RunEvent
		var ts int64
		if err := rows.Scan(&ev.EventID, &ev.AuditKey, &ev.State, &ev.Detail, &ts); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CleanupBefore deletes events older than cutoff and returns the number
// of rows removed.
func (r *Recorder) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM run_events WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
