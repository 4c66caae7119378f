// Package store is the data access layer for the audit entity graph.
//
// The pipeline writes entities as stages complete and the HTTP layer polls
// jobs by key. The Store receives an already-opened *sql.DB (see dbopen);
// it never opens or owns connections itself.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store wraps the audit database.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Product is one audited product identity.
type Product struct {
	Key              string
	NormalizedURL    string
	Locale           string
	NormalizeVersion string
}

// Snapshot is the stored capture record; Payload is the serialized
// pipeline snapshot (shots, facts, capture errors).
type Snapshot struct {
	Key            string
	ProductKey     string
	CaptureVersion string
	Payload        []byte
}

// ScoreRun is the stored scoring record; Payload is the serialized run
// value (score result, evidence, tickets, recoverable errors).
type ScoreRun struct {
	Key              string
	SnapshotKey      string
	DetectorsVersion string
	ScoringVersion   string
	Total            int
	Payload          []byte
}

// EvidenceRow and TicketRow are the relational projections of the run
// payload, exposed for the report/export read paths.
type EvidenceRow struct {
	ID       string
	Kind     string
	Viewport string
	Label    string
	Seq      int
	Path     string
	SHA256   string
	Note     string
}

type TicketRow struct {
	ID          string
	Pos         int
	Title       string
	Detail      string
	Priority    string
	Category    string
	EvidenceIDs string // JSON array
}

// Job is the externally visible audit job row.
type Job struct {
	Key           string
	RunKey        string
	SnapshotKey   string
	ProductKey    string
	RenderVersion string
	State         string
	Status        string
	Progress      string
	HTMLPath      string
	PDFPath       string
	ErrorsJSON    string
	CreatedAt     int64
	UpdatedAt     int64
}

// UpsertProduct records a product identity. Products are immutable; a
// replayed upsert writes identical values.
func (s *Store) UpsertProduct(ctx context.Context, p Product) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO products (key, normalized_url, locale, normalize_version, created_at)
		VALUES (?,?,?,?,?)`,
		p.Key, p.NormalizedURL, p.Locale, p.NormalizeVersion, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: upsert product: %w", err)
	}
	return nil
}

// UpsertSnapshot records a capture. Immutable per key.
func (s *Store) UpsertSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO snapshots (key, product_key, capture_version, payload, created_at)
		VALUES (?,?,?,?,?)`,
		snap.Key, snap.ProductKey, snap.CaptureVersion, string(snap.Payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: upsert snapshot: %w", err)
	}
	return nil
}

// SaveScoreRun records a run with its evidence and tickets in one
// transaction. Re-saving the same key is a no-op for the run row and a
// full replace for the child rows, which replay identically.
func (s *Store) SaveScoreRun(ctx context.Context, run ScoreRun, evidence []EvidenceRow, tickets []TicketRow) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO score_runs (key, snapshot_key, detectors_version, scoring_version, total, payload, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		run.Key, run.SnapshotKey, run.DetectorsVersion, run.ScoringVersion, run.Total, string(run.Payload), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: insert score run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM evidence WHERE run_key = ?`, run.Key); err != nil {
		return fmt.Errorf("store: clear evidence: %w", err)
	}
	for _, e := range evidence {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO evidence (run_key, id, kind, viewport, label, seq, path, sha256, note)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			run.Key, e.ID, e.Kind, e.Viewport, e.Label, e.Seq, e.Path, e.SHA256, e.Note); err != nil {
			return fmt.Errorf("store: insert evidence %s: %w", e.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE run_key = ?`, run.Key); err != nil {
		return fmt.Errorf("store: clear tickets: %w", err)
	}
	for _, t := range tickets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (run_key, id, pos, title, detail, priority, category, evidence_ids)
			VALUES (?,?,?,?,?,?,?,?)`,
			run.Key, t.ID, t.Pos, t.Title, t.Detail, t.Priority, t.Category, t.EvidenceIDs); err != nil {
			return fmt.Errorf("store: insert ticket %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// SaveJob upserts the full job row. The pipeline calls it on every state
// transition; last write wins, which is safe because concurrent runs of
// the same key walk the same transitions.
func (s *Store) SaveJob(ctx context.Context, j Job) error {
	now := time.Now().Unix()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO audit_jobs (key, run_key, snapshot_key, product_key, render_version,
			state, status, progress, html_path, pdf_path, errors_json, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET
			state = excluded.state,
			status = excluded.status,
			progress = excluded.progress,
			html_path = excluded.html_path,
			pdf_path = excluded.pdf_path,
			errors_json = excluded.errors_json,
			updated_at = excluded.updated_at`,
		j.Key, j.RunKey, j.SnapshotKey, j.ProductKey, j.RenderVersion,
		j.State, j.Status, j.Progress, j.HTMLPath, j.PDFPath, j.ErrorsJSON, now, now)
	if err != nil {
		return fmt.Errorf("store: save job: %w", err)
	}
	return nil
}

// GetJob returns the job for an audit key, or nil when unknown.
func (s *Store) GetJob(ctx context.Context, key string) (*Job, error) {
	var j Job
	err := s.DB.QueryRowContext(ctx, `
		SELECT key, run_key, snapshot_key, product_key, render_version,
			state, status, progress, html_path, pdf_path, errors_json, created_at, updated_at
		FROM audit_jobs WHERE key = ?`, key).Scan(
		&j.Key, &j.RunKey, &j.SnapshotKey, &j.ProductKey, &j.RenderVersion,
		&j.State, &j.Status, &j.Progress, &j.HTMLPath, &j.PDFPath, &j.ErrorsJSON,
		&j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	return &j, nil
}

// ListEvidence returns a run's evidence ordered by sequence.
func (s *Store) ListEvidence(ctx context.Context, runKey string) ([]EvidenceRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, kind, viewport, label, seq, path, sha256, note
		FROM evidence WHERE run_key = ? ORDER BY seq`, runKey)
	if err != nil {
		return nil, fmt.Errorf("store: list evidence: %w", err)
	}
	defer rows.Close()

	var out []EvidenceRow
	for rows.Next() {
		var e EvidenceRow
		if err := rows.Scan(&e.ID, &e.Kind, &e.Viewport, &e.Label, &e.Seq, &e.Path, &e.SHA256, &e.Note); err != nil {
			return nil, fmt.Errorf("store: scan evidence: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListTickets returns a run's tickets in synthesis order.
func (s *Store) ListTickets(ctx context.Context, runKey string) ([]TicketRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, pos, title, detail, priority, category, evidence_ids
		FROM tickets WHERE run_key = ? ORDER BY pos`, runKey)
	if err != nil {
		return nil, fmt.Errorf("store: list tickets: %w", err)
	}
	defer rows.Close()

	var out []TicketRow
	for rows.Next() {
		var t TicketRow
		if err := rows.Scan(&t.ID, &t.Pos, &t.Title, &t.Detail, &t.Priority, &t.Category, &t.EvidenceIDs); err != nil {
			return nil, fmt.Errorf("store: scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
