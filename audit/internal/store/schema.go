package store

// Schema is the audit entity graph. Entities are keyed by their derived
// content-addressed keys and written append-only, except audit_jobs whose
// state fields advance during a run. Applied idempotently at open.
const Schema = `
-- What product is being audited, independent of when
CREATE TABLE IF NOT EXISTS products (
    key               TEXT PRIMARY KEY,
    normalized_url    TEXT NOT NULL,
    locale            TEXT NOT NULL,
    normalize_version TEXT NOT NULL,
    created_at        INTEGER NOT NULL
);

-- One capture attempt under one capture-logic version
CREATE TABLE IF NOT EXISTS snapshots (
    key             TEXT PRIMARY KEY,
    product_key     TEXT NOT NULL REFERENCES products(key) ON DELETE CASCADE,
    capture_version TEXT NOT NULL,
    payload         TEXT NOT NULL,
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_product ON snapshots(product_key);

-- Scoring + synthesis output for one snapshot under fixed logic versions
CREATE TABLE IF NOT EXISTS score_runs (
    key               TEXT PRIMARY KEY,
    snapshot_key      TEXT NOT NULL REFERENCES snapshots(key) ON DELETE CASCADE,
    detectors_version TEXT NOT NULL,
    scoring_version   TEXT NOT NULL,
    total             INTEGER NOT NULL,
    payload           TEXT NOT NULL,
    created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_score_runs_snapshot ON score_runs(snapshot_key);

CREATE TABLE IF NOT EXISTS evidence (
    run_key  TEXT NOT NULL REFERENCES score_runs(key) ON DELETE CASCADE,
    id       TEXT NOT NULL,
    kind     TEXT NOT NULL,
    viewport TEXT NOT NULL DEFAULT '',
    label    TEXT NOT NULL DEFAULT '',
    seq      INTEGER NOT NULL,
    path     TEXT NOT NULL DEFAULT '',
    sha256   TEXT NOT NULL DEFAULT '',
    note     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_key, id)
);

CREATE TABLE IF NOT EXISTS tickets (
    run_key      TEXT NOT NULL REFERENCES score_runs(key) ON DELETE CASCADE,
    id           TEXT NOT NULL,
    pos          INTEGER NOT NULL,
    title        TEXT NOT NULL,
    detail       TEXT NOT NULL DEFAULT '',
    priority     TEXT NOT NULL,
    category     TEXT NOT NULL DEFAULT '',
    evidence_ids TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (run_key, id)
);

-- Externally visible job: the only mutable row, advanced by the pipeline
CREATE TABLE IF NOT EXISTS audit_jobs (
    key            TEXT PRIMARY KEY,
    run_key        TEXT NOT NULL,
    snapshot_key   TEXT NOT NULL,
    product_key    TEXT NOT NULL,
    render_version TEXT NOT NULL,
    state          TEXT NOT NULL,
    status         TEXT NOT NULL,
    progress       TEXT NOT NULL DEFAULT '',
    html_path      TEXT NOT NULL DEFAULT '',
    pdf_path       TEXT NOT NULL DEFAULT '',
    errors_json    TEXT NOT NULL DEFAULT '[]',
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);
`
