package pipeline

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hazyhaar/storeaudit/ckey"
)

// Versions is the immutable registry of every logic-version constant the
// pipeline consults. Key derivation reads versions ONLY from here, so the
// invalidation contract lives in a single place: bump a constant below and
// exactly the stages keyed on it recompute.
type Versions struct {
	Normalize      string `json:"normalize"`
	Capture        string `json:"capture"`
	Detectors      string `json:"detectors"`
	Scoring        string `json:"scoring"`
	Render         string `json:"render"`
	ReportOutline  string `json:"report_outline"`
	TicketSchema   string `json:"ticket_schema"`
	EvidenceSchema string `json:"evidence_schema"`
	ExportFormat   string `json:"export_format"`
}

// CurrentVersions returns the built-in logic versions.
func CurrentVersions() Versions {
	return Versions{
		Normalize:      "n2",
		Capture:        "c3",
		Detectors:      "d5",
		Scoring:        "s4",
		Render:         "r2",
		ReportOutline:  "o2",
		TicketSchema:   "t2",
		EvidenceSchema: "e2",
		ExportFormat:   "x1",
	}
}

// WithDetectorOverlay folds a scoring weight-overlay fingerprint into the
// detectors version. Overridden weights change scoring outcomes exactly
// like a detectors change would, so they must invalidate run keys too.
func (v Versions) WithDetectorOverlay(fingerprint string) Versions {
	if fingerprint == "" {
		return v
	}
	sum := sha256.Sum256([]byte(fingerprint))
	v.Detectors = v.Detectors + "+" + hex.EncodeToString(sum[:4])
	return v
}

// Map renders the registry for the external result payload.
func (v Versions) Map() map[string]string {
	return map[string]string{
		"normalize":       v.Normalize,
		"capture":         v.Capture,
		"detectors":       v.Detectors,
		"scoring":         v.Scoring,
		"render":          v.Render,
		"report_outline":  v.ReportOutline,
		"ticket_schema":   v.TicketSchema,
		"evidence_schema": v.EvidenceSchema,
		"export_format":   v.ExportFormat,
	}
}

// Keys is the derived key chain for one request.
type Keys struct {
	Product  ckey.Key `json:"product_key"`
	Snapshot ckey.Key `json:"snapshot_key"`
	Run      ckey.Key `json:"run_key"`
	Audit    ckey.Key `json:"audit_key"`
}

// DeriveKeys computes the full chain upfront. Every key is derivable
// before any stage runs because each embeds only upstream keys and
// version constants, never stage output.
func DeriveKeys(normalizedURL, locale string, v Versions) Keys {
	product := ckey.Derive("product", normalizedURL, locale, v.Normalize)
	snapshot := ckey.Derive("snapshot", product.String(), v.Capture)
	run := ckey.Derive("run", snapshot.String(), v.Detectors, v.Scoring)
	auditKey := ckey.Derive("audit", run.String(), v.Render)
	return Keys{Product: product, Snapshot: snapshot, Run: run, Audit: auditKey}
}
