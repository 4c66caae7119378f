// Package audit runs reproducible quality audits of storefront product
// pages.
//
// One audit captures the page across viewports, extracts a typed fact
// set, scores it against weighted rule categories, synthesizes fix
// tickets and renders an HTML report. Every stage is memoized under a
// content-addressed key, so re-auditing an unchanged page replays from
// cache byte for byte.
package audit

import (
	"github.com/hazyhaar/storeaudit/audit/internal/capture"
	"github.com/hazyhaar/storeaudit/audit/internal/evidence"
	"github.com/hazyhaar/storeaudit/audit/internal/pipeline"
	"github.com/hazyhaar/storeaudit/audit/internal/score"
	"github.com/hazyhaar/storeaudit/audit/internal/synth"
)

// Re-export pipeline and stage types for the public API.
type (
	Result       = pipeline.Result
	Keys         = pipeline.Keys
	StageError   = pipeline.StageError
	ErrorCode    = pipeline.ErrorCode
	RunStatus    = pipeline.RunStatus
	State        = pipeline.State
	Completeness = pipeline.Completeness
	ReportMeta   = pipeline.ReportMeta
	Versions     = pipeline.Versions

	Viewport = capture.Viewport
	Evidence = evidence.Evidence
	Ticket   = synth.Ticket
	Score    = score.Result
)

const (
	StatusOK       = pipeline.StatusOK
	StatusDegraded = pipeline.StatusDegraded
	StatusFailed   = pipeline.StatusFailed
)
