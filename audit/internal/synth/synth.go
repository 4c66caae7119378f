// Package synth turns facts, evidence, and scores into actionable tickets.
//
// Two synthesizers exist: Gemini (the AI collaborator, non-deterministic,
// may fail or partially fail) and Heuristic (pure rule-to-ticket mapping,
// the fallback and the test double). The pipeline treats every synthesis
// failure as recoverable: a run without tickets is degraded, not dead.
package synth

import (
	"context"
	"errors"

	"github.com/hazyhaar/storeaudit/audit/internal/evidence"
	"github.com/hazyhaar/storeaudit/audit/internal/facts"
	"github.com/hazyhaar/storeaudit/audit/internal/score"
)

// ErrPartial is wrapped when the model answered but some tickets were
// unparseable. The returned slice still holds the usable subset.
var ErrPartial = errors.New("synth: partial ticket parse")

// Priority levels, worst first.
const (
	PriorityHigh   = "p1"
	PriorityMedium = "p2"
	PriorityLow    = "p3"
)

// Ticket is one actionable finding referencing supporting evidence.
type Ticket struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Detail      string   `json:"detail"`
	Priority    string   `json:"priority"`
	Category    string   `json:"category"`
	EvidenceIDs []string `json:"evidence_ids,omitempty"`
}

// Input is everything a synthesizer may consult.
type Input struct {
	NormalizedURL string
	Locale        string
	Facts         *facts.Facts
	Score         score.Result
	Evidence      []evidence.Evidence
	HTML          []byte // raw page HTML, optional, for prompt context
}

// Synthesizer produces prioritized tickets for one score run.
type Synthesizer interface {
	Synthesize(ctx context.Context, in Input) ([]Ticket, error)
}
