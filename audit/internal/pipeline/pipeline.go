// Package pipeline runs one audit end to end: derive the key chain,
// walk the stage state machine, memoize each stage under its
// content-addressed key, and aggregate the outcome.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/storeaudit/audit/internal/capture"
	"github.com/hazyhaar/storeaudit/audit/internal/evidence"
	"github.com/hazyhaar/storeaudit/audit/internal/facts"
	"github.com/hazyhaar/storeaudit/audit/internal/render"
	"github.com/hazyhaar/storeaudit/audit/internal/score"
	"github.com/hazyhaar/storeaudit/audit/internal/store"
	"github.com/hazyhaar/storeaudit/audit/internal/synth"
	"github.com/hazyhaar/storeaudit/memo"
)

// Config tunes one pipeline instance. Zero values get defaults().
type Config struct {
	Viewports []capture.Viewport

	// MinCompleteness is the evidence floor for an ok status: a run whose
	// completeness grades below it degrades even with zero stage errors.
	MinCompleteness Completeness

	CaptureTimeout time.Duration
	SynthTimeout   time.Duration
	RenderTimeout  time.Duration
}

func (c *Config) defaults() {
	if len(c.Viewports) == 0 {
		c.Viewports = capture.DefaultViewports()
	}
	if c.MinCompleteness == "" {
		c.MinCompleteness = CompletenessSufficient
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 90 * time.Second
	}
	if c.SynthTimeout <= 0 {
		c.SynthTimeout = 60 * time.Second
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 30 * time.Second
	}
}

// EventRecorder receives state transitions for the run-event log.
// Recording is best effort; implementations must not block the run.
type EventRecorder interface {
	Record(ctx context.Context, auditKey, state, detail string)
}

// Deps are the pipeline's collaborators. Store and Events may be nil for
// a purely in-memory pipeline.
type Deps struct {
	Cache      *memo.Cache
	Store      *store.Store
	Capturer   capture.Capturer
	Synth      synth.Synthesizer
	Renderer   render.Renderer
	Categories []score.Category
	Versions   Versions
	Events     EventRecorder
	Logger     *slog.Logger
}

type Pipeline struct {
	cfg        Config
	cache      *memo.Cache
	store      *store.Store
	capturer   capture.Capturer
	synth      synth.Synthesizer
	renderer   render.Renderer
	categories []score.Category
	versions   Versions
	events     EventRecorder
	logger     *slog.Logger
}

func New(cfg Config, deps Deps) *Pipeline {
	cfg.defaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if len(deps.Categories) == 0 {
		deps.Categories = score.DefaultCategories()
	}
	if deps.Versions == (Versions{}) {
		deps.Versions = CurrentVersions()
	}
	return &Pipeline{
		cfg:        cfg,
		cache:      deps.Cache,
		store:      deps.Store,
		capturer:   deps.Capturer,
		synth:      deps.Synth,
		renderer:   deps.Renderer,
		categories: deps.Categories,
		versions:   deps.Versions,
		events:     deps.Events,
		logger:     deps.Logger,
	}
}

// Versions exposes the active registry, post overlay folding.
func (p *Pipeline) Versions() Versions { return p.versions }

// SnapshotVal is the cached capture-stage value. Recoverable capture
// errors live inside it so a replay reproduces the degraded outcome.
type SnapshotVal struct {
	Key           string                 `json:"key"`
	ProductKey    string                 `json:"product_key"`
	NormalizedURL string                 `json:"normalized_url"`
	Locale        string                 `json:"locale"`
	Mode          string                 `json:"mode"`
	StatusCode    int                    `json:"status_code"`
	HTMLPath      string                 `json:"html_path,omitempty"`
	HTMLSHA256    string                 `json:"html_sha256,omitempty"`
	Shots         []capture.ViewportShot `json:"shots"`
	Facts         *facts.Facts           `json:"facts,omitempty"`
	FactsPresent  bool                   `json:"facts_present"`
	CapturedAt    time.Time              `json:"captured_at"`
	Errors        []StageError           `json:"errors,omitempty"`
}

// RunVal is the cached scoring/synthesis-stage value.
type RunVal struct {
	Key         string              `json:"key"`
	SnapshotKey string              `json:"snapshot_key"`
	Score       score.Result        `json:"score"`
	Evidence    []evidence.Evidence `json:"evidence"`
	Tickets     []synth.Ticket      `json:"tickets,omitempty"`
	Errors      []StageError        `json:"errors,omitempty"`
}

// RenderVal is the cached render-stage value.
type RenderVal struct {
	Key      string       `json:"key"`
	HTMLPath string       `json:"html_path"`
	PDFPath  string       `json:"pdf_path,omitempty"`
	Errors   []StageError `json:"errors,omitempty"`
}

// ReportMeta describes the report for the result payload.
type ReportMeta struct {
	NormalizedURL        string       `json:"normalized_url"`
	Locale               string       `json:"locale"`
	Mode                 string       `json:"mode,omitempty"`
	CapturedAt           time.Time    `json:"captured_at,omitzero"`
	EvidenceCompleteness Completeness `json:"evidence_completeness,omitempty"`
	AlignmentLevel       string       `json:"alignment_level,omitempty"`
}

// ArtifactRefs points at the rendered report files.
type ArtifactRefs struct {
	HTMLPath string `json:"html_path"`
	PDFPath  string `json:"pdf_path,omitempty"`
}

// Result is everything one run produced.
type Result struct {
	Status    RunStatus           `json:"status"`
	Keys      Keys                `json:"keys"`
	Versions  map[string]string   `json:"versions"`
	Score     score.Result        `json:"score"`
	Report    ReportMeta          `json:"report"`
	Artifacts *ArtifactRefs       `json:"artifacts,omitempty"`
	Evidence  []evidence.Evidence `json:"evidence,omitempty"`
	Tickets   []synth.Ticket      `json:"tickets,omitempty"`
	Errors    []StageError        `json:"errors,omitempty"`
	FromCache map[string]bool     `json:"from_cache"`
}

// Run executes one audit for an already normalized URL and locale.
// A non-nil error means infrastructure broke mid-run; audit outcomes,
// including failed ones, come back as a Result with a status.
func (p *Pipeline) Run(ctx context.Context, normalizedURL, locale string) (*Result, error) {
	keys := DeriveKeys(normalizedURL, locale, p.versions)
	res := &Result{
		Keys:      keys,
		Versions:  p.versions.Map(),
		Report:    ReportMeta{NormalizedURL: normalizedURL, Locale: locale},
		FromCache: map[string]bool{},
	}
	job := &store.Job{
		Key:           keys.Audit.String(),
		RunKey:        keys.Run.String(),
		SnapshotKey:   keys.Snapshot.String(),
		ProductKey:    keys.Product.String(),
		RenderVersion: p.versions.Render,
	}
	p.transition(ctx, job, StatePending, "queued")

	log := p.logger.With("audit_key", keys.Audit.Short(), "url", normalizedURL)

	// Capture.
	p.transition(ctx, job, StateCapturing, "capturing page")
	snap, hit, err := memo.GetOrCompute(ctx, p.cache, "snapshot", keys.Snapshot,
		p.captureFn(normalizedURL, locale, keys))
	res.FromCache["capture"] = hit
	if err != nil {
		code := CodeCaptureBlocked
		if errors.Is(err, capture.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			// A caller gone mid-capture is a deadline problem, not the
			// site blocking us.
			code = CodeCaptureTimeout
		}
		return res, p.fail(ctx, job, res, StageError{
			Stage: "capture", Code: code, Message: err.Error(), Critical: true,
		})
	}
	res.Errors = append(res.Errors, snap.Errors...)
	res.Report.Mode = snap.Mode
	res.Report.CapturedAt = snap.CapturedAt

	completeness := computeCompleteness(&snap, len(p.cfg.Viewports))
	res.Report.EvidenceCompleteness = completeness
	if completeness == CompletenessInsufficient {
		return res, p.fail(ctx, job, res, StageError{
			Stage: "capture", Code: CodeCaptureBlocked,
			Message: "snapshot holds no facts and no screenshots", Critical: true,
		})
	}
	log.Info("capture done", "mode", snap.Mode, "completeness", completeness, "cached", hit)

	// Scoring and synthesis share one key: tickets derive deterministically
	// from the scored snapshot, so they memoize as a unit.
	p.transition(ctx, job, StateScoring, "scoring facts")
	run, hit, err := memo.GetOrCompute(ctx, p.cache, "run", keys.Run, p.runFn(&snap, keys, job))
	res.FromCache["score"] = hit
	if err != nil {
		return res, p.fail(ctx, job, res, StageError{
			Stage: "score", Code: CodeScoringInvalidInput, Message: err.Error(), Critical: true,
		})
	}
	res.Errors = append(res.Errors, run.Errors...)
	res.Score = run.Score
	res.Evidence = run.Evidence
	res.Tickets = run.Tickets
	log.Info("scoring done", "total", run.Score.Total, "tickets", len(run.Tickets), "cached", hit)

	// Render.
	if job.State == string(StateScoring) {
		p.transition(ctx, job, StateSynthesizing, "synthesizing tickets")
	}
	p.transition(ctx, job, StateRendering, "rendering report")
	rv, hit, err := memo.GetOrCompute(ctx, p.cache, "render", keys.Audit, p.renderFn(&snap, &run, keys))
	res.FromCache["render"] = hit
	if err != nil {
		return res, p.fail(ctx, job, res, StageError{
			Stage: "render", Code: CodeRenderFailed, Message: err.Error(), Critical: true,
		})
	}
	res.Errors = append(res.Errors, rv.Errors...)
	res.Artifacts = &ArtifactRefs{HTMLPath: rv.HTMLPath, PDFPath: rv.PDFPath}

	res.Report.AlignmentLevel = alignment(run.Tickets, run.Evidence)
	res.Status = finalStatus(res.Errors, completeness, p.cfg.MinCompleteness)

	final := StateCompleted
	if res.Status == StatusDegraded {
		final = StateDegraded
	}
	job.HTMLPath, job.PDFPath = rv.HTMLPath, rv.PDFPath
	job.Status = string(res.Status)
	job.ErrorsJSON = marshalErrors(res.Errors)
	p.transition(ctx, job, final, "report ready")
	log.Info("audit done", "status", res.Status, "errors", len(res.Errors))
	return res, nil
}

func (p *Pipeline) captureFn(normalizedURL, locale string, keys Keys) func(context.Context) (SnapshotVal, error) {
	return func(ctx context.Context) (SnapshotVal, error) {
		cctx, cancel := context.WithTimeout(ctx, p.cfg.CaptureTimeout)
		defer cancel()

		cres, err := p.capturer.Capture(cctx, normalizedURL, p.cfg.Viewports)
		if err != nil {
			return SnapshotVal{}, err
		}
		sv := SnapshotVal{
			Key:           keys.Snapshot.String(),
			ProductKey:    keys.Product.String(),
			NormalizedURL: normalizedURL,
			Locale:        locale,
			Mode:          cres.Mode,
			StatusCode:    cres.StatusCode,
			HTMLPath:      cres.HTMLPath,
			HTMLSHA256:    cres.HTMLSHA256,
			Shots:         cres.Shots,
			CapturedAt:    cres.CapturedAt.UTC(),
		}
		for _, shot := range cres.Shots {
			if shot.Err != "" {
				sv.Errors = append(sv.Errors, StageError{
					Stage: "capture", Code: CodeCaptureTimeout,
					Message: fmt.Sprintf("viewport %s: %s", shot.Viewport, shot.Err),
				})
			}
		}
		if cres.HTMLPath != "" {
			raw, rerr := os.ReadFile(cres.HTMLPath)
			if rerr != nil {
				return SnapshotVal{}, fmt.Errorf("read captured html: %w", rerr)
			}
			f := facts.Extract(facts.Input{HTML: raw, PageURL: normalizedURL, StatusCode: cres.StatusCode})
			sv.Facts = f
			sv.FactsPresent = !f.Empty()
			if !sv.FactsPresent {
				sv.Errors = append(sv.Errors, StageError{
					Stage: "capture", Code: CodeFactsIncomplete,
					Message: "page yielded no extractable facts",
				})
			}
		}
		p.persistSnapshot(ctx, keys, &sv)
		return sv, nil
	}
}

func (p *Pipeline) runFn(snap *SnapshotVal, keys Keys, job *store.Job) func(context.Context) (RunVal, error) {
	return func(ctx context.Context) (RunVal, error) {
		if snap.FactsPresent && snap.Facts == nil {
			return RunVal{}, errors.New("snapshot marks facts present but carries none")
		}
		f := snap.Facts
		if f == nil {
			f = &facts.Facts{}
		}
		sc := score.Score(f, p.categories)

		shots := make([]evidence.Screenshot, 0, len(snap.Shots))
		for _, s := range snap.Shots {
			if s.Err == "" && s.Path != "" {
				shots = append(shots, evidence.Screenshot{Viewport: s.Viewport, Path: s.Path, SHA256: s.SHA256})
			}
		}
		evd := evidence.Build(evidence.Artifacts{Screenshots: shots, Facts: f, FactsPresent: snap.FactsPresent})

		rv := RunVal{
			Key:         keys.Run.String(),
			SnapshotKey: keys.Snapshot.String(),
			Score:       sc,
			Evidence:    evd,
		}

		p.transition(ctx, job, StateSynthesizing, "synthesizing tickets")
		sctx, cancel := context.WithTimeout(ctx, p.cfg.SynthTimeout)
		defer cancel()
		var html []byte
		if snap.HTMLPath != "" {
			html, _ = os.ReadFile(snap.HTMLPath)
		}
		tickets, err := p.synth.Synthesize(sctx, synth.Input{
			NormalizedURL: snap.NormalizedURL,
			Locale:        snap.Locale,
			Facts:         f,
			Score:         sc,
			Evidence:      evd,
			HTML:          html,
		})
		switch {
		case errors.Is(err, synth.ErrPartial):
			rv.Tickets = tickets
			rv.Errors = append(rv.Errors, StageError{
				Stage: "synth", Code: CodeSynthesisPartial, Message: err.Error(),
			})
		case err != nil:
			rv.Errors = append(rv.Errors, StageError{
				Stage: "synth", Code: CodeSynthesisFailed, Message: err.Error(),
			})
		default:
			rv.Tickets = tickets
		}
		p.persistRun(ctx, keys, &rv)
		return rv, nil
	}
}

func (p *Pipeline) renderFn(snap *SnapshotVal, run *RunVal, keys Keys) func(context.Context) (RenderVal, error) {
	return func(ctx context.Context) (RenderVal, error) {
		rctx, cancel := context.WithTimeout(ctx, p.cfg.RenderTimeout)
		defer cancel()

		art, err := p.renderer.Render(rctx, render.Input{
			AuditKey:      keys.Audit.String(),
			NormalizedURL: snap.NormalizedURL,
			Locale:        snap.Locale,
			Mode:          snap.Mode,
			CapturedAt:    snap.CapturedAt,
			Score:         run.Score,
			Evidence:      run.Evidence,
			Tickets:       run.Tickets,
		})
		if err != nil {
			return RenderVal{}, err
		}
		rv := RenderVal{Key: keys.Audit.String(), HTMLPath: art.HTMLPath, PDFPath: art.PDFPath}
		if art.PDFErr != "" {
			rv.Errors = append(rv.Errors, StageError{
				Stage: "render", Code: CodeRenderFailed, Message: art.PDFErr,
			})
		}
		return rv, nil
	}
}

// fail records a critical error, moves the job to FAILED and finalizes
// the result. The returned error is always nil: a failed audit is an
// outcome, not an infrastructure error.
func (p *Pipeline) fail(ctx context.Context, job *store.Job, res *Result, se StageError) error {
	res.Errors = append(res.Errors, se)
	res.Status = StatusFailed
	job.Status = string(StatusFailed)
	job.ErrorsJSON = marshalErrors(res.Errors)
	p.transition(ctx, job, StateFailed, se.Message)
	p.logger.Warn("audit failed", "audit_key", job.Key, "code", se.Code, "err", se.Message)
	return nil
}

// transition advances the job state, persists the row and emits a run
// event. Persistence is warn-only: a broken status store must not sink
// an otherwise healthy run. It runs detached from the caller's context:
// a caller that abandoned its wait must still leave the job row in the
// state the run actually reached, or the poll endpoint reports a stuck
// CAPTURING forever.
func (p *Pipeline) transition(ctx context.Context, job *store.Job, to State, detail string) {
	if job.State != "" && !CanTransition(State(job.State), to) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	job.State = string(to)
	job.Progress = detail
	if job.Status == "" {
		job.Status = string(StatusOK)
	}
	if p.store != nil {
		if err := p.store.SaveJob(ctx, *job); err != nil {
			p.logger.Warn("job save failed", "audit_key", job.Key, "state", to, "err", err)
		}
	}
	if p.events != nil {
		p.events.Record(ctx, job.Key, string(to), detail)
	}
}

func (p *Pipeline) persistSnapshot(ctx context.Context, keys Keys, sv *SnapshotVal) {
	if p.store == nil {
		return
	}
	if err := p.store.UpsertProduct(ctx, store.Product{
		Key:              keys.Product.String(),
		NormalizedURL:    sv.NormalizedURL,
		Locale:           sv.Locale,
		NormalizeVersion: p.versions.Normalize,
	}); err != nil {
		p.logger.Warn("product upsert failed", "err", err)
		return
	}
	payload, err := json.Marshal(sv)
	if err != nil {
		p.logger.Warn("snapshot marshal failed", "err", err)
		return
	}
	if err := p.store.UpsertSnapshot(ctx, store.Snapshot{
		Key:            keys.Snapshot.String(),
		ProductKey:     keys.Product.String(),
		CaptureVersion: p.versions.Capture,
		Payload:        payload,
	}); err != nil {
		p.logger.Warn("snapshot upsert failed", "err", err)
	}
}

func (p *Pipeline) persistRun(ctx context.Context, keys Keys, rv *RunVal) {
	if p.store == nil {
		return
	}
	payload, err := json.Marshal(rv)
	if err != nil {
		p.logger.Warn("run marshal failed", "err", err)
		return
	}
	evRows := make([]store.EvidenceRow, len(rv.Evidence))
	for i, e := range rv.Evidence {
		evRows[i] = store.EvidenceRow{
			ID: e.ID, Kind: string(e.Kind), Viewport: e.Viewport, Label: e.Label,
			Seq: e.Seq, Path: e.Path, SHA256: e.SHA256, Note: e.Note,
		}
	}
	tkRows := make([]store.TicketRow, len(rv.Tickets))
	for i, t := range rv.Tickets {
		refs, _ := json.Marshal(t.EvidenceIDs)
		tkRows[i] = store.TicketRow{
			ID: t.ID, Pos: i + 1, Title: t.Title, Detail: t.Detail,
			Priority: t.Priority, Category: t.Category, EvidenceIDs: string(refs),
		}
	}
	if err := p.store.SaveScoreRun(ctx, store.ScoreRun{
		Key:              keys.Run.String(),
		SnapshotKey:      keys.Snapshot.String(),
		DetectorsVersion: p.versions.Detectors,
		ScoringVersion:   p.versions.Scoring,
		Total:            rv.Score.Total,
		Payload:          payload,
	}, evRows, tkRows); err != nil {
		p.logger.Warn("run save failed", "err", err)
	}
}

func alignment(tickets []synth.Ticket, evs []evidence.Evidence) string {
	known := make(map[string]bool, len(evs))
	for _, e := range evs {
		known[e.ID] = true
	}
	refs := make([]ticketRefs, len(tickets))
	for i, t := range tickets {
		refs[i] = ticketRefs{refs: t.EvidenceIDs}
	}
	return alignmentLevel(refs, known)
}

func marshalErrors(errs []StageError) string {
	if len(errs) == 0 {
		return ""
	}
	raw, err := json.Marshal(errs)
	if err != nil {
		return ""
	}
	return string(raw)
}
