package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/storeaudit/audit/internal/capture"
	"github.com/hazyhaar/storeaudit/audit/internal/evidence"
	"github.com/hazyhaar/storeaudit/audit/internal/pipeline"
	"github.com/hazyhaar/storeaudit/audit/internal/render"
	"github.com/hazyhaar/storeaudit/audit/internal/score"
	"github.com/hazyhaar/storeaudit/audit/internal/store"
	"github.com/hazyhaar/storeaudit/audit/internal/synth"
	"github.com/hazyhaar/storeaudit/dbopen"
	"github.com/hazyhaar/storeaudit/kit"
	"github.com/hazyhaar/storeaudit/memo"
	"github.com/hazyhaar/storeaudit/observability"
)

// Service is the main audit orchestrator.
type Service struct {
	cfg      Config
	db       *sql.DB
	ownsDB   bool
	store    *store.Store
	recorder *observability.Recorder
	pipeline *pipeline.Pipeline
	browser  *capture.Browser // nil when a capturer was injected
	logger   *slog.Logger
}

type serviceDeps struct {
	db       *sql.DB
	capturer capture.Capturer
	synth    synth.Synthesizer
	renderer render.Renderer
}

// ServiceOption overrides a collaborator, mostly for tests.
type ServiceOption func(*serviceDeps)

// WithDB uses an existing database instead of opening one under DataDir.
// The caller keeps ownership; Close will not close it.
func WithDB(db *sql.DB) ServiceOption {
	return func(d *serviceDeps) { d.db = db }
}

// WithCapturer replaces the browser capturer.
func WithCapturer(c capture.Capturer) ServiceOption {
	return func(d *serviceDeps) { d.capturer = c }
}

// WithSynthesizer replaces the ticket synthesizer.
func WithSynthesizer(s synth.Synthesizer) ServiceOption {
	return func(d *serviceDeps) { d.synth = s }
}

// WithRenderer replaces the report renderer.
func WithRenderer(r render.Renderer) ServiceOption {
	return func(d *serviceDeps) { d.renderer = r }
}

// New creates an audit Service. Unless overridden it opens (or creates)
// the SQLite database under DataDir, launches a headless browser and
// picks the Gemini synthesizer when an API key is configured.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	var deps serviceDeps
	for _, o := range opts {
		o(&deps)
	}

	db := deps.db
	ownsDB := false
	if db == nil {
		var err error
		db, err = dbopen.Open(cfg.dbPath(),
			dbopen.WithMkdirAll(),
			dbopen.WithSchema(store.Schema),
			dbopen.WithSchema(memo.SQLSchema),
			dbopen.WithSchema(observability.Schema))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		ownsDB = true
	}

	categories := score.DefaultCategories()
	versions := pipeline.CurrentVersions()
	if cfg.WeightsFile != "" {
		fingerprint, err := score.LoadWeightOverlay(cfg.WeightsFile, categories)
		if err != nil {
			if ownsDB {
				db.Close()
			}
			return nil, fmt.Errorf("weight overlay: %w", err)
		}
		versions = versions.WithDetectorOverlay(fingerprint)
	}

	svc := &Service{
		cfg:      cfg,
		db:       db,
		ownsDB:   ownsDB,
		store:    store.New(db),
		recorder: observability.NewRecorder(db),
		logger:   logger,
	}

	capturer := deps.capturer
	if capturer == nil {
		svc.browser = capture.NewBrowser(capture.BrowserConfig{
			Dir:        cfg.capturesDir(),
			RemoteURL:  cfg.BrowserRemoteURL,
			NavTimeout: cfg.NavTimeout,
			Logger:     logger,
		})
		if err := svc.browser.Start(ctx); err != nil {
			if ownsDB {
				db.Close()
			}
			return nil, fmt.Errorf("start browser: %w", err)
		}
		capturer = svc.browser
		if cfg.HTTPFallback {
			capturer = &capture.Escalating{
				Primary:  svc.browser,
				Fallback: capture.NewHTTP(capture.HTTPConfig{Dir: cfg.capturesDir(), Logger: logger}),
				Logger:   logger,
			}
		}
	}

	synthesizer := deps.synth
	if synthesizer == nil {
		if cfg.GeminiAPIKey != "" {
			g, err := synth.NewGemini(ctx, synth.GeminiConfig{
				APIKey: cfg.GeminiAPIKey,
				Model:  cfg.GeminiModel,
			})
			if err != nil {
				svc.Close()
				return nil, fmt.Errorf("gemini client: %w", err)
			}
			synthesizer = g
		} else {
			synthesizer = synth.Heuristic{}
		}
	}

	renderer := deps.renderer
	if renderer == nil {
		renderer = render.NewFiles(cfg.reportsDir())
	}

	svc.pipeline = pipeline.New(pipeline.Config{
		Viewports:       cfg.Viewports,
		MinCompleteness: cfg.MinCompleteness,
		CaptureTimeout:  cfg.CaptureTimeout,
		SynthTimeout:    cfg.SynthTimeout,
		RenderTimeout:   cfg.RenderTimeout,
	}, pipeline.Deps{
		Cache:      memo.New(memo.NewSQLStore(db), memo.WithLogger(logger)),
		Store:      svc.store,
		Capturer:   capturer,
		Synth:      synthesizer,
		Renderer:   renderer,
		Categories: categories,
		Versions:   versions,
		Events:     svc.recorder,
		Logger:     logger,
	})
	return svc, nil
}

// DB exposes the underlying database for observability wiring
// (heartbeats, event queries). Callers must not close it.
func (s *Service) DB() *sql.DB { return s.db }

// Close releases the browser and, when owned, the database.
func (s *Service) Close() {
	if s.browser != nil {
		s.browser.Close()
	}
	if s.ownsDB {
		s.db.Close()
	}
}

// RunAudit validates and normalizes the request, then runs the full
// pipeline. The locale falls back to the request context, then "en".
func (s *Service) RunAudit(ctx context.Context, rawURL, locale string) (*Result, error) {
	normURL, err := NormalizeProductURL(rawURL)
	if err != nil {
		return nil, err
	}
	if locale == "" {
		locale = kit.GetLocale(ctx)
	}
	normLocale, err := NormalizeLocale(locale)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Run(ctx, normURL, normLocale)
}

// Keys derives the key chain for a request without running anything.
// Useful for clients that want to poll before or during a run.
func (s *Service) Keys(rawURL, locale string) (Keys, error) {
	normURL, err := NormalizeProductURL(rawURL)
	if err != nil {
		return Keys{}, err
	}
	normLocale, err := NormalizeLocale(locale)
	if err != nil {
		return Keys{}, err
	}
	return pipeline.DeriveKeys(normURL, normLocale, s.pipeline.Versions()), nil
}

// JobStatus is the externally visible progress of one audit job.
type JobStatus struct {
	AuditKey  string       `json:"audit_key"`
	State     State        `json:"state"`
	Status    RunStatus    `json:"status"`
	Progress  string       `json:"progress,omitempty"`
	HTMLPath  string       `json:"html_path,omitempty"`
	PDFPath   string       `json:"pdf_path,omitempty"`
	Errors    []StageError `json:"errors,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Status reports the current state of an audit job.
func (s *Service) Status(ctx context.Context, auditKey string) (*JobStatus, error) {
	job, err := s.store.GetJob(ctx, auditKey)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: audit %s", ErrNotFound, auditKey)
	}
	js := &JobStatus{
		AuditKey:  job.Key,
		State:     State(job.State),
		Status:    RunStatus(job.Status),
		Progress:  job.Progress,
		HTMLPath:  job.HTMLPath,
		PDFPath:   job.PDFPath,
		UpdatedAt: time.Unix(job.UpdatedAt, 0).UTC(),
	}
	if job.ErrorsJSON != "" {
		if err := json.Unmarshal([]byte(job.ErrorsJSON), &js.Errors); err != nil {
			s.logger.Warn("job errors unmarshal failed", "audit_key", auditKey, "err", err)
		}
	}
	return js, nil
}

// Events returns the recorded state transitions of an audit.
func (s *Service) Events(ctx context.Context, auditKey string) ([]observability.RunEvent, error) {
	return s.recorder.Events(ctx, auditKey)
}

// Tickets exports the persisted ticket list of a completed audit.
func (s *Service) Tickets(ctx context.Context, auditKey string) ([]Ticket, error) {
	job, err := s.store.GetJob(ctx, auditKey)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: audit %s", ErrNotFound, auditKey)
	}
	rows, err := s.store.ListTickets(ctx, job.RunKey)
	if err != nil {
		return nil, err
	}
	out := make([]Ticket, 0, len(rows))
	for _, r := range rows {
		t := Ticket{ID: r.ID, Title: r.Title, Detail: r.Detail, Priority: r.Priority, Category: r.Category}
		if r.EvidenceIDs != "" {
			if err := json.Unmarshal([]byte(r.EvidenceIDs), &t.EvidenceIDs); err != nil {
				s.logger.Warn("ticket refs unmarshal failed", "ticket", r.ID, "err", err)
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// EvidenceList exports the persisted evidence of a completed audit.
func (s *Service) EvidenceList(ctx context.Context, auditKey string) ([]Evidence, error) {
	job, err := s.store.GetJob(ctx, auditKey)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: audit %s", ErrNotFound, auditKey)
	}
	rows, err := s.store.ListEvidence(ctx, job.RunKey)
	if err != nil {
		return nil, err
	}
	out := make([]Evidence, 0, len(rows))
	for _, r := range rows {
		// The source is the first ID segment; it is not stored separately.
		source, _, _ := strings.Cut(r.ID, "_")
		out = append(out, Evidence{
			ID: r.ID, Kind: evidence.Kind(r.Kind), Source: source, Viewport: r.Viewport,
			Label: r.Label, Seq: r.Seq, Path: r.Path, SHA256: r.SHA256, Note: r.Note,
		})
	}
	return out, nil
}
