package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/storeaudit/audit/internal/capture"
	"github.com/hazyhaar/storeaudit/audit/internal/render"
	"github.com/hazyhaar/storeaudit/audit/internal/store"
	"github.com/hazyhaar/storeaudit/dbopen"
	"github.com/hazyhaar/storeaudit/memo"
	"github.com/hazyhaar/storeaudit/observability"
	_ "modernc.org/sqlite"
)

const samplePage = `<!DOCTYPE html>
<html><head>
<title>Atlas Travel Mug - Nord Goods</title>
<meta name="description" content="Leak-proof 450ml travel mug, keeps drinks hot for 8 hours.">
<meta name="viewport" content="width=device-width, initial-scale=1">
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"Atlas Travel Mug",
 "offers":{"@type":"Offer","price":"34.00","priceCurrency":"EUR","availability":"https://schema.org/InStock"}}
</script>
</head><body>
<h1>Atlas Travel Mug</h1>
<img src="/img/atlas.jpg" alt="Atlas mug on a hiking trail">
<p class="price">34,00 &euro;</p>
<button class="add-to-cart">Add to cart</button>
<p>In stock. Free returns within 30 days.</p>
<a href="/pages/shipping">Shipping</a>
<a href="/pages/contact">Contact</a>
</body></html>`

type stubCapturer struct {
	mu       sync.Mutex
	htmlPath string
}

func (s *stubCapturer) Capture(_ context.Context, pageURL string, viewports []capture.Viewport) (*capture.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.htmlPath == "" {
		dir, err := os.MkdirTemp("", "audit-test-")
		if err != nil {
			return nil, err
		}
		s.htmlPath = filepath.Join(dir, "page.html")
		if err := os.WriteFile(s.htmlPath, []byte(samplePage), 0o644); err != nil {
			return nil, err
		}
	}
	res := &capture.Result{
		PageURL:    pageURL,
		Mode:       "browser",
		StatusCode: 200,
		HTMLPath:   s.htmlPath,
		CapturedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	for _, vp := range viewports {
		res.Shots = append(res.Shots, capture.ViewportShot{
			Viewport: vp.Name,
			Path:     "/shots/" + vp.Name + ".png",
			SHA256:   "cafe" + vp.Name,
		})
	}
	return res, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, in render.Input) (*render.Artifacts, error) {
	return &render.Artifacts{
		HTMLPath: "/reports/" + in.AuditKey[:16] + ".html",
		PDFPath:  "/reports/" + in.AuditKey[:16] + ".pdf",
	}, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := dbopen.OpenMemory(t,
		dbopen.WithSchema(store.Schema),
		dbopen.WithSchema(memo.SQLSchema),
		dbopen.WithSchema(observability.Schema))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(context.Background(), Config{DataDir: t.TempDir()}, logger,
		WithDB(db),
		WithCapturer(&stubCapturer{}),
		WithRenderer(stubRenderer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestServiceRunAndQuery(t *testing.T) {
	// WHAT: a full run is queryable afterwards through Status, Events,
	// Tickets and EvidenceList under the audit key.
	// WHY: the service surface is what the HTTP layer and CLI consume;
	// the pipeline result alone is not enough for a poll-based client.
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.RunAudit(ctx, "https://nord.example/products/atlas?utm_source=ad", "en")
	if err != nil {
		t.Fatalf("RunAudit: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("status = %s (errors %v), want ok", res.Status, res.Errors)
	}
	if res.Report.NormalizedURL != "https://nord.example/products/atlas" {
		t.Errorf("normalized URL = %q, tracking params kept", res.Report.NormalizedURL)
	}

	js, err := svc.Status(ctx, res.Keys.Audit.String())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if js.State != State("COMPLETED") || js.Status != StatusOK {
		t.Errorf("job = %s/%s, want COMPLETED/ok", js.State, js.Status)
	}
	if js.HTMLPath == "" {
		t.Error("job lost the report path")
	}

	events, err := svc.Events(ctx, res.Keys.Audit.String())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) == 0 || events[0].State != "PENDING" {
		t.Errorf("events = %v, want PENDING first", events)
	}

	tickets, err := svc.Tickets(ctx, res.Keys.Audit.String())
	if err != nil {
		t.Fatalf("Tickets: %v", err)
	}
	if len(tickets) != len(res.Tickets) {
		t.Errorf("exported %d tickets, run produced %d", len(tickets), len(res.Tickets))
	}

	evs, err := svc.EvidenceList(ctx, res.Keys.Audit.String())
	if err != nil {
		t.Fatalf("EvidenceList: %v", err)
	}
	if len(evs) != len(res.Evidence) {
		t.Errorf("exported %d evidence records, run produced %d", len(evs), len(res.Evidence))
	}
	for i, ev := range evs {
		if ev.ID != res.Evidence[i].ID || ev.Source != res.Evidence[i].Source {
			t.Errorf("evidence %d diverged: %+v vs %+v", i, ev, res.Evidence[i])
		}
	}
}

func TestServiceKeysMatchRun(t *testing.T) {
	// WHAT: Keys derives the same chain RunAudit will use, before any
	// stage has executed.
	svc := newTestService(t)

	keys, err := svc.Keys("https://nord.example/products/atlas", "en")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	res, err := svc.RunAudit(context.Background(), "https://nord.example/products/atlas", "en")
	if err != nil {
		t.Fatalf("RunAudit: %v", err)
	}
	if keys != res.Keys {
		t.Errorf("derived keys %+v, run used %+v", keys, res.Keys)
	}
}

func TestServiceInvalidInput(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.RunAudit(context.Background(), "ftp://x/y", "en"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad scheme err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.RunAudit(context.Background(), "https://nord.example/p", "nope-locale-x"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad locale err = %v, want ErrInvalidInput", err)
	}
}

func TestServiceStatusNotFound(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Status(context.Background(), "no-such-key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Tickets(context.Background(), "no-such-key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
