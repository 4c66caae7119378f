package render

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/storeaudit/audit/internal/evidence"
	"github.com/hazyhaar/storeaudit/audit/internal/facts"
	"github.com/hazyhaar/storeaudit/audit/internal/score"
	"github.com/hazyhaar/storeaudit/audit/internal/synth"
)

func renderInput() Input {
	f := &facts.Facts{Commerce: facts.CommerceFacts{HasPrice: true}}
	return Input{
		AuditKey:      "0123456789abcdef0123456789abcdef",
		NormalizedURL: "https://shop.example.com/p/1",
		Locale:        "en",
		Mode:          "http",
		CapturedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Score:         score.Score(f, score.DefaultCategories()),
		Evidence: []evidence.Evidence{
			{ID: "detectors_all_fact_summary_structural-facts_001", Kind: evidence.KindFactSummary, Viewport: "all", Note: "price=true"},
		},
		Tickets: []synth.Ticket{
			{ID: "tk_https", Title: "Serve the page over HTTPS", Priority: "p1", EvidenceIDs: []string{"detectors_all_fact_summary_structural-facts_001"}},
		},
	}
}

func TestRender_HTMLReport(t *testing.T) {
	// WHAT: Render writes an HTML report containing the score, tickets,
	// and evidence IDs; no screenshots means no PDF and no PDF error.
	r := NewFiles(t.TempDir())
	art, err := r.Render(context.Background(), renderInput())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if art.HTMLPath == "" {
		t.Fatal("no html path")
	}
	if art.PDFPath != "" || art.PDFErr != "" {
		t.Errorf("unexpected pdf outcome: %+v", art)
	}

	raw, err := os.ReadFile(art.HTMLPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	html := string(raw)
	for _, want := range []string{
		"https://shop.example.com/p/1",
		"Serve the page over HTTPS",
		"detectors_all_fact_summary_structural-facts_001",
		"/100",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRender_DeterministicBytes(t *testing.T) {
	// WHAT: Rendering the same input twice produces byte-identical HTML.
	// WHY: The render stage is cached by key; replays must reproduce.
	dirA, dirB := t.TempDir(), t.TempDir()
	a, err := NewFiles(dirA).Render(context.Background(), renderInput())
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewFiles(dirB).Render(context.Background(), renderInput())
	if err != nil {
		t.Fatal(err)
	}
	rawA, _ := os.ReadFile(a.HTMLPath)
	rawB, _ := os.ReadFile(b.HTMLPath)
	if string(rawA) != string(rawB) {
		t.Error("renders differ byte-for-byte")
	}
}

func TestRender_BrokenScreenshotPathIsRecoverable(t *testing.T) {
	// WHAT: An unreadable screenshot makes the PDF pack fail, recorded in
	// PDFErr, while the HTML report still succeeds.
	// WHY: PDF export failure degrades a run; it never kills it.
	in := renderInput()
	in.Evidence = append(in.Evidence, evidence.Evidence{
		ID: "capture_mobile_screenshot_product-page_002", Kind: evidence.KindScreenshot,
		Viewport: "mobile", Path: "/nonexistent/shot.png",
	})
	art, err := NewFiles(t.TempDir()).Render(context.Background(), in)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if art.HTMLPath == "" {
		t.Error("html report missing")
	}
	if art.PDFErr == "" || art.PDFPath != "" {
		t.Errorf("pdf outcome: %+v", art)
	}
}
