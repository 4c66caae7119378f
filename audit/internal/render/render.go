// Package render produces the externally visible report artifacts: an HTML
// report and a PDF evidence pack assembled from the captured screenshots.
//
// HTML rendering is the load-bearing half: without it there is no report
// reference at all, so its failure is critical upstream. The PDF pack is
// additive; its failure is recorded and the run degrades.
package render

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/hazyhaar/storeaudit/audit/internal/evidence"
	"github.com/hazyhaar/storeaudit/audit/internal/score"
	"github.com/hazyhaar/storeaudit/audit/internal/synth"
)

// Input is the aggregated run handed to the renderer.
type Input struct {
	AuditKey      string
	NormalizedURL string
	Locale        string
	Mode          string
	CapturedAt    time.Time
	Score         score.Result
	Evidence      []evidence.Evidence
	Tickets       []synth.Ticket
}

// Artifacts references the produced outputs. PDFErr carries the evidence
// pack failure, if any; HTMLPath is always set on success.
type Artifacts struct {
	HTMLPath string `json:"html_path"`
	PDFPath  string `json:"pdf_path,omitempty"`
	PDFErr   string `json:"pdf_err,omitempty"`
}

// Renderer turns an aggregated run into report artifacts.
type Renderer interface {
	Render(ctx context.Context, in Input) (*Artifacts, error)
}

// Files renders to the local filesystem under Dir.
type Files struct {
	Dir string
}

// NewFiles creates a filesystem renderer writing under dir.
func NewFiles(dir string) *Files {
	return &Files{Dir: dir}
}

// Render writes the HTML report, then assembles the screenshot evidence
// pack PDF. Returns an error only when the HTML report could not be
// produced; a PDF failure is reported through Artifacts.PDFErr.
func (f *Files) Render(ctx context.Context, in Input) (*Artifacts, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("render: mkdir: %w", err)
	}

	name := in.AuditKey
	if len(name) > 16 {
		name = name[:16]
	}

	htmlPath := filepath.Join(f.Dir, name+".html")
	out, err := os.Create(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("render: create report: %w", err)
	}
	if err := reportTmpl.Execute(out, in); err != nil {
		out.Close()
		os.Remove(htmlPath)
		return nil, fmt.Errorf("render: execute template: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("render: close report: %w", err)
	}

	art := &Artifacts{HTMLPath: htmlPath}

	var shots []string
	for _, e := range in.Evidence {
		if e.Kind == evidence.KindScreenshot && e.Path != "" {
			shots = append(shots, e.Path)
		}
	}
	if len(shots) > 0 {
		pdfPath := filepath.Join(f.Dir, name+"_evidence.pdf")
		if err := api.ImportImagesFile(shots, pdfPath, nil, nil); err != nil {
			art.PDFErr = fmt.Sprintf("evidence pack: %v", err)
		} else {
			art.PDFPath = pdfPath
		}
	}
	return art, ctx.Err()
}

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="{{.Locale}}">
<head>
<meta charset="utf-8">
<title>Storefront audit - {{.NormalizedURL}}</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem auto;max-width:60rem;color:#1a1a1a}
h1{font-size:1.4rem} .score{font-size:2.4rem;font-weight:700}
table{border-collapse:collapse;width:100%} td,th{border:1px solid #ddd;padding:.4rem .6rem;text-align:left}
.p1{color:#b00020} .p2{color:#a15c00} .p3{color:#444}
code{background:#f4f4f4;padding:0 .2rem}
</style>
</head>
<body>
<h1>Storefront audit</h1>
<p><code>{{.NormalizedURL}}</code> · locale {{.Locale}} · captured {{.CapturedAt.Format "2006-01-02 15:04 UTC"}} · mode {{.Mode}}</p>
<p class="score">{{.Score.Total}}/100</p>
<table>
<tr><th>Category</th><th>Score</th><th>Weight</th></tr>
{{range .Score.Categories}}<tr><td>{{.Name}}</td><td>{{.Score}}</td><td>{{.Weight}}</td></tr>
{{end}}</table>
<h2>Tickets ({{len .Tickets}})</h2>
{{if .Tickets}}<table>
<tr><th>Priority</th><th>Finding</th><th>Detail</th><th>Evidence</th></tr>
{{range .Tickets}}<tr><td class="{{.Priority}}">{{.Priority}}</td><td>{{.Title}}</td><td>{{.Detail}}</td><td>{{range .EvidenceIDs}}<code>{{.}}</code> {{end}}</td></tr>
{{end}}</table>{{else}}<p>No tickets produced.</p>{{end}}
<h2>Evidence ({{len .Evidence}})</h2>
<table>
<tr><th>ID</th><th>Kind</th><th>Viewport</th><th>Note</th></tr>
{{range .Evidence}}<tr><td><code>{{.ID}}</code></td><td>{{.Kind}}</td><td>{{.Viewport}}</td><td>{{.Note}}</td></tr>
{{end}}</table>
<p><small>audit {{.AuditKey}}</small></p>
</body>
</html>
`))
