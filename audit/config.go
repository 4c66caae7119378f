package audit

import (
	"path/filepath"
	"time"

	"github.com/hazyhaar/storeaudit/audit/internal/capture"
	"github.com/hazyhaar/storeaudit/audit/internal/pipeline"
)

// Config configures the audit service.
type Config struct {
	// DataDir is the root directory for the database, capture artifacts
	// and rendered reports.
	DataDir string

	// Viewports to capture. Default: mobile + desktop.
	Viewports []capture.Viewport

	// BrowserRemoteURL is the WebSocket URL of an external Chrome.
	// Empty = launch a local headless Chrome.
	BrowserRemoteURL string

	// HTTPFallback enables plain-HTTP capture when the browser fails
	// outright. The fallback yields facts but no screenshots.
	HTTPFallback bool

	// GeminiAPIKey enables model-backed ticket synthesis. Empty = the
	// deterministic heuristic synthesizer.
	GeminiAPIKey string
	GeminiModel  string

	// WeightsFile optionally overrides category weights (YAML). The
	// overlay fingerprint is folded into the detectors version so cached
	// runs under other weights stay untouched.
	WeightsFile string

	// MinCompleteness is the evidence floor for an ok status.
	// Default: sufficient (facts plus every viewport screenshot).
	MinCompleteness pipeline.Completeness

	CaptureTimeout time.Duration
	SynthTimeout   time.Duration
	RenderTimeout  time.Duration

	// NavTimeout bounds navigate+load per viewport inside the browser.
	NavTimeout time.Duration
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if len(c.Viewports) == 0 {
		c.Viewports = capture.DefaultViewports()
	}
	if c.GeminiModel == "" {
		c.GeminiModel = "gemini-2.0-flash"
	}
	if c.MinCompleteness == "" {
		c.MinCompleteness = pipeline.CompletenessSufficient
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
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
}

func (c *Config) dbPath() string      { return filepath.Join(c.DataDir, "storeaudit.db") }
func (c *Config) capturesDir() string { return filepath.Join(c.DataDir, "captures") }
func (c *Config) reportsDir() string  { return filepath.Join(c.DataDir, "reports") }
