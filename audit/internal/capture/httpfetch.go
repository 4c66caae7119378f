package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPConfig configures the plain HTTP capturer.
type HTTPConfig struct {
	Dir       string
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
	Logger    *slog.Logger
}

func (c *HTTPConfig) defaults() {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; storeaudit/1.0)"
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// HTTP captures a page with a single GET: HTML only, no screenshots.
// Every viewport is reported as failed so the evidence builder omits
// screenshot records and the run degrades on completeness.
type HTTP struct {
	cfg HTTPConfig
}

// NewHTTP creates the HTTP capturer.
func NewHTTP(cfg HTTPConfig) *HTTP {
	cfg.defaults()
	return &HTTP{cfg: cfg}
}

func (h *HTTP) Capture(ctx context.Context, pageURL string, viewports []Viewport) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: new request: %w", err)
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := h.cfg.Client.Do(req)
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("capture: get: %w", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusUnavailableForLegalReasons:
		return nil, fmt.Errorf("%w: status %d for %s", ErrBlocked, resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBytes))
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("capture: read body: %w", err))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body for %s", ErrBlocked, pageURL)
	}

	path, digest, err := writeArtifact(h.cfg.Dir, ".html", body)
	if err != nil {
		return nil, err
	}

	res := &Result{
		PageURL:    pageURL,
		Mode:       "http",
		StatusCode: resp.StatusCode,
		HTMLPath:   path,
		HTMLSHA256: digest,
		CapturedAt: time.Now().UTC(),
	}
	for _, vp := range viewports {
		res.Shots = append(res.Shots, ViewportShot{
			Viewport: vp.Name,
			Err:      "no browser: screenshots unavailable in http mode",
		})
	}

	h.cfg.Logger.Debug("capture: http fetched",
		"url", pageURL, "status", resp.StatusCode, "size", len(body))
	return res, nil
}
