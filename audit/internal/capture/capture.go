// Package capture acquires page artifacts for one normalized product URL:
// per-viewport screenshots plus the raw HTML the detectors read.
//
// Two capturers exist: the rod browser path (screenshots + rendered HTML,
// stealth page creation) and the plain HTTP path (HTML only, no JS, no
// screenshots). Escalating composes them so a missing browser degrades a
// run instead of failing it.
package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrBlocked marks captures rejected by the target (anti-bot, 4xx) or
// navigations that produced nothing usable.
var ErrBlocked = errors.New("capture: blocked or unreachable")

// ErrTimeout marks captures that exceeded their per-call deadline.
var ErrTimeout = errors.New("capture: timed out")

// Viewport is one device profile to capture.
type Viewport struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Mobile bool   `json:"mobile"`
}

// DefaultViewports returns the standard mobile-first pair.
func DefaultViewports() []Viewport {
	return []Viewport{
		{Name: "mobile", Width: 390, Height: 844, Mobile: true},
		{Name: "desktop", Width: 1440, Height: 900},
	}
}

// ViewportShot is the per-viewport outcome. A failed viewport carries an
// empty Path and its error text; callers decide whether that degrades or
// fails the run.
type ViewportShot struct {
	Viewport string `json:"viewport"`
	Path     string `json:"path,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Err      string `json:"err,omitempty"`
}

// Result is everything one capture attempt produced.
type Result struct {
	PageURL    string         `json:"page_url"`
	Mode       string         `json:"mode"` // "browser" or "http"
	StatusCode int            `json:"status_code"`
	HTMLPath   string         `json:"html_path,omitempty"`
	HTMLSHA256 string         `json:"html_sha256,omitempty"`
	Shots      []ViewportShot `json:"shots"`
	CapturedAt time.Time      `json:"captured_at"`
}

// Capturer produces capture artifacts for a page.
type Capturer interface {
	Capture(ctx context.Context, pageURL string, viewports []Viewport) (*Result, error)
}

// Escalating tries the primary capturer and falls back on total failure.
// A partial primary result (some viewports failed) is NOT escalated: the
// pipeline prefers partial browser evidence over facts-only HTTP evidence.
type Escalating struct {
	Primary  Capturer
	Fallback Capturer
	Logger   *slog.Logger
}

func (e *Escalating) Capture(ctx context.Context, pageURL string, viewports []Viewport) (*Result, error) {
	res, err := e.Primary.Capture(ctx, pageURL, viewports)
	if err == nil {
		return res, nil
	}
	if e.Fallback == nil {
		return nil, err
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("capture: primary failed, falling back to http", "url", pageURL, "error", err)
	return e.Fallback.Capture(ctx, pageURL, viewports)
}

// writeArtifact stores data under dir with a content-addressed filename,
// so identical artifacts land on identical paths and re-writes are no-ops.
func writeArtifact(dir, ext string, data []byte) (path, digest string, err error) {
	sum := sha256.Sum256(data)
	digest = hex.EncodeToString(sum[:])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("capture: mkdir: %w", err)
	}
	path = filepath.Join(dir, digest[:16]+ext)
	if _, statErr := os.Stat(path); statErr == nil {
		return path, digest, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("capture: write artifact: %w", err)
	}
	return path, digest, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
