package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// BrowserConfig configures the rod capturer.
type BrowserConfig struct {
	// Dir is where screenshots and HTML artifacts are written.
	Dir string

	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome via launcher.
	RemoteURL string

	// NavTimeout bounds navigate+load per viewport. Default: 30s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser captures pages through a shared headless Chrome. Pages are
// created with stealth applied; one tab per viewport, closed after use.
type Browser struct {
	cfg     BrowserConfig
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowser creates the capturer. Call Start before the first Capture.
func NewBrowser(cfg BrowserConfig) *Browser {
	cfg.defaults()
	return &Browser{cfg: cfg}
}

// Start launches Chrome or connects to the configured remote instance.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return nil
	}

	controlURL := b.cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("capture: launch chrome: %w", err)
		}
		b.lnch = l
		controlURL = u
	}

	br := rod.New().ControlURL(controlURL).Context(ctx)
	if err := br.Connect(); err != nil {
		return fmt.Errorf("capture: connect browser: %w", err)
	}
	b.browser = br
	return nil
}

// Close disconnects from Chrome and kills the launched process, if any.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
}

// Capture navigates one tab per viewport, screenshots each, and saves the
// rendered HTML from the first viewport that loads. Per-viewport failures
// are recorded in the result; Capture errors only when every viewport
// failed and no HTML was obtained.
func (b *Browser) Capture(ctx context.Context, pageURL string, viewports []Viewport) (*Result, error) {
	b.mu.Lock()
	br := b.browser
	b.mu.Unlock()
	if br == nil {
		return nil, fmt.Errorf("%w: browser not started", ErrBlocked)
	}

	res := &Result{
		PageURL:    pageURL,
		Mode:       "browser",
		CapturedAt: time.Now().UTC(),
	}

	for _, vp := range viewports {
		shot := ViewportShot{Viewport: vp.Name}
		if err := b.captureViewport(ctx, br, pageURL, vp, res, &shot); err != nil {
			shot.Err = classify(ctx, err).Error()
			b.cfg.Logger.Warn("capture: viewport failed",
				"url", pageURL, "viewport", vp.Name, "error", err)
		}
		res.Shots = append(res.Shots, shot)
	}

	if res.HTMLPath == "" && !anySucceeded(res.Shots) {
		return nil, fmt.Errorf("%w: no viewport captured for %s", ErrBlocked, pageURL)
	}
	return res, nil
}

func (b *Browser) captureViewport(ctx context.Context, br *rod.Browser, pageURL string, vp Viewport, res *Result, shot *ViewportShot) error {
	page, err := stealth.Page(br)
	if err != nil {
		return fmt.Errorf("create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
		Mobile:            vp.Mobile,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}

	// Subscribe before navigating; the document response is the first one
	// the page sees. If it never arrives StatusCode stays zero and the
	// status fact is left unsatisfied.
	var navResp proto.NetworkResponseReceived
	waitResp := p.WaitEvent(&navResp)

	if err := p.Navigate(pageURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	waitResp()
	if res.StatusCode == 0 && navResp.Response != nil {
		res.StatusCode = navResp.Response.Status
	}
	if err := p.WaitLoad(); err != nil {
		// Load timeouts still often leave a usable DOM; keep going.
		b.cfg.Logger.Debug("capture: wait load incomplete", "url", pageURL, "error", err)
	}

	if res.HTMLPath == "" {
		if html, err := p.HTML(); err == nil && html != "" {
			path, digest, werr := writeArtifact(b.cfg.Dir, ".html", []byte(html))
			if werr != nil {
				return werr
			}
			res.HTMLPath = path
			res.HTMLSHA256 = digest
		}
	}

	png, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	path, digest, err := writeArtifact(b.cfg.Dir, ".png", png)
	if err != nil {
		return err
	}
	shot.Path = path
	shot.SHA256 = digest
	return nil
}

func anySucceeded(shots []ViewportShot) bool {
	for _, s := range shots {
		if s.Path != "" {
			return true
		}
	}
	return false
}
