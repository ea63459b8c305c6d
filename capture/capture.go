// CLAUDE:SUMMARY Event Capture Layer: attaches the capture script and binding to every tab of the recording browser and forwards interactions, navigations and forms snapshots to the aggregator.
// Package capture is the in-browser side of flowrec. Every page target of
// the recording Chrome gets the capture script (installed on each new
// document) and a Runtime binding it posts to; payloads are parsed and
// resolved here with the locator package and forwarded to the session
// aggregator as typed messages. Top-level navigations move the tab's visit
// cursor and trigger a forms snapshot once the page settles.
package capture

import (
	"cmp"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/flowrec/capture/internal/browser"
	"github.com/hazyhaar/flowrec/horosafe"
	"github.com/hazyhaar/flowrec/locator"
	"github.com/hazyhaar/flowrec/recorder"
	"github.com/hazyhaar/flowrec/session"
)

//go:embed capture.js
var captureJS string

// bindingName is the Runtime binding the capture script posts to.
const bindingName = "__flowrec"

// Sink receives what the capture layer observes. *recorder.Aggregator
// implements it.
type Sink interface {
	Recording() bool
	Navigated(tabID, url string, ts int64) bool
	Record(tabID, topURL string, in session.Interaction) bool
	Forms(tabID, topURL string, fs session.FormsSnapshot) bool
	TabClosed(tabID string, ts int64) bool
	Status(ctx context.Context) (recorder.Status, error)
}

// Config configures the capture layer.
type Config struct {
	// Remote is a CDP websocket URL; empty launches a local Chrome.
	Remote      string
	Headful     bool
	Stealth     bool
	XvfbDisplay string
	// StartURL is opened in a new tab once the browser is up.
	StartURL string

	// Settle delays the forms snapshot after a navigation. Default: 800ms.
	Settle time.Duration
	// MaxDocumentBytes drops payloads larger than this. Default: 4 MiB.
	MaxDocumentBytes int
	// ScreenshotDir enables checkpoint screenshots when non-empty.
	ScreenshotDir string

	Locator locator.Options
	Logger  *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.Settle <= 0 {
		c.Settle = 800 * time.Millisecond
	}
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = 4 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// ConfigFrom maps the daemon configuration onto the capture layer.
func ConfigFrom(rc *recorder.Config, logger *slog.Logger) Config {
	return Config{
		Remote:           rc.Browser.Remote,
		Headful:          rc.Browser.Headful,
		Stealth:          rc.Browser.Stealth,
		XvfbDisplay:      rc.Browser.XvfbDisplay,
		StartURL:         rc.Browser.StartURL,
		Settle:           rc.Capture.Settle,
		MaxDocumentBytes: rc.Capture.MaxDocumentBytes,
		ScreenshotDir:    rc.Capture.Screenshots,
		Locator:          rc.LocatorOptions(),
		Logger:           logger,
	}
}

// Capture attaches to every page of the recording browser.
type Capture struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger
	mgr    *browser.Manager

	mu   sync.Mutex
	tabs map[string]*tab
}

// New creates a Capture. Call Start to launch the browser.
func New(cfg Config, sink Sink) *Capture {
	cfg.defaults()
	return &Capture{
		cfg:    cfg,
		sink:   sink,
		logger: cfg.Logger,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:   cfg.Remote,
			Headful:     cfg.Headful,
			Stealth:     cfg.Stealth,
			XvfbDisplay: cfg.XvfbDisplay,
			Logger:      cfg.Logger,
		}),
		tabs: map[string]*tab{},
	}
}

// Start launches or connects to Chrome, attaches to the pages already open,
// follows pages opened later, and opens the start URL if configured.
func (c *Capture) Start(ctx context.Context) error {
	if c.cfg.StartURL != "" {
		if err := horosafe.ValidateStartURL(c.cfg.StartURL); err != nil {
			return fmt.Errorf("capture: start url: %w", err)
		}
	}

	b, err := c.mgr.Start(ctx)
	if err != nil {
		return fmt.Errorf("capture: start browser: %w", err)
	}

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		return fmt.Errorf("capture: discover targets: %w", err)
	}
	go b.Context(ctx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			if e.TargetInfo != nil && e.TargetInfo.Type == proto.TargetTargetInfoTypePage {
				go c.attach(ctx, b, e.TargetInfo.TargetID)
			}
		},
		func(e *proto.TargetTargetDestroyed) {
			c.detach(string(e.TargetID))
		},
	)()

	pages, err := b.Pages()
	if err != nil {
		return fmt.Errorf("capture: list pages: %w", err)
	}
	for _, p := range pages {
		c.attach(ctx, b, p.TargetID)
	}

	if c.cfg.StartURL != "" {
		if _, err := c.mgr.OpenPage(ctx, c.cfg.StartURL); err != nil {
			c.logger.Warn("capture: open start url", "url", c.cfg.StartURL, "error", err)
		}
	}
	c.logger.Info("capture: started", "tabs", len(pages), "start_url", c.cfg.StartURL)
	return nil
}

// Close shuts the browser down.
func (c *Capture) Close() error {
	c.mu.Lock()
	for id, t := range c.tabs {
		t.cancel()
		delete(c.tabs, id)
	}
	c.mu.Unlock()
	return c.mgr.Close()
}

// Tabs lists the attached tabs with their current top-level URL.
func (c *Capture) Tabs() []recorder.Tab {
	c.mu.Lock()
	out := make([]recorder.Tab, 0, len(c.tabs))
	for _, t := range c.tabs {
		out = append(out, recorder.Tab{ID: t.id, URL: t.currentURL()})
	}
	c.mu.Unlock()
	slices.SortFunc(out, func(a, b recorder.Tab) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// attach installs the binding and the capture script on a page target.
// Attaching twice to the same target is a no-op.
func (c *Capture) attach(ctx context.Context, b *rod.Browser, id proto.TargetTargetID) {
	c.mu.Lock()
	if _, ok := c.tabs[string(id)]; ok {
		c.mu.Unlock()
		return
	}
	tctx, cancel := context.WithCancel(ctx)
	t := &tab{id: string(id), c: c, cancel: cancel}
	c.tabs[t.id] = t
	c.mu.Unlock()

	page, err := b.PageFromTarget(id)
	if err != nil {
		c.logger.Warn("capture: attach tab", "tab", id, "error", err)
		c.forget(t.id)
		return
	}
	t.page = page.Context(tctx)

	if err := t.install(); err != nil {
		c.logger.Warn("capture: install capture script", "tab", id, "error", err)
		c.forget(t.id)
		return
	}
	if info, err := page.Info(); err == nil {
		t.setURL(info.URL)
	}

	go t.page.EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name == bindingName {
				t.onPayload(e.Payload)
			}
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame != nil && e.Frame.ParentID == "" {
				t.navigated(e.Frame.URL)
			}
		},
		func(e *proto.PageNavigatedWithinDocument) {
			if e.FrameID == page.FrameID {
				t.navigated(e.URL)
			}
		},
	)()

	c.logger.Debug("capture: tab attached", "tab", id, "url", t.currentURL())
}

// forget drops a tab that failed to attach.
func (c *Capture) forget(id string) {
	c.mu.Lock()
	if t, ok := c.tabs[id]; ok {
		t.cancel()
		delete(c.tabs, id)
	}
	c.mu.Unlock()
}

func (c *Capture) detach(id string) {
	c.mu.Lock()
	t, ok := c.tabs[id]
	if ok {
		t.cancel()
		delete(c.tabs, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	t.stopSettle()
	if c.sink.Recording() {
		c.sink.TabClosed(id, c.cfg.Now().UnixMilli())
	}
	c.logger.Debug("capture: tab closed", "tab", id)
}

// install adds the binding and the capture script to every future document
// of the page and to the current one.
func (t *tab) install() error {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(t.page); err != nil {
		return fmt.Errorf("add binding: %w", err)
	}
	if t.c.mgr.Stealth() {
		if _, err := t.page.EvalOnNewDocument(stealth.JS); err != nil {
			return fmt.Errorf("stealth: %w", err)
		}
	}
	if _, err := t.page.EvalOnNewDocument(captureJS); err != nil {
		return fmt.Errorf("capture script: %w", err)
	}
	if _, err := (proto.RuntimeEvaluate{Expression: captureJS}).Call(t.page); err != nil {
		return fmt.Errorf("capture script on current document: %w", err)
	}
	return nil
}
