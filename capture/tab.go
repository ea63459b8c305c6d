package capture

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/flowrec/locator"
	"github.com/hazyhaar/flowrec/session"
)

// tab is one attached page target.
type tab struct {
	id     string
	c      *Capture
	page   *rod.Page
	cancel context.CancelFunc

	mu     sync.Mutex
	url    string
	settle *time.Timer
	last   checkpoint
}

func (t *tab) currentURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

func (t *tab) setURL(u string) {
	t.mu.Lock()
	t.url = u
	t.mu.Unlock()
}

// onPayload handles one binding call. Nothing is built while idle; a
// payload that fails to parse or resolve is logged and dropped, and capture
// of later events continues.
func (t *tab) onPayload(raw string) {
	c := t.c
	if !c.sink.Recording() {
		return
	}
	if len(raw) > c.cfg.MaxDocumentBytes {
		c.logger.Warn("capture: payload too large, dropped", "tab", t.id, "bytes", len(raw), "max", c.cfg.MaxDocumentBytes)
		return
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		c.logger.Warn("capture: parse payload", "tab", t.id, "error", err)
		return
	}
	in, ok, err := Build(p, c.cfg.Locator)
	if err != nil {
		c.logger.Warn("capture: build interaction", "tab", t.id, "event", p.Event, "error", err)
		return
	}
	if !ok {
		c.logger.Debug("capture: event without signal", "tab", t.id, "event", p.Event)
		return
	}

	topURL := t.currentURL()
	if p.Top && p.FrameURL != "" {
		topURL = p.FrameURL
	}
	c.sink.Record(t.id, topURL, in)
	c.logger.Debug("capture: interaction", "tab", t.id, "action", in.Action, "url", topURL)

	t.checkpoint(topURL, in.Context.Heading, in.TS)
}

// navigated moves the tab to a new top-level URL and schedules the forms
// snapshot for when the page settles.
func (t *tab) navigated(u string) {
	c := t.c
	t.mu.Lock()
	t.url = u
	if t.settle != nil {
		t.settle.Stop()
	}
	t.settle = time.AfterFunc(c.cfg.Settle, func() { t.snapshotForms(u) })
	t.mu.Unlock()

	if c.sink.Recording() {
		c.sink.Navigated(t.id, u, c.cfg.Now().UnixMilli())
	}
	c.logger.Debug("capture: navigation", "tab", t.id, "url", u)
}

func (t *tab) stopSettle() {
	t.mu.Lock()
	if t.settle != nil {
		t.settle.Stop()
		t.settle = nil
	}
	t.mu.Unlock()
}

// snapshotForms documents every form field of the settled page.
func (t *tab) snapshotForms(u string) {
	c := t.c
	if !c.sink.Recording() || t.currentURL() != u {
		return
	}
	res, err := t.page.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		c.logger.Warn("capture: get DOM for forms snapshot", "tab", t.id, "error", err)
		return
	}
	markup := res.Value.Str()
	if len(markup) > c.cfg.MaxDocumentBytes {
		c.logger.Warn("capture: document too large for forms snapshot", "tab", t.id, "bytes", len(markup))
		return
	}
	c.sink.Forms(t.id, u, formsSnapshot(markup, u, c.cfg.Now().UnixMilli(), c.cfg.Locator))
}

// formsSnapshot builds the structural snapshot of a serialised document.
func formsSnapshot(markup, frameURL string, ts int64, opts locator.Options) session.FormsSnapshot {
	fs := session.FormsSnapshot{TS: ts, FrameURL: frameURL, Groups: []session.FormGroup{}}
	doc, err := locator.Parse([]byte(markup))
	if err != nil {
		return fs
	}
	if groups := locator.Forms(doc, opts); groups != nil {
		fs.Groups = groups
	}
	return fs
}
