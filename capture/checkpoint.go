// CLAUDE:SUMMARY Checkpoint screenshots: a PNG per tab whenever the top URL or the heading of the interacted element changes.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/flowrec/horosafe"
)

type checkpoint struct {
	url, heading string
}

// checkpoint saves a screenshot when the URL or heading differs from the
// tab's previous checkpoint. Best effort: failures are logged.
func (t *tab) checkpoint(url, heading string, ts int64) {
	c := t.c
	if c.cfg.ScreenshotDir == "" || t.page == nil {
		return
	}
	next := checkpoint{url: url, heading: heading}
	t.mu.Lock()
	if t.last == next {
		t.mu.Unlock()
		return
	}
	t.last = next
	t.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		path, err := t.screenshot(ctx, url, ts)
		if err != nil {
			c.logger.Warn("capture: checkpoint screenshot", "tab", t.id, "url", url, "error", err)
			return
		}
		c.logger.Debug("capture: checkpoint", "tab", t.id, "path", path)
	}()
}

func (t *tab) screenshot(ctx context.Context, url string, ts int64) (string, error) {
	st, err := t.c.sink.Status(ctx)
	if err != nil {
		return "", err
	}
	if err := horosafe.ValidateIdentifier(st.SessionID); err != nil {
		return "", err
	}
	dir, err := horosafe.SafePath(t.c.cfg.ScreenshotDir, st.SessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path, err := horosafe.SafePath(dir, shotName(url, ts))
	if err != nil {
		return "", err
	}

	data, err := t.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

// shotName is <ts>_<url slug>.png; the slug drops the query, keeps
// letters and digits, and is cut to its last 50 characters.
func shotName(url string, ts int64) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '_'
	}, url)
	if len(slug) > 50 {
		slug = slug[len(slug)-50:]
	}
	return fmt.Sprintf("%d_%s.png", ts, slug)
}
