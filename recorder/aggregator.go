// CLAUDE:SUMMARY Session aggregator actor: single goroutine owning the live session, fed by typed envelopes, with debounced persistence.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/flowrec/idgen"
	"github.com/hazyhaar/flowrec/recorder/internal/store"
	"github.com/hazyhaar/flowrec/session"
)

var (
	// ErrNotRecording is returned by Stop when no recording is active.
	ErrNotRecording = errors.New("recorder: not recording")
	// ErrClosed is returned once the aggregator has stopped running.
	ErrClosed = errors.New("recorder: aggregator closed")
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// QueueSize is the inbox capacity. Default: 1024.
	QueueSize int
	// PersistDebounce coalesces session writes. Default: 500ms.
	PersistDebounce time.Duration
	// Store receives session snapshots. Nil disables persistence.
	Store *store.Store
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// SessionID and VisitID default to the idgen prefixed generators.
	SessionID idgen.Generator
	VisitID   idgen.Generator
}

func (c *AggregatorConfig) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.PersistDebounce <= 0 {
		c.PersistDebounce = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.SessionID == nil {
		c.SessionID = idgen.Session
	}
	if c.VisitID == nil {
		c.VisitID = idgen.Visit
	}
}

type cursor struct {
	page, visit int
	synthetic   bool // created for an interaction that beat its navigation
}

// Aggregator owns the live Session. Every mutation runs on the Run
// goroutine, one envelope at a time; callers only hold the handle.
type Aggregator struct {
	cfg    AggregatorConfig
	logger *slog.Logger
	inbox  chan Envelope
	done   chan struct{}

	// recording mirrors the actor's state for cheap reads by the capture
	// layer. Only Run writes it.
	recording atomic.Bool

	// Owned by Run.
	sess    *session.Session
	active  bool
	cursors map[string]cursor
	dropped int
	dirty   bool
	writes  chan writeReq
}

// NewAggregator creates an Aggregator. Call Run to start it.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	cfg.defaults()
	return &Aggregator{
		cfg:     cfg,
		logger:  cfg.Logger,
		inbox:   make(chan Envelope, cfg.QueueSize),
		done:    make(chan struct{}),
		cursors: map[string]cursor{},
		writes:  make(chan writeReq, 8),
	}
}

// Recording reports whether a recording is active.
func (a *Aggregator) Recording() bool { return a.recording.Load() }

// Send delivers an envelope without waiting for it to be handled. It only
// blocks while the inbox is full, and reports false once the aggregator
// has stopped.
func (a *Aggregator) Send(env Envelope) bool {
	env.reply = nil
	select {
	case a.inbox <- env:
		return true
	case <-a.done:
		return false
	}
}

// Navigated records a top-level navigation of a tab.
func (a *Aggregator) Navigated(tabID, url string, ts int64) bool {
	return a.Send(Envelope{Kind: MsgNavigation, TabID: tabID, URL: url, TS: ts})
}

// Record forwards one captured interaction. topURL is the tab's current
// top-level URL as known to the sender, or "".
func (a *Aggregator) Record(tabID, topURL string, in session.Interaction) bool {
	return a.Send(Envelope{Kind: MsgInteraction, TabID: tabID, URL: topURL, TS: in.TS, Interaction: &in})
}

// Forms forwards the structural snapshot taken after a navigation settled.
func (a *Aggregator) Forms(tabID, topURL string, fs session.FormsSnapshot) bool {
	return a.Send(Envelope{Kind: MsgForms, TabID: tabID, URL: topURL, TS: fs.TS, Forms: &fs})
}

// TabClosed ends the tab's current visit.
func (a *Aggregator) TabClosed(tabID string, ts int64) bool {
	return a.Send(Envelope{Kind: MsgTabClosed, TabID: tabID, TS: ts})
}

func (a *Aggregator) call(ctx context.Context, env Envelope) (result, error) {
	env.reply = make(chan result, 1)
	select {
	case a.inbox <- env:
	case <-a.done:
		return result{}, ErrClosed
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case r := <-env.reply:
		return r, r.err
	case <-a.done:
		return result{}, ErrClosed
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// Start resets the session and starts recording. A visit is synthesized for
// each tab already open.
func (a *Aggregator) Start(ctx context.Context, tabs []Tab) (Status, error) {
	r, err := a.call(ctx, Envelope{Kind: MsgStart, Tabs: tabs})
	return r.status, err
}

// Stop ends the recording and returns the frozen session.
func (a *Aggregator) Stop(ctx context.Context) (*session.Session, error) {
	r, err := a.call(ctx, Envelope{Kind: MsgStop})
	return r.sess, err
}

// Status returns the live summary.
func (a *Aggregator) Status(ctx context.Context) (Status, error) {
	r, err := a.call(ctx, Envelope{Kind: MsgStatus})
	return r.status, err
}

// Session returns a copy of the current session, or nil before the first
// recording.
func (a *Aggregator) Session(ctx context.Context) (*session.Session, error) {
	r, err := a.call(ctx, Envelope{Kind: MsgGet})
	return r.sess, err
}

// Snapshot returns the live summary together with a copy of the session,
// both taken while handling the same message.
func (a *Aggregator) Snapshot(ctx context.Context) (Status, *session.Session, error) {
	r, err := a.call(ctx, Envelope{Kind: MsgGet})
	return r.status, r.sess, err
}

// Flush persists the current session now and waits for the write.
func (a *Aggregator) Flush(ctx context.Context) error {
	_, err := a.call(ctx, Envelope{Kind: MsgFlush})
	return err
}

// Done is closed when Run returns.
func (a *Aggregator) Done() <-chan struct{} { return a.done }

// Run processes envelopes until ctx is cancelled, then writes the session
// one last time.
func (a *Aggregator) Run(ctx context.Context) {
	writerDone := make(chan struct{})
	go a.writer(writerDone)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		a.persist(nil)
		close(a.writes)
		<-writerDone
		close(a.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-a.inbox:
			a.handle(env)
			if a.dirty && timerC == nil {
				timer = time.NewTimer(a.cfg.PersistDebounce)
				timerC = timer.C
			}
		case <-timerC:
			timer, timerC = nil, nil
			a.persist(nil)
		}
	}
}

func (a *Aggregator) handle(env Envelope) {
	var r result
	switch env.Kind {
	case MsgStart:
		r.status = a.start(env.Tabs)
	case MsgStop:
		r.sess, r.err = a.stop()
	case MsgStatus:
		r.status = a.status()
	case MsgGet:
		r.status = a.status()
		r.sess = a.sess.Clone()
	case MsgFlush:
		a.dirty = true
		a.persist(env.reply)
		return
	case MsgNavigation:
		if a.active {
			a.navigate(env.TabID, env.URL, env.TS, false)
		}
	case MsgInteraction:
		a.interaction(env)
	case MsgForms:
		a.forms(env)
	case MsgTabClosed:
		if c, ok := a.cursors[env.TabID]; ok && a.active {
			a.closeVisit(c)
			delete(a.cursors, env.TabID)
			a.dirty = true
		}
	default:
		a.logger.Warn("recorder: unknown message", "kind", int(env.Kind))
	}
	if env.reply != nil {
		env.reply <- r
	}
}

func (a *Aggregator) nowMS() int64 { return a.cfg.Now().UnixMilli() }

func (a *Aggregator) start(tabs []Tab) Status {
	if a.active {
		a.endSession()
	}
	if a.sess != nil {
		// The previous session is written before it is discarded.
		a.persist(nil)
	}
	a.sess = session.New(a.cfg.SessionID(), a.nowMS())
	a.cursors = map[string]cursor{}
	a.dropped = 0
	a.active = true
	a.recording.Store(true)
	for _, t := range tabs {
		if t.URL != "" {
			a.navigate(t.ID, t.URL, a.sess.Meta.StartedAt, false)
		}
	}
	a.dirty = true
	a.logger.Info("recorder: session started", "session", a.sess.Meta.ID, "tabs", len(tabs))
	return a.status()
}

func (a *Aggregator) stop() (*session.Session, error) {
	if !a.active {
		return a.sess.Clone(), ErrNotRecording
	}
	a.endSession()
	a.persist(nil)
	a.logger.Info("recorder: session stopped", "session", a.sess.Meta.ID,
		"pages", len(a.sess.Pages), "interactions", a.sess.InteractionCount())
	return a.sess.Clone(), nil
}

func (a *Aggregator) endSession() {
	for _, c := range a.cursors {
		a.closeVisit(c)
	}
	a.sess.Meta.EndedAt = a.nowMS()
	a.active = false
	a.recording.Store(false)
	a.dirty = true
}

func (a *Aggregator) status() Status {
	st := Status{Recording: a.active, Dropped: a.dropped, Tabs: len(a.cursors)}
	if a.sess != nil {
		st.SessionID = a.sess.Meta.ID
		st.StartedAt = a.sess.Meta.StartedAt
		st.EndedAt = a.sess.Meta.EndedAt
		st.Pages = len(a.sess.Pages)
		st.Visits = a.sess.VisitCount()
		st.Interactions = a.sess.InteractionCount()
	}
	return st
}

// navigate moves the tab's cursor to a new visit of url. A synthetic visit
// for the same URL is adopted instead: the navigation it stood in for has
// arrived.
func (a *Aggregator) navigate(tabID, url string, ts int64, synthetic bool) cursor {
	if c, ok := a.cursors[tabID]; ok {
		if c.synthetic && !synthetic && a.sess.Pages[c.page].TopURL == url {
			c.synthetic = false
			a.cursors[tabID] = c
			return c
		}
		a.closeVisit(c)
	}

	pi := a.sess.PageIndex(url)
	if pi < 0 {
		a.sess.Pages = append(a.sess.Pages, session.Page{TopURL: url, Visits: []session.Visit{}})
		pi = len(a.sess.Pages) - 1
	}
	page := &a.sess.Pages[pi]
	page.Visits = append(page.Visits, session.Visit{
		VisitID:      a.cfg.VisitID(),
		TabID:        tabID,
		StartedAt:    ts,
		Interactions: []session.Interaction{},
	})
	c := cursor{page: pi, visit: len(page.Visits) - 1, synthetic: synthetic}
	a.cursors[tabID] = c
	a.dirty = true
	a.logger.Debug("recorder: visit", "tab", tabID, "url", url, "synthetic", synthetic)
	return c
}

func (a *Aggregator) closeVisit(c cursor) {
	v := &a.sess.Pages[c.page].Visits[c.visit]
	v.EndedAt = v.StartedAt
	if n := len(v.Interactions); n > 0 {
		v.EndedAt = v.Interactions[n-1].TS
	}
}

// current returns the tab's cursor, synthesizing the page and visit when an
// event beat its navigation. When the sender knows a different top URL than
// the cursor's page, the navigation message is late and a visit is
// synthesized for that URL too.
func (a *Aggregator) current(tabID, url, fallbackURL string, ts int64) cursor {
	c, ok := a.cursors[tabID]
	if ok && (url == "" || a.sess.Pages[c.page].TopURL == url) {
		return c
	}
	if url == "" {
		url = fallbackURL
	}
	if url == "" {
		url = "about:blank"
	}
	a.logger.Debug("recorder: synthesizing visit", "tab", tabID, "url", url)
	return a.navigate(tabID, url, ts, true)
}

func (a *Aggregator) interaction(env Envelope) {
	if env.Interaction == nil {
		return
	}
	if !a.active {
		a.dropped++
		return
	}
	in := *env.Interaction
	c := a.current(env.TabID, env.URL, in.FrameURL, in.TS)
	v := &a.sess.Pages[c.page].Visits[c.visit]
	if in.TS < v.StartedAt {
		v.StartedAt = in.TS
	}

	// Keep the visit time-ordered; events from one tab almost always arrive
	// in order, so this is an append.
	i := len(v.Interactions)
	for i > 0 && v.Interactions[i-1].TS > in.TS {
		i--
	}
	v.Interactions = append(v.Interactions, session.Interaction{})
	copy(v.Interactions[i+1:], v.Interactions[i:])
	v.Interactions[i] = in
	a.dirty = true
}

func (a *Aggregator) forms(env Envelope) {
	if env.Forms == nil || !a.active {
		return
	}
	c := a.current(env.TabID, env.URL, env.Forms.FrameURL, env.Forms.TS)
	fs := *env.Forms
	a.sess.Pages[c.page].Visits[c.visit].FormsSnapshot = &fs
	a.dirty = true
}
