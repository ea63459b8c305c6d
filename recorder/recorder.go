// CLAUDE:SUMMARY Recorder service: owns the aggregator and the SQLite store; start/stop/status, stateless FlowMap build, export, stored sessions.
// Package recorder is the process-wide side of flowrec: the session
// aggregator that owns the live recording, its persistence, and the command
// surface an operator drives it through (Go API, MCP tools, HTTP panel).
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/flowrec/dbopen"
	"github.com/hazyhaar/flowrec/flowmap"
	"github.com/hazyhaar/flowrec/horosafe"
	"github.com/hazyhaar/flowrec/recorder/internal/store"
	"github.com/hazyhaar/flowrec/session"

	_ "modernc.org/sqlite"
)

// ErrNoSession is returned when there is no session to read or export.
var ErrNoSession = errors.New("recorder: no session")

// TabLister reports the tabs currently open in the recording browser.
type TabLister interface {
	Tabs() []Tab
}

// Recorder wires the aggregator, the store and the compiler together.
type Recorder struct {
	cfg    *Config
	logger *slog.Logger
	store  *store.Store
	agg    *Aggregator
	audit  *store.AuditLogger
	tabs   TabLister
}

// Option customises New.
type Option func(*Recorder)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(r *Recorder) { r.logger = l } }

// WithTabs sets the source of open tabs used when a recording starts.
func WithTabs(t TabLister) Option { return func(r *Recorder) { r.tabs = t } }

// New opens the store and creates the aggregator. Sessions a previous
// process left in recording state are marked stopped.
func New(cfg *Config, opts ...Option) (*Recorder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Recorder{cfg: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}

	st, err := store.Open(cfg.Store.Path, dbopen.WithBusyTimeout(int(cfg.Store.BusyTimeout.Milliseconds())))
	if err != nil {
		return nil, fmt.Errorf("recorder: open store: %w", err)
	}
	r.store = st
	if n, err := st.MarkInterrupted(context.Background()); err != nil {
		r.logger.Warn("recorder: mark interrupted sessions", "error", err)
	} else if n > 0 {
		r.logger.Info("recorder: interrupted sessions closed", "count", n)
	}

	r.audit = store.NewAuditLogger(st, 256, r.logger)
	r.agg = NewAggregator(AggregatorConfig{
		QueueSize:       cfg.Recording.QueueSize,
		PersistDebounce: cfg.Recording.PersistDebounce,
		Store:           st,
		Logger:          r.logger,
	})
	return r, nil
}

// SetTabs sets the tab source. Call before Run.
func (r *Recorder) SetTabs(t TabLister) { r.tabs = t }

// Aggregator returns the handle the capture layer sends envelopes to.
func (r *Recorder) Aggregator() *Aggregator { return r.agg }

// Config returns the effective configuration.
func (r *Recorder) Config() *Config { return r.cfg }

// Run runs the aggregator until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	r.agg.Run(ctx)
}

// Close drains the audit log and closes the store. Call after Run has returned.
func (r *Recorder) Close() error {
	r.audit.Close()
	return r.store.Close()
}

// Start begins a new recording, synthesizing a visit for every open tab.
func (r *Recorder) Start(ctx context.Context) (Status, error) {
	var tabs []Tab
	if r.tabs != nil {
		tabs = r.tabs.Tabs()
	}
	return r.agg.Start(ctx, tabs)
}

// Stop ends the recording and returns the frozen session.
func (r *Recorder) Stop(ctx context.Context) (*session.Session, error) {
	return r.agg.Stop(ctx)
}

// StatusReport is the live recording flag, counters and session.
type StatusReport struct {
	Status  Status           `json:"status"`
	Session *session.Session `json:"session,omitempty"`
}

// Status returns the recording state together with a copy of the session.
func (r *Recorder) Status(ctx context.Context) (*StatusReport, error) {
	st, s, err := r.agg.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusReport{Status: st, Session: s}, nil
}

// BuildFlowMap compiles a previously exported raw session document,
// independently of any live recording.
func (r *Recorder) BuildFlowMap(raw []byte, rawFile string) (*flowmap.FlowMap, error) {
	if int64(len(raw)) > horosafe.MaxRawSession {
		return nil, fmt.Errorf("%w: raw session exceeds %d bytes", horosafe.ErrTooLarge, horosafe.MaxRawSession)
	}
	opts := r.cfg.CompileOptions()
	opts.RawFile = rawFile
	return flowmap.CompileJSON(raw, opts)
}

// SessionSummary describes a stored session.
type SessionSummary struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	StartedAt    int64  `json:"started_at"`
	EndedAt      int64  `json:"ended_at,omitempty"`
	Pages        int    `json:"pages"`
	Visits       int    `json:"visits"`
	Interactions int    `json:"interactions"`
}

// Sessions lists stored sessions, most recent first.
func (r *Recorder) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	rows, err := r.store.ListSessions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recorder: list sessions: %w", err)
	}
	out := make([]SessionSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, SessionSummary{
			ID: row.ID, Status: row.Status, StartedAt: row.StartedAt, EndedAt: row.EndedAt,
			Pages: row.Pages, Visits: row.Visits, Interactions: row.Interactions,
		})
	}
	return out, nil
}

// StoredSession loads a persisted session.
func (r *Recorder) StoredSession(ctx context.Context, id string) (*session.Session, error) {
	row, err := r.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("recorder: get session: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return session.Decode(row.Raw)
}

// CompileStored compiles a persisted session.
func (r *Recorder) CompileStored(ctx context.Context, id string) (*flowmap.FlowMap, error) {
	s, err := r.StoredSession(ctx, id)
	if err != nil {
		return nil, err
	}
	opts := r.cfg.CompileOptions()
	opts.RawFile = id + rawSuffix
	return flowmap.Compile(s, opts)
}
