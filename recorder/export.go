package recorder

import (
	"context"
	"fmt"
	"os"

	"github.com/hazyhaar/flowrec/flowmap"
	"github.com/hazyhaar/flowrec/horosafe"
	"github.com/hazyhaar/flowrec/idgen"
	"github.com/hazyhaar/flowrec/recorder/internal/store"
	"github.com/hazyhaar/flowrec/session"
)

const (
	rawSuffix     = ".raw.json"
	flowmapSuffix = ".flowmap.json"
	reportSuffix  = ".md"
)

// ExportResult describes the files written by an export.
type ExportResult struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Dir         string `json:"dir"`
	RawFile     string `json:"raw_file"`
	FlowMapFile string `json:"flowmap_file"`
	ReportFile  string `json:"report_file"`
	Steps       int    `json:"steps"`
}

// Export writes the current session as <id>.raw.json, its compiled
// <id>.flowmap.json and the <id>.md report into the export directory, and
// records the export. The session is flushed to the store first.
func (r *Recorder) Export(ctx context.Context) (*ExportResult, error) {
	if err := r.agg.Flush(ctx); err != nil {
		return nil, fmt.Errorf("recorder: export: flush: %w", err)
	}
	s, err := r.agg.Session(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	return r.export(ctx, s)
}

// ExportStored exports a persisted session.
func (r *Recorder) ExportStored(ctx context.Context, id string) (*ExportResult, error) {
	s, err := r.StoredSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.export(ctx, s)
}

func (r *Recorder) export(ctx context.Context, s *session.Session) (*ExportResult, error) {
	id := s.Meta.ID
	if err := horosafe.ValidateIdentifier(id); err != nil {
		return nil, fmt.Errorf("recorder: export: %w", err)
	}
	dir := r.cfg.Export.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: export: %w", err)
	}

	res := &ExportResult{
		ID:          idgen.Export(),
		SessionID:   id,
		Dir:         dir,
		RawFile:     id + rawSuffix,
		FlowMapFile: id + flowmapSuffix,
		ReportFile:  id + reportSuffix,
	}

	raw, err := session.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("recorder: export: %w", err)
	}
	opts := r.cfg.CompileOptions()
	opts.RawFile = res.RawFile
	fm, err := flowmap.Compile(s, opts)
	if err != nil {
		return nil, fmt.Errorf("recorder: export: compile: %w", err)
	}
	fmData, err := flowmap.Encode(fm)
	if err != nil {
		return nil, fmt.Errorf("recorder: export: %w", err)
	}
	report, err := flowmap.RenderMarkdown(fm)
	if err != nil {
		return nil, fmt.Errorf("recorder: export: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{res.RawFile, raw},
		{res.FlowMapFile, fmData},
		{res.ReportFile, []byte(report)},
	}
	for _, f := range files {
		path, err := horosafe.SafePath(dir, f.name)
		if err != nil {
			return nil, fmt.Errorf("recorder: export %s: %w", f.name, err)
		}
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return nil, fmt.Errorf("recorder: export: %w", err)
		}
	}

	for _, p := range fm.Pages {
		for _, v := range p.Visits {
			res.Steps += len(v.Steps)
		}
	}

	if err := r.store.InsertExport(ctx, &store.ExportRow{
		ID: res.ID, SessionID: id, Dir: dir, RawFile: res.RawFile,
		FlowMapFile: res.FlowMapFile, ReportFile: res.ReportFile, Steps: res.Steps,
	}); err != nil {
		// The files are written; only the history entry is missing.
		r.logger.Warn("recorder: record export", "session", id, "error", err)
	}
	r.logger.Info("recorder: session exported", "session", id, "dir", dir, "steps", res.Steps)
	return res, nil
}

// Exports lists the recorded exports of a session.
func (r *Recorder) Exports(ctx context.Context, sessionID string) ([]*store.ExportRow, error) {
	return r.store.ListExports(ctx, sessionID)
}
