package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/flowrec/flowmap"
	"github.com/hazyhaar/flowrec/horosafe"
	"github.com/hazyhaar/flowrec/session"
)

const sampleRaw = `{
  "meta": {"id": "ses_sample", "startedAt": 1000, "endedAt": 2000},
  "pages": [{
    "topUrl": "https://a.test/form",
    "visits": [{
      "visitId": "v1", "startedAt": 1000, "endedAt": 1300,
      "interactions": [
        {"ts": 1100, "action": "fill", "element": {"tag": "input", "type": "email", "id": "email"},
         "value": "a@b.test", "locators": [{"kind": "id", "value": "email"}], "context": {"label": "Email"}},
        {"ts": 1300, "action": "submit", "element": {"tag": "form", "id": "signup"},
         "form": {"action": "/signup", "method": "post"}, "locators": [], "context": {}}
      ]
    }]
  }]
}`

type fixedTabs []Tab

func (f fixedTabs) Tabs() []Tab { return f }

func newTestRecorder(t *testing.T, opts ...Option) *Recorder {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "flowrec.db")
	cfg.Export.Dir = filepath.Join(dir, "exports")

	r, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-r.Aggregator().Done()
		r.Close()
	})
	return r
}

func TestRecorder_StartUsesOpenTabs(t *testing.T) {
	r := newTestRecorder(t, WithTabs(fixedTabs{{ID: "t1", URL: "https://a.test/"}}))
	st, err := r.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Pages != 1 || st.Visits != 1 {
		t.Errorf("status: %+v", st)
	}

	rep, err := r.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Status.Recording || rep.Session == nil || rep.Session.Pages[0].TopURL != "https://a.test/" {
		t.Errorf("report: %+v", rep)
	}
}

func TestRecorder_BuildFlowMap(t *testing.T) {
	r := newTestRecorder(t)

	fm, err := r.BuildFlowMap([]byte(sampleRaw), "sample.raw.json")
	if err != nil {
		t.Fatal(err)
	}
	if fm.Meta.RawFile != "sample.raw.json" || len(fm.Pages) != 1 {
		t.Fatalf("flowmap: %+v", fm.Meta)
	}
	steps := fm.Pages[0].Visits[0].Steps
	if len(steps) != 3 || steps[0].Action != flowmap.StepNavigate || steps[1].Action != flowmap.StepFill || steps[2].Action != flowmap.StepSubmit {
		t.Errorf("steps: %+v", steps)
	}

	if _, err := r.BuildFlowMap([]byte(`{"meta":{}}`), ""); !errors.Is(err, session.ErrMalformed) {
		t.Errorf("missing pages: got %v", err)
	}
	big := make([]byte, horosafe.MaxRawSession+1)
	if _, err := r.BuildFlowMap(big, ""); !errors.Is(err, horosafe.ErrTooLarge) {
		t.Errorf("oversized: got %v", err)
	}
}

func TestRecorder_ExportWritesFiles(t *testing.T) {
	r := newTestRecorder(t, WithTabs(fixedTabs{{ID: "t1", URL: "https://a.test/"}}))
	ctx := context.Background()

	if _, err := r.Export(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("export before any recording: got %v", err)
	}

	st, _ := r.Start(ctx)
	r.Aggregator().Record("t1", "", interaction(st.StartedAt+10, "email"))

	res, err := r.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.SessionID != st.SessionID || res.Steps != 2 || !strings.HasPrefix(res.ID, "exp_") {
		t.Errorf("result: %+v", res)
	}
	for _, name := range []string{res.RawFile, res.FlowMapFile, res.ReportFile} {
		data, err := os.ReadFile(filepath.Join(res.Dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("%s is empty", name)
		}
	}

	raw, _ := os.ReadFile(filepath.Join(res.Dir, res.RawFile))
	fm, err := r.BuildFlowMap(raw, res.RawFile)
	if err != nil {
		t.Fatalf("exported raw does not compile: %v", err)
	}
	if fm.Pages[0].Visits[0].Steps[1].Element == "" {
		t.Error("step without element")
	}

	list, err := r.Exports(ctx, st.SessionID)
	if err != nil || len(list) != 1 || list[0].ID != res.ID {
		t.Errorf("exports: %v %v", list, err)
	}
}

func TestRecorder_StoredSessions(t *testing.T) {
	r := newTestRecorder(t, WithTabs(fixedTabs{{ID: "t1", URL: "https://a.test/"}}))
	ctx := context.Background()

	st, _ := r.Start(ctx)
	r.Aggregator().Record("t1", "", interaction(st.StartedAt+10, "email"))
	if _, err := r.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Aggregator().Flush(ctx); err != nil {
		t.Fatal(err)
	}

	list, err := r.Sessions(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("sessions: %v %v", list, err)
	}
	if list[0].ID != st.SessionID || list[0].Status != "stopped" || list[0].Interactions != 1 {
		t.Errorf("summary: %+v", list[0])
	}

	fm, err := r.CompileStored(ctx, st.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if fm.Meta.RawFile != st.SessionID+".raw.json" {
		t.Errorf("raw file: %q", fm.Meta.RawFile)
	}

	if _, err := r.CompileStored(ctx, "ses_missing"); !errors.Is(err, ErrNoSession) {
		t.Errorf("missing session: got %v", err)
	}

	res, err := r.ExportStored(ctx, st.SessionID)
	if err != nil || res.Steps != 2 {
		t.Errorf("ExportStored: %+v %v", res, err)
	}
}

func TestRecorder_InterruptedSessionsClosedOnOpen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "flowrec.db")
	cfg.Export.Dir = filepath.Join(dir, "exports")

	r1, err := New(cfg, WithTabs(fixedTabs{{ID: "t1", URL: "https://a.test/"}}))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go r1.Run(ctx)
	st, _ := r1.Start(context.Background())
	r1.Aggregator().Flush(context.Background())
	cancel()
	<-r1.Aggregator().Done()
	r1.Close()

	r2 := func() *Recorder {
		r, err := New(cfg)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { r.Close() })
		return r
	}()
	list, err := r2.Sessions(context.Background(), 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("sessions: %v %v", list, err)
	}
	if list[0].ID != st.SessionID || list[0].Status != "stopped" {
		t.Errorf("interrupted session: %+v", list[0])
	}
}
