package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/flowrec/idgen"
	"github.com/hazyhaar/flowrec/recorder/internal/store"
	"github.com/hazyhaar/flowrec/session"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func runAggregator(t *testing.T, cfg AggregatorConfig) *Aggregator {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = fixedClock(1000)
	}
	if cfg.SessionID == nil {
		cfg.SessionID = idgen.Sequence("ses_")
	}
	if cfg.VisitID == nil {
		cfg.VisitID = idgen.Sequence("vis_")
	}
	a := NewAggregator(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-a.Done()
	})
	return a
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "flowrec.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func interaction(ts int64, id string) session.Interaction {
	v := "x"
	return session.Interaction{
		TS: ts, Action: session.ActionFill, Value: &v,
		Element:  session.ElementSnapshot{Tag: "input", ID: id},
		Locators: []session.Locator{{Kind: session.LocatorID, Value: id}},
	}
}

func getSession(t *testing.T, a *Aggregator) *session.Session {
	t.Helper()
	s, err := a.Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if s == nil {
		t.Fatal("Session: got nil")
	}
	return s
}

func TestAggregator_StartSynthesizesOpenTabs(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{})
	ctx := context.Background()

	st, err := a.Start(ctx, []Tab{{ID: "t1", URL: "https://a.test/"}, {ID: "t2", URL: "https://b.test/"}, {ID: "t3"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !st.Recording || st.SessionID != "ses_1" || st.Pages != 2 || st.Visits != 2 {
		t.Errorf("status: %+v", st)
	}
	if !a.Recording() {
		t.Error("Recording() false after start")
	}

	s := getSession(t, a)
	v := s.Pages[0].Visits[0]
	if v.TabID != "t1" || v.StartedAt != 1000 || v.VisitID != "vis_1" {
		t.Errorf("synthesized visit: %+v", v)
	}
}

func TestAggregator_InteractionBeforeNavigation(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{})
	ctx := context.Background()
	if _, err := a.Start(ctx, nil); err != nil {
		t.Fatal(err)
	}

	a.Record("t1", "https://b.test/form", interaction(1100, "email"))
	a.Navigated("t1", "https://b.test/form", 1050)
	a.Record("t1", "", interaction(1200, "name"))

	s := getSession(t, a)
	if len(s.Pages) != 1 || len(s.Pages[0].Visits) != 1 {
		t.Fatalf("late navigation must adopt the synthesized visit: %+v", s.Pages)
	}
	v := s.Pages[0].Visits[0]
	if len(v.Interactions) != 2 {
		t.Errorf("interactions: got %d, want 2", len(v.Interactions))
	}

	a.Navigated("t1", "https://b.test/done", 1300)
	s = getSession(t, a)
	if len(s.Pages) != 2 {
		t.Fatalf("pages: got %d, want 2", len(s.Pages))
	}
	if s.Pages[0].Visits[0].EndedAt != 1200 {
		t.Errorf("previous visit EndedAt: got %d, want 1200", s.Pages[0].Visits[0].EndedAt)
	}
}

func TestAggregator_InteractionWithoutURLUsesFrame(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{})
	a.Start(context.Background(), nil)

	in := interaction(1100, "q")
	in.FrameURL = "https://c.test/"
	a.Record("t9", "", in)

	s := getSession(t, a)
	if len(s.Pages) != 1 || s.Pages[0].TopURL != "https://c.test/" {
		t.Errorf("pages: %+v", s.Pages)
	}
}

func TestAggregator_RevisitSamePage(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{})
	a.Start(context.Background(), nil)

	a.Navigated("t1", "https://a.test/", 1100)
	a.Navigated("t1", "https://b.test/", 1200)
	a.Navigated("t1", "https://a.test/", 1300)

	s := getSession(t, a)
	if len(s.Pages) != 2 {
		t.Fatalf("pages: got %d, want 2", len(s.Pages))
	}
	visits := s.Pages[0].Visits
	if len(visits) != 2 || visits[0].StartedAt != 1100 || visits[1].StartedAt != 1300 {
		t.Errorf("visits of a.test: %+v", visits)
	}
	if visits[0].EndedAt != 1100 {
		t.Errorf("empty visit EndedAt: got %d, want its start", visits[0].EndedAt)
	}
}

func TestAggregator_KeepsInteractionsOrdered(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{})
	a.Start(context.Background(), []Tab{{ID: "t1", URL: "https://a.test/"}})

	a.Record("t1", "", interaction(1300, "a"))
	a.Record("t1", "", interaction(1200, "b"))
	a.Record("t1", "", interaction(1400, "c"))

	ins := getSession(t, a).Pages[0].Visits[0].Interactions
	if len(ins) != 3 || ins[0].TS != 1200 || ins[1].TS != 1300 || ins[2].TS != 1400 {
		t.Errorf("order: %+v", ins)
	}
}

func TestAggregator_StopFreezes(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{Now: fixedClock(5000)})
	ctx := context.Background()

	if _, err := a.Stop(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop while idle: got %v, want ErrNotRecording", err)
	}

	a.Start(ctx, []Tab{{ID: "t1", URL: "https://a.test/"}})
	a.Record("t1", "", interaction(5100, "a"))
	s, err := a.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Meta.EndedAt != 5000 || s.InteractionCount() != 1 {
		t.Errorf("stopped session: %+v", s.Meta)
	}
	if s.Pages[0].Visits[0].EndedAt != 5100 {
		t.Errorf("visit EndedAt: %d", s.Pages[0].Visits[0].EndedAt)
	}

	a.Record("t1", "", interaction(5200, "late"))
	a.Navigated("t1", "https://z.test/", 5300)
	st, _ := a.Status(ctx)
	if st.Recording || st.Interactions != 1 || st.Pages != 1 || st.Dropped != 1 {
		t.Errorf("status after stop: %+v", st)
	}
	if a.Recording() {
		t.Error("Recording() true after stop")
	}
}

func TestAggregator_RestartDiscardsPrevious(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{})
	ctx := context.Background()
	a.Start(ctx, []Tab{{ID: "t1", URL: "https://a.test/"}})
	a.Record("t1", "", interaction(1100, "a"))

	st, err := a.Start(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.SessionID != "ses_2" || st.Interactions != 0 || st.Pages != 0 {
		t.Errorf("restarted status: %+v", st)
	}
}

func TestAggregator_FormsSnapshot(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{})
	a.Start(context.Background(), []Tab{{ID: "t1", URL: "https://a.test/"}})

	a.Forms("t1", "https://a.test/", session.FormsSnapshot{TS: 1100, Groups: []session.FormGroup{{Key: "#f", Fields: []session.FieldSnapshot{}}}})

	v := getSession(t, a).Pages[0].Visits[0]
	if v.FormsSnapshot == nil || v.FormsSnapshot.Groups[0].Key != "#f" {
		t.Errorf("forms snapshot: %+v", v.FormsSnapshot)
	}
}

func TestAggregator_TabClosed(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{})
	a.Start(context.Background(), []Tab{{ID: "t1", URL: "https://a.test/"}})
	a.Record("t1", "", interaction(1100, "a"))
	a.TabClosed("t1", 1200)

	st, _ := a.Status(context.Background())
	if st.Tabs != 0 {
		t.Errorf("tabs: %d", st.Tabs)
	}
	a.Record("t1", "https://b.test/", interaction(1300, "b"))
	s := getSession(t, a)
	if len(s.Pages) != 2 || s.Pages[0].Visits[0].EndedAt != 1100 {
		t.Errorf("pages: %+v", s.Pages)
	}
}

func TestAggregator_FlushPersists(t *testing.T) {
	st := testStore(t)
	a := runAggregator(t, AggregatorConfig{Store: st, PersistDebounce: time.Hour})
	ctx := context.Background()

	a.Start(ctx, []Tab{{ID: "t1", URL: "https://a.test/"}})
	a.Record("t1", "", interaction(1100, "a"))
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	row, err := st.GetSession(ctx, "ses_1")
	if err != nil || row == nil {
		t.Fatalf("GetSession: %v %v", row, err)
	}
	if row.Status != store.StatusRecording || row.Interactions != 1 {
		t.Errorf("row: %+v", row)
	}
	s, err := session.Decode(row.Raw)
	if err != nil {
		t.Fatalf("stored document: %v", err)
	}
	if s.InteractionCount() != 1 {
		t.Errorf("stored interactions: %d", s.InteractionCount())
	}

	a.Stop(ctx)
	a.Flush(ctx)
	row, _ = st.GetSession(ctx, "ses_1")
	if row.Status != store.StatusStopped {
		t.Errorf("status after stop: %q", row.Status)
	}
}

func TestAggregator_DebouncedPersistence(t *testing.T) {
	st := testStore(t)
	a := runAggregator(t, AggregatorConfig{Store: st, PersistDebounce: 20 * time.Millisecond})
	ctx := context.Background()

	a.Start(ctx, []Tab{{ID: "t1", URL: "https://a.test/"}})
	for i := range 5 {
		a.Record("t1", "", interaction(int64(1100+i), "a"))
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		row, err := st.GetSession(ctx, "ses_1")
		if err != nil {
			t.Fatal(err)
		}
		if row != nil && row.Interactions == 5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never persisted with all interactions")
}

func TestAggregator_ConcurrentReaders(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{})
	ctx := context.Background()
	a.Start(ctx, []Tab{{ID: "t1", URL: "https://a.test/"}})

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := range 25 {
				a.Record("t1", "", interaction(int64(2000+i*100+j), "a"))
			}
		}()
		go func() {
			defer wg.Done()
			for range 25 {
				if _, err := a.Status(ctx); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if st, _ := a.Status(ctx); st.Interactions != 100 {
		t.Errorf("interactions: got %d, want 100", st.Interactions)
	}
}

func TestAggregator_SnapshotConsistent(t *testing.T) {
	a := runAggregator(t, AggregatorConfig{})
	ctx := context.Background()
	a.Start(ctx, []Tab{{ID: "t1", URL: "https://a.test/"}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for j := range 200 {
			a.Record("t1", "", interaction(int64(2000+j), "a"))
		}
	}()
	for {
		st, s, err := a.Snapshot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if s == nil || st.Interactions != s.InteractionCount() || st.Visits != s.VisitCount() {
			t.Fatalf("status %+v disagrees with session copy", st)
		}
		if st.Interactions == 200 {
			break
		}
	}
	<-done
}

func TestAggregator_Closed(t *testing.T) {
	a := NewAggregator(AggregatorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	cancel()
	<-a.Done()

	if _, err := a.Status(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Status after close: %v", err)
	}
}
