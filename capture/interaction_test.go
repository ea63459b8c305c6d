package capture

import (
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/flowrec/locator"
	"github.com/hazyhaar/flowrec/session"
)

const pageFixture = `<!DOCTYPE html><html><head><title>t</title></head><body>
<h1>Registration</h1>
<form id="signup" action="/signup" method="POST">
  <label for="email">Email</label>
  <input id="email" name="email" type="email" %s>
  <label>Country
    <select name="country" %s><option value="">--</option><option value="ES">Spain</option></select>
  </label>
  <label for="tos">I accept</label>
  <input id="tos" type="checkbox" name="tos" %s>
  <input id="doc" type="file" name="doc" %s>
  <button type="submit" %s><span %s>Send</span></button>
</form>
<div %s>just text</div>
</body></html>`

// page renders the fixture with the marker on the slot-th element.
func page(slot int) string {
	args := make([]any, 7)
	for i := range args {
		args[i] = ""
	}
	args[slot] = markerAttr
	return fmtSlots(pageFixture, args)
}

func fmtSlots(tmpl string, args []any) string {
	var b strings.Builder
	parts := strings.Split(tmpl, "%s")
	for i, p := range parts {
		b.WriteString(p)
		if i < len(args) && i < len(parts)-1 {
			b.WriteString(args[i].(string))
		}
	}
	return b.String()
}

const (
	slotEmail = iota
	slotSelect
	slotToggle
	slotFile
	slotButton
	slotButtonSpan
	slotDiv
)

func str(s string) *string { return &s }
func boolp(b bool) *bool   { return &b }

func build(t *testing.T, p Payload) (session.Interaction, bool) {
	t.Helper()
	in, ok, err := Build(p, locator.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return in, ok
}

func TestBuild_ClickWalksToActionable(t *testing.T) {
	in, ok := build(t, Payload{Event: EventClick, TS: 10, FrameURL: "https://a.test/", HTML: page(slotButtonSpan)})
	if !ok {
		t.Fatal("click on button content dropped")
	}
	if in.Action != session.ActionClick || in.Element.Tag != "button" {
		t.Errorf("got %s on %s", in.Action, in.Element.Tag)
	}
	if best, ok := session.Best(in.Locators); !ok || best.Kind != session.LocatorText || best.Value != "Send" {
		t.Errorf("best locator: %+v", best)
	}
	if in.Context.Heading != "Registration" || in.TS != 10 || in.FrameURL != "https://a.test/" {
		t.Errorf("context: %+v ts=%d frame=%q", in.Context, in.TS, in.FrameURL)
	}
	if _, marked := in.Element.Attrs[markerAttr]; marked || strings.Contains(in.Element.HTML, markerAttr) {
		t.Error("marker leaked into the element snapshot")
	}
}

func TestBuild_ClickSuppressed(t *testing.T) {
	for name, slot := range map[string]int{"text input": slotEmail, "select": slotSelect, "plain div": slotDiv} {
		t.Run(name, func(t *testing.T) {
			if _, ok := build(t, Payload{Event: EventClick, HTML: page(slot)}); ok {
				t.Error("click kept")
			}
		})
	}
}

func TestBuild_Fill(t *testing.T) {
	in, ok := build(t, Payload{Event: EventFill, HTML: page(slotEmail), Value: str("a@b.com")})
	if !ok || in.Action != session.ActionFill || *in.Value != "a@b.com" {
		t.Fatalf("fill: ok=%v %+v", ok, in)
	}
	if in.Element.ID != "email" || in.Context.Label != "Email" {
		t.Errorf("element: %+v context: %+v", in.Element, in.Context)
	}
	if !strings.Contains(in.Context.Form, "signup") {
		t.Errorf("form excerpt: %q", in.Context.Form)
	}
	if _, ok := build(t, Payload{Event: EventFill, HTML: page(slotEmail), Value: str("")}); ok {
		t.Error("empty fill kept")
	}
}

func TestBuild_Change(t *testing.T) {
	tests := []struct {
		name   string
		p      Payload
		action session.Action
		check  func(t *testing.T, in session.Interaction)
	}{
		{
			name:   "select",
			p:      Payload{Event: EventChange, HTML: page(slotSelect), Value: str("ES"), Selected: &session.Selected{Value: "ES", Label: "Spain"}},
			action: session.ActionSelect,
			check: func(t *testing.T, in session.Interaction) {
				if in.Selected.Label != "Spain" || len(in.Element.Options) != 2 {
					t.Errorf("selected %+v options %v", in.Selected, in.Element.Options)
				}
			},
		},
		{
			name:   "check",
			p:      Payload{Event: EventChange, HTML: page(slotToggle), Checked: boolp(true)},
			action: session.ActionCheck,
		},
		{
			name:   "uncheck",
			p:      Payload{Event: EventChange, HTML: page(slotToggle), Checked: boolp(false)},
			action: session.ActionUncheck,
		},
		{
			name:   "upload",
			p:      Payload{Event: EventChange, HTML: page(slotFile), Files: []string{"a.pdf", "b.pdf"}},
			action: session.ActionUpload,
			check: func(t *testing.T, in session.Interaction) {
				if in.FileCount != 2 || len(in.Files) != 2 {
					t.Errorf("files %v count %d", in.Files, in.FileCount)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := build(t, tt.p)
			if !ok || in.Action != tt.action {
				t.Fatalf("got ok=%v action=%s, want %s", ok, in.Action, tt.action)
			}
			if tt.check != nil {
				tt.check(t, in)
			}
		})
	}

	if _, ok := build(t, Payload{Event: EventChange, HTML: page(slotToggle)}); ok {
		t.Error("toggle change without state kept")
	}
}

func TestBuild_Submit(t *testing.T) {
	markup := strings.Replace(page(slotDiv), `<form id="signup"`, `<form `+markerAttr+` id="signup"`, 1)
	markup = strings.Replace(markup, `<div `+markerAttr+`>`, `<div>`, 1)

	in, ok := build(t, Payload{Event: EventSubmit, HTML: markup})
	if !ok || in.Action != session.ActionSubmit {
		t.Fatalf("submit: ok=%v %+v", ok, in)
	}
	if in.Form == nil || in.Form.Action != "/signup" || in.Form.Method != "post" {
		t.Errorf("form info from attributes: %+v", in.Form)
	}

	in, _ = build(t, Payload{Event: EventSubmit, HTML: markup, Form: &session.FormInfo{Action: "https://a.test/signup", Method: "post"}})
	if in.Form.Action != "https://a.test/signup" {
		t.Errorf("form info from payload: %+v", in.Form)
	}
}

func TestBuild_Errors(t *testing.T) {
	if _, _, err := Build(Payload{Event: EventClick, HTML: "<p>no marker</p>"}, locator.Options{}); !errors.Is(err, ErrNoTarget) {
		t.Errorf("no marker: got %v", err)
	}
	if _, _, err := Build(Payload{Event: "hover", HTML: page(slotButton)}, locator.Options{}); err == nil {
		t.Error("unknown event accepted")
	}
}

func TestFormsSnapshot(t *testing.T) {
	fs := formsSnapshot(page(slotDiv), "https://a.test/", 42, locator.Options{})
	if fs.TS != 42 || fs.FrameURL != "https://a.test/" || len(fs.Groups) != 1 {
		t.Fatalf("snapshot: %+v", fs)
	}
	g := fs.Groups[0]
	if g.Key != "#signup" || g.Method != "post" || len(g.Fields) != 4 {
		t.Errorf("group: %+v", g)
	}
}

func TestShotName(t *testing.T) {
	got := shotName("https://a.test/path/page?q=1#x", 7)
	if got != "7_https___a_test_path_page.png" {
		t.Errorf("got %q", got)
	}
	long := shotName("https://a.test/"+strings.Repeat("x", 80), 1)
	if len(long) != len("1_")+50+len(".png") {
		t.Errorf("long slug: %q", long)
	}
}
