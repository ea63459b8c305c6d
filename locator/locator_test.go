package locator

import (
	"strings"
	"testing"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hazyhaar/flowrec/session"
)

const signupPage = `<!DOCTYPE html>
<html><body>
<h1>Account</h1>
<form id="signup" action="/register" method="POST">
  <h2>Contact</h2>
  <label for="email">Email address</label>
  <input id="email" name="email" type="email" placeholder="you@example.com">
  <label>Country <select name="country"><option value="ES">Spain</option><option value="FR">France</option></select></label>
  <input type="text" aria-labelledby="lbl-city" name="city">
  <span id="lbl-city">City</span>
  <button type="submit">Create account</button>
</form>
<div><div><input type="checkbox" aria-label="Accept terms"></div></div>
<a href="/help"><span id="help-text">Need help?</span></a>
<div class="plain">just text</div>
</body></html>`

func parse(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := Parse([]byte(markup))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

// find returns the first element matching the predicate.
func find(t *testing.T, doc *html.Node, match func(*html.Node) bool) *html.Node {
	t.Helper()
	var found *html.Node
	walkElements(doc, func(n *html.Node) bool {
		if match(n) {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		t.Fatal("element not found")
	}
	return found
}

func byAttr(key, val string) func(*html.Node) bool {
	return func(n *html.Node) bool { return attr(n, key) == val }
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func kinds(locs []session.Locator) []session.LocatorKind {
	out := make([]session.LocatorKind, len(locs))
	for i, l := range locs {
		out[i] = l.Kind
	}
	return out
}

func value(locs []session.Locator, kind session.LocatorKind) string {
	for _, l := range locs {
		if l.Kind == kind {
			return l.Value
		}
	}
	return ""
}

func sameKinds(got, want []session.LocatorKind) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestResolve_FullCandidateOrder(t *testing.T) {
	doc := parse(t, signupPage)
	email := find(t, doc, byAttr("id", "email"))

	res := Resolve(email, Options{})
	want := []session.LocatorKind{
		session.LocatorID, session.LocatorName, session.LocatorLabel,
		session.LocatorPlaceholder, session.LocatorCSS, session.LocatorXPath,
	}
	if got := kinds(res.Locators); !sameKinds(got, want) {
		t.Fatalf("kinds: got %v, want %v", got, want)
	}
	checks := map[session.LocatorKind]string{
		session.LocatorID:          "email",
		session.LocatorName:        "email",
		session.LocatorLabel:       "Email address",
		session.LocatorPlaceholder: "you@example.com",
		session.LocatorCSS:         "#email",
		session.LocatorXPath:       "/html/body/form/input[1]",
	}
	for k, v := range checks {
		if got := value(res.Locators, k); got != v {
			t.Errorf("%s: got %q, want %q", k, got, v)
		}
	}
	if res.Context.Label != "Email address" {
		t.Errorf("Context.Label: got %q", res.Context.Label)
	}
	if res.Context.Heading != "Contact" {
		t.Errorf("Context.Heading: got %q, want %q", res.Context.Heading, "Contact")
	}
	if !strings.HasPrefix(res.Context.Form, "<form") {
		t.Errorf("Context.Form: got %q, want form markup", res.Context.Form)
	}
	if n := utf8.RuneCountInString(res.Context.Form); n > 200 {
		t.Errorf("Context.Form: %d runes, want <= 200", n)
	}
}

func TestResolve_WrappingLabelExcludesOptions(t *testing.T) {
	doc := parse(t, signupPage)
	sel := find(t, doc, byTag("select"))

	res := Resolve(sel, Options{})
	if got := value(res.Locators, session.LocatorLabel); got != "Country" {
		t.Errorf("label: got %q, want %q", got, "Country")
	}
	if got := value(res.Locators, session.LocatorCSS); got != "#signup > label:nth-of-type(2) > select" {
		t.Errorf("css: got %q", got)
	}
	if value(res.Locators, session.LocatorID) != "" {
		t.Error("unexpected id candidate for element without id")
	}
	if res.Context.Heading != "Contact" {
		t.Errorf("heading: got %q", res.Context.Heading)
	}
}

func TestResolve_AriaLabelledBy(t *testing.T) {
	doc := parse(t, signupPage)
	city := find(t, doc, byAttr("name", "city"))

	res := Resolve(city, Options{})
	want := []session.LocatorKind{
		session.LocatorName, session.LocatorAriaLabel, session.LocatorCSS, session.LocatorXPath,
	}
	if got := kinds(res.Locators); !sameKinds(got, want) {
		t.Fatalf("kinds: got %v, want %v", got, want)
	}
	if got := value(res.Locators, session.LocatorAriaLabel); got != "City" {
		t.Errorf("aria-label: got %q", got)
	}
	if res.Context.Label != "City" {
		t.Errorf("Context.Label falls back to accessibility label: got %q", res.Context.Label)
	}
}

func TestResolve_ButtonText(t *testing.T) {
	doc := parse(t, signupPage)
	btn := find(t, doc, byTag("button"))

	res := Resolve(btn, Options{})
	if got := value(res.Locators, session.LocatorText); got != "Create account" {
		t.Errorf("text: got %q", got)
	}
	if got := value(res.Locators, session.LocatorCSS); got != "#signup > button" {
		t.Errorf("css: got %q", got)
	}
}

func TestResolve_LongTextRejected(t *testing.T) {
	long := strings.Repeat("x", 51)
	doc := parse(t, `<html><body><button>`+long+`</button><button>`+long[:50]+`</button></body></html>`)
	btns := []*html.Node{}
	walkElements(doc, func(n *html.Node) bool {
		if n.Data == "button" {
			btns = append(btns, n)
		}
		return true
	})

	if got := value(Resolve(btns[0], Options{}).Locators, session.LocatorText); got != "" {
		t.Errorf("51-char text accepted: %q", got)
	}
	if got := value(Resolve(btns[1], Options{}).Locators, session.LocatorText); got != long[:50] {
		t.Errorf("50-char text rejected: %q", got)
	}
	if got := value(Resolve(btns[0], Options{MaxTextLen: 60}).Locators, session.LocatorText); got != long {
		t.Errorf("MaxTextLen not honoured: %q", got)
	}
}

func TestResolve_HeadingAcrossAncestors(t *testing.T) {
	doc := parse(t, signupPage)
	box := find(t, doc, byAttr("type", "checkbox"))

	res := Resolve(box, Options{})
	if res.Context.Heading != "Contact" {
		t.Errorf("heading: got %q, want last preceding heading %q", res.Context.Heading, "Contact")
	}
	if res.Context.Form != "" {
		t.Errorf("form excerpt outside form: %q", res.Context.Form)
	}
	if got := value(res.Locators, session.LocatorXPath); got != "/html/body/div[1]/div/input" {
		t.Errorf("xpath: got %q", got)
	}
}

func TestResolve_NonElement(t *testing.T) {
	res := Resolve(nil, Options{})
	if len(res.Locators) != 0 {
		t.Errorf("nil node: got %v", res.Locators)
	}
	if res.Locators == nil {
		t.Error("Locators must be non-nil")
	}
}

func TestActionable(t *testing.T) {
	doc := parse(t, signupPage)

	tests := []struct {
		name       string
		target     func(*html.Node) bool
		wantTag    string
		suppressed bool
	}{
		{"span inside link", byAttr("id", "help-text"), "a", false},
		{"button itself", byTag("button"), "button", false},
		{"checkbox", byAttr("type", "checkbox"), "input", false},
		{"text input", byAttr("id", "email"), "", true},
		{"select", byTag("select"), "", true},
		{"option", byTag("option"), "", true},
		{"plain div", byAttr("class", "plain"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, suppressed := Actionable(find(t, doc, tt.target))
			if suppressed != tt.suppressed {
				t.Errorf("suppressed: got %v, want %v", suppressed, tt.suppressed)
			}
			gotTag := ""
			if n != nil {
				gotTag = n.Data
			}
			if gotTag != tt.wantTag {
				t.Errorf("element: got %q, want %q", gotTag, tt.wantTag)
			}
		})
	}
}

func TestActionable_LabelFallback(t *testing.T) {
	doc := parse(t, `<html><body><label for="x"><b>Remember me</b></label><input id="x" type="checkbox"></body></html>`)
	n, suppressed := Actionable(find(t, doc, byTag("b")))
	if suppressed || n == nil || n.Data != "label" {
		t.Fatalf("got %v suppressed=%v, want the label", n, suppressed)
	}
}

func TestForms_GroupsAndOrphans(t *testing.T) {
	doc := parse(t, signupPage)

	groups := Forms(doc, Options{})
	if len(groups) != 2 {
		t.Fatalf("groups: got %d, want 2", len(groups))
	}
	signup := groups[0]
	if signup.Key != "#signup" || signup.Action != "/register" || signup.Method != "post" {
		t.Errorf("form group: %+v", signup)
	}
	if len(signup.Fields) != 3 {
		t.Fatalf("signup fields: got %d, want 3", len(signup.Fields))
	}
	if signup.Fields[0].Locator != (session.Locator{Kind: session.LocatorID, Value: "email"}) {
		t.Errorf("email locator: %+v", signup.Fields[0].Locator)
	}
	country := signup.Fields[1]
	if country.Tag != "select" || len(country.Options) != 2 || country.Options[1] != (session.Option{"FR", "France"}) {
		t.Errorf("country field: %+v", country)
	}

	orphan := groups[1]
	if orphan.Key != session.OrphanGroup || len(orphan.Fields) != 1 {
		t.Fatalf("orphan group: %+v", orphan)
	}
	if orphan.Fields[0].Locator.Kind != session.LocatorAriaLabel {
		t.Errorf("orphan locator: %+v", orphan.Fields[0].Locator)
	}
}

func TestForms_FormAttributeAndNoOrphan(t *testing.T) {
	doc := parse(t, `<html><body>
<form name="search"><input name="q"><input type="hidden" name="csrf" value="t"></form>
<input name="late" form="later">
<form id="later"></form>
</body></html>`)

	groups := Forms(doc, Options{})
	if len(groups) != 2 {
		t.Fatalf("groups: got %d, want 2 (no orphan)", len(groups))
	}
	if groups[0].Key != "name:search" || len(groups[0].Fields) != 1 {
		t.Errorf("search group: %+v", groups[0])
	}
	if groups[1].Key != "#later" || len(groups[1].Fields) != 1 || groups[1].Fields[0].Name != "late" {
		t.Errorf("later group: %+v", groups[1])
	}
}

func TestSnapshot(t *testing.T) {
	doc := parse(t, `<html><body><select id="c" name="c" onchange="go()" data-x="1">
<optgroup label="EU"><option value="ES">Spain</option></optgroup><option>Other</option></select></body></html>`)
	sel := find(t, doc, byTag("select"))

	el := Snapshot(sel, Options{})
	if el.Tag != "select" || el.ID != "c" || el.Name != "c" {
		t.Errorf("snapshot: %+v", el)
	}
	if _, ok := el.Attrs["onchange"]; ok {
		t.Error("inline handler kept in attrs")
	}
	if el.Attrs["data-x"] != "1" {
		t.Errorf("data attribute lost: %v", el.Attrs)
	}
	if strings.Contains(el.HTML, "onchange") {
		t.Errorf("inline handler kept in markup: %s", el.HTML)
	}
	want := []session.Option{{"ES", "Spain"}, {"Other", "Other"}}
	if len(el.Options) != 2 || el.Options[0] != want[0] || el.Options[1] != want[1] {
		t.Errorf("options: got %v, want %v", el.Options, want)
	}
	if el.Kind() != session.KindChoice {
		t.Errorf("kind: got %v", el.Kind())
	}
}

func TestFindAndRemoveMarker(t *testing.T) {
	doc := parse(t, `<html><body><input name="a"><input name="b" data-mark="1"></body></html>`)
	n := FindByAttr(doc, "data-mark")
	if n == nil || attr(n, "name") != "b" {
		t.Fatalf("FindByAttr: got %v", n)
	}
	RemoveAttr(n, "data-mark")
	if FindByAttr(doc, "data-mark") != nil {
		t.Error("marker still present after RemoveAttr")
	}
	if attr(n, "name") != "b" {
		t.Error("RemoveAttr dropped other attributes")
	}
}

func TestSanitize(t *testing.T) {
	out := Sanitize(`<form action="/x"><input type="hidden" name="csrf" value="secret">` +
		`<script>alert(1)</script><input name="q" onclick="x()"></form>`)
	for _, bad := range []string{"secret", "<script", "alert", "onclick"} {
		if strings.Contains(out, bad) {
			t.Errorf("sanitised markup contains %q: %s", bad, out)
		}
	}
	if !strings.Contains(out, `name="q"`) {
		t.Errorf("field name dropped: %s", out)
	}
}

func TestCSSPath_EscapesOddIdentifiers(t *testing.T) {
	doc := parse(t, `<html><body><input id="user.email"></body></html>`)
	n := find(t, doc, byTag("input"))
	if got := CSSPath(n); got != `[id="user.email"]` {
		t.Errorf("CSSPath: got %q", got)
	}
}

func TestOptionsFromMarkup(t *testing.T) {
	got := OptionsFromMarkup(`<select name="c"><option value="ES">Spain</option><option value="FR"> France </option></select>`)
	want := []session.Option{{"ES", "Spain"}, {"FR", "France"}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
	if OptionsFromMarkup(`<input name="x">`) != nil {
		t.Error("markup without options must yield nil")
	}
}

func TestLabelForFromMarkup(t *testing.T) {
	tests := map[string]string{
		`<label for="terms">Accept <b>terms</b></label>`: "terms",
		`<label>Accept</label>`:                          "",
		`<input id="terms">`:                             "",
		``:                                               "",
	}
	for markup, want := range tests {
		if got := LabelForFromMarkup(markup); got != want {
			t.Errorf("LabelForFromMarkup(%q) = %q, want %q", markup, got, want)
		}
	}
}
