// Package locator resolves, for one element of a parsed DOM, the ranked list
// of ways to address it (identifier, name, label, accessibility label,
// placeholder, visible text, CSS path, tree path) and the context around it
// (associated label, nearest preceding heading, enclosing form excerpt).
//
// Everything here is a pure function of the html.Node tree: the capture layer
// parses the page markup sent by the in-page script and resolves against it,
// so the live page is never touched.
package locator

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/flowrec/session"
)

// Options bounds the text the resolver keeps.
type Options struct {
	// MaxTextLen rejects visible-text locators longer than this. Default: 50.
	MaxTextLen int
	// MaxFormExcerpt truncates the enclosing form markup. Default: 200.
	MaxFormExcerpt int
	// MaxMarkup truncates the element's own serialised markup. Default: 2048.
	MaxMarkup int
}

func (o *Options) defaults() {
	if o.MaxTextLen <= 0 {
		o.MaxTextLen = 50
	}
	if o.MaxFormExcerpt <= 0 {
		o.MaxFormExcerpt = 200
	}
	if o.MaxMarkup <= 0 {
		o.MaxMarkup = 2048
	}
}

// Result is the resolver output for one element.
type Result struct {
	Locators []session.Locator
	Context  session.Context
}

// Parse parses page markup into a document tree.
func Parse(markup []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("locator: parse HTML: %w", err)
	}
	return doc, nil
}

// Resolve computes the locator candidates and context of n. Candidates come
// out in reliability order, at most one per kind; every kind that resolves
// is included and the caller decides which to trust.
func Resolve(n *html.Node, opts Options) Result {
	opts.defaults()
	if n == nil || n.Type != html.ElementNode {
		return Result{Locators: []session.Locator{}}
	}
	doc := root(n)

	var locs []session.Locator
	add := func(kind session.LocatorKind, v string) {
		if v != "" {
			locs = append(locs, session.Locator{Kind: kind, Value: v})
		}
	}

	add(session.LocatorID, strings.TrimSpace(attr(n, "id")))
	add(session.LocatorName, strings.TrimSpace(attr(n, "name")))

	label := labelText(doc, n)
	add(session.LocatorLabel, label)

	aria := ariaLabel(doc, n)
	add(session.LocatorAriaLabel, aria)

	add(session.LocatorPlaceholder, strings.TrimSpace(attr(n, "placeholder")))

	if isButtonLike(n) {
		if t := buttonText(n); t != "" && utf8.RuneCountInString(t) <= opts.MaxTextLen {
			add(session.LocatorText, t)
		}
	}

	add(session.LocatorCSS, CSSPath(n))
	add(session.LocatorXPath, XPath(n))

	ctx := session.Context{
		Label:   label,
		Heading: NearestHeading(n),
	}
	if ctx.Label == "" {
		ctx.Label = aria
	}
	if form := closest(n, isForm); form != nil {
		ctx.Form = truncate(Sanitize(render(form)), opts.MaxFormExcerpt)
	}

	if locs == nil {
		locs = []session.Locator{}
	}
	return Result{Locators: locs, Context: ctx}
}

// Snapshot captures the element itself: tag, type, identifier, name,
// sanitised markup, attributes and, for choice lists, the option catalog.
func Snapshot(n *html.Node, opts Options) session.ElementSnapshot {
	opts.defaults()
	if n == nil || n.Type != html.ElementNode {
		return session.ElementSnapshot{}
	}
	el := session.ElementSnapshot{
		Tag:  strings.ToLower(n.Data),
		Type: strings.ToLower(strings.TrimSpace(attr(n, "type"))),
		ID:   strings.TrimSpace(attr(n, "id")),
		Name: strings.TrimSpace(attr(n, "name")),
		HTML: truncate(Sanitize(render(n)), opts.MaxMarkup),
	}
	if len(n.Attr) > 0 {
		el.Attrs = make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			if a.Namespace != "" || strings.HasPrefix(a.Key, "on") || a.Key == "value" {
				continue
			}
			el.Attrs[a.Key] = a.Val
		}
	}
	if n.DataAtom == atom.Select {
		el.Options = SelectOptions(n)
	}
	return el
}

// SelectOptions lists the (value, label) pairs of a select, in document order.
// An option without a value attribute uses its text as value.
func SelectOptions(sel *html.Node) []session.Option {
	var out []session.Option
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		for ; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom == atom.Option {
				label := collapse(textOf(c))
				value, ok := lookup(c, "value")
				if !ok {
					value = label
				}
				out = append(out, session.Option{value, label})
				continue
			}
			if c.DataAtom == atom.Optgroup {
				walk(c.FirstChild)
			}
		}
	}
	walk(sel.FirstChild)
	return out
}

// FindByAttr returns the first element carrying the attribute key, in
// document order.
func FindByAttr(doc *html.Node, key string) *html.Node {
	var found *html.Node
	walkElements(doc, func(n *html.Node) bool {
		if _, ok := lookup(n, key); ok {
			found = n
			return false
		}
		return true
	})
	return found
}

// RemoveAttr deletes the attribute key from n in place.
func RemoveAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// --- helpers shared by the resolver files ---

func attr(n *html.Node, key string) string {
	v, _ := lookup(n, key)
	return v
}

func lookup(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func root(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

func closest(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
	}
	return nil
}

// walkElements visits elements depth-first in document order until fn
// returns false.
func walkElements(n *html.Node, fn func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !fn(c) {
			return false
		}
		if !walkElements(c, fn) {
			return false
		}
	}
	return true
}

func isForm(n *html.Node) bool { return n.DataAtom == atom.Form }

func render(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// textOf concatenates the text below n, skipping script and style.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

// OptionsFromMarkup extracts the option catalog of the first select found in
// serialised markup. Used when a snapshot carries markup but no catalog.
func OptionsFromMarkup(markup string) []session.Option {
	if !strings.Contains(markup, "<option") {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	var sel *html.Node
	walkElements(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Select {
			sel = n
			return false
		}
		return true
	})
	if sel == nil {
		return nil
	}
	return SelectOptions(sel)
}

// LabelForFromMarkup returns the for attribute of the first label found in
// serialised markup.
func LabelForFromMarkup(markup string) string {
	if !strings.Contains(markup, "<label") {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	var target string
	walkElements(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Label {
			target = attr(n, "for")
			return false
		}
		return true
	})
	return target
}
