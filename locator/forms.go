package locator

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/flowrec/session"
)

// isField reports whether n is a form field worth documenting.
func isField(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Select, atom.Textarea:
		return true
	case atom.Input:
		switch strings.ToLower(attr(n, "type")) {
		case "hidden", "submit", "button", "image", "reset":
			return false
		}
		return true
	}
	return false
}

// FormKey names a form by identifier, then name, then document position.
func FormKey(form *html.Node, index int) string {
	if id := strings.TrimSpace(attr(form, "id")); id != "" {
		return "#" + id
	}
	if name := strings.TrimSpace(attr(form, "name")); name != "" {
		return "name:" + name
	}
	return fmt.Sprintf("form[%d]", index)
}

// Forms lists every form field in doc grouped by owning form, in document
// order, plus an orphan group for fields outside any form. Fields naming a
// form through the form attribute are grouped with it. Groups without fields
// are kept; an empty orphan group is not.
func Forms(doc *html.Node, opts Options) []session.FormGroup {
	opts.defaults()
	var groups []session.FormGroup
	byNode := map[*html.Node]int{}
	byID := map[string]int{}

	walkElements(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Form {
			byNode[n] = len(groups)
			if id := strings.TrimSpace(attr(n, "id")); id != "" {
				byID[id] = len(groups)
			}
			groups = append(groups, session.FormGroup{
				Key:    FormKey(n, len(groups)),
				Action: strings.TrimSpace(attr(n, "action")),
				Method: strings.ToLower(strings.TrimSpace(attr(n, "method"))),
				Fields: []session.FieldSnapshot{},
			})
		}
		return true
	})

	orphan := session.FormGroup{Key: session.OrphanGroup, Fields: []session.FieldSnapshot{}}
	walkElements(doc, func(n *html.Node) bool {
		if !isField(n) {
			return true
		}
		f := field(n, opts)
		gi := -1
		if owner := strings.TrimSpace(attr(n, "form")); owner != "" {
			if i, ok := byID[owner]; ok {
				gi = i
			}
		}
		if gi < 0 {
			if form := closest(n, isForm); form != nil {
				gi = byNode[form]
			}
		}
		if gi < 0 {
			orphan.Fields = append(orphan.Fields, f)
		} else {
			groups[gi].Fields = append(groups[gi].Fields, f)
		}
		return true
	})

	if len(orphan.Fields) > 0 {
		groups = append(groups, orphan)
	}
	if groups == nil {
		groups = []session.FormGroup{}
	}
	return groups
}

func field(n *html.Node, opts Options) session.FieldSnapshot {
	res := Resolve(n, opts)
	best, _ := session.Best(res.Locators)
	f := session.FieldSnapshot{
		Tag:     strings.ToLower(n.Data),
		Type:    strings.ToLower(strings.TrimSpace(attr(n, "type"))),
		ID:      strings.TrimSpace(attr(n, "id")),
		Name:    strings.TrimSpace(attr(n, "name")),
		Label:   res.Context.Label,
		Locator: best,
	}
	if n.DataAtom == atom.Select {
		f.Options = SelectOptions(n)
	}
	return f
}
