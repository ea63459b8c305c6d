package locator

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var actionableRoles = map[string]bool{
	"button": true, "link": true, "checkbox": true, "radio": true, "switch": true,
	"menuitem": true, "menuitemcheckbox": true, "menuitemradio": true,
	"tab": true, "option": true, "treeitem": true,
}

// isActionable reports whether n is a control a click is meant for.
func isActionable(n *html.Node) bool {
	switch n.DataAtom {
	case atom.A, atom.Button, atom.Summary:
		return true
	case atom.Input:
		switch strings.ToLower(attr(n, "type")) {
		case "submit", "button", "image", "reset", "checkbox", "radio", "file":
			return true
		}
		return false
	}
	if actionableRoles[strings.ToLower(attr(n, "role"))] {
		return true
	}
	_, onclick := lookup(n, "onclick")
	return onclick
}

// isFreeField reports whether clicks on n are pure focus noise: text-like
// inputs, text areas, selects and their options.
func isFreeField(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Textarea, atom.Select, atom.Option, atom.Optgroup:
		return true
	case atom.Input:
		switch strings.ToLower(attr(n, "type")) {
		case "", "text", "email", "password", "search", "tel", "url", "number",
			"date", "datetime-local", "month", "week", "time", "color", "range":
			return true
		}
	}
	if v, ok := lookup(n, "contenteditable"); ok && v != "false" {
		return true
	}
	return false
}

// Actionable walks from the raw click target up to the element the click is
// really meant for. suppressed is true when the click lands on a free-text
// field or a choice list, whose own value events carry the meaning. When no
// actionable ancestor exists, an enclosing label is returned; otherwise nil.
func Actionable(target *html.Node) (n *html.Node, suppressed bool) {
	for cur := target; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if isFreeField(cur) {
			return nil, true
		}
		if isActionable(cur) {
			return cur, false
		}
	}
	if lbl := closest(target, func(c *html.Node) bool { return c.DataAtom == atom.Label }); lbl != nil {
		return lbl, false
	}
	return nil, false
}
