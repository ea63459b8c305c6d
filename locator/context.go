package locator

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// labelText returns the text of the label associated with n: a label whose
// "for" names n's identifier, else the label wrapping n. The control's own
// text (select options, textarea content) is excluded.
func labelText(doc, n *html.Node) string {
	if id := strings.TrimSpace(attr(n, "id")); id != "" {
		var lbl *html.Node
		walkElements(doc, func(c *html.Node) bool {
			if c.DataAtom == atom.Label && attr(c, "for") == id {
				lbl = c
				return false
			}
			return true
		})
		if lbl != nil {
			if t := labelOwnText(lbl); t != "" {
				return t
			}
		}
	}
	if n.DataAtom == atom.Label {
		return ""
	}
	if lbl := closest(n.Parent, func(c *html.Node) bool { return c.DataAtom == atom.Label }); lbl != nil {
		return labelOwnText(lbl)
	}
	return ""
}

// labelOwnText is the label's text without nested form controls.
func labelOwnText(lbl *html.Node) string {
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
			case atom.Select, atom.Textarea, atom.Script, atom.Style, atom.Button:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(lbl)
	return collapse(sb.String())
}

// ariaLabel returns aria-label, else the joined text of the elements named
// by aria-labelledby.
func ariaLabel(doc, n *html.Node) string {
	if v := collapse(attr(n, "aria-label")); v != "" {
		return v
	}
	ids := strings.Fields(attr(n, "aria-labelledby"))
	if len(ids) == 0 {
		return ""
	}
	byID := make(map[string]*html.Node, len(ids))
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	walkElements(doc, func(c *html.Node) bool {
		if id := attr(c, "id"); want[id] && byID[id] == nil {
			byID[id] = c
		}
		return len(byID) < len(want)
	})
	var parts []string
	for _, id := range ids {
		if ref := byID[id]; ref != nil {
			if t := collapse(textOf(ref)); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

var buttonRoles = map[string]bool{
	"button": true, "link": true, "menuitem": true, "tab": true, "option": true,
}

// isButtonLike reports whether n is addressed by its visible text.
func isButtonLike(n *html.Node) bool {
	switch n.DataAtom {
	case atom.A, atom.Button, atom.Summary:
		return true
	case atom.Input:
		switch strings.ToLower(attr(n, "type")) {
		case "submit", "button", "reset":
			return true
		}
	}
	return buttonRoles[strings.ToLower(attr(n, "role"))]
}

// buttonText is the trimmed visible text of a button-like element. Value
// inputs use their value attribute.
func buttonText(n *html.Node) string {
	if n.DataAtom == atom.Input {
		return collapse(attr(n, "value"))
	}
	return collapse(textOf(n))
}

func isHeading(n *html.Node) bool {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return strings.EqualFold(attr(n, "role"), "heading")
}

// NearestHeading returns the text of the closest heading that precedes n in
// document order, searching preceding siblings (and their descendants, last
// first) at each level before moving up to the parent.
func NearestHeading(n *html.Node) string {
	for cur := n; cur != nil; cur = cur.Parent {
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type != html.ElementNode {
				continue
			}
			if h := lastHeading(sib); h != nil {
				if t := collapse(textOf(h)); t != "" {
					return t
				}
			}
		}
		if cur != n && cur.Type == html.ElementNode && isHeading(cur) {
			if t := collapse(textOf(cur)); t != "" {
				return t
			}
		}
	}
	return ""
}

// lastHeading returns the last heading at or below n in document order.
func lastHeading(n *html.Node) *html.Node {
	for c := n.LastChild; c != nil; c = c.PrevSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if h := lastHeading(c); h != nil {
			return h
		}
	}
	if isHeading(n) {
		return n
	}
	return nil
}
