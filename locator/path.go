package locator

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var cssIdent = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

// idSelector renders an identifier as a CSS selector, falling back to an
// attribute selector when the identifier is not a plain CSS ident.
func idSelector(id string) string {
	if cssIdent.MatchString(id) {
		return "#" + id
	}
	return fmt.Sprintf(`[id="%s"]`, strings.ReplaceAll(id, `"`, `\"`))
}

// CSSPath builds a structural selector for n, anchored on the nearest
// ancestor-or-self identifier, else rooted at the document element. Steps
// use :nth-of-type only when a same-tag sibling exists.
func CSSPath(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	var steps []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id := strings.TrimSpace(attr(cur, "id")); id != "" {
			steps = append(steps, idSelector(id))
			break
		}
		tag := strings.ToLower(cur.Data)
		idx, total := typeIndex(cur)
		if total > 1 {
			tag = fmt.Sprintf("%s:nth-of-type(%d)", tag, idx)
		}
		steps = append(steps, tag)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, " > ")
}

// XPath builds an absolute tree path for n such as /html/body/div[2]/input.
// Positions appear only when a same-tag sibling exists.
func XPath(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		tag := strings.ToLower(cur.Data)
		idx, total := typeIndex(cur)
		if total > 1 {
			tag = fmt.Sprintf("%s[%d]", tag, idx)
		}
		parts = append(parts, tag)
	}
	var sb strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(parts[i])
	}
	return sb.String()
}

// typeIndex returns the 1-based position of n among its same-tag siblings
// and how many there are.
func typeIndex(n *html.Node) (idx, total int) {
	if n.Parent == nil {
		return 1, 1
	}
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != n.Data {
			continue
		}
		total++
		if c == n {
			idx = total
		}
	}
	return idx, total
}
