package flowmap

import (
	"regexp"
	"strconv"

	"github.com/hazyhaar/flowrec/session"
)

var cssIdent = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

// LocatorExpr renders a locator as a replay selector expression:
// "#id", `[name="x"]`, "label=...", `[aria-label="x"]`,
// `[placeholder="x"]`, "text=...", the CSS path itself, "xpath=...".
func LocatorExpr(l session.Locator) string {
	switch l.Kind {
	case session.LocatorID:
		if cssIdent.MatchString(l.Value) {
			return "#" + l.Value
		}
		return attrExpr("id", l.Value)
	case session.LocatorName:
		return attrExpr("name", l.Value)
	case session.LocatorLabel:
		return "label=" + l.Value
	case session.LocatorAriaLabel:
		return attrExpr("aria-label", l.Value)
	case session.LocatorPlaceholder:
		return attrExpr("placeholder", l.Value)
	case session.LocatorText:
		return "text=" + l.Value
	case session.LocatorXPath:
		return "xpath=" + l.Value
	}
	return l.Value
}

func attrExpr(name, value string) string {
	return "[" + name + "=" + strconv.Quote(value) + "]"
}
