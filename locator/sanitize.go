package locator

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// markupPolicy keeps the structure of forms and controls and drops scripts,
// inline handlers, styles and field values. Option values stay: they are the
// choice catalog, not user data.
func markupPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements(
			"form", "fieldset", "legend", "label", "input", "select", "option", "optgroup",
			"textarea", "button", "a", "div", "span", "p", "ul", "ol", "li",
			"table", "thead", "tbody", "tr", "td", "th",
			"h1", "h2", "h3", "h4", "h5", "h6", "summary", "details", "strong", "em", "b", "i", "small",
		)
		p.AllowAttrs(
			"id", "name", "type", "for", "placeholder", "role", "class",
			"aria-label", "aria-labelledby", "title", "multiple", "required",
			"checked", "selected", "disabled", "accept", "form",
		).Globally()
		p.AllowAttrs("action", "method", "enctype").OnElements("form")
		p.AllowAttrs("value").OnElements("option", "button")
		p.AllowAttrs("href").OnElements("a")
		p.AllowRelativeURLs(true)
		p.AllowURLSchemes("http", "https", "mailto")
		policy = p
	})
	return policy
}

// Sanitize strips markup down to what documents a control's structure.
func Sanitize(markup string) string {
	return markupPolicy().Sanitize(markup)
}
