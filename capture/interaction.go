package capture

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/flowrec/locator"
	"github.com/hazyhaar/flowrec/session"
)

// markerAttr flags the event target inside the serialised document.
const markerAttr = "data-flowrec-target"

// Payload events posted by the in-page script.
const (
	EventClick  = "click"
	EventFill   = "fill"
	EventChange = "change"
	EventSubmit = "submit"
)

// ErrNoTarget is returned when the serialised document carries no marked
// element.
var ErrNoTarget = errors.New("capture: event target not found in document")

// Payload is one message the in-page script posts through the binding.
type Payload struct {
	Event     string            `json:"event"`
	TS        int64             `json:"ts"`
	FrameURL  string            `json:"frameUrl"`
	Top       bool              `json:"top"`
	HTML      string            `json:"html"`
	Value     *string           `json:"value,omitempty"`
	Checked   *bool             `json:"checked,omitempty"`
	Selected  *session.Selected `json:"selected,omitempty"`
	Files     []string          `json:"files,omitempty"`
	FileCount int               `json:"fileCount,omitempty"`
	Form      *session.FormInfo `json:"form,omitempty"`
}

// Build turns a payload into an interaction. ok is false when the event
// carries no signal: a click on a free-text field or outside any control,
// an empty fill, a change on an element without a discrete value.
func Build(p Payload, opts locator.Options) (in session.Interaction, ok bool, err error) {
	doc, err := locator.Parse([]byte(p.HTML))
	if err != nil {
		return in, false, err
	}
	target := locator.FindByAttr(doc, markerAttr)
	if target == nil {
		return in, false, ErrNoTarget
	}
	locator.RemoveAttr(target, markerAttr)

	in = session.Interaction{
		TS:       p.TS,
		FrameURL: p.FrameURL,
	}

	var n *html.Node
	switch p.Event {
	case EventClick:
		var suppressed bool
		n, suppressed = locator.Actionable(target)
		if suppressed || n == nil {
			return in, false, nil
		}
		in.Action = session.ActionClick

	case EventFill:
		if p.Value == nil || *p.Value == "" {
			return in, false, nil
		}
		n = target
		in.Action = session.ActionFill
		in.Value = p.Value

	case EventChange:
		n = target
		if !change(&in, p, locator.Snapshot(n, opts).Kind()) {
			return in, false, nil
		}

	case EventSubmit:
		n = target
		in.Action = session.ActionSubmit
		in.Form = p.Form
		if in.Form == nil {
			in.Form = &session.FormInfo{
				Action: attrOf(n, "action"),
				Method: strings.ToLower(attrOf(n, "method")),
			}
		}

	default:
		return in, false, fmt.Errorf("capture: unknown event %q", p.Event)
	}

	res := locator.Resolve(n, opts)
	in.Element = locator.Snapshot(n, opts)
	in.Locators = res.Locators
	in.Context = res.Context
	return in, true, nil
}

// change fills the discrete value payload for the element kind.
func change(in *session.Interaction, p Payload, kind session.ElementKind) bool {
	switch kind {
	case session.KindChoice:
		in.Action = session.ActionSelect
		in.Selected = p.Selected
		in.Value = p.Value
		return p.Selected != nil || p.Value != nil
	case session.KindToggle:
		if p.Checked == nil {
			return false
		}
		in.Action = session.ActionUncheck
		if *p.Checked {
			in.Action = session.ActionCheck
		}
		in.Checked = p.Checked
		return true
	case session.KindFile:
		in.Action = session.ActionUpload
		in.Files = p.Files
		in.FileCount = p.FileCount
		if in.FileCount == 0 {
			in.FileCount = len(p.Files)
		}
		return true
	}
	if p.Value == nil {
		return false
	}
	in.Action = session.ActionChange
	in.Value = p.Value
	return true
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
