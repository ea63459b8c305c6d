// Package session defines the raw recording model: one Session holds Pages
// keyed by exact top-level URL, each Page holds the chronological Visits made
// to it, and each Visit holds the raw Interactions captured during it.
//
// These types are the contract between the capture layer, the aggregator and
// the compiler, and they are the shape of the exported raw session document.
package session

import "encoding/json"

// Action is the kind of a raw interaction as captured.
type Action string

const (
	ActionClick   Action = "click"
	ActionChange  Action = "change"
	ActionFill    Action = "fill"
	ActionSelect  Action = "select"
	ActionCheck   Action = "check"
	ActionUncheck Action = "uncheck"
	ActionUpload  Action = "upload"
	ActionSubmit  Action = "submit"
)

// Valid reports whether a is one of the known raw actions.
func (a Action) Valid() bool {
	switch a {
	case ActionClick, ActionChange, ActionFill, ActionSelect,
		ActionCheck, ActionUncheck, ActionUpload, ActionSubmit:
		return true
	}
	return false
}

// Option is one entry of a choice list: [value, label].
type Option [2]string

// ElementSnapshot is the acted-on element as it was at capture time.
type ElementSnapshot struct {
	Tag     string            `json:"tag"`
	Type    string            `json:"type,omitempty"`
	ID      string            `json:"id,omitempty"`
	Name    string            `json:"name,omitempty"`
	HTML    string            `json:"html,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Options []Option          `json:"options,omitempty"`
}

// Attr returns the named attribute or "".
func (e ElementSnapshot) Attr(name string) string {
	return e.Attrs[name]
}

// Context is the surrounding information resolved for an element.
type Context struct {
	Label   string `json:"label,omitempty"`
	Heading string `json:"heading,omitempty"`
	Form    string `json:"form,omitempty"` // truncated, sanitised markup of the enclosing form
}

// Selected is the chosen entry of a choice list.
type Selected struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FormInfo describes the form a submit interaction targeted.
type FormInfo struct {
	Action string `json:"action,omitempty"`
	Method string `json:"method,omitempty"`
}

// Interaction is one raw, timestamped user action. Never mutated once
// appended to a Visit.
type Interaction struct {
	TS        int64           `json:"ts"` // epoch milliseconds
	FrameURL  string          `json:"frameUrl,omitempty"`
	Action    Action          `json:"action"`
	Element   ElementSnapshot `json:"element"`
	Value     *string         `json:"value,omitempty"`
	Checked   *bool           `json:"checked,omitempty"`
	Selected  *Selected       `json:"selected,omitempty"`
	Files     []string        `json:"files,omitempty"`
	FileCount int             `json:"fileCount,omitempty"`
	Form      *FormInfo       `json:"form,omitempty"`
	Locators  []Locator       `json:"locators"`
	Context   Context         `json:"context"`
}

// FieldSnapshot is one form field listed by a structural snapshot.
type FieldSnapshot struct {
	Tag     string   `json:"tag"`
	Type    string   `json:"type,omitempty"`
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Label   string   `json:"label,omitempty"`
	Locator Locator  `json:"locator"`
	Options []Option `json:"options,omitempty"`
}

// FormGroup is the fields of one form, or of the "orphan" pseudo-group for
// fields outside any form.
type FormGroup struct {
	Key    string          `json:"key"`
	Action string          `json:"action,omitempty"`
	Method string          `json:"method,omitempty"`
	Fields []FieldSnapshot `json:"fields"`
}

// OrphanGroup is the key of the pseudo-group holding fields outside forms.
const OrphanGroup = "orphan"

// FormsSnapshot documents the page shape once a navigation settled.
type FormsSnapshot struct {
	TS       int64       `json:"ts"`
	FrameURL string      `json:"frameUrl,omitempty"`
	Groups   []FormGroup `json:"groups"`
}

// Visit is one navigation episode on a Page.
type Visit struct {
	VisitID       string         `json:"visitId"`
	TabID         string         `json:"tabId,omitempty"`
	StartedAt     int64          `json:"startedAt"`
	EndedAt       int64          `json:"endedAt,omitempty"`
	Interactions  []Interaction  `json:"interactions"`
	FormsSnapshot *FormsSnapshot `json:"formsSnapshot,omitempty"`
}

// Page groups every Visit sharing one exact top-level URL.
type Page struct {
	TopURL string  `json:"topUrl"`
	Visits []Visit `json:"visits"`
}

// Meta is the session header.
type Meta struct {
	ID        string `json:"id,omitempty"`
	StartedAt int64  `json:"startedAt"`
	EndedAt   int64  `json:"endedAt,omitempty"`
}

// Session is the root of one recording.
type Session struct {
	Meta  Meta   `json:"meta"`
	Pages []Page `json:"pages"`
}

// New returns an empty session started at ts.
func New(id string, ts int64) *Session {
	return &Session{Meta: Meta{ID: id, StartedAt: ts}, Pages: []Page{}}
}

// InteractionCount returns the number of raw interactions across all visits.
func (s *Session) InteractionCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, p := range s.Pages {
		for _, v := range p.Visits {
			n += len(v.Interactions)
		}
	}
	return n
}

// VisitCount returns the number of visits across all pages.
func (s *Session) VisitCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, p := range s.Pages {
		n += len(p.Visits)
	}
	return n
}

// PageIndex returns the index of the page with the exact top URL, or -1.
func (s *Session) PageIndex(topURL string) int {
	for i, p := range s.Pages {
		if p.TopURL == topURL {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy. The aggregator hands clones to readers so the
// live session is never shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		// Every field is JSON-safe; a failure here is a programming error.
		panic("session: clone: " + err.Error())
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		panic("session: clone: " + err.Error())
	}
	return &out
}
