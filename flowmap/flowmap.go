// CLAUDE:SUMMARY Compiled FlowMap document: pages, visits, deduplicated elements, normalized steps, content-addressed option catalogs.
// Package flowmap compiles a raw recording session into a FlowMap: per visit,
// the deduplicated elements acted on and the compacted, normalized sequence
// of steps performed on them, plus a session-level store of choice-list
// option catalogs addressed by content hash.
//
// Compilation is a pure function of its input. Compiling the same session
// twice yields byte-identical documents.
package flowmap

import (
	"encoding/json"
	"errors"

	"github.com/hazyhaar/flowrec/session"
)

// Version is the FlowMap document format version.
const Version = 1

// Source is written into every FlowMap header.
const Source = "flowrec"

// StepAction is the canonical action of a compiled step.
type StepAction string

const (
	StepNavigate StepAction = "navigate"
	StepClick    StepAction = "click"
	StepSubmit   StepAction = "submit"
	StepFill     StepAction = "fill"
	StepSelect   StepAction = "select"
	StepCheck    StepAction = "check"
	StepUncheck  StepAction = "uncheck"
	StepUpload   StepAction = "upload"
)

// Replaceable reports whether only the final state of a run of a on one
// element matters.
func (a StepAction) Replaceable() bool {
	switch a {
	case StepFill, StepSelect, StepCheck, StepUncheck, StepUpload:
		return true
	}
	return false
}

// FlowMap is the compiled document.
type FlowMap struct {
	Meta               Meta                    `json:"meta"`
	SelectOptionsStore map[string]OptionsEntry `json:"selectOptionsStore"`
	Pages              []Page                  `json:"pages"`
}

type Meta struct {
	Version   int    `json:"version"`
	StartedAt int64  `json:"startedAt"`
	EndedAt   int64  `json:"endedAt"`
	Source    string `json:"source"`
	RawFile   string `json:"rawFile,omitempty"`
}

// OptionsEntry is one stored option catalog. Hash addresses the options
// alone; the store key additionally scopes it to where it was observed.
type OptionsEntry struct {
	Count   int              `json:"count"`
	Hash    string           `json:"hash"`
	Options []session.Option `json:"options"`
}

type Page struct {
	TopURL string  `json:"topUrl"`
	Visits []Visit `json:"visits"`
}

type Visit struct {
	VisitIndex int       `json:"visitIndex"`
	VisitID    string    `json:"visitId,omitempty"`
	StartedAt  int64     `json:"startedAt"`
	EndedAt    int64     `json:"endedAt"`
	Heading    string    `json:"heading,omitempty"`
	Frames     []Frame   `json:"frames,omitempty"`
	Forms      []Form    `json:"forms,omitempty"`
	Elements   []Element `json:"elements"`
	Steps      []Step    `json:"steps"`
}

// Frame maps a frame key ("top", "f1", ...) to the frame URL it stands for.
type Frame struct {
	FrameKey string `json:"frameKey"`
	FrameURL string `json:"frameUrl"`
}

// Form documents one form group of the page structure snapshot; Fields are
// element keys.
type Form struct {
	Key    string   `json:"key"`
	Action string   `json:"action,omitempty"`
	Method string   `json:"method,omitempty"`
	Fields []string `json:"fields"`
}

// Element is the deduplicated identity of one control within a visit.
type Element struct {
	Key       string           `json:"key"`
	Tag       string           `json:"tag"`
	Type      string           `json:"type,omitempty"`
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Frame     string           `json:"frame,omitempty"`
	Locator   *session.Locator `json:"locator,omitempty"`
	Selector  string           `json:"selector,omitempty"`
	Label     string           `json:"label,omitempty"`
	Heading   string           `json:"heading,omitempty"`
	OptionsID string           `json:"optionsId,omitempty"`
	LabelFor  string           `json:"labelFor,omitempty"`
}

// Step is one normalized action of the compacted timeline. Element is empty
// for navigate and submit.
type Step struct {
	Action     StepAction `json:"action"`
	TS         int64      `json:"ts"`
	Element    string     `json:"element,omitempty"`
	URL        string     `json:"url,omitempty"`
	Value      *string    `json:"value,omitempty"`
	Label      string     `json:"label,omitempty"`
	Checked    *bool      `json:"checked,omitempty"`
	Files      []string   `json:"files,omitempty"`
	FileCount  int        `json:"fileCount,omitempty"`
	FormAction string     `json:"formAction,omitempty"`
	FormMethod string     `json:"formMethod,omitempty"`
}

// Encode renders the FlowMap document, indented for export.
func Encode(fm *FlowMap) ([]byte, error) {
	if fm == nil {
		return nil, errors.New("flowmap: encode nil flowmap")
	}
	return json.MarshalIndent(fm, "", "  ")
}

// Decode parses a FlowMap document.
func Decode(data []byte) (*FlowMap, error) {
	var fm FlowMap
	if err := json.Unmarshal(data, &fm); err != nil {
		return nil, err
	}
	return &fm, nil
}
