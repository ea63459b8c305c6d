package recorder

import (
	"github.com/hazyhaar/flowrec/session"
)

// MsgKind tags an Envelope.
type MsgKind int

const (
	MsgStart MsgKind = iota + 1
	MsgStop
	MsgStatus
	MsgGet
	MsgFlush
	MsgNavigation
	MsgInteraction
	MsgForms
	MsgTabClosed
)

var msgNames = map[MsgKind]string{
	MsgStart: "start", MsgStop: "stop", MsgStatus: "status", MsgGet: "get",
	MsgFlush: "flush", MsgNavigation: "navigation", MsgInteraction: "interaction",
	MsgForms: "forms", MsgTabClosed: "tab_closed",
}

func (k MsgKind) String() string {
	if s, ok := msgNames[k]; ok {
		return s
	}
	return "unknown"
}

// Tab is an open tab and the top-level URL it shows.
type Tab struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Envelope is the single message type the aggregator consumes. Which fields
// are meaningful depends on Kind:
//
//	MsgStart        Tabs (open tabs to synthesize visits for)
//	MsgNavigation   TabID, URL, TS
//	MsgInteraction  TabID, URL (current top URL, may be empty), Interaction
//	MsgForms        TabID, URL, Forms
//	MsgTabClosed    TabID, TS
type Envelope struct {
	Kind        MsgKind
	TabID       string
	URL         string
	TS          int64
	Interaction *session.Interaction
	Forms       *session.FormsSnapshot
	Tabs        []Tab

	reply chan result
}

type result struct {
	status Status
	sess   *session.Session
	err    error
}

// Status is the live recording summary.
type Status struct {
	Recording    bool   `json:"recording"`
	SessionID    string `json:"session_id,omitempty"`
	StartedAt    int64  `json:"started_at,omitempty"`
	EndedAt      int64  `json:"ended_at,omitempty"`
	Pages        int    `json:"pages"`
	Visits       int    `json:"visits"`
	Interactions int    `json:"interactions"`
	Tabs         int    `json:"tabs"`
	Dropped      int    `json:"dropped"`
}
