package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is matched (errors.Is) by every DecodeError.
var ErrMalformed = errors.New("session: malformed raw session")

// DecodeError is the structured failure returned for input that does not
// have the raw session document shape.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "session: malformed raw session: " + e.Reason
}

// Is makes errors.Is(err, ErrMalformed) true.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// Decode parses a raw session document. Any deviation from the documented
// shape yields a *DecodeError; nothing is partially returned.
func Decode(data []byte) (*Session, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, malformed("empty document")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, malformed("document is not a JSON object")
	}
	if top == nil {
		return nil, malformed("document is not a JSON object")
	}
	pages, ok := top["pages"]
	if !ok || bytes.Equal(bytes.TrimSpace(pages), []byte("null")) {
		return nil, malformed(`missing "pages"`)
	}
	if t := bytes.TrimSpace(pages); len(t) == 0 || t[0] != '[' {
		return nil, malformed(`"pages" is not an array`)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, malformed("field %q: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return nil, malformed("%v", err)
	}

	for pi := range s.Pages {
		for vi := range s.Pages[pi].Visits {
			v := &s.Pages[pi].Visits[vi]
			if v.Interactions == nil {
				v.Interactions = []Interaction{}
			}
			for ii, in := range v.Interactions {
				if !in.Action.Valid() {
					return nil, malformed("pages[%d].visits[%d].interactions[%d]: unknown action %q", pi, vi, ii, in.Action)
				}
			}
		}
		if s.Pages[pi].Visits == nil {
			s.Pages[pi].Visits = []Visit{}
		}
	}
	return &s, nil
}

// Encode renders the raw session document, indented for export.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("session: encode nil session")
	}
	return json.MarshalIndent(s, "", "  ")
}
