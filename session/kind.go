package session

import "strings"

// ElementKind classifies an element snapshot for normalisation.
type ElementKind int

const (
	KindOther ElementKind = iota
	KindText              // free-text input, textarea, contenteditable
	KindChoice            // select
	KindToggle            // checkbox or radio input
	KindFile              // file input
	KindForm              // form
	KindLabel             // label
	KindButton            // button, submit/button/image/reset input
	KindLink              // a
)

var kindNames = [...]string{"other", "text", "choice", "toggle", "file", "form", "label", "button", "link"}

func (k ElementKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

var textInputTypes = map[string]bool{
	"": true, "text": true, "email": true, "password": true, "search": true,
	"tel": true, "url": true, "number": true, "date": true, "datetime-local": true,
	"month": true, "week": true, "time": true,
}

// Kind classifies the snapshot by tag, type and editability.
func (e ElementSnapshot) Kind() ElementKind {
	tag := strings.ToLower(e.Tag)
	typ := strings.ToLower(e.Type)
	switch tag {
	case "input":
		switch typ {
		case "checkbox", "radio":
			return KindToggle
		case "file":
			return KindFile
		case "submit", "button", "image", "reset":
			return KindButton
		case "hidden":
			return KindOther
		}
		if textInputTypes[typ] {
			return KindText
		}
		return KindOther
	case "textarea":
		return KindText
	case "select":
		return KindChoice
	case "form":
		return KindForm
	case "label":
		return KindLabel
	case "button":
		return KindButton
	case "a":
		return KindLink
	}
	if v, ok := e.Attrs["contenteditable"]; ok && v != "false" {
		return KindText
	}
	return KindOther
}
