package flowmap

import (
	"github.com/hazyhaar/flowrec/session"
)

// normalize maps a raw interaction onto its canonical step. The match is on
// the (raw action, element kind) pair; the last two cases are the fallbacks
// for change notifications no specific row claims. The element reference is
// filled in by the caller.
func normalize(in session.Interaction) Step {
	kind := in.Element.Kind()
	step := Step{TS: in.TS}

	switch {
	case in.Action == session.ActionClick:
		step.Action = StepClick

	case in.Action == session.ActionSubmit:
		step.Action = StepSubmit
		if in.Form != nil {
			step.FormAction = in.Form.Action
			step.FormMethod = in.Form.Method
		}

	case in.Action == session.ActionSelect,
		in.Action == session.ActionChange && kind == session.KindChoice:
		step.Action = StepSelect
		switch {
		case in.Selected != nil:
			step.Value = ptr(in.Selected.Value)
			step.Label = in.Selected.Label
		case in.Value != nil:
			step.Value = ptr(*in.Value)
			step.Label = optionLabel(in.Element.Options, *in.Value)
		}

	case in.Action == session.ActionCheck:
		step.Action = StepCheck
		step.Checked = ptr(true)

	case in.Action == session.ActionUncheck:
		step.Action = StepUncheck
		step.Checked = ptr(false)

	case in.Action == session.ActionChange && kind == session.KindToggle && in.Checked != nil:
		step.Action = StepUncheck
		if *in.Checked {
			step.Action = StepCheck
		}
		step.Checked = ptr(*in.Checked)

	case in.Action == session.ActionUpload,
		in.Action == session.ActionChange && kind == session.KindFile:
		step.Action = StepUpload
		step.Files = append([]string(nil), in.Files...)
		step.FileCount = in.FileCount
		if step.FileCount == 0 {
			step.FileCount = len(in.Files)
		}

	case in.Action == session.ActionFill:
		step.Action = StepFill
		step.Value = ptr(stringOr(in.Value))

	case in.Value != nil:
		step.Action = StepFill
		step.Value = ptr(*in.Value)

	default:
		step.Action = StepClick
	}
	return step
}

func optionLabel(opts []session.Option, value string) string {
	for _, o := range opts {
		if o[0] == value {
			return o[1]
		}
	}
	return ""
}

func ptr[T any](v T) *T { return &v }

func stringOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// sameContent compares everything but the timestamp.
func sameContent(a, b Step) bool {
	if a.Action != b.Action || a.Element != b.Element || a.URL != b.URL ||
		a.Label != b.Label || a.FileCount != b.FileCount ||
		a.FormAction != b.FormAction || a.FormMethod != b.FormMethod {
		return false
	}
	if (a.Value == nil) != (b.Value == nil) || (a.Value != nil && *a.Value != *b.Value) {
		return false
	}
	if (a.Checked == nil) != (b.Checked == nil) || (a.Checked != nil && *a.Checked != *b.Checked) {
		return false
	}
	if len(a.Files) != len(b.Files) {
		return false
	}
	for i := range a.Files {
		if a.Files[i] != b.Files[i] {
			return false
		}
	}
	return true
}
