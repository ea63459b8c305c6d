// CLAUDE:SUMMARY Flow compiler: raw session -> FlowMap (element keys, normalization, merge/debounce, noise passes, options store, forms).
package flowmap

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/hazyhaar/flowrec/locator"
	"github.com/hazyhaar/flowrec/session"
)

// Options tunes the compiler's policy constants.
type Options struct {
	// DebounceWindow: identical consecutive steps at most this far apart
	// collapse into one. Default: 300ms.
	DebounceWindow time.Duration
	// MaxNameKeyLen: name-based element keys longer than this are hashed.
	// Default: 120.
	MaxNameKeyLen int
	// RawFile is copied into the header to trace the document back to its
	// raw session file.
	RawFile string
}

func (o *Options) defaults() {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 300 * time.Millisecond
	}
	if o.MaxNameKeyLen <= 0 {
		o.MaxNameKeyLen = 120
	}
}

// CompileJSON decodes a raw session document and compiles it. Malformed
// input yields a *session.DecodeError and no FlowMap.
func CompileJSON(data []byte, opts Options) (*FlowMap, error) {
	s, err := session.Decode(data)
	if err != nil {
		return nil, err
	}
	return Compile(s, opts)
}

// Compile turns a session into a FlowMap. It never mutates s and never
// fails on partial data: empty visits compile to a lone navigate step and
// elements without locators get a hashed key.
func Compile(s *session.Session, opts Options) (*FlowMap, error) {
	if s == nil {
		return nil, &session.DecodeError{Reason: "nil session"}
	}
	opts.defaults()

	store := optionsStore{}
	fm := &FlowMap{
		Meta: Meta{
			Version:   Version,
			StartedAt: s.Meta.StartedAt,
			EndedAt:   s.Meta.EndedAt,
			Source:    Source,
			RawFile:   opts.RawFile,
		},
		SelectOptionsStore: store,
		Pages:              make([]Page, 0, len(s.Pages)),
	}

	var last int64
	for _, p := range s.Pages {
		visits := slices.Clone(p.Visits)
		slices.SortStableFunc(visits, func(a, b session.Visit) int {
			return cmp.Compare(a.StartedAt, b.StartedAt)
		})
		page := Page{TopURL: p.TopURL, Visits: make([]Visit, 0, len(visits))}
		for i, v := range visits {
			cv := compileVisit(p.TopURL, i, v, store, opts)
			last = max(last, cv.EndedAt)
			page.Visits = append(page.Visits, cv)
		}
		fm.Pages = append(fm.Pages, page)
	}
	if fm.Meta.EndedAt == 0 {
		fm.Meta.EndedAt = max(last, fm.Meta.StartedAt)
	}
	return fm, nil
}

// visitCompiler holds the per-visit state. Visits never share elements.
type visitCompiler struct {
	pageURL   string
	window    int64
	store     optionsStore
	keys      *keyer
	frames    []Frame
	frameKey  map[string]string
	subFrames int
	elements  []Element
	optionsTS map[string]int64
	index     map[string]int
	steps     []Step
}

func compileVisit(pageURL string, idx int, v session.Visit, store optionsStore, opts Options) Visit {
	c := &visitCompiler{
		pageURL:   pageURL,
		window:    opts.DebounceWindow.Milliseconds(),
		store:     store,
		keys:      newKeyer(opts.MaxNameKeyLen),
		frameKey:  map[string]string{},
		index:     map[string]int{},
		optionsTS: map[string]int64{},
	}
	c.steps = append(c.steps, Step{Action: StepNavigate, TS: v.StartedAt, URL: pageURL})

	raw := slices.Clone(v.Interactions)
	slices.SortStableFunc(raw, func(a, b session.Interaction) int {
		return cmp.Compare(a.TS, b.TS)
	})

	out := Visit{
		VisitIndex: idx,
		VisitID:    v.VisitID,
		StartedAt:  v.StartedAt,
		EndedAt:    v.StartedAt,
	}
	for _, in := range raw {
		c.interaction(in)
		if out.Heading == "" {
			out.Heading = in.Context.Heading
		}
		out.EndedAt = max(out.EndedAt, in.TS)
	}
	if v.FormsSnapshot != nil {
		out.Forms = c.forms(*v.FormsSnapshot)
	}

	out.Steps = dropLabelClicks(c.steps, c.lookup)
	out.Elements = c.elements
	if out.Elements == nil {
		out.Elements = []Element{}
	}
	if len(c.frames) > 1 || (len(c.frames) == 1 && c.frames[0].FrameKey != "top") {
		out.Frames = c.frames
	}
	return out
}

func (c *visitCompiler) lookup(key string) (Element, bool) {
	i, ok := c.index[key]
	if !ok {
		return Element{}, false
	}
	return c.elements[i], true
}

// frame returns the frame key for a frame URL: "top" for the page itself,
// f1, f2, ... for sub-frames in order of first appearance.
func (c *visitCompiler) frame(frameURL string) string {
	if frameURL == "" {
		frameURL = c.pageURL
	}
	if k, ok := c.frameKey[frameURL]; ok {
		return k
	}
	k := "top"
	if frameURL != c.pageURL {
		c.subFrames++
		k = "f" + strconv.Itoa(c.subFrames)
	}
	c.frameKey[frameURL] = k
	c.frames = append(c.frames, Frame{FrameKey: k, FrameURL: frameURL})
	return k
}

func (c *visitCompiler) interaction(in session.Interaction) {
	if in.Element.Kind() == session.KindChoice && len(in.Element.Options) == 0 {
		in.Element.Options = locator.OptionsFromMarkup(in.Element.HTML)
	}
	step := normalize(in)
	if step.Action != StepSubmit {
		step.Element = c.register(interactionIdentity(in), in.TS, in.FrameURL, in.Element, in.Context)
	} else {
		c.frame(in.FrameURL)
	}
	c.push(step)
}

// register returns the element key for an interaction, creating the element
// on first sight and refreshing its context afterwards. The element's option
// catalog follows the most recent observation.
func (c *visitCompiler) register(id identity, ts int64, frameURL string, snap session.ElementSnapshot, ctx session.Context) string {
	key := c.keys.key(id)
	fk := c.frame(frameURL)

	i, ok := c.index[key]
	if !ok {
		el := Element{
			Key:  key,
			Tag:  id.tag,
			Type: snap.Type,
			ID:   id.id,
			Name: id.name,
		}
		if fk != "top" {
			el.Frame = fk
		}
		if best, found := session.Best(id.locators); found {
			el.Locator = &best
			el.Selector = LocatorExpr(best)
		}
		if snap.Kind() == session.KindLabel {
			el.LabelFor = snap.Attr("for")
			if el.LabelFor == "" {
				el.LabelFor = locator.LabelForFromMarkup(snap.HTML)
			}
		}
		i = len(c.elements)
		c.index[key] = i
		c.elements = append(c.elements, el)
	}
	el := &c.elements[i]
	if el.Label == "" {
		el.Label = ctx.Label
	}
	if el.Heading == "" {
		el.Heading = ctx.Heading
	}

	if snap.Kind() == session.KindChoice {
		if opts := snap.Options; len(opts) > 0 {
			var scope session.Locator
			if el.Locator != nil {
				scope = *el.Locator
			}
			if frameURL == "" {
				frameURL = c.pageURL
			}
			id := c.store.register(c.pageURL, frameURL, scope, opts)
			if seen, ok := c.optionsTS[key]; !ok || ts >= seen {
				el.OptionsID = id
				c.optionsTS[key] = ts
			}
		}
	}
	return key
}

// push appends a step under the merge rule: a replaceable step on the same
// element as the previous replaceable step overwrites it; otherwise a step
// identical to the previous one within the debounce window is dropped.
func (c *visitCompiler) push(s Step) {
	if n := len(c.steps); n > 0 {
		prev := &c.steps[n-1]
		if s.Element != "" && prev.Element == s.Element &&
			prev.Action.Replaceable() && s.Action.Replaceable() {
			*prev = s
			return
		}
		if sameContent(*prev, s) && s.TS-prev.TS <= c.window {
			return
		}
	}
	c.steps = append(c.steps, s)
}

// forms compiles the page structure snapshot. Fields nobody interacted with
// are registered as elements so every form field has a key.
func (c *visitCompiler) forms(fs session.FormsSnapshot) []Form {
	out := make([]Form, 0, len(fs.Groups))
	for _, g := range fs.Groups {
		f := Form{Key: g.Key, Action: g.Action, Method: g.Method, Fields: make([]string, 0, len(g.Fields))}
		for _, field := range g.Fields {
			snap := session.ElementSnapshot{
				Tag:     field.Tag,
				Type:    field.Type,
				ID:      field.ID,
				Name:    field.Name,
				Options: field.Options,
			}
			key := c.register(fieldIdentity(field), fs.TS, fs.FrameURL, snap, session.Context{Label: field.Label})
			f.Fields = append(f.Fields, key)
		}
		out = append(out, f)
	}
	return out
}

// dropLabelClicks removes a click on a label immediately followed by a
// check/uncheck of the control the label's for attribute names. The browser
// replays a label click on its control before the change event, so a click
// on that control sitting between the two is dropped with the label click.
func dropLabelClicks(steps []Step, lookup func(string) (Element, bool)) []Step {
	out := make([]Step, 0, len(steps))
	for i := 0; i < len(steps); i++ {
		s := steps[i]
		if s.Action == StepClick {
			if lbl, ok := lookup(s.Element); ok && lbl.LabelFor != "" {
				j := i + 1
				if j < len(steps) && steps[j].Action == StepClick && labels(lbl, steps[j].Element, lookup) {
					j++
				}
				if j < len(steps) && (steps[j].Action == StepCheck || steps[j].Action == StepUncheck) &&
					labels(lbl, steps[j].Element, lookup) {
					i = j - 1
					continue
				}
			}
		}
		out = append(out, s)
	}
	return out
}

// labels reports whether lbl's for attribute names the element key.
func labels(lbl Element, key string, lookup func(string) (Element, bool)) bool {
	target, ok := lookup(key)
	return ok && (target.ID == lbl.LabelFor || target.Key == "#"+lbl.LabelFor)
}
