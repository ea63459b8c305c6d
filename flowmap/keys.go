package flowmap

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/flowrec/session"
)

// identity is what the key computation looks at.
type identity struct {
	tag, id, name, label string
	locators             []session.Locator
}

func interactionIdentity(in session.Interaction) identity {
	id := in.Element.ID
	if id == "" {
		for _, l := range in.Locators {
			if l.Kind == session.LocatorID {
				id = l.Value
				break
			}
		}
	}
	return identity{
		tag:      strings.ToLower(in.Element.Tag),
		id:       id,
		name:     in.Element.Name,
		label:    in.Context.Label,
		locators: in.Locators,
	}
}

func fieldIdentity(f session.FieldSnapshot) identity {
	var locs []session.Locator
	if !f.Locator.IsZero() {
		locs = []session.Locator{f.Locator}
	}
	return identity{
		tag:      strings.ToLower(f.Tag),
		id:       f.ID,
		name:     f.Name,
		label:    f.Label,
		locators: locs,
	}
}

// keyer computes element keys for one visit. The hashed fallback is kept
// unique per distinct (tag, label) pair seen in the visit.
type keyer struct {
	maxNameLen int
	fallback   map[string]string // short hash -> tag\x00label
}

func newKeyer(maxNameLen int) *keyer {
	return &keyer{maxNameLen: maxNameLen, fallback: map[string]string{}}
}

// key returns the element key: "#id", else a name composite
// "name:<name>|<tag>|<label>" (hashed when name, tag and label together run
// past maxNameLen characters), else the best locator "<kind>:<value>", else a
// hash of tag and label.
func (k *keyer) key(e identity) string {
	if e.id != "" {
		return "#" + e.id
	}
	if e.name != "" {
		composite := "name:" + e.name + "|" + e.tag + "|" + e.label
		if utf8.RuneCountInString(e.name+e.tag+e.label) > k.maxNameLen {
			return "name:h:" + digest(composite)[:16]
		}
		return composite
	}
	if best, ok := session.Best(e.locators); ok {
		return string(best.Kind) + ":" + best.Value
	}
	pair := e.tag + "\x00" + e.label
	full := digest(pair)
	for n := 12; n <= len(full); n += 4 {
		h := full[:n]
		if seen, ok := k.fallback[h]; !ok || seen == pair {
			k.fallback[h] = pair
			return "h:" + h
		}
	}
	return "h:" + full
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
