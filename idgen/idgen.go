// Package idgen provides the identifier generators used for recording
// sessions, visits and exports.
//
// Constructors that mint IDs (recorder.New, store.Open) accept a Generator so
// tests can swap the random strategy for a deterministic one.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, so visits and sessions list in creation order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID
// (e.g. "ses_", "vis_", "exp_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a Generator yielding prefix1, prefix2, ... Safe for
// concurrent use. Intended for tests and for offline compilation where
// identifiers must be reproducible.
func Sequence(prefix string) Generator {
	var n atomic.Uint64
	return func() string {
		return prefix + strconv.FormatUint(n.Add(1), 10)
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Session, Visit, Export and Audit are the prefixed generators used by the recorder.
var (
	Session = Prefixed("ses_", UUIDv7())
	Visit   = Prefixed("vis_", UUIDv7())
	Export  = Prefixed("exp_", UUIDv7())
	Audit   = Prefixed("aud_", UUIDv7())
)

// Parse validates a UUID string, with or without one of the recorder
// prefixes, and returns it unchanged.
func Parse(s string) (string, error) {
	raw := s
	for _, p := range []string{"ses_", "vis_", "exp_", "aud_"} {
		if len(raw) > len(p) && raw[:len(p)] == p {
			raw = raw[len(p):]
			break
		}
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("idgen: invalid id %q: %w", s, err)
	}
	return s, nil
}
