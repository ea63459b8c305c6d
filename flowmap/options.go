package flowmap

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/hazyhaar/flowrec/session"
)

// optionsStore is the session-level, content-addressed catalog table.
type optionsStore map[string]OptionsEntry

// contentHash addresses an ordered option list.
func contentHash(opts []session.Option) string {
	data, _ := json.Marshal(opts)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// register stores opts observed on (page, frame, locator) and returns the
// entry id. Identical content observed in the same scope always yields the
// same id; differing content never does.
func (s optionsStore) register(pageURL, frameURL string, loc session.Locator, opts []session.Option) string {
	ch := contentHash(opts)
	scope := pageURL + "\x00" + frameURL + "\x00" + string(loc.Kind) + ":" + loc.Value + "\x00" + ch
	sum := sha256.Sum256([]byte(scope))
	id := "opt_" + hex.EncodeToString(sum[:])[:16]
	if _, ok := s[id]; !ok {
		cp := make([]session.Option, len(opts))
		copy(cp, opts)
		s[id] = OptionsEntry{Count: len(cp), Hash: ch[:16], Options: cp}
	}
	return id
}
