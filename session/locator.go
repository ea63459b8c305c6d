package session

// LocatorKind names one way of addressing an element.
type LocatorKind string

const (
	LocatorID          LocatorKind = "id"
	LocatorName        LocatorKind = "name"
	LocatorLabel       LocatorKind = "label"
	LocatorAriaLabel   LocatorKind = "aria-label"
	LocatorPlaceholder LocatorKind = "placeholder"
	LocatorText        LocatorKind = "text"
	LocatorCSS         LocatorKind = "css"
	LocatorXPath       LocatorKind = "xpath"
)

// locatorRank orders kinds by reliability, identifier first.
var locatorRank = map[LocatorKind]int{
	LocatorID:          0,
	LocatorName:        1,
	LocatorLabel:       2,
	LocatorAriaLabel:   3,
	LocatorPlaceholder: 4,
	LocatorText:        5,
	LocatorCSS:         6,
	LocatorXPath:       7,
}

// Rank returns the reliability rank of k (lower is better). Unknown kinds
// rank after every known one.
func (k LocatorKind) Rank() int {
	if r, ok := locatorRank[k]; ok {
		return r
	}
	return len(locatorRank)
}

// Locator is one (kind, value) candidate.
type Locator struct {
	Kind  LocatorKind `json:"kind"`
	Value string      `json:"value"`
}

// IsZero reports whether l carries no value.
func (l Locator) IsZero() bool { return l.Value == "" }

// Best returns the highest-ranked non-empty candidate. Ties keep the
// earliest candidate.
func Best(candidates []Locator) (Locator, bool) {
	var best Locator
	found := false
	for _, c := range candidates {
		if c.Value == "" {
			continue
		}
		if !found || c.Kind.Rank() < best.Kind.Rank() {
			best = c
			found = true
		}
	}
	return best, found
}
