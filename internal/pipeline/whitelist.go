// Package pipeline implements incremental capability-type discovery: a cheap
// syntactic candidate filter, a per-declaration semantic classifier, an
// aggregator that joins one pass into a sorted discovery set, and an emitter
// that renders the set as Go source.
package pipeline

import (
	"slices"
	"strings"

	"github.com/dbsmedya/autoreg/internal/decl"
)

// Whitelist is the immutable set of capability interface identifiers that
// qualify a type for discovery.
type Whitelist struct {
	ids []string // sorted, unique
}

// NewWhitelist trims, deduplicates and freezes the given identifiers.
// Blank identifiers are dropped.
func NewWhitelist(ids ...string) Whitelist {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return Whitelist{ids: slices.Compact(out)}
}

// Contains reports whether id is a capability identifier.
func (w Whitelist) Contains(id string) bool {
	_, found := slices.BinarySearch(w.ids, id)
	return found
}

// Match returns the identifiers of ids that are whitelisted, sorted.
func (w Whitelist) Match(ids []string) []string {
	var matched []string
	for _, id := range ids {
		if w.Contains(id) {
			matched = append(matched, id)
		}
	}
	slices.Sort(matched)
	return slices.Compact(matched)
}

// Intersects reports whether any of ids is whitelisted.
func (w Whitelist) Intersects(ids []string) bool {
	return slices.ContainsFunc(ids, w.Contains)
}

// IDs returns a copy of the identifiers, sorted.
func (w Whitelist) IDs() []string {
	return slices.Clone(w.ids)
}

// Len returns the number of identifiers.
func (w Whitelist) Len() int {
	return len(w.ids)
}

// Digest identifies the whitelist's content.
func (w Whitelist) Digest() decl.Digest {
	return decl.HashStrings(w.ids)
}
