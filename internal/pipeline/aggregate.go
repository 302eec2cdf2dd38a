package pipeline

import (
	"slices"
	"sync"
)

// DiscoverySet is the sorted, duplicate-free list of qualified names
// discovered in one pass.
type DiscoverySet []string

// NewDiscoverySet sorts and deduplicates names.
func NewDiscoverySet(names ...string) DiscoverySet {
	set := slices.Clone(names)
	slices.Sort(set)
	return DiscoverySet(slices.Compact(set))
}

// Equal reports full value equality: same length, same elements, same order.
func (s DiscoverySet) Equal(other DiscoverySet) bool {
	return slices.Equal(s, other)
}

// Contains reports whether name is in the set.
func (s DiscoverySet) Contains(name string) bool {
	_, found := slices.BinarySearch(s, name)
	return found
}

// Aggregate drops exclusions, deduplicates the remaining names by exact
// equality and sorts them ascending. Arrival order does not matter.
func Aggregate(results []Classification) DiscoverySet {
	names := make([]string, 0, len(results))
	for _, r := range results {
		if r.IsIncluded() {
			names = append(names, r.Name)
		}
	}
	return NewDiscoverySet(names...)
}

// Aggregator retains the previous pass's set for change suppression.
type Aggregator struct {
	mu       sync.Mutex
	previous DiscoverySet
}

// NewAggregator creates an aggregator seeded with a previously persisted
// set. A nil seed means no previous pass.
func NewAggregator(seed []string) *Aggregator {
	a := &Aggregator{}
	if seed != nil {
		a.previous = NewDiscoverySet(seed...)
	}
	return a
}

// Changed reports whether set differs from the previous set without
// committing it.
func (a *Aggregator) Changed(set DiscoverySet) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.previous.Equal(set)
}

// Commit compares set against the previous pass and replaces the cached set
// when it differs. It returns true when the set changed.
func (a *Aggregator) Commit(set DiscoverySet) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.previous.Equal(set) {
		return false
	}
	a.previous = slices.Clone(set)
	return true
}

// Previous returns a copy of the cached set.
func (a *Aggregator) Previous() DiscoverySet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.previous)
}
