package decl

import (
	"crypto/sha256"
	"slices"

	"github.com/elliotchance/orderedmap/v2"
)

// Table is one pass's snapshot of declarations, keyed by ID and kept in
// arrival order. A later declaration with the same ID replaces the earlier one
// in place.
type Table struct {
	entries *orderedmap.OrderedMap[string, *Declaration]
}

// NewTable creates a table holding the given declarations.
func NewTable(decls ...*Declaration) *Table {
	t := &Table{entries: orderedmap.NewOrderedMap[string, *Declaration]()}
	for _, d := range decls {
		t.Add(d)
	}
	return t
}

// Add inserts or replaces a declaration. Nil declarations are ignored.
func (t *Table) Add(d *Declaration) {
	if d == nil {
		return
	}
	t.entries.Set(d.ID(), d)
}

// Merge adds every declaration of other, in other's order.
func (t *Table) Merge(other *Table) {
	if other == nil {
		return
	}
	for _, d := range other.All() {
		t.Add(d)
	}
}

// Get returns the declaration with the given ID.
func (t *Table) Get(id string) (*Declaration, bool) {
	return t.entries.Get(id)
}

// Has reports whether the table holds a declaration with the given ID.
func (t *Table) Has(id string) bool {
	_, ok := t.entries.Get(id)
	return ok
}

// Remove deletes a declaration by ID.
func (t *Table) Remove(id string) bool {
	return t.entries.Delete(id)
}

// Len returns the number of declarations.
func (t *Table) Len() int {
	return t.entries.Len()
}

// All returns the declarations in arrival order.
func (t *Table) All() []*Declaration {
	out := make([]*Declaration, 0, t.entries.Len())
	for el := t.entries.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

// IDs returns the declaration IDs sorted ascending.
func (t *Table) IDs() []string {
	ids := make([]string, 0, t.entries.Len())
	for el := t.entries.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Key)
	}
	slices.Sort(ids)
	return ids
}

// Digest hashes member digests in sorted ID order, so two tables with the
// same declarations have the same digest whatever their arrival order.
func (t *Table) Digest() Digest {
	h := sha256.New()
	for _, id := range t.IDs() {
		d, _ := t.Get(id)
		sum := d.Digest()
		h.Write(sum[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}
