package graph

import (
	"fmt"

	"github.com/dbsmedya/autoreg/internal/decl"
)

// Builder constructs a type hierarchy from a declaration table.
type Builder struct {
	table *decl.Table
}

// NewBuilder creates a new hierarchy builder for the given table.
func NewBuilder(table *decl.Table) *Builder {
	return &Builder{table: table}
}

// Build constructs the hierarchy. Every declaration becomes a declared node;
// every implements/embeds reference becomes an edge, and references to
// undeclared identifiers become placeholder nodes. Cycles are kept: callers
// that care run Validate.
func (b *Builder) Build() (*Hierarchy, error) {
	if b.table == nil {
		return nil, fmt.Errorf("declaration table is nil")
	}

	h := NewHierarchy()

	// Declared nodes first so edges never downgrade them to placeholders
	for _, d := range b.table.All() {
		h.AddNode(d.ID(), &Node{Kind: d.Kind, Declared: true})
	}

	for _, d := range b.table.All() {
		id := d.ID()
		for _, target := range d.Implements {
			if target == "" {
				continue
			}
			h.AddEdge(id, target, EdgeImplements)
		}
		for _, target := range d.Embeds {
			if target == "" {
				continue
			}
			h.AddEdge(id, target, EdgeEmbeds)
		}
	}

	h.sortAdjacency()
	return h, nil
}

// BuildFromTable is a convenience function that builds a hierarchy directly from a table.
func BuildFromTable(table *decl.Table) (*Hierarchy, error) {
	return NewBuilder(table).Build()
}
