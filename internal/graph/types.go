// Package graph provides the type hierarchy graph used by the discovery
// pipeline: nodes are qualified type names, edges point from a type to each
// type it embeds or implements.
package graph

import (
	"slices"

	"github.com/dbsmedya/autoreg/internal/decl"
)

// EdgeKind tags how a type relates to a supertype. Kinds combine when the
// same edge is declared both ways.
type EdgeKind uint8

const (
	EdgeEmbeds     EdgeKind = 1 << 0
	EdgeImplements EdgeKind = 1 << 1
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeEmbeds:
		return "embeds"
	case EdgeImplements:
		return "implements"
	case EdgeEmbeds | EdgeImplements:
		return "embeds+implements"
	default:
		return "none"
	}
}

// Node represents a type in the hierarchy.
type Node struct {
	Name     string    // Qualified type name
	Kind     decl.Kind // Declared kind; meaningless when Declared is false
	Declared bool      // False for identifiers referenced but not declared in the pass
}

// Edge represents a subtype -> supertype relationship.
type Edge struct {
	From string // Subtype
	To   string // Supertype
}

// Hierarchy represents the complete type structure of one pass.
type Hierarchy struct {
	Nodes     map[string]*Node    // qualified name -> node
	Supers    map[string][]string // type -> supertypes (outgoing edges)
	Subs      map[string][]string // type -> subtypes (incoming edges)
	edgeKinds map[Edge]EdgeKind
}

// NewHierarchy creates a new empty hierarchy.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		Nodes:     make(map[string]*Node),
		Supers:    make(map[string][]string),
		Subs:      make(map[string][]string),
		edgeKinds: make(map[Edge]EdgeKind),
	}
}

// AddNode adds a type node to the hierarchy. A declared node replaces an
// external placeholder of the same name.
// If node is nil, an undeclared placeholder is created.
func (h *Hierarchy) AddNode(name string, node *Node) {
	if node == nil {
		if _, exists := h.Nodes[name]; exists {
			return
		}
		node = &Node{}
	}
	node.Name = name
	h.Nodes[name] = node
}

// AddEdge adds a subtype -> supertype relationship, creating placeholder
// nodes for unknown endpoints. Repeated edges merge their kinds.
func (h *Hierarchy) AddEdge(from, to string, kind EdgeKind) {
	h.AddNode(from, nil)
	h.AddNode(to, nil)

	edge := Edge{From: from, To: to}
	if prev, exists := h.edgeKinds[edge]; exists {
		h.edgeKinds[edge] = prev | kind
		return
	}
	h.edgeKinds[edge] = kind

	// Add to supers map (forward edges)
	h.Supers[from] = append(h.Supers[from], to)

	// Add to subs map (reverse edges)
	h.Subs[to] = append(h.Subs[to], from)
}

// GetSupers returns all direct supertypes of a type.
func (h *Hierarchy) GetSupers(name string) []string {
	return h.Supers[name]
}

// GetSubs returns all direct subtypes of a type.
func (h *Hierarchy) GetSubs(name string) []string {
	return h.Subs[name]
}

// GetNode returns the node for a given name, or nil if not found.
func (h *Hierarchy) GetNode(name string) *Node {
	return h.Nodes[name]
}

// GetEdgeKind returns the kind of an edge, or 0 if absent.
func (h *Hierarchy) GetEdgeKind(from, to string) EdgeKind {
	return h.edgeKinds[Edge{From: from, To: to}]
}

// HasNode returns true if the hierarchy contains a node with the given name.
func (h *Hierarchy) HasNode(name string) bool {
	_, exists := h.Nodes[name]
	return exists
}

// IsDeclared reports whether name was declared in the pass (not just referenced).
func (h *Hierarchy) IsDeclared(name string) bool {
	n := h.Nodes[name]
	return n != nil && n.Declared
}

// NodeCount returns the number of nodes in the hierarchy.
func (h *Hierarchy) NodeCount() int {
	return len(h.Nodes)
}

// EdgeCount returns the number of edges in the hierarchy.
func (h *Hierarchy) EdgeCount() int {
	return len(h.edgeKinds)
}

// AllNodes returns all node names sorted ascending.
func (h *Hierarchy) AllNodes() []string {
	nodes := make([]string, 0, len(h.Nodes))
	for name := range h.Nodes {
		nodes = append(nodes, name)
	}
	slices.Sort(nodes)
	return nodes
}

// AllEdges returns all edges sorted by (From, To).
func (h *Hierarchy) AllEdges() []Edge {
	edges := make([]Edge, 0, len(h.edgeKinds))
	for edge := range h.edgeKinds {
		edges = append(edges, edge)
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		if a.From != b.From {
			if a.From < b.From {
				return -1
			}
			return 1
		}
		if a.To < b.To {
			return -1
		}
		if a.To > b.To {
			return 1
		}
		return 0
	})
	return edges
}

// ExternalNodes returns referenced but undeclared names, sorted.
func (h *Hierarchy) ExternalNodes() []string {
	var out []string
	for name, node := range h.Nodes {
		if !node.Declared {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// InDegree returns the number of incoming edges (subtypes) for a node.
func (h *Hierarchy) InDegree(name string) int {
	return len(h.Subs[name])
}

// OutDegree returns the number of outgoing edges (supertypes) for a node.
func (h *Hierarchy) OutDegree(name string) int {
	return len(h.Supers[name])
}

// sortAdjacency orders every adjacency list so traversals are deterministic.
func (h *Hierarchy) sortAdjacency() {
	for _, list := range h.Supers {
		slices.Sort(list)
	}
	for _, list := range h.Subs {
		slices.Sort(list)
	}
}
