package graph

import (
	"slices"

	"github.com/dbsmedya/autoreg/internal/decl"
)

// Interfaces returns the sorted set of interface identifiers that name
// implements directly or transitively. A reachable node counts as an
// interface when it is declared as one, when it is the target of an
// implements edge, or when an interface embeds it. Declared concrete types
// never count. Cycles are tolerated.
func (h *Hierarchy) Interfaces(name string) []string {
	return h.InterfacesWith(name, nil)
}

// InterfacesWith is Interfaces, but an undeclared node for which known
// returns true also counts as an interface, however it is reached. This
// covers a struct embedding an interface from outside the scanned sources.
func (h *Hierarchy) InterfacesWith(name string, known func(id string) bool) []string {
	if !h.HasNode(name) {
		return nil
	}

	const (
		seenConcrete uint8 = 1 << iota
		seenInterface
	)
	visited := make(map[string]uint8)
	found := make(map[string]bool)

	var walk func(n string, iface bool)
	walk = func(n string, iface bool) {
		if node := h.Nodes[n]; node.Declared {
			iface = node.Kind == decl.KindInterface
		} else if known != nil && known(n) {
			iface = true
		}

		bit := seenConcrete
		if iface {
			bit = seenInterface
		}
		if visited[n]&bit != 0 {
			return
		}
		visited[n] |= bit

		if iface && n != name {
			found[n] = true
		}

		for _, super := range h.GetSupers(n) {
			viaImplements := h.GetEdgeKind(n, super)&EdgeImplements != 0
			walk(super, iface || viaImplements)
		}
	}
	walk(name, false)

	out := make([]string, 0, len(found))
	for n := range found {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
