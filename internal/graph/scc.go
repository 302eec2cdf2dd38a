package graph

import "slices"

// Component is a strongly connected set of types. Members are sorted and the
// first member represents the component.
type Component struct {
	ID      int
	Members []string
}

// Representative returns the component's smallest member name.
func (c Component) Representative() string {
	return c.Members[0]
}

// Condensation is the component DAG of a hierarchy.
type Condensation struct {
	Components  []Component
	ComponentOf map[string]int // node name -> component ID
	DAG         *Hierarchy     // one node per component, named by its representative
}

// StronglyConnected returns the strongly connected components of the
// hierarchy using Tarjan's algorithm, ordered by representative name.
func (h *Hierarchy) StronglyConnected() []Component {
	var (
		index   int
		stack   []string
		onStack = make(map[string]bool)
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		comps   []Component
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range h.GetSupers(v) {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var members []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				members = append(members, w)
				if w == v {
					break
				}
			}
			slices.Sort(members)
			comps = append(comps, Component{Members: members})
		}
	}

	for _, name := range h.AllNodes() {
		if _, seen := indices[name]; !seen {
			strongConnect(name)
		}
	}

	slices.SortFunc(comps, func(a, b Component) int {
		switch {
		case a.Representative() < b.Representative():
			return -1
		case a.Representative() > b.Representative():
			return 1
		default:
			return 0
		}
	})
	for i := range comps {
		comps[i].ID = i
	}
	return comps
}

// Condense collapses every strongly connected component into a single node.
// The resulting DAG is always acyclic.
func (h *Hierarchy) Condense() *Condensation {
	comps := h.StronglyConnected()
	c := &Condensation{
		Components:  comps,
		ComponentOf: make(map[string]int, len(h.Nodes)),
		DAG:         NewHierarchy(),
	}

	for _, comp := range comps {
		for _, m := range comp.Members {
			c.ComponentOf[m] = comp.ID
		}
		rep := h.Nodes[comp.Representative()]
		c.DAG.AddNode(comp.Representative(), &Node{Kind: rep.Kind, Declared: rep.Declared})
	}

	for _, edge := range h.AllEdges() {
		from := c.ComponentOf[edge.From]
		to := c.ComponentOf[edge.To]
		if from == to {
			continue
		}
		c.DAG.AddEdge(comps[from].Representative(), comps[to].Representative(), h.GetEdgeKind(edge.From, edge.To))
	}
	c.DAG.sortAdjacency()

	return c
}
